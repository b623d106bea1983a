// Package store keeps a sqlite history of weight readings and hydration
// events. It is write-mostly: nothing here is read back into the state
// machine on restart.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/grdaneault/hydration-helper/internal/logic"
)

//go:embed schema.sql
var schemaSQL string

// Store is a sqlite-backed history store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. ":memory:" gives a
// private in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// One writer; an in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// RecordReading stores one smoothed weight reading.
func (s *Store) RecordReading(ctx context.Context, ts time.Time, grams int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO readings (ts_ms, grams) VALUES (?, ?)`,
		ts.UnixMilli(), grams)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

// RecordEvent stores one hydration event.
func (s *Store) RecordEvent(ctx context.Context, ev logic.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (ts_ms, type, weight, drunk, total, reminder_level)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ev.Time.UnixMilli(), string(ev.Type), ev.Weight, ev.Drunk, ev.Total, ev.ReminderLevel)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ConsumedSince returns the grams drunk in DRANK events at or after since.
func (s *Store) ConsumedSince(ctx context.Context, since time.Time) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(drunk), 0) FROM events WHERE type = ? AND ts_ms >= ?`,
		string(logic.EventDrank), since.UnixMilli()).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum consumption: %w", err)
	}
	return total, nil
}

// RecentEvents returns up to limit events, newest first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]logic.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts_ms, type, weight, drunk, total, reminder_level
		 FROM events ORDER BY ts_ms DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []logic.Event
	for rows.Next() {
		var (
			ms  int64
			typ string
			ev  logic.Event
		)
		if err := rows.Scan(&ms, &typ, &ev.Weight, &ev.Drunk, &ev.Total, &ev.ReminderLevel); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Time = time.UnixMilli(ms).UTC()
		ev.Type = logic.EventType(typ)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// ReadingCount returns the number of stored readings.
func (s *Store) ReadingCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM readings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count readings: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
