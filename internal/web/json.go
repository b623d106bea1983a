package web

import (
	"encoding/json"
	"time"

	"github.com/grdaneault/hydration-helper/internal/logic"
)

// HistoryJSON is the JSON representation of stored history.
type HistoryJSON struct {
	ConsumedToday int         `json:"consumed_today"`
	Readings      int         `json:"readings"`
	Events        []EventJSON `json:"events"`
}

// EventJSON is one stored hydration event.
type EventJSON struct {
	Timestamp     string `json:"timestamp"`
	Event         string `json:"event"`
	Weight        int    `json:"weight"`
	Drunk         int    `json:"drunk,omitempty"`
	Total         int    `json:"total"`
	ReminderLevel int    `json:"reminder_level"`
}

func formatHistory(events []logic.Event, consumedToday, readings int) []byte {
	h := HistoryJSON{
		ConsumedToday: consumedToday,
		Readings:      readings,
		Events:        make([]EventJSON, 0, len(events)),
	}
	for _, ev := range events {
		h.Events = append(h.Events, EventJSON{
			Timestamp:     ev.Time.UTC().Format(time.RFC3339),
			Event:         string(ev.Type),
			Weight:        ev.Weight,
			Drunk:         ev.Drunk,
			Total:         ev.Total,
			ReminderLevel: ev.ReminderLevel,
		})
	}

	data, _ := json.MarshalIndent(h, "", "  ")
	return data
}
