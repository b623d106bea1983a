// Package mqtt provides MQTT publishing and remote commands with abstraction
// for testing.
package mqtt

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/grdaneault/hydration-helper/internal/logic"
)

// Topics published by the helper.
const (
	// TopicWeight carries the smoothed weight in grams as a plain number.
	TopicWeight = "hydration-helper/weight"

	// TopicEvents carries hydration events as JSON.
	TopicEvents = "hydration-helper/events"

	// TopicSystem carries lifecycle events and status snapshots.
	TopicSystem = "hydration-helper/system"
)

// Publisher publishes readings and events to MQTT.
type Publisher interface {
	// PublishWeight sends a smoothed weight reading.
	PublishWeight(reading WeightReading) error

	// Publish sends a hydration event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active and how
// many messages are held for replay.
type ConnectionStatus interface {
	IsConnected() bool
	Buffered() int
}

// WeightReading is one smoothed scale reading.
type WeightReading struct {
	Timestamp time.Time
	Grams     int
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	Session    string // boot session id
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// FormatWeight creates the plain numeric payload for a weight reading.
func FormatWeight(reading WeightReading) []byte {
	return strconv.AppendInt(nil, int64(reading.Grams), 10)
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Hydration HydrationPayload `json:"hydration"`
}

// HydrationPayload contains the hydration event details.
type HydrationPayload struct {
	Timestamp     string `json:"timestamp"`
	Event         string `json:"event"`
	Weight        int    `json:"weight"`
	Drunk         int    `json:"drunk,omitempty"`
	Total         int    `json:"total"`
	ReminderLevel int    `json:"reminder_level"`
}

// FormatPayload creates the JSON payload for a hydration event.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		Hydration: HydrationPayload{
			Timestamp:     event.Time.UTC().Format(time.RFC3339),
			Event:         string(event.Type),
			Weight:        event.Weight,
			Drunk:         event.Drunk,
			Total:         event.Total,
			ReminderLevel: event.ReminderLevel,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
	Session   string `json:"session,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
			Session:   event.Session,
		},
	}
	return json.Marshal(payload)
}
