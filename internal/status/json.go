package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Session       string        `json:"session"`
	Ready         bool          `json:"ready"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Hydration     HydrationJSON `json:"hydration"`
	Display       DisplayJSON   `json:"display"`
	Forward       ForwardJSON   `json:"forward"`
	Config        ConfigJSON    `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// HydrationJSON is the JSON representation of the state machine.
type HydrationJSON struct {
	Weight            int    `json:"weight"`
	BottleWeight      int    `json:"bottle_weight"`
	TotalConsumed     int    `json:"total_consumed"`
	ReminderLevel     int    `json:"reminder_level"`
	Idle              bool   `json:"idle"`
	PendingTare       bool   `json:"pending_tare"`
	LastConsumption   string `json:"last_consumption"`
	SecondsSinceDrink int64  `json:"seconds_since_drink"`
	LastReminder      string `json:"last_reminder,omitempty"`
	LastTare          string `json:"last_tare,omitempty"`
}

// DisplayJSON is the JSON representation of the LED state.
type DisplayJSON struct {
	Animation  string `json:"animation"`
	Brightness uint8  `json:"brightness"`
}

// ForwardJSON reports delivery counters for readings and events.
type ForwardJSON struct {
	Delivered    uint64 `json:"delivered"`
	Dropped      uint64 `json:"dropped"`
	Pending      int    `json:"pending"`
	MQTTBuffered int    `json:"mqtt_buffered"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	NearZeroGrams       int    `json:"near_zero_grams"`
	HysteresisGrams     int    `json:"hysteresis_grams"`
	FirstReminderSecs   int64  `json:"first_reminder_s"`
	ReminderIntervalSec int64  `json:"reminder_interval_s"`
	IdleAfterSecs       int64  `json:"idle_after_s"`
	ReminderLevelCap    int    `json:"reminder_level_cap"`
	TareDebounceSecs    int64  `json:"tare_debounce_s"`
	HeartbeatSecs       int64  `json:"heartbeat_s"`
	FrameRate           int    `json:"frame_rate"`
	Broker              string `json:"broker"`
	HTTPAddr            string `json:"http_addr"`
	Serial              string `json:"serial,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func seconds(d time.Duration) int64 {
	return int64(d.Truncate(time.Second).Seconds())
}

func buildInner(snap Snapshot) StatusInner {
	h := snap.Hydration
	cfg := snap.Config
	return StatusInner{
		Session:       snap.Session,
		Ready:         snap.Ready,
		UptimeSeconds: seconds(snap.Uptime()),
		StartTime:     formatTime(snap.StartTime),
		Timestamp:     formatTime(snap.Now),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: cfg.Broker},
		Hydration: HydrationJSON{
			Weight:            h.CurrentWeight,
			BottleWeight:      h.LastWaterWeight,
			TotalConsumed:     h.TotalConsumed,
			ReminderLevel:     h.ReminderLevel,
			Idle:              h.Idle,
			PendingTare:       h.PendingTare,
			LastConsumption:   formatTime(h.LastConsumption),
			SecondsSinceDrink: seconds(snap.SinceDrink()),
			LastReminder:      formatTime(h.LastReminder),
			LastTare:          formatTime(h.LastTare),
		},
		Display: DisplayJSON{Animation: snap.Animation, Brightness: snap.Brightness},
		Forward: ForwardJSON{
			Delivered:    snap.Forward.Delivered,
			Dropped:      snap.Forward.Dropped,
			Pending:      snap.Forward.Pending,
			MQTTBuffered: snap.Forward.Buffered,
		},
		Config: ConfigJSON{
			NearZeroGrams:       cfg.Hydration.NearZeroGrams,
			HysteresisGrams:     cfg.Hydration.HysteresisGrams,
			FirstReminderSecs:   seconds(cfg.Hydration.FirstReminderDelay),
			ReminderIntervalSec: seconds(cfg.Hydration.ReminderInterval),
			IdleAfterSecs:       seconds(cfg.Hydration.IdleAfter),
			ReminderLevelCap:    cfg.Hydration.ReminderLevelCap,
			TareDebounceSecs:    seconds(cfg.Hydration.TareDebounce),
			HeartbeatSecs:       seconds(cfg.Heartbeat),
			FrameRate:           cfg.FrameRate,
			Broker:              cfg.Broker,
			HTTPAddr:            cfg.HTTPAddr,
			Serial:              cfg.Serial,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
