package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/grdaneault/hydration-helper/internal/logic"
)

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testConfig() Config {
	return Config{
		Hydration: logic.DefaultConfig(),
		Heartbeat: 15 * time.Minute,
		FrameRate: 60,
		Broker:    "tcp://192.168.1.200:1883",
		HTTPAddr:  ":8080",
		Serial:    "/dev/ttyACM0",
	}
}

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(start, "sess", testConfig(), nil)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Session != "sess" {
		t.Errorf("Session: got %q", snap.Session)
	}
	if snap.Config.HTTPAddr != ":8080" {
		t.Errorf("Config.HTTPAddr: got %q, want %q", snap.Config.HTTPAddr, ":8080")
	}
	if snap.Ready {
		t.Error("expected Ready=false initially")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
	if snap.Now.IsZero() {
		t.Error("expected Now to be set")
	}
}

func TestUpdateAndSnapshot(t *testing.T) {
	tr := NewTracker(time.Now(), "", Config{}, nil)

	tr.Update(logic.State{CurrentWeight: 480, LastWaterWeight: 480, TotalConsumed: 20}, "drink-sparkle", 77, ForwardStats{Delivered: 9, Dropped: 3, Pending: 1})
	tr.SetReady(true)

	snap := tr.Snapshot()
	if snap.Hydration.CurrentWeight != 480 || snap.Hydration.TotalConsumed != 20 {
		t.Errorf("Hydration: got %+v", snap.Hydration)
	}
	if snap.Animation != "drink-sparkle" {
		t.Errorf("Animation: got %q", snap.Animation)
	}
	if snap.Brightness != 77 {
		t.Errorf("Brightness: got %d, want 77", snap.Brightness)
	}
	if want := (ForwardStats{Delivered: 9, Dropped: 3, Pending: 1}); snap.Forward != want {
		t.Errorf("Forward: got %+v, want %+v", snap.Forward, want)
	}
	if !snap.Ready {
		t.Error("expected Ready=true")
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), "", Config{}, nil)

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(start, "", Config{}, fixedNow(start.Add(90*time.Minute)))

	if got := tr.Snapshot().Uptime(); got != 90*time.Minute {
		t.Errorf("Uptime: got %v, want 90m", got)
	}
}

func TestSnapshotSinceDrink(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	snap := Snapshot{Now: now}
	if snap.SinceDrink() != 0 {
		t.Errorf("expected 0 without a drink, got %v", snap.SinceDrink())
	}
	snap.Hydration.LastConsumption = now.Add(-25 * time.Minute)
	if snap.SinceDrink() != 25*time.Minute {
		t.Errorf("SinceDrink: got %v, want 25m", snap.SinceDrink())
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), "", Config{}, nil)
	tr.Update(logic.State{TotalConsumed: 100}, "off", 10, ForwardStats{})

	snap := tr.Snapshot()
	snap.Hydration.TotalConsumed = 999

	if tr.Snapshot().Hydration.TotalConsumed != 100 {
		t.Error("modifying snapshot should not affect tracker")
	}
}

func testSnapshot() Snapshot {
	start := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	now := start.Add(time.Hour)
	return Snapshot{
		Hydration: logic.State{
			CurrentWeight:   480,
			LastWaterWeight: 480,
			TotalConsumed:   320,
			ReminderLevel:   2,
			LastConsumption: now.Add(-30 * time.Minute),
			LastReminder:    now.Add(-time.Minute),
		},
		Ready:         true,
		Animation:     "red-pulse-2",
		Brightness:    77,
		MQTTConnected: true,
		Forward:       ForwardStats{Delivered: 40, Dropped: 1, Buffered: 6},
		Session:       "abc",
		StartTime:     start,
		Now:           now,
		Config:        testConfig(),
	}
}

func TestFormatJSON(t *testing.T) {
	data := FormatJSON(testSnapshot())

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	s := parsed.Status

	if s.Event != "" || s.Reason != "" {
		t.Errorf("web status should have no event/reason, got %q/%q", s.Event, s.Reason)
	}
	if s.UptimeSeconds != 3600 {
		t.Errorf("UptimeSeconds: got %d, want 3600", s.UptimeSeconds)
	}
	if s.StartTime != "2026-01-01T08:00:00Z" || s.Timestamp != "2026-01-01T09:00:00Z" {
		t.Errorf("times: got %s / %s", s.StartTime, s.Timestamp)
	}
	if s.Hydration.TotalConsumed != 320 || s.Hydration.ReminderLevel != 2 {
		t.Errorf("Hydration: got %+v", s.Hydration)
	}
	if s.Hydration.SecondsSinceDrink != 1800 {
		t.Errorf("SecondsSinceDrink: got %d, want 1800", s.Hydration.SecondsSinceDrink)
	}
	if s.Hydration.LastTare != "" {
		t.Errorf("LastTare should be empty when never tared, got %q", s.Hydration.LastTare)
	}
	if s.Display.Animation != "red-pulse-2" || s.Display.Brightness != 77 {
		t.Errorf("Display: got %+v", s.Display)
	}
	if !s.MQTT.Connected || s.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("MQTT: got %+v", s.MQTT)
	}
	if s.Config.FirstReminderSecs != 1200 || s.Config.ReminderIntervalSec != 300 || s.Config.HeartbeatSecs != 900 {
		t.Errorf("Config: got %+v", s.Config)
	}
	if want := (ForwardJSON{Delivered: 40, Dropped: 1, MQTTBuffered: 6}); s.Forward != want {
		t.Errorf("Forward: got %+v, want %+v", s.Forward, want)
	}
}

func TestFormatJSONOmitsUnsetTimes(t *testing.T) {
	data := FormatJSON(Snapshot{Now: time.Now(), StartTime: time.Now()})

	var parsed map[string]map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	h := parsed["status"]["hydration"].(map[string]interface{})
	for _, key := range []string{"last_reminder", "last_tare"} {
		if _, ok := h[key]; ok {
			t.Errorf("%s should be omitted when unset", key)
		}
	}
}

func TestFormatStatusEvent(t *testing.T) {
	data := FormatStatusEvent(testSnapshot(), "HEARTBEAT", "")

	var parsed map[string]map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed["status"]["event"] != "HEARTBEAT" {
		t.Errorf("event: got %v", parsed["status"]["event"])
	}
	if _, ok := parsed["status"]["reason"]; ok {
		t.Error("reason should be omitted when empty")
	}
}

func TestFormatStatusEventShutdown(t *testing.T) {
	data := FormatStatusEvent(testSnapshot(), "SHUTDOWN", "SIGTERM")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "SHUTDOWN" || parsed.Status.Reason != "SIGTERM" {
		t.Errorf("got %q/%q", parsed.Status.Event, parsed.Status.Reason)
	}
	if parsed.Status.Session != "abc" {
		t.Errorf("Session: got %q", parsed.Status.Session)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), "", Config{}, nil)
	var wg sync.WaitGroup

	// Writer
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.Update(logic.State{CurrentWeight: i}, "off", uint8(i), ForwardStats{Delivered: uint64(i)})
			tr.SetMQTTConnected(i%2 == 0)
			tr.SetReady(true)
		}
	}()

	// Reader
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = snap.Uptime()
			_ = FormatJSON(snap)
		}
	}()

	wg.Wait()
}
