// Package status provides a thread-safe status tracker for the hydration
// helper. The control loop writes it; HTTP handlers and heartbeats read it.
package status

import (
	"sync"
	"time"

	"github.com/grdaneault/hydration-helper/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	Hydration logic.Config
	Heartbeat time.Duration
	FrameRate int
	Broker    string
	HTTPAddr  string
	Serial    string
}

// ForwardStats counts what the loop handed to MQTT and the history store.
type ForwardStats struct {
	Delivered uint64
	Dropped   uint64 // queue full
	Pending   int
	Buffered  int // MQTT messages held while disconnected
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Hydration     logic.State
	Ready         bool // startup sequence finished
	Animation     string
	Brightness    uint8
	MQTTConnected bool
	Forward       ForwardStats
	Session       string
	StartTime     time.Time
	Now           time.Time
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// SinceDrink returns the time since the last recorded drink (or boot).
func (s Snapshot) SinceDrink() time.Duration {
	if s.Hydration.LastConsumption.IsZero() {
		return 0
	}
	return s.Now.Sub(s.Hydration.LastConsumption)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time, session id and
// config. A nil now uses time.Now.
func NewTracker(startTime time.Time, session string, cfg Config, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Session:   session,
			Config:    cfg,
		},
		now: now,
	}
}

// Update sets the hydration state and display state.
// Called from the control loop on every tick.
func (t *Tracker) Update(state logic.State, animation string, brightness uint8, fwd ForwardStats) {
	t.mu.Lock()
	t.snap.Hydration = state
	t.snap.Animation = animation
	t.snap.Brightness = brightness
	t.snap.Forward = fwd
	t.mu.Unlock()
}

// SetReady marks the startup sequence as finished.
func (t *Tracker) SetReady(ready bool) {
	t.mu.Lock()
	t.snap.Ready = ready
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
