// Package logic contains the hydration state machine.
// This package has NO hardware, MQTT, OS or time.Sleep dependencies.
// Time is always injectable via a now function.
package logic

import (
	"errors"
	"time"

	"github.com/grdaneault/hydration-helper/internal/anim"
)

// EventType classifies a weight reading.
type EventType string

const (
	EventUnchanged EventType = "UNCHANGED"
	EventEmptied   EventType = "EMPTIED"
	EventFilled    EventType = "FILLED"
	EventDrank     EventType = "DRANK"
	EventReminder  EventType = "REMINDER"
	EventIdle      EventType = "IDLE"
)

// Event is the outcome of one Update.
type Event struct {
	Time          time.Time
	Type          EventType
	Weight        int // grams on the platform
	Drunk         int // grams consumed by this event (DRANK only)
	Total         int // total grams consumed since boot
	ReminderLevel int
}

// Config holds the state machine's thresholds and timers.
type Config struct {
	NearZeroGrams      int           `yaml:"near_zero_grams"`
	HysteresisGrams    int           `yaml:"hysteresis_grams"`
	FirstReminderDelay time.Duration `yaml:"first_reminder_delay"`
	ReminderInterval   time.Duration `yaml:"reminder_interval"`
	IdleAfter          time.Duration `yaml:"idle_after"`
	ReminderLevelCap   int           `yaml:"reminder_level_cap"`
	TareDebounce       time.Duration `yaml:"tare_debounce"`
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		NearZeroGrams:      5,
		HysteresisGrams:    5,
		FirstReminderDelay: 20 * time.Minute,
		ReminderInterval:   5 * time.Minute,
		IdleAfter:          60 * time.Minute,
		ReminderLevelCap:   5,
		TareDebounce:       120 * time.Second,
	}
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	var errs []error
	if c.NearZeroGrams < 0 {
		errs = append(errs, errors.New("near_zero_grams must not be negative"))
	}
	if c.HysteresisGrams < 0 {
		errs = append(errs, errors.New("hysteresis_grams must not be negative"))
	}
	if c.FirstReminderDelay < 0 || c.ReminderInterval < 0 || c.IdleAfter < 0 || c.TareDebounce < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if c.ReminderLevelCap < 1 {
		errs = append(errs, errors.New("reminder_level_cap must be at least 1"))
	}
	return errors.Join(errs...)
}

// Animations are the animations the state machine selects.
type Animations struct {
	Filled     anim.Descriptor
	Drank      anim.Descriptor
	Escalation []anim.Descriptor // gentlest first
}

// DefaultAnimations returns the standard animation set.
func DefaultAnimations() Animations {
	return Animations{
		Filled:     anim.LightBluePulse,
		Drank:      anim.DrinkSparkle,
		Escalation: anim.Escalation,
	}
}

// Animator receives animation selections.
type Animator interface {
	SetAnimation(d anim.Descriptor)
}

// State is a point-in-time copy of the machine's fields.
type State struct {
	CurrentWeight   int
	PreviousWeight  int
	LastWaterWeight int
	TotalConsumed   int
	LastConsumption time.Time
	LastActivity    time.Time
	LastReminder    time.Time // zero when cleared by a drink
	ReminderLevel   int
	Idle            bool
	PendingTare     bool
	LastTare        time.Time // zero when no tare since the bottle returned
	BootTime        time.Time
}
