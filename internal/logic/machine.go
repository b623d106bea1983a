package logic

import (
	"time"

	"github.com/grdaneault/hydration-helper/internal/anim"
)

// Machine classifies smoothed weight readings into hydration events, keeps
// consumption totals, escalates reminders and decides when to tare.
type Machine struct {
	cfg        Config
	animations Animations
	animator   Animator
	now        func() time.Time

	// currentWeight is the latest reading; previousWeight the one before it.
	// Both are overwritten on every Update.
	currentWeight  int
	previousWeight int

	// lastWaterWeight is the full-bottle baseline. It moves only on FILLED and DRANK.
	lastWaterWeight int

	// totalConsumed only grows, on DRANK.
	totalConsumed int

	// lastConsumption is set at boot and on DRANK. Reminder and idle timers run from it.
	lastConsumption time.Time

	// lastActivity is set at boot, on FILLED, and when the bottle is lifted off.
	lastActivity time.Time

	// lastReminder is set at boot and when a reminder fires; DRANK clears it.
	lastReminder  time.Time
	reminderLevel int

	// idle is set once the platform has been empty past IdleAfter. Only
	// FILLED and DRANK clear it.
	idle bool

	// pendingTare is set when the bottle is lifted off and cleared by any
	// reading above the near-zero threshold, which also clears lastTare.
	pendingTare bool
	lastTare    time.Time

	bootTime time.Time
}

type noopAnimator struct{}

func (noopAnimator) SetAnimation(anim.Descriptor) {}

// NewMachine creates a Machine. All timers start at now().
// A nil animator discards animation selections.
func NewMachine(cfg Config, animations Animations, animator Animator, now func() time.Time) *Machine {
	if animator == nil {
		animator = noopAnimator{}
	}
	if now == nil {
		now = time.Now
	}
	boot := now()
	return &Machine{
		cfg:             cfg,
		animations:      animations,
		animator:        animator,
		now:             now,
		lastConsumption: boot,
		lastActivity:    boot,
		lastReminder:    boot,
		bootTime:        boot,
	}
}

// Update runs the state machine on a new smoothed reading in grams.
// The checks run in a fixed order: empty, filled, drank, otherwise.
func (m *Machine) Update(grams int) Event {
	now := m.now()
	m.previousWeight = m.currentWeight
	m.currentWeight = grams

	if grams <= m.cfg.NearZeroGrams {
		if m.previousWeight > m.cfg.NearZeroGrams {
			// Bottle lifted off.
			m.pendingTare = true
			m.lastActivity = now
			return m.event(now, EventEmptied, 0)
		}
		return m.event(now, m.maybeRemindOrIdle(now), 0)
	}
	m.pendingTare = false
	m.lastTare = time.Time{}

	if grams >= m.lastWaterWeight+m.cfg.HysteresisGrams {
		m.lastWaterWeight = grams
		m.animator.SetAnimation(m.animations.Filled)
		m.lastActivity = now
		m.idle = false
		m.maybeRemindOrIdle(now)
		return m.event(now, EventFilled, 0)
	}

	if m.lastWaterWeight-grams > m.cfg.HysteresisGrams {
		drunk := m.lastWaterWeight - grams
		m.totalConsumed += drunk
		m.lastWaterWeight = grams
		m.lastConsumption = now
		m.animator.SetAnimation(m.animations.Drank)
		m.reminderLevel = 0
		m.lastReminder = time.Time{}
		m.idle = false
		return m.event(now, EventDrank, drunk)
	}

	return m.event(now, m.maybeRemindOrIdle(now), 0)
}

// maybeRemindOrIdle enters idle or fires the next reminder when due.
// It never clears idle.
func (m *Machine) maybeRemindOrIdle(now time.Time) EventType {
	if m.idle {
		return EventUnchanged
	}

	sinceDrink := now.Sub(m.lastConsumption)
	if sinceDrink >= m.cfg.IdleAfter && m.currentWeight <= m.cfg.NearZeroGrams {
		m.idle = true
		m.animator.SetAnimation(anim.Off{})
		return EventIdle
	}

	if sinceDrink <= m.cfg.FirstReminderDelay {
		return EventUnchanged
	}

	if !m.lastReminder.IsZero() && now.Sub(m.lastReminder) < m.cfg.ReminderInterval {
		return EventUnchanged
	}

	m.reminderLevel = min(m.reminderLevel+1, m.cfg.ReminderLevelCap)
	m.lastReminder = now
	if n := len(m.animations.Escalation); n > 0 {
		m.animator.SetAnimation(m.animations.Escalation[min(m.reminderLevel-1, n-1)])
	}
	return EventReminder
}

// ShouldTare reports whether the caller should zero the scale now: the
// bottle has been lifted off and no tare happened within TareDebounce.
func (m *Machine) ShouldTare() bool {
	if !m.pendingTare {
		return false
	}
	return m.lastTare.IsZero() || m.now().Sub(m.lastTare) > m.cfg.TareDebounce
}

// ReportTare records that the scale was just zeroed.
func (m *Machine) ReportTare() {
	m.lastTare = m.now()
}

// Snapshot returns a copy of the machine's state.
func (m *Machine) Snapshot() State {
	return State{
		CurrentWeight:   m.currentWeight,
		PreviousWeight:  m.previousWeight,
		LastWaterWeight: m.lastWaterWeight,
		TotalConsumed:   m.totalConsumed,
		LastConsumption: m.lastConsumption,
		LastActivity:    m.lastActivity,
		LastReminder:    m.lastReminder,
		ReminderLevel:   m.reminderLevel,
		Idle:            m.idle,
		PendingTare:     m.pendingTare,
		LastTare:        m.lastTare,
		BootTime:        m.bootTime,
	}
}

// Config returns the machine's configuration.
func (m *Machine) Config() Config {
	return m.cfg
}

func (m *Machine) event(now time.Time, typ EventType, drunk int) Event {
	return Event{
		Time:          now,
		Type:          typ,
		Weight:        m.currentWeight,
		Drunk:         drunk,
		Total:         m.totalConsumed,
		ReminderLevel: m.reminderLevel,
	}
}
