// Package control runs the hydration helper: it reads the scale, drives the
// state machine and the LED animation, and hands telemetry to the forwarder.
// Only the goroutine running the Loop touches the scale, machine and strip.
package control

import (
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/grdaneault/hydration-helper/internal/anim"
	"github.com/grdaneault/hydration-helper/internal/forward"
	"github.com/grdaneault/hydration-helper/internal/logic"
	"github.com/grdaneault/hydration-helper/internal/mqtt"
	"github.com/grdaneault/hydration-helper/internal/scale"
	"github.com/grdaneault/hydration-helper/internal/status"
)

// Dimmer controls global strip brightness.
type Dimmer interface {
	Brightness() uint8
	SetBrightness(v uint8)
}

// Deps are the components a Loop drives. Dimmer, Tracker, Conn and Commands
// are optional.
type Deps struct {
	Scale     *scale.Scale
	Machine   *logic.Machine
	Engine    *anim.Engine
	Dimmer    Dimmer
	Forwarder *forward.Forwarder
	Tracker   *status.Tracker
	Conn      mqtt.ConnectionStatus
	Commands  <-chan mqtt.Command
	Log       *zap.Logger
	Now       func() time.Time
	After     func(time.Duration) <-chan time.Time

	Session   string
	Heartbeat time.Duration // 0 disables
	Poll      time.Duration // startup raw read polling
}

// Loop is the single-writer control task.
type Loop struct {
	Deps

	frameInterval time.Duration
	lastFrame     time.Time
	lastHeartbeat time.Time

	sampleFailing bool
	last          logic.State
}

// New creates a Loop.
func New(d Deps) *Loop {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.After == nil {
		d.After = time.After
	}
	if d.Poll <= 0 {
		d.Poll = 10 * time.Millisecond
	}
	start := d.Now()
	return &Loop{
		Deps:          d,
		frameInterval: time.Second / time.Duration(d.Engine.FrameRate()),
		lastFrame:     start,
		lastHeartbeat: start,
	}
}

// Run ticks the loop until a signal arrives, then publishes SHUTDOWN,
// blanks the strip and returns.
func (l *Loop) Run(tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			l.shutdown(s)
			return nil
		case <-tick:
			l.Tick(l.Now())
		}
	}
}

// Tick runs one iteration. A reading is fully classified before the
// animation advances.
func (l *Loop) Tick(now time.Time) {
	l.drainCommands()

	grams, ok, err := l.Scale.ReadGrams()
	switch {
	case err != nil:
		if !l.sampleFailing {
			l.Log.Warn("scale read failed", zap.Error(err))
			l.sampleFailing = true
		}
	case ok:
		if l.sampleFailing {
			l.Log.Info("scale read recovered")
			l.sampleFailing = false
		}
		l.handleReading(now, grams)
	}

	if l.Machine.ShouldTare() {
		l.tare("empty")
	}

	if now.Sub(l.lastFrame) >= l.frameInterval {
		l.lastFrame = l.lastFrame.Add(l.frameInterval)
		if now.Sub(l.lastFrame) >= l.frameInterval {
			// Fell more than a frame behind; skip ahead instead of bursting.
			l.lastFrame = now
		}
		l.Engine.Step()
	}

	if l.Heartbeat > 0 && now.Sub(l.lastHeartbeat) >= l.Heartbeat {
		l.lastHeartbeat = now
		l.publishStatus(now, "HEARTBEAT", "", false)
	}

	l.updateTracker()
}

func (l *Loop) handleReading(now time.Time, grams int) {
	ev := l.Machine.Update(grams)
	l.Forwarder.Reading(mqtt.WeightReading{Timestamp: now, Grams: grams})

	if ev.Type != logic.EventUnchanged {
		l.Log.Info("hydration event",
			zap.String("event", string(ev.Type)),
			zap.Int("weight", ev.Weight),
			zap.Int("drunk", ev.Drunk),
			zap.Int("total", ev.Total),
			zap.Int("reminder_level", ev.ReminderLevel))
		l.Forwarder.Event(ev)
	}

	st := l.Machine.Snapshot()
	if st.CurrentWeight != l.last.CurrentWeight || st.LastWaterWeight != l.last.LastWaterWeight ||
		st.TotalConsumed != l.last.TotalConsumed || st.PendingTare != l.last.PendingTare {
		l.Log.Debug("state",
			zap.Int("grams", st.CurrentWeight),
			zap.Int("bottle", st.LastWaterWeight),
			zap.Int("total", st.TotalConsumed),
			zap.Bool("pending_tare", st.PendingTare))
	}
	l.last = st
}

// tare zeroes the scale. A failed tare is still reported to the machine so
// a flaky bus does not cause a tare on every tick.
func (l *Loop) tare(reason string) {
	if err := l.Scale.Tare(); err != nil {
		l.Log.Warn("tare failed", zap.String("reason", reason), zap.Error(err))
	} else {
		l.Log.Info("tared", zap.String("reason", reason))
	}
	l.Machine.ReportTare()
}

func (l *Loop) drainCommands() {
	if l.Commands == nil {
		return
	}
	for {
		select {
		case cmd := <-l.Commands:
			l.apply(cmd)
		default:
			return
		}
	}
}

func (l *Loop) apply(cmd mqtt.Command) {
	switch cmd.Kind {
	case mqtt.CommandTare:
		l.tare("remote")
	case mqtt.CommandBrightness:
		if l.Dimmer == nil {
			return
		}
		l.Dimmer.SetBrightness(cmd.Brightness)
		l.Log.Info("brightness set", zap.Uint8("brightness", cmd.Brightness))
	case mqtt.CommandPattern:
		d, ok := anim.ByName(cmd.Value)
		if !ok {
			l.Log.Warn("unknown pattern", zap.String("pattern", cmd.Value), zap.Strings("known", anim.Names()))
			return
		}
		l.Engine.SetAnimation(d)
		l.Log.Info("pattern set", zap.String("pattern", cmd.Value))
	}
}

func (l *Loop) updateTracker() {
	if l.Tracker == nil {
		return
	}
	var brightness uint8
	if l.Dimmer != nil {
		brightness = l.Dimmer.Brightness()
	}
	fwd := status.ForwardStats{
		Delivered: l.Forwarder.Delivered(),
		Dropped:   l.Forwarder.Dropped(),
		Pending:   l.Forwarder.Pending(),
	}
	if l.Conn != nil {
		fwd.Buffered = l.Conn.Buffered()
		l.Tracker.SetMQTTConnected(l.Conn.IsConnected())
	}
	l.Tracker.Update(l.Machine.Snapshot(), anim.Name(l.Engine.Current()), brightness, fwd)
}

// publishStatus queues a system event carrying the status snapshot.
func (l *Loop) publishStatus(now time.Time, event, reason string, retained bool) {
	ev := mqtt.SystemEvent{
		Timestamp: now,
		Event:     event,
		Reason:    reason,
		Session:   l.Session,
		Retained:  retained,
	}
	if l.Tracker != nil {
		l.updateTracker()
		ev.RawPayload = status.FormatStatusEvent(l.Tracker.Snapshot(), event, reason)
	}
	if !l.Forwarder.System(ev) {
		l.Log.Warn("system event dropped", zap.String("event", event))
	}
}

// PublishStartup queues the STARTUP system event.
func (l *Loop) PublishStartup() {
	l.publishStatus(l.Now(), "STARTUP", "", true)
}

func (l *Loop) shutdown(s os.Signal) {
	reason := "UNKNOWN"
	switch s {
	case syscall.SIGINT:
		reason = "SIGINT"
	case syscall.SIGTERM:
		reason = "SIGTERM"
	}
	l.Log.Info("shutting down", zap.String("signal", reason))
	if err := l.Engine.Clear(); err != nil {
		l.Log.Warn("blank strip failed", zap.Error(err))
	}
	l.publishStatus(l.Now(), "SHUTDOWN", reason, true)
}
