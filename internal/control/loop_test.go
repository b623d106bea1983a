package control

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/grdaneault/hydration-helper/internal/anim"
	"github.com/grdaneault/hydration-helper/internal/config"
	"github.com/grdaneault/hydration-helper/internal/forward"
	"github.com/grdaneault/hydration-helper/internal/logic"
	"github.com/grdaneault/hydration-helper/internal/mqtt"
	"github.com/grdaneault/hydration-helper/internal/pixel"
	"github.com/grdaneault/hydration-helper/internal/scale"
	"github.com/grdaneault/hydration-helper/internal/status"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

type manualClock struct{ t time.Time }

func (c *manualClock) Now() time.Time          { return c.t }
func (c *manualClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// immediate fires every wait at once and records the requested durations.
type immediate struct{ waits []time.Duration }

func (i *immediate) After(d time.Duration) <-chan time.Time {
	i.waits = append(i.waits, d)
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

func (i *immediate) count(d time.Duration) int {
	n := 0
	for _, w := range i.waits {
		if w == d {
			n++
		}
	}
	return n
}

type harness struct {
	sensor   *scale.FakeSensor
	strip    *pixel.FakeStrip
	engine   *anim.Engine
	machine  *logic.Machine
	pub      *mqtt.FakePublisher
	fwd      *forward.Forwarder
	tracker  *status.Tracker
	clock    *manualClock
	waits    *immediate
	commands chan mqtt.Command
	logs     *observer.ObservedLogs
	loop     *Loop
}

func newHarness(t *testing.T, heartbeat time.Duration) *harness {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	log := zap.New(core)

	h := &harness{
		sensor:   scale.NewFakeSensor(),
		strip:    pixel.NewFakeStrip(8),
		pub:      mqtt.NewFakePublisher(),
		clock:    &manualClock{t: t0},
		waits:    &immediate{},
		commands: make(chan mqtt.Command, 4),
		logs:     logs,
	}
	// One-sample window at one gram per count so raw values read as grams.
	sc := scale.New(h.sensor, scale.NewFilter(1, 500, 1.0))
	h.engine = anim.NewEngine(h.strip, anim.DefaultFrameRate, log)
	h.machine = logic.NewMachine(logic.DefaultConfig(), logic.DefaultAnimations(), h.engine, h.clock.Now)
	h.fwd = forward.New(h.pub, nil, 64, log)
	h.tracker = status.NewTracker(t0, "session-1", status.Config{}, h.clock.Now)
	h.loop = New(Deps{
		Scale:     sc,
		Machine:   h.machine,
		Engine:    h.engine,
		Dimmer:    h.strip,
		Forwarder: h.fwd,
		Tracker:   h.tracker,
		Conn:      h.pub,
		Commands:  h.commands,
		Log:       log,
		Now:       h.clock.Now,
		After:     h.waits.After,
		Session:   "session-1",
		Heartbeat: heartbeat,
		Poll:      time.Millisecond,
	})
	return h
}

// tick advances the clock by d and runs one iteration.
func (h *harness) tick(d time.Duration) {
	h.clock.Advance(d)
	h.loop.Tick(h.clock.Now())
}

// flush delivers everything queued on the forwarder.
func (h *harness) flush() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.fwd.Run(ctx)
}

func TestTickClassifiesAndForwards(t *testing.T) {
	h := newHarness(t, 0)
	h.sensor.Push(0, 500, 500, 480)

	for range 4 {
		h.tick(time.Second)
	}
	h.flush()

	var grams []int
	for _, w := range h.pub.WeightsCopy() {
		grams = append(grams, w.Grams)
	}
	assert.Equal(t, []int{0, 500, 480}, grams, "unchanged readings are not forwarded")

	events := h.pub.EventsCopy()
	require.Len(t, events, 2)
	assert.Equal(t, logic.EventFilled, events[0].Type)
	assert.Equal(t, logic.EventDrank, events[1].Type)
	assert.Equal(t, 20, events[1].Drunk)

	assert.Equal(t, anim.DrinkSparkle, h.engine.Current())

	snap := h.tracker.Snapshot()
	assert.Equal(t, 20, snap.Hydration.TotalConsumed)
	assert.Equal(t, "drink-sparkle", snap.Animation)
	assert.Equal(t, uint8(255), snap.Brightness)
}

func TestTickNoSample(t *testing.T) {
	h := newHarness(t, 0)
	h.tick(time.Second)
	h.flush()

	assert.Empty(t, h.pub.WeightsCopy())
	assert.Equal(t, 0, h.sensor.Tares)
}

func TestTickTaresWhenEmptied(t *testing.T) {
	h := newHarness(t, 0)
	h.sensor.Push(500, 0)

	h.tick(time.Second)
	h.tick(time.Second)
	assert.Equal(t, 1, h.sensor.Tares, "bottle lifted off should tare")

	h.tick(time.Minute)
	assert.Equal(t, 1, h.sensor.Tares, "tare is debounced")

	h.tick(61 * time.Second)
	assert.Equal(t, 2, h.sensor.Tares, "platform still empty after the debounce")

	h.flush()
	events := h.pub.EventsCopy()
	require.NotEmpty(t, events)
	assert.Equal(t, logic.EventEmptied, events[len(events)-1].Type)
}

func TestTareFailureStillReported(t *testing.T) {
	h := newHarness(t, 0)
	h.sensor.TareError = errors.New("i2c: remote I/O error")
	h.sensor.Push(500, 0)

	h.tick(time.Second)
	h.tick(time.Second)
	h.tick(time.Second)
	h.tick(time.Second)

	assert.Equal(t, 1, h.sensor.Tares, "failed tare should not retry every tick")
	assert.Equal(t, h.clock.Now().Add(-2*time.Second), h.machine.Snapshot().LastTare)
	assert.Equal(t, 1, h.logs.FilterMessage("tare failed").Len())
}

func TestScaleErrorLoggedOncePerStreak(t *testing.T) {
	h := newHarness(t, 0)
	h.sensor.SampleError = errors.New("bus gone")

	for range 3 {
		h.tick(time.Second)
	}
	assert.Equal(t, 1, h.logs.FilterMessage("scale read failed").Len())

	h.sensor.SampleError = nil
	h.sensor.Push(250)
	h.tick(time.Second)
	assert.Equal(t, 1, h.logs.FilterMessage("scale read recovered").Len())
	assert.Equal(t, 250, h.machine.Snapshot().CurrentWeight)
}

func TestFrameGating(t *testing.T) {
	h := newHarness(t, 0)
	h.engine.SetAnimation(anim.SolidBlue)
	h.strip.Reset()

	h.tick(5 * time.Millisecond)
	assert.Empty(t, h.strip.Frames, "too early for a frame")

	h.tick(12 * time.Millisecond)
	assert.Len(t, h.strip.Frames, 1)

	h.tick(3 * time.Millisecond)
	assert.Len(t, h.strip.Frames, 1)

	h.tick(14 * time.Millisecond)
	assert.Len(t, h.strip.Frames, 2)
}

func TestFrameRateAtDefaultTick(t *testing.T) {
	h := newHarness(t, 0)
	h.engine.SetAnimation(anim.SolidBlue)
	h.strip.Reset()

	tick := config.Default().Loop.Tick
	for range time.Second / tick {
		h.tick(tick)
	}
	assert.InDelta(t, anim.DefaultFrameRate, len(h.strip.Frames), 1)
}

func TestFramePacingAfterStall(t *testing.T) {
	h := newHarness(t, 0)
	h.engine.SetAnimation(anim.SolidBlue)
	h.strip.Reset()

	h.tick(time.Second)
	assert.Len(t, h.strip.Frames, 1, "a stall renders one frame, not a burst")

	h.tick(5 * time.Millisecond)
	assert.Len(t, h.strip.Frames, 1)

	h.tick(12 * time.Millisecond)
	assert.Len(t, h.strip.Frames, 2)
}

func TestCommands(t *testing.T) {
	h := newHarness(t, 0)
	h.commands <- mqtt.Command{Kind: mqtt.CommandBrightness, Value: "200", Brightness: 200}
	h.commands <- mqtt.Command{Kind: mqtt.CommandPattern, Value: "red-alert"}
	h.commands <- mqtt.Command{Kind: mqtt.CommandTare}

	h.tick(time.Second)

	assert.Equal(t, uint8(200), h.strip.Brightness())
	assert.Equal(t, anim.RedAlert, h.engine.Current())
	assert.Equal(t, 1, h.sensor.Tares)
	assert.Equal(t, h.clock.Now(), h.machine.Snapshot().LastTare)
	assert.Equal(t, uint8(200), h.tracker.Snapshot().Brightness)
}

func TestUnknownPatternKeepsAnimation(t *testing.T) {
	h := newHarness(t, 0)
	h.engine.SetAnimation(anim.SolidBlue)
	h.commands <- mqtt.Command{Kind: mqtt.CommandPattern, Value: "disco"}

	h.tick(time.Second)

	assert.Equal(t, anim.SolidBlue, h.engine.Current())
	entries := h.logs.FilterMessage("unknown pattern").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap(), "known")
}

func TestHeartbeat(t *testing.T) {
	h := newHarness(t, 15*time.Minute)

	h.tick(14 * time.Minute)
	h.flush()
	assert.Empty(t, h.pub.SystemEventsCopy())

	h.tick(time.Minute)
	h.flush()
	sys := h.pub.SystemEventsCopy()
	require.Len(t, sys, 1)
	assert.Equal(t, "HEARTBEAT", sys[0].Event)
	assert.False(t, sys[0].Retained)
	assert.Equal(t, "session-1", sys[0].Session)
	assert.NotEmpty(t, sys[0].RawPayload)

	h.tick(time.Minute)
	h.flush()
	assert.Len(t, h.pub.SystemEventsCopy(), 1, "next heartbeat is 15 minutes out")
}

func TestTrackerConnectionStatus(t *testing.T) {
	h := newHarness(t, 0)
	h.pub.Connected = true
	h.tick(time.Second)
	assert.True(t, h.tracker.Snapshot().MQTTConnected)

	h.pub.Connected = false
	h.tick(time.Second)
	assert.False(t, h.tracker.Snapshot().MQTTConnected)
}

func TestTrackerForwardStats(t *testing.T) {
	h := newHarness(t, 0)
	h.pub.Held = 3
	h.sensor.Push(500)
	h.tick(time.Second)

	fwd := h.tracker.Snapshot().Forward
	assert.Equal(t, status.ForwardStats{Pending: 2, Buffered: 3}, fwd, "reading and FILLED event queued")

	h.flush()
	h.pub.Held = 0
	h.tick(time.Second)
	assert.Equal(t, status.ForwardStats{Delivered: 2}, h.tracker.Snapshot().Forward)
}

func TestPublishStartup(t *testing.T) {
	h := newHarness(t, 0)
	h.loop.PublishStartup()
	h.flush()

	sys := h.pub.SystemEventsCopy()
	require.Len(t, sys, 1)
	assert.Equal(t, "STARTUP", sys[0].Event)
	assert.True(t, sys[0].Retained)
	assert.Equal(t, t0, sys[0].Timestamp)
}

func TestRunShutdown(t *testing.T) {
	h := newHarness(t, 0)
	h.engine.SetAnimation(anim.SolidBlue)
	h.engine.Step()

	sig := make(chan os.Signal, 1)
	sig <- syscall.SIGTERM
	require.NoError(t, h.loop.Run(nil, sig))
	h.flush()

	assert.Nil(t, h.engine.Current())
	for _, c := range h.strip.Last() {
		assert.Equal(t, pixel.Off, c)
	}

	sys := h.pub.SystemEventsCopy()
	require.Len(t, sys, 1)
	assert.Equal(t, "SHUTDOWN", sys[0].Event)
	assert.Equal(t, "SIGTERM", sys[0].Reason)
	assert.True(t, sys[0].Retained)
}

func TestShutdownBlanksIdleStrip(t *testing.T) {
	h := newHarness(t, 0)
	h.strip.Fill(pixel.Red)

	sig := make(chan os.Signal, 1)
	sig <- syscall.SIGINT
	require.NoError(t, h.loop.Run(nil, sig))

	require.NotEmpty(t, h.strip.Frames)
	for _, c := range h.strip.Last() {
		assert.Equal(t, pixel.Off, c)
	}
	h.flush()
	assert.Equal(t, "SIGINT", h.pub.SystemEventsCopy()[0].Reason)
}
