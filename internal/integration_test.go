package internal

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/grdaneault/hydration-helper/internal/anim"
	"github.com/grdaneault/hydration-helper/internal/control"
	"github.com/grdaneault/hydration-helper/internal/forward"
	"github.com/grdaneault/hydration-helper/internal/logic"
	"github.com/grdaneault/hydration-helper/internal/mqtt"
	"github.com/grdaneault/hydration-helper/internal/pixel"
	"github.com/grdaneault/hydration-helper/internal/scale"
	"github.com/grdaneault/hydration-helper/internal/status"
	"github.com/grdaneault/hydration-helper/internal/store"
	"github.com/grdaneault/hydration-helper/internal/web"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func immediately(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

// rawFor returns the ADC count that converts back to grams.
func rawFor(grams int) int32 {
	return int32(math.Round(float64(grams) / scale.DefaultGramsPerRaw))
}

// pushSettled scripts enough identical samples for the filter to settle.
func pushSettled(s *scale.FakeSensor, grams ...int) {
	for _, g := range grams {
		for range scale.DefaultStabilitySamples {
			s.Push(rawFor(g))
		}
	}
}

type rig struct {
	sensor  *scale.FakeSensor
	strip   *pixel.FakeStrip
	pub     *mqtt.FakePublisher
	store   *store.Store
	tracker *status.Tracker
	fwd     *forward.Forwarder
	loop    *control.Loop
	clock   *clock

	stopForward context.CancelFunc
	wg          sync.WaitGroup
}

func newRig(t *testing.T) *rig {
	t.Helper()
	log := zaptest.NewLogger(t)

	st, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	r := &rig{
		sensor: scale.NewFakeSensor(),
		strip:  pixel.NewFakeStrip(44),
		pub:    mqtt.NewFakePublisher(),
		store:  st,
		clock:  &clock{t: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)},
	}
	r.pub.Connected = true

	sc := scale.New(r.sensor, scale.NewFilter(scale.DefaultStabilitySamples, scale.DefaultStabilityLimitRaw, scale.DefaultGramsPerRaw))
	engine := anim.NewEngine(r.strip, anim.DefaultFrameRate, log)
	cfg := logic.DefaultConfig()
	r.tracker = status.NewTracker(r.clock.Now(), "it-session", status.Config{Hydration: cfg, FrameRate: anim.DefaultFrameRate}, r.clock.Now)
	r.fwd = forward.New(r.pub, st, forward.DefaultQueueSize, log)
	r.loop = control.New(control.Deps{
		Scale:     sc,
		Machine:   logic.NewMachine(cfg, logic.DefaultAnimations(), engine, r.clock.Now),
		Engine:    engine,
		Dimmer:    r.strip,
		Forwarder: r.fwd,
		Tracker:   r.tracker,
		Conn:      r.pub,
		Log:       log,
		Now:       r.clock.Now,
		After:     immediately,
		Session:   "it-session",
		Poll:      time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	r.stopForward = cancel
	r.wg.Go(func() { r.fwd.Run(ctx) })
	t.Cleanup(func() {
		cancel()
		r.wg.Wait()
	})
	return r
}

// tickUntilDrained runs one tick per second until every scripted sample is consumed.
func (r *rig) tickUntilDrained() {
	for r.sensor.Remaining() > 0 {
		r.clock.t = r.clock.t.Add(time.Second)
		r.loop.Tick(r.clock.Now())
	}
}

// shutdown stops the loop with SIGTERM and waits for the forwarder to drain.
func (r *rig) shutdown(t *testing.T) {
	t.Helper()
	sig := make(chan os.Signal, 1)
	sig <- syscall.SIGTERM
	if err := r.loop.Run(nil, sig); err != nil {
		t.Fatalf("run: %v", err)
	}
	r.stopForward()
	r.wg.Wait()
}

// TestIntegrationFullFlow drives startup, a fill, two drinks and a lift-off
// through the loop, forwarder, store and status server.
func TestIntegrationFullFlow(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	r.sensor.Push(1_000) // empty platform at boot
	if err := r.loop.Startup(ctx); err != nil {
		t.Fatalf("startup: %v", err)
	}
	r.loop.PublishStartup()

	pushSettled(r.sensor, 0, 500, 480, 0)
	r.tickUntilDrained()
	pushSettled(r.sensor, 600, 350)
	r.tickUntilDrained()

	if r.sensor.Tares != 2 {
		t.Errorf("tares: got %d, want 2 (boot and lift-off)", r.sensor.Tares)
	}

	snap := r.tracker.Snapshot()
	if !snap.Ready {
		t.Error("tracker should be ready after startup")
	}
	if snap.Hydration.TotalConsumed != 270 {
		t.Errorf("total consumed: got %d, want 270", snap.Hydration.TotalConsumed)
	}

	r.shutdown(t)

	ts := httptest.NewServer(web.New("", r.tracker, r.store, nil).Handler())
	defer ts.Close()

	wantEvents := []logic.EventType{
		logic.EventFilled, logic.EventDrank, logic.EventEmptied, logic.EventFilled, logic.EventDrank,
	}
	events := r.pub.EventsCopy()
	if len(events) != len(wantEvents) {
		t.Fatalf("published %d events, want %d: %+v", len(events), len(wantEvents), events)
	}
	for i, want := range wantEvents {
		if events[i].Type != want {
			t.Errorf("event %d: got %s, want %s", i, events[i].Type, want)
		}
	}
	if events[4].Drunk != 250 || events[4].Total != 270 {
		t.Errorf("last drink: got drunk=%d total=%d", events[4].Drunk, events[4].Total)
	}

	wantGrams := []int{0, 500, 480, 0, 600, 350}
	weights := r.pub.WeightsCopy()
	if len(weights) != len(wantGrams) {
		t.Fatalf("published %d weights, want %d", len(weights), len(wantGrams))
	}
	for i, want := range wantGrams {
		if weights[i].Grams != want {
			t.Errorf("weight %d: got %d, want %d", i, weights[i].Grams, want)
		}
	}

	sys := r.pub.SystemEventsCopy()
	if len(sys) != 2 || sys[0].Event != "STARTUP" || sys[1].Event != "SHUTDOWN" {
		t.Fatalf("system events: got %+v", sys)
	}
	var shutdown status.StatusJSON
	if err := json.Unmarshal(sys[1].RawPayload, &shutdown); err != nil {
		t.Fatalf("shutdown payload: %v", err)
	}
	if shutdown.Status.Reason != "SIGTERM" || shutdown.Status.Hydration.TotalConsumed != 270 {
		t.Errorf("shutdown payload: %+v", shutdown.Status)
	}

	n, err := r.store.ReadingCount(ctx)
	if err != nil {
		t.Fatalf("reading count: %v", err)
	}
	if n != len(wantGrams) {
		t.Errorf("stored readings: got %d, want %d", n, len(wantGrams))
	}

	resp, err := http.Get(ts.URL + "/history.json")
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	defer resp.Body.Close()
	var hist web.HistoryJSON
	if err := json.NewDecoder(resp.Body).Decode(&hist); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if hist.Readings != len(wantGrams) {
		t.Errorf("history readings: got %d, want %d", hist.Readings, len(wantGrams))
	}
	if hist.ConsumedToday != 270 {
		t.Errorf("consumed today: got %d, want 270", hist.ConsumedToday)
	}
	if len(hist.Events) != len(wantEvents) || hist.Events[0].Event != "DRANK" {
		t.Errorf("history events: got %+v", hist.Events)
	}

	for i, c := range r.strip.Last() {
		if c != pixel.Off {
			t.Fatalf("pixel %d still lit after shutdown: %+v", i, c)
		}
	}
}

func TestIntegrationBootWithBottleOn(t *testing.T) {
	r := newRig(t)

	r.sensor.Push(rawFor(900), rawFor(900), 2_000)
	if err := r.loop.Startup(context.Background()); err != nil {
		t.Fatalf("startup: %v", err)
	}
	if r.sensor.Tares != 1 {
		t.Errorf("tares: got %d, want 1 once the platform is clear", r.sensor.Tares)
	}

	var sawRed bool
	for _, f := range r.strip.Frames {
		if f[0] == pixel.Red {
			sawRed = true
			break
		}
	}
	if !sawRed {
		t.Error("expected solid red while the bottle was on the platform")
	}
	r.shutdown(t)
}

// TestIntegrationPublishFailureStillRecords checks that a broken broker
// connection does not stop history from being written.
func TestIntegrationPublishFailureStillRecords(t *testing.T) {
	r := newRig(t)
	r.pub.SetPublishError(errors.New("not connected"))

	pushSettled(r.sensor, 0, 500, 400)
	r.tickUntilDrained()
	r.shutdown(t)

	if got := len(r.pub.EventsCopy()); got != 0 {
		t.Errorf("published events: got %d, want 0", got)
	}
	consumed, err := r.store.ConsumedSince(context.Background(), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("consumed since: %v", err)
	}
	if consumed != 100 {
		t.Errorf("consumed: got %d, want 100", consumed)
	}
}
