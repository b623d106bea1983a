// Package forward moves readings and events off the control loop to MQTT and
// the history store. The loop never blocks on the network or the disk.
package forward

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/grdaneault/hydration-helper/internal/logic"
	"github.com/grdaneault/hydration-helper/internal/mqtt"
)

// DefaultQueueSize is the number of pending items before new ones are dropped.
const DefaultQueueSize = 128

const drainTimeout = 5 * time.Second

// Recorder stores history. *store.Store implements it.
type Recorder interface {
	RecordReading(ctx context.Context, ts time.Time, grams int) error
	RecordEvent(ctx context.Context, event logic.Event) error
}

type kind int

const (
	kindReading kind = iota
	kindEvent
	kindSystem
)

type item struct {
	kind    kind
	reading mqtt.WeightReading
	event   logic.Event
	system  mqtt.SystemEvent
}

// Forwarder queues items from the control loop and delivers them on the
// goroutine running Run. Reading, Event and System must be called from a
// single goroutine.
type Forwarder struct {
	pub   mqtt.Publisher
	rec   Recorder // nil disables history
	log   *zap.Logger
	queue chan item

	lastGrams int
	haveLast  bool

	dropped   atomic.Uint64
	delivered atomic.Uint64
}

// New creates a Forwarder. rec may be nil.
func New(pub mqtt.Publisher, rec Recorder, size int, log *zap.Logger) *Forwarder {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Forwarder{
		pub:   pub,
		rec:   rec,
		log:   log,
		queue: make(chan item, size),
	}
}

// Reading queues a weight reading if the grams value changed since the
// last queued reading. It reports whether the reading was queued.
func (f *Forwarder) Reading(r mqtt.WeightReading) bool {
	if f.haveLast && r.Grams == f.lastGrams {
		return false
	}
	if !f.enqueue(item{kind: kindReading, reading: r}) {
		return false
	}
	f.lastGrams = r.Grams
	f.haveLast = true
	return true
}

// Event queues a hydration event. UNCHANGED events are ignored.
func (f *Forwarder) Event(ev logic.Event) bool {
	if ev.Type == logic.EventUnchanged {
		return false
	}
	return f.enqueue(item{kind: kindEvent, event: ev})
}

// System queues a system event.
func (f *Forwarder) System(ev mqtt.SystemEvent) bool {
	return f.enqueue(item{kind: kindSystem, system: ev})
}

func (f *Forwarder) enqueue(it item) bool {
	select {
	case f.queue <- it:
		return true
	default:
		if f.dropped.Add(1) == 1 {
			f.log.Warn("forward queue full, dropping", zap.Int("capacity", cap(f.queue)))
		}
		return false
	}
}

// Dropped returns the number of items dropped because the queue was full.
func (f *Forwarder) Dropped() uint64 {
	return f.dropped.Load()
}

// Delivered returns the number of items handed to the publisher.
func (f *Forwarder) Delivered() uint64 {
	return f.delivered.Load()
}

// Pending returns the number of queued items.
func (f *Forwarder) Pending() int {
	return len(f.queue)
}

// Run delivers queued items until ctx is cancelled, then delivers whatever
// is still queued and returns.
func (f *Forwarder) Run(ctx context.Context) {
	for {
		select {
		case it := <-f.queue:
			if ctx.Err() != nil {
				f.drain(ctx, it)
				return
			}
			f.deliver(ctx, it)
		case <-ctx.Done():
			f.drain(ctx)
			return
		}
	}
}

// drain delivers first and then everything left in the queue. History
// writes get a context that outlives ctx's cancellation.
func (f *Forwarder) drain(ctx context.Context, first ...item) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()
	for _, it := range first {
		f.deliver(ctx, it)
	}
	for {
		select {
		case it := <-f.queue:
			f.deliver(ctx, it)
		default:
			return
		}
	}
}

// deliver publishes one item and records it. Errors are logged and dropped.
func (f *Forwarder) deliver(ctx context.Context, it item) {
	switch it.kind {
	case kindReading:
		if err := f.pub.PublishWeight(it.reading); err != nil {
			f.log.Warn("publish weight failed", zap.Int("grams", it.reading.Grams), zap.Error(err))
		}
		if f.rec != nil {
			if err := f.rec.RecordReading(ctx, it.reading.Timestamp, it.reading.Grams); err != nil {
				f.log.Warn("record reading failed", zap.Error(err))
			}
		}
	case kindEvent:
		if err := f.pub.Publish(it.event); err != nil {
			f.log.Warn("publish event failed", zap.String("event", string(it.event.Type)), zap.Error(err))
		}
		if f.rec != nil {
			if err := f.rec.RecordEvent(ctx, it.event); err != nil {
				f.log.Warn("record event failed", zap.Error(err))
			}
		}
	case kindSystem:
		if err := f.pub.PublishSystem(it.system); err != nil {
			f.log.Warn("publish system event failed", zap.String("event", it.system.Event), zap.Error(err))
		}
	}
	f.delivered.Add(1)
}
