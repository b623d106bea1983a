package mqtt

import (
	"sync"

	"github.com/grdaneault/hydration-helper/internal/logic"
)

// FakePublisher records published messages for test assertions.
// Safe for use from the forwarder goroutine; read the fields directly only
// once publishing has stopped, or use the copy accessors.
type FakePublisher struct {
	mu sync.Mutex

	// Weights contains all weight readings that were published.
	Weights []WeightReading

	// Events contains all hydration events that were published.
	Events []logic.Event

	// Payloads contains the JSON payloads that were published.
	Payloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by Publish and PublishWeight.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool

	// Held controls the return value of Buffered.
	Held int
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishWeight records the weight reading.
func (f *FakePublisher) PublishWeight(reading WeightReading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Weights = append(f.Weights, reading)
	return nil
}

// Publish records the hydration event.
func (f *FakePublisher) Publish(event logic.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}

	f.Events = append(f.Events, event)

	payload, err := FormatPayload(event)
	if err != nil {
		return err
	}
	f.Payloads = append(f.Payloads, payload)

	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	f.SystemEvents = append(f.SystemEvents, event)

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemPayloads = append(f.SystemPayloads, payload)

	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Buffered returns Held.
func (f *FakePublisher) Buffered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Held
}

// SetPublishError sets PublishError under the lock.
func (f *FakePublisher) SetPublishError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PublishError = err
}

// WeightsCopy returns a copy of the recorded weight readings.
func (f *FakePublisher) WeightsCopy() []WeightReading {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]WeightReading(nil), f.Weights...)
}

// EventsCopy returns a copy of the recorded hydration events.
func (f *FakePublisher) EventsCopy() []logic.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]logic.Event(nil), f.Events...)
}

// SystemEventsCopy returns a copy of the recorded system events.
func (f *FakePublisher) SystemEventsCopy() []SystemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SystemEvent(nil), f.SystemEvents...)
}

// Reset clears recorded messages.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Weights = nil
	f.Events = nil
	f.Payloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
