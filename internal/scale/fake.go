package scale

import "errors"

// FakeSensor is a test double that returns scripted raw samples.
type FakeSensor struct {
	// Samples contains scripted readings. Each call to Sample consumes the next.
	// A nil entry means "not ready" for that call.
	Samples []*int32

	index int

	// Tares counts calls to Tare.
	Tares int

	// Closed tracks if Close was called.
	Closed bool

	// SampleError, if set, will be returned by Sample.
	SampleError error

	// TareError, if set, will be returned by Tare.
	TareError error
}

// NewFakeSensor creates a FakeSensor that returns every value in raws, one per call.
func NewFakeSensor(raws ...int32) *FakeSensor {
	f := &FakeSensor{}
	f.Push(raws...)
	return f
}

// Push appends ready samples.
func (f *FakeSensor) Push(raws ...int32) {
	for _, r := range raws {
		f.Samples = append(f.Samples, &r)
	}
}

// PushNotReady appends n "not ready" polls.
func (f *FakeSensor) PushNotReady(n int) {
	for i := 0; i < n; i++ {
		f.Samples = append(f.Samples, nil)
	}
}

// Sample returns the next scripted sample. Once exhausted, it reports not ready.
func (f *FakeSensor) Sample() (int32, bool, error) {
	if f.SampleError != nil {
		return 0, false, f.SampleError
	}
	if f.index >= len(f.Samples) {
		return 0, false, nil
	}
	s := f.Samples[f.index]
	f.index++
	if s == nil {
		return 0, false, nil
	}
	return *s, true, nil
}

// Remaining returns the number of unconsumed scripted polls.
func (f *FakeSensor) Remaining() int {
	return len(f.Samples) - f.index
}

// Tare records the call.
func (f *FakeSensor) Tare() error {
	f.Tares++
	return f.TareError
}

// Close marks the sensor as closed.
func (f *FakeSensor) Close() error {
	if f.Closed {
		return errors.New("already closed")
	}
	f.Closed = true
	return nil
}
