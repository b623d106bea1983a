package pixel

// FakeStrip records flushed frames for test assertions.
type FakeStrip struct {
	*Buffer

	// Frames contains every flushed frame, brightness applied.
	Frames [][]Color

	// FlushError, if set, will be returned by Flush.
	FlushError error
}

// NewFakeStrip creates a FakeStrip of n pixels at full brightness.
func NewFakeStrip(n int) *FakeStrip {
	b := NewBuffer(n)
	b.SetBrightness(255)
	return &FakeStrip{Buffer: b}
}

// Flush records the current frame.
func (f *FakeStrip) Flush() error {
	if f.FlushError != nil {
		return f.FlushError
	}
	f.Frames = append(f.Frames, f.Frame())
	return nil
}

// Last returns the most recently flushed frame, or nil.
func (f *FakeStrip) Last() []Color {
	if len(f.Frames) == 0 {
		return nil
	}
	return f.Frames[len(f.Frames)-1]
}

// Reset clears recorded frames.
func (f *FakeStrip) Reset() {
	f.Frames = nil
	f.FlushError = nil
}
