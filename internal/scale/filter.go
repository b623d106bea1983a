package scale

import "math"

// Filter defaults.
const (
	DefaultStabilitySamples  = 4
	DefaultStabilityLimitRaw = 500
	DefaultGramsPerRaw       = 377.0 / 324400.0

	// MaxStabilityLimitRaw keeps the Reset sentinel within int32.
	MaxStabilityLimitRaw = math.MaxInt32 / 10
)

// Filter reports a smoothed weight only once the last N raw samples agree
// to within the tolerance. The buffer always holds exactly N entries.
type Filter struct {
	buf         []int32
	pos         int
	fresh       int // samples written since Reset, capped at N
	tolerance   int32
	gramsPerRaw float64
}

// NewFilter creates a filter over the last samples readings. Non-positive
// arguments fall back to the defaults.
func NewFilter(samples int, toleranceRaw int32, gramsPerRaw float64) *Filter {
	if samples <= 0 {
		samples = DefaultStabilitySamples
	}
	if toleranceRaw <= 0 {
		toleranceRaw = DefaultStabilityLimitRaw
	}
	toleranceRaw = min(toleranceRaw, MaxStabilityLimitRaw)
	if gramsPerRaw <= 0 {
		gramsPerRaw = DefaultGramsPerRaw
	}
	f := &Filter{
		buf:         make([]int32, samples),
		tolerance:   toleranceRaw,
		gramsPerRaw: gramsPerRaw,
	}
	f.Reset()
	return f
}

// Observe records raw and returns the mean of the window in grams if the
// window is stable.
func (f *Filter) Observe(raw int32) (int, bool) {
	f.buf[f.pos] = raw
	f.pos = (f.pos + 1) % len(f.buf)
	if f.fresh < len(f.buf) {
		f.fresh++
	}

	lo, hi := f.buf[0], f.buf[0]
	var sum int64
	for _, v := range f.buf {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
		sum += int64(v)
	}
	if int64(hi)-int64(lo) > int64(f.tolerance) || f.fresh < len(f.buf) {
		return 0, false
	}

	mean := float64(sum) / float64(len(f.buf))
	return int(math.Round(mean * f.gramsPerRaw)), true
}

// Reset fills the window with a sentinel outside tolerance. Nothing is
// reported until N fresh samples have arrived, even samples close to the sentinel.
func (f *Filter) Reset() {
	sentinel := f.Sentinel()
	for i := range f.buf {
		f.buf[i] = sentinel
	}
	f.pos = 0
	f.fresh = 0
}

// Sentinel returns the value the window is filled with on Reset.
func (f *Filter) Sentinel() int32 {
	return 10 * f.tolerance
}

// Size returns N.
func (f *Filter) Size() int {
	return len(f.buf)
}

// GramsPerRaw returns the raw-to-grams conversion factor.
func (f *Filter) GramsPerRaw() float64 {
	return f.gramsPerRaw
}
