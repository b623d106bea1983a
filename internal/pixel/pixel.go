// Package pixel provides addressable LED strip output with hardware abstraction.
// The real implementation streams Adalight frames to a serial NeoPixel bridge.
// The fake implementation records frames for tests.
package pixel

import (
	"errors"
	"math"
)

// ErrIndex is returned when a pixel index is outside the strip.
var ErrIndex = errors.New("pixel: index out of range")

// Color is a 24-bit RGB colour.
type Color struct {
	R, G, B uint8
}

// Named colours used by the animation catalog.
var (
	Off    = Color{}
	Red    = Color{R: 255}
	Green  = Color{G: 255}
	Blue   = Color{B: 255}
	Orange = Color{R: 255, G: 80}
	White  = Color{R: 255, G: 255, B: 255}
)

// Scale multiplies every channel by f, clamped to [0, 1]. Channels are truncated.
func (c Color) Scale(f float64) Color {
	if f <= 0 {
		return Off
	}
	if f >= 1 {
		return c
	}
	return Color{
		R: uint8(float64(c.R) * f),
		G: uint8(float64(c.G) * f),
		B: uint8(float64(c.B) * f),
	}
}

// Lerp blends linearly from a (t=0) to b (t=1).
func Lerp(a, b Color, t float64) Color {
	t = math.Max(0, math.Min(1, t))
	mix := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*t))
	}
	return Color{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B)}
}

// Strip is the pixel output an animation renders onto.
type Strip interface {
	// Len returns the number of pixels.
	Len() int

	// Fill sets every pixel to c.
	Fill(c Color)

	// Set sets pixel i to c. Out-of-range indices are ignored.
	Set(i int, c Color)

	// Flush pushes the buffered pixels to the hardware.
	Flush() error
}

// DefaultBrightness matches the 0.3 global brightness the strip is wired for.
const DefaultBrightness uint8 = 77

// Buffer holds pixel colours and a global brightness applied at flush time.
// Not safe for concurrent use.
type Buffer struct {
	pixels     []Color
	brightness uint8
}

// NewBuffer creates a dark buffer of n pixels at DefaultBrightness.
func NewBuffer(n int) *Buffer {
	if n < 0 {
		n = 0
	}
	return &Buffer{
		pixels:     make([]Color, n),
		brightness: DefaultBrightness,
	}
}

// Len returns the number of pixels.
func (b *Buffer) Len() int {
	return len(b.pixels)
}

// Fill sets every pixel to c.
func (b *Buffer) Fill(c Color) {
	for i := range b.pixels {
		b.pixels[i] = c
	}
}

// Set sets pixel i to c.
func (b *Buffer) Set(i int, c Color) {
	if i < 0 || i >= len(b.pixels) {
		return
	}
	b.pixels[i] = c
}

// At returns pixel i before brightness is applied.
func (b *Buffer) At(i int) (Color, error) {
	if i < 0 || i >= len(b.pixels) {
		return Off, ErrIndex
	}
	return b.pixels[i], nil
}

// Brightness returns the global brightness (0-255).
func (b *Buffer) Brightness() uint8 {
	return b.brightness
}

// SetBrightness sets the global brightness (0-255).
func (b *Buffer) SetBrightness(v uint8) {
	b.brightness = v
}

// Frame returns a copy of the pixels with brightness applied, as they would be written out.
func (b *Buffer) Frame() []Color {
	out := make([]Color, len(b.pixels))
	f := float64(b.brightness) / 255
	for i, c := range b.pixels {
		out[i] = c.Scale(f)
	}
	return out
}
