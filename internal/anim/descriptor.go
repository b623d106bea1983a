// Package anim drives non-blocking LED animations, one frame per Step.
// It performs no timing of its own; the caller paces Step calls.
package anim

import (
	"math"

	"github.com/grdaneault/hydration-helper/internal/pixel"
)

// Descriptor is a closed set of animation variants: Off, Solid, Pulse, Sparkle.
// All variants are comparable values, so == is structural equality.
type Descriptor interface {
	descriptor()
}

// Off clears the strip and stops animating.
type Off struct{}

// Solid fills the strip with one colour and never ends.
type Solid struct {
	Color pixel.Color
}

// Pulse fades the strip in and out along PulseTable for Cycles cycles.
type Pulse struct {
	Color      pixel.Color
	Cycles     int
	Brightness float64 // 0.0..1.0
}

// Sparkle fades each pixel between A and B at its own rate for Seconds seconds.
type Sparkle struct {
	A, B    pixel.Color
	Seconds float64
}

func (Off) descriptor()     {}
func (Solid) descriptor()   {}
func (Pulse) descriptor()   {}
func (Sparkle) descriptor() {}

// PulseFrames is the length of one pulse cycle.
const PulseFrames = 120

// PulseTable is the pulse brightness curve: ramp up, hold, ramp down.
var PulseTable = [PulseFrames]uint8{
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	1, 3, 8, 15, 27, 43, 65, 92, 127, 162, 189, 211, 227, 239, 246, 251, 253, 254, 255,
	255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255,
	255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255,
	255, 255, 254, 253, 251, 246, 239, 227, 211, 189, 162, 127, 92, 65, 43, 27, 15, 8, 3, 1, 0,
}

func renderSolid(a Solid, strip pixel.Strip) bool {
	strip.Fill(a.Color)
	return true
}

func renderPulse(a Pulse, frame int, strip pixel.Strip) bool {
	v := float64(PulseTable[frame%PulseFrames]) / 255 * a.Brightness
	strip.Fill(a.Color.Scale(v))
	return frame < PulseFrames*a.Cycles
}

func renderSparkle(a Sparkle, frame, frameRate int, strip pixel.Strip) bool {
	total := a.totalFrames(frameRate)
	env := envelope(frame, total)
	for i := 0; i < strip.Len(); i++ {
		t := (math.Sin(sparklePhase(i, frame)*2*math.Pi) + 1) / 2
		strip.Set(i, pixel.Lerp(a.A, a.B, t).Scale(env))
	}
	return frame < total
}

func (a Sparkle) totalFrames(frameRate int) int {
	return int(a.Seconds * float64(frameRate))
}

// envelope ramps 0->1 over the first 15% of total frames and 1->0 over the last 15%.
func envelope(frame, total int) float64 {
	fade := int(0.15 * float64(total))
	if fade < 1 {
		fade = 1
	}
	var v float64
	switch {
	case frame < fade:
		v = float64(frame) / float64(fade)
	case frame >= total-fade:
		v = float64(total-frame) / float64(fade)
	default:
		v = 1
	}
	return math.Max(0, math.Min(1, v))
}

// sparklePhase is the per-pixel phase in [0, 1). Speed and offset are fixed
// per pixel index so every run renders the same frames.
func sparklePhase(i, frame int) float64 {
	speed := 0.2 + 0.8*float64((i*7919+1)%1000)/1000
	offset := float64(i*1237%1000) / 1000
	return math.Mod(float64(frame)*speed*0.018+offset, 1.0)
}
