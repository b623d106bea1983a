package anim

import (
	"go.uber.org/zap"

	"github.com/grdaneault/hydration-helper/internal/pixel"
)

// DefaultFrameRate is the frame rate Step is expected to be called at.
const DefaultFrameRate = 60

// Engine holds the current animation and its frame counter.
// Not safe for concurrent use; the control loop is its only caller.
type Engine struct {
	strip     pixel.Strip
	frameRate int
	log       *zap.Logger

	current Descriptor // nil when nothing is animating
	frame   int
}

// NewEngine creates an Engine rendering onto strip.
// frameRate is only used to convert Sparkle durations into frames.
func NewEngine(strip pixel.Strip, frameRate int, log *zap.Logger) *Engine {
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		strip:     strip,
		frameRate: frameRate,
		log:       log,
	}
}

// SetAnimation switches to d. Setting the animation already playing is a no-op
// and keeps the frame counter. nil is the same as Off.
func (e *Engine) SetAnimation(d Descriptor) {
	if _, ok := d.(Off); ok {
		d = nil
	}
	if d == nil && e.current == nil {
		return
	}
	if d == e.current {
		return
	}

	e.frame = 0
	switch d.(type) {
	case Solid, Pulse, Sparkle:
		e.current = d
		e.log.Debug("set animation", zap.String("animation", Name(d)))
	default:
		if d != nil {
			e.log.Warn("unrecognised animation, clearing", zap.Any("animation", d))
		}
		e.current = nil
		e.strip.Fill(pixel.Off)
		if err := e.strip.Flush(); err != nil {
			e.log.Warn("flush failed", zap.Error(err))
		}
		e.log.Debug("set animation", zap.String("animation", Name(nil)))
	}
}

// Step renders the next frame. It returns false when nothing is playing or the
// animation just finished, in which case the strip is cleared.
func (e *Engine) Step() bool {
	if e.current == nil {
		return false
	}

	var continuing bool
	switch a := e.current.(type) {
	case Solid:
		continuing = renderSolid(a, e.strip)
	case Pulse:
		continuing = renderPulse(a, e.frame, e.strip)
	case Sparkle:
		continuing = renderSparkle(a, e.frame, e.frameRate, e.strip)
	}
	if err := e.strip.Flush(); err != nil {
		e.log.Warn("flush failed", zap.Error(err))
	}

	if !continuing {
		e.SetAnimation(nil)
		return false
	}
	e.frame++
	return true
}

// Clear stops any animation and blanks the strip, even if nothing is playing.
func (e *Engine) Clear() error {
	e.current = nil
	e.frame = 0
	e.strip.Fill(pixel.Off)
	return e.strip.Flush()
}

// Current returns the playing animation, or nil.
func (e *Engine) Current() Descriptor {
	return e.current
}

// Frame returns the index of the next frame to render.
func (e *Engine) Frame() int {
	return e.frame
}

// FrameRate returns the frame rate the engine was configured with.
func (e *Engine) FrameRate() int {
	return e.frameRate
}
