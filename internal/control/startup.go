package control

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/grdaneault/hydration-helper/internal/anim"
	"github.com/grdaneault/hydration-helper/internal/scale"
)

// notEmptyRetry is how long startup waits before re-checking a loaded platform.
const notEmptyRetry = time.Second

// Startup runs the boot sequence: a blue pulse, a wait (solid red) until the
// platform is empty, a tare, then a green pulse. Animations play to
// completion at the engine frame rate.
func (l *Loop) Startup(ctx context.Context) error {
	l.Log.Info("startup: boot pulse")
	l.Engine.SetAnimation(anim.BluePulse)
	if err := l.play(ctx); err != nil {
		return err
	}

	raw, err := l.Scale.ReadRawBlocking(ctx, l.Poll)
	if err != nil {
		return fmt.Errorf("initial read: %w", err)
	}
	for raw > scale.NotEmptyRaw {
		l.Log.Warn("scale not empty, remove weight for tare", zap.Int32("raw", raw))
		l.Engine.SetAnimation(anim.SolidRed)
		l.Engine.Step()
		if err := l.wait(ctx, notEmptyRetry); err != nil {
			return err
		}
		if raw, err = l.Scale.ReadRawBlocking(ctx, l.Poll); err != nil {
			return fmt.Errorf("initial read: %w", err)
		}
	}

	if err := l.Scale.Tare(); err != nil {
		l.Log.Warn("startup tare failed", zap.Error(err))
	} else {
		l.Log.Info("startup: tared")
	}

	l.Engine.SetAnimation(anim.GreenPulse)
	if err := l.play(ctx); err != nil {
		return err
	}

	l.lastFrame = l.Now()
	if l.Tracker != nil {
		l.Tracker.SetReady(true)
	}
	l.Log.Info("startup: monitoring")
	return nil
}

// play steps the current animation until it finishes.
func (l *Loop) play(ctx context.Context) error {
	for l.Engine.Step() {
		if err := l.wait(ctx, l.frameInterval); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loop) wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.After(d):
		return nil
	}
}
