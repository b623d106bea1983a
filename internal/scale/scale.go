// Package scale reads the load cell and turns raw ADC samples into stable
// weights in grams. The real sensor is a NAU7802 on Linux I2C. The fake
// sensor allows testing without hardware.
package scale

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotReady is returned when the sensor does not come up in time.
var ErrNotReady = errors.New("scale: sensor not ready")

// ErrCalibration is returned when the sensor reports a calibration failure.
var ErrCalibration = errors.New("scale: calibration failed")

// NotEmptyRaw is the raw reading above which the platform is considered
// loaded at boot and must be cleared before taring.
const NotEmptyRaw = 500_000

// Sensor is a load-cell ADC.
type Sensor interface {
	// Sample returns the next raw reading if one is ready. It never blocks.
	Sample() (raw int32, ok bool, err error)

	// Tare zero-calibrates the sensor. It blocks until calibration finishes.
	Tare() error

	// Close releases the sensor.
	Close() error
}

// Scale combines a Sensor with a stability Filter.
type Scale struct {
	sensor Sensor
	filter *Filter
}

// New creates a Scale.
func New(sensor Sensor, filter *Filter) *Scale {
	return &Scale{sensor: sensor, filter: filter}
}

// ReadGrams polls the sensor once. It returns ok=false when no sample was
// ready or the window is still settling.
func (s *Scale) ReadGrams() (int, bool, error) {
	raw, ok, err := s.sensor.Sample()
	if err != nil {
		return 0, false, fmt.Errorf("sample: %w", err)
	}
	if !ok {
		return 0, false, nil
	}
	g, ok := s.filter.Observe(raw)
	return g, ok, nil
}

// Tare zero-calibrates the sensor and resets the filter window.
func (s *Scale) Tare() error {
	// The window is stale either way once calibration has been attempted.
	defer s.filter.Reset()
	if err := s.sensor.Tare(); err != nil {
		return fmt.Errorf("tare: %w", err)
	}
	return nil
}

// ReadRawBlocking waits for one raw sample, polling every poll interval.
// Only used during startup, outside the control loop.
func (s *Scale) ReadRawBlocking(ctx context.Context, poll time.Duration) (int32, error) {
	if poll <= 0 {
		poll = time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		raw, ok, err := s.sensor.Sample()
		if err != nil {
			return 0, fmt.Errorf("sample: %w", err)
		}
		if ok {
			return raw, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Grams converts a raw reading with the filter's conversion factor.
func (s *Scale) Grams(raw int32) float64 {
	return float64(raw) * s.filter.GramsPerRaw()
}

// Close closes the sensor.
func (s *Scale) Close() error {
	return s.sensor.Close()
}
