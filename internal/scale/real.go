//go:build linux

package scale

import (
	"errors"
	"fmt"

	"github.com/reef-pi/rpi/i2c"
	"github.com/warthog618/go-gpiocdev"
)

// OpenNAU7802 opens the Raspberry Pi I2C bus and, if configured, the
// data-ready GPIO line, then powers up the ADC.
func OpenNAU7802(cfg NAU7802Config) (*NAU7802, error) {
	bus, err := i2c.New()
	if err != nil {
		return nil, fmt.Errorf("open i2c bus: %w", err)
	}

	var drdy readyLine
	if cfg.DRDYPin >= 0 {
		line, err := gpiocdev.RequestLine(cfg.DRDYChip, cfg.DRDYPin, gpiocdev.AsInput)
		if err != nil {
			bus.Close()
			return nil, fmt.Errorf("request drdy pin %d: %w", cfg.DRDYPin, err)
		}
		drdy = drdyLine{line}
	}

	n, err := NewNAU7802(bus, drdy, cfg)
	if err != nil {
		if drdy != nil {
			drdy.Close()
		}
		bus.Close()
		return nil, fmt.Errorf("init nau7802: %w", err)
	}
	return n, nil
}

// drdyLine hands the pin back as an input with pull-down, the Pi boot
// default, before releasing it.
type drdyLine struct {
	*gpiocdev.Line
}

func (l drdyLine) Close() error {
	var errs []error
	if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure drdy pin: %w", err))
	}
	if err := l.Line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close drdy pin: %w", err))
	}
	return errors.Join(errs...)
}
