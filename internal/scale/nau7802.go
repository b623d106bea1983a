package scale

import (
	"errors"
	"fmt"
	"time"
)

// DefaultAddress is the NAU7802's fixed I2C address.
const DefaultAddress = 0x2A

// NAU7802 registers.
const (
	regPUCtrl   = 0x00
	regCtrl1    = 0x01
	regCtrl2    = 0x02
	regADCOB2   = 0x12 // B1 and B0 follow
	regADC      = 0x15
	regPower    = 0x1C
	regRevision = 0x1F
)

// PU_CTRL bits.
const (
	puRR    = 1 << 0 // register reset
	puPUD   = 1 << 1 // power up digital
	puPUA   = 1 << 2 // power up analog
	puPUR   = 1 << 3 // power up ready
	puCS    = 1 << 4 // cycle start
	puCR    = 1 << 5 // cycle ready
	puAVDDS = 1 << 7 // internal LDO
)

// CTRL2 bits.
const (
	ctrl2CalModMask = 0x03
	ctrl2CALS       = 1 << 2
	ctrl2CalErr     = 1 << 3
	ctrl2CRSShift   = 4
	ctrl2CHS        = 1 << 7
)

// Calibration modes (CTRL2.CALMOD).
const (
	calInternal byte = 0x00
	calOffset   byte = 0x02
)

const (
	ctrl1Gain128 = 0x07
	ctrl1LDO3V0  = 0x05 << 3
	pgaCapEnable = 1 << 7
	adcChopOff   = 0x03 << 4
)

// sampleRates maps samples per second to CTRL2.CRS.
var sampleRates = map[int]byte{10: 0, 20: 1, 40: 2, 80: 3, 320: 7}

// NAU7802Config configures the load-cell ADC.
type NAU7802Config struct {
	Address      byte
	SampleRate   int // samples per second: 10, 20, 40, 80 or 320
	Channel      int // 1 or 2
	ReadyTimeout time.Duration
	CalTimeout   time.Duration

	// DRDYChip and DRDYPin select an optional data-ready GPIO line.
	// A negative pin polls the PU_CTRL cycle-ready bit over I2C instead.
	DRDYChip string
	DRDYPin  int
}

// DefaultNAU7802Config returns the configuration for a single load cell on channel 1.
func DefaultNAU7802Config() NAU7802Config {
	return NAU7802Config{
		Address:      DefaultAddress,
		SampleRate:   10,
		Channel:      1,
		ReadyTimeout: 200 * time.Millisecond,
		CalTimeout:   2 * time.Second,
		DRDYChip:     "gpiochip0",
		DRDYPin:      -1,
	}
}

// registerBus is the subset of an I2C bus the driver uses.
type registerBus interface {
	ReadFromReg(addr, reg byte, value []byte) error
	WriteToReg(addr, reg byte, value []byte) error
	Close() error
}

// readyLine is a data-ready input line.
type readyLine interface {
	Value() (int, error)
	Close() error
}

// NAU7802 drives a NAU7802 24-bit load-cell ADC.
type NAU7802 struct {
	bus   registerBus
	drdy  readyLine // nil polls PU_CTRL.CR
	cfg   NAU7802Config
	sleep func(time.Duration)
	buf   [3]byte
}

// NewNAU7802 powers up the ADC on bus and starts continuous conversion.
// drdy may be nil. A sensor that does not power up is an error.
func NewNAU7802(bus registerBus, drdy readyLine, cfg NAU7802Config) (*NAU7802, error) {
	return newNAU7802(bus, drdy, cfg, time.Sleep)
}

func newNAU7802(bus registerBus, drdy readyLine, cfg NAU7802Config, sleep func(time.Duration)) (*NAU7802, error) {
	if cfg.Address == 0 {
		cfg.Address = DefaultAddress
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 200 * time.Millisecond
	}
	if cfg.CalTimeout <= 0 {
		cfg.CalTimeout = 2 * time.Second
	}
	crs, ok := sampleRates[cfg.SampleRate]
	if !ok {
		return nil, fmt.Errorf("unsupported sample rate %d", cfg.SampleRate)
	}
	if cfg.Channel != 1 && cfg.Channel != 2 {
		return nil, fmt.Errorf("unsupported channel %d", cfg.Channel)
	}

	n := &NAU7802{bus: bus, drdy: drdy, cfg: cfg, sleep: sleep}
	if err := n.enable(crs); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *NAU7802) enable(crs byte) error {
	// Reset, then power up the digital side and wait for it.
	if err := n.writeReg(regPUCtrl, puRR); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if err := n.writeReg(regPUCtrl, puPUD); err != nil {
		return fmt.Errorf("power up digital: %w", err)
	}
	if err := n.waitFor(regPUCtrl, puPUR, true, n.cfg.ReadyTimeout); err != nil {
		return fmt.Errorf("power up: %w", err)
	}

	rev, err := n.readReg(regRevision)
	if err != nil {
		return fmt.Errorf("read revision: %w", err)
	}
	if rev&0x0F != 0x0F {
		return fmt.Errorf("unexpected revision %#02x", rev)
	}

	if err := n.setBits(regPUCtrl, puAVDDS); err != nil {
		return fmt.Errorf("select internal LDO: %w", err)
	}
	if err := n.writeReg(regCtrl1, ctrl1LDO3V0|ctrl1Gain128); err != nil {
		return fmt.Errorf("set gain: %w", err)
	}
	ctrl2 := crs << ctrl2CRSShift
	if n.cfg.Channel == 2 {
		ctrl2 |= ctrl2CHS
	}
	if err := n.writeReg(regCtrl2, ctrl2); err != nil {
		return fmt.Errorf("set sample rate: %w", err)
	}
	if err := n.setBits(regADC, adcChopOff); err != nil {
		return fmt.Errorf("disable chopper: %w", err)
	}
	if err := n.setBits(regPower, pgaCapEnable); err != nil {
		return fmt.Errorf("enable pga cap: %w", err)
	}
	if err := n.setBits(regPUCtrl, puPUA|puCS); err != nil {
		return fmt.Errorf("start conversion: %w", err)
	}
	return nil
}

// Sample reads one conversion if the ADC has one ready.
func (n *NAU7802) Sample() (int32, bool, error) {
	ready, err := n.ready()
	if err != nil {
		return 0, false, err
	}
	if !ready {
		return 0, false, nil
	}
	if err := n.bus.ReadFromReg(n.cfg.Address, regADCOB2, n.buf[:]); err != nil {
		return 0, false, fmt.Errorf("read conversion: %w", err)
	}
	return signExtend24(n.buf), true, nil
}

func (n *NAU7802) ready() (bool, error) {
	if n.drdy != nil {
		v, err := n.drdy.Value()
		if err != nil {
			return false, fmt.Errorf("read drdy: %w", err)
		}
		return v == 1, nil
	}
	pu, err := n.readReg(regPUCtrl)
	if err != nil {
		return false, fmt.Errorf("read cycle ready: %w", err)
	}
	return pu&puCR != 0, nil
}

// Tare runs internal then system offset calibration with the platform empty.
func (n *NAU7802) Tare() error {
	if err := n.calibrate(calInternal); err != nil {
		return fmt.Errorf("internal calibration: %w", err)
	}
	if err := n.calibrate(calOffset); err != nil {
		return fmt.Errorf("offset calibration: %w", err)
	}
	return nil
}

func (n *NAU7802) calibrate(mode byte) error {
	ctrl2, err := n.readReg(regCtrl2)
	if err != nil {
		return err
	}
	ctrl2 = ctrl2&^(ctrl2CalModMask|ctrl2CalErr) | mode | ctrl2CALS
	if err := n.writeReg(regCtrl2, ctrl2); err != nil {
		return err
	}
	if err := n.waitFor(regCtrl2, ctrl2CALS, false, n.cfg.CalTimeout); err != nil {
		return err
	}
	ctrl2, err = n.readReg(regCtrl2)
	if err != nil {
		return err
	}
	if ctrl2&ctrl2CalErr != 0 {
		return ErrCalibration
	}
	return nil
}

// Close releases the data-ready line and the bus.
func (n *NAU7802) Close() error {
	var errs []error
	if n.drdy != nil {
		if err := n.drdy.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close drdy: %w", err))
		}
	}
	if err := n.bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close bus: %w", err))
	}
	return errors.Join(errs...)
}

// waitFor polls reg until mask is set (or cleared), checking every millisecond.
func (n *NAU7802) waitFor(reg, mask byte, set bool, timeout time.Duration) error {
	const step = time.Millisecond
	for waited := time.Duration(0); ; waited += step {
		v, err := n.readReg(reg)
		if err != nil {
			return err
		}
		if (v&mask != 0) == set {
			return nil
		}
		if waited >= timeout {
			return ErrNotReady
		}
		n.sleep(step)
	}
}

func (n *NAU7802) readReg(reg byte) (byte, error) {
	var b [1]byte
	if err := n.bus.ReadFromReg(n.cfg.Address, reg, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (n *NAU7802) writeReg(reg, v byte) error {
	return n.bus.WriteToReg(n.cfg.Address, reg, []byte{v})
}

func (n *NAU7802) setBits(reg, mask byte) error {
	v, err := n.readReg(reg)
	if err != nil {
		return err
	}
	return n.writeReg(reg, v|mask)
}

func signExtend24(b [3]byte) int32 {
	return int32(uint32(b[0])<<24|uint32(b[1])<<16|uint32(b[2])<<8) >> 8
}
