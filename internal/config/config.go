// Package config loads the hydration helper configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/grdaneault/hydration-helper/internal/anim"
	"github.com/grdaneault/hydration-helper/internal/logic"
	"github.com/grdaneault/hydration-helper/internal/pixel"
	"github.com/grdaneault/hydration-helper/internal/scale"
)

// Config is the full daemon configuration.
type Config struct {
	Hydration logic.Config `yaml:"hydration"`
	Scale     ScaleConfig  `yaml:"scale"`
	Pixels    PixelConfig  `yaml:"pixels"`
	MQTT      MQTTConfig   `yaml:"mqtt"`
	HTTP      HTTPConfig   `yaml:"http"`
	Store     StoreConfig  `yaml:"store"`
	Loop      LoopConfig   `yaml:"loop"`
}

// ScaleConfig configures the load cell ADC and the stability filter.
type ScaleConfig struct {
	Address           uint8         `yaml:"address"`
	SampleRate        int           `yaml:"sample_rate"`
	Channel           int           `yaml:"channel"`
	ReadyTimeout      time.Duration `yaml:"ready_timeout"`
	CalTimeout        time.Duration `yaml:"cal_timeout"`
	DRDYChip          string        `yaml:"drdy_chip"`
	DRDYPin           int           `yaml:"drdy_pin"` // negative polls over I2C
	StabilitySamples  int           `yaml:"stability_samples"`
	StabilityLimitRaw int32         `yaml:"stability_limit_raw"`
	GramsPerRaw       float64       `yaml:"grams_per_raw"`
}

// NAU7802 returns the ADC driver configuration.
func (s ScaleConfig) NAU7802() scale.NAU7802Config {
	return scale.NAU7802Config{
		Address:      s.Address,
		SampleRate:   s.SampleRate,
		Channel:      s.Channel,
		ReadyTimeout: s.ReadyTimeout,
		CalTimeout:   s.CalTimeout,
		DRDYChip:     s.DRDYChip,
		DRDYPin:      s.DRDYPin,
	}
}

// PixelConfig configures the LED strip.
type PixelConfig struct {
	Serial     string `yaml:"serial"` // empty disables the strip
	Baud       int    `yaml:"baud"`
	Count      int    `yaml:"count"`
	Brightness uint8  `yaml:"brightness"`
	FrameRate  int    `yaml:"frame_rate"`
}

// MQTTConfig configures the broker connection. Credentials come from the
// environment, never from the file.
type MQTTConfig struct {
	Broker     string `yaml:"broker"` // empty disables MQTT
	ClientID   string `yaml:"client_id"`
	BufferSize int    `yaml:"buffer_size"`
	Username   string `yaml:"-"`
	Password   string `yaml:"-"`
}

// HTTPConfig configures the status server.
type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty disables the server
}

// StoreConfig configures the history database.
type StoreConfig struct {
	Path string `yaml:"path"` // empty disables history
}

// LoopConfig configures the control loop.
type LoopConfig struct {
	Tick      time.Duration `yaml:"tick"`
	Heartbeat time.Duration `yaml:"heartbeat"` // 0 disables
	QueueSize int           `yaml:"queue_size"`
}

// Default returns the built-in configuration.
func Default() Config {
	nau := scale.DefaultNAU7802Config()
	return Config{
		Hydration: logic.DefaultConfig(),
		Scale: ScaleConfig{
			Address:           nau.Address,
			SampleRate:        nau.SampleRate,
			Channel:           nau.Channel,
			ReadyTimeout:      nau.ReadyTimeout,
			CalTimeout:        nau.CalTimeout,
			DRDYChip:          nau.DRDYChip,
			DRDYPin:           nau.DRDYPin,
			StabilitySamples:  scale.DefaultStabilitySamples,
			StabilityLimitRaw: scale.DefaultStabilityLimitRaw,
			GramsPerRaw:       scale.DefaultGramsPerRaw,
		},
		Pixels: PixelConfig{
			Baud:       pixel.DefaultBaudRate,
			Count:      44,
			Brightness: pixel.DefaultBrightness,
			FrameRate:  anim.DefaultFrameRate,
		},
		MQTT: MQTTConfig{
			ClientID:   "hydration-helper",
			BufferSize: 256,
		},
		HTTP: HTTPConfig{Addr: ":8080"},
		Loop: LoopConfig{
			Tick:      5 * time.Millisecond,
			Heartbeat: 15 * time.Minute,
			QueueSize: 128,
		},
	}
}

// Load reads the YAML file at path over the defaults. An empty path returns
// the defaults. Unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := decode(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv copies MQTT credentials from MQTT_USER and MQTT_PASS.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("MQTT_USER"); v != "" {
		c.MQTT.Username = v
	}
	if v := getenv("MQTT_PASS"); v != "" {
		c.MQTT.Password = v
	}
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	var errs []error
	if err := c.Hydration.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("hydration: %w", err))
	}
	if c.Scale.StabilitySamples < 1 {
		errs = append(errs, errors.New("scale.stability_samples must be at least 1"))
	}
	if c.Scale.StabilityLimitRaw < 1 || c.Scale.StabilityLimitRaw > scale.MaxStabilityLimitRaw {
		errs = append(errs, fmt.Errorf("scale.stability_limit_raw must be between 1 and %d", scale.MaxStabilityLimitRaw))
	}
	if c.Scale.GramsPerRaw <= 0 {
		errs = append(errs, errors.New("scale.grams_per_raw must be positive"))
	}
	if c.Pixels.Count < 1 {
		errs = append(errs, errors.New("pixels.count must be at least 1"))
	}
	if c.Pixels.FrameRate < 1 {
		errs = append(errs, errors.New("pixels.frame_rate must be at least 1"))
	}
	if c.Pixels.Baud < 1 {
		errs = append(errs, errors.New("pixels.baud must be positive"))
	}
	if c.Loop.Tick <= 0 {
		errs = append(errs, errors.New("loop.tick must be positive"))
	}
	if c.Loop.Heartbeat < 0 {
		errs = append(errs, errors.New("loop.heartbeat must not be negative"))
	}
	if c.Loop.QueueSize < 1 {
		errs = append(errs, errors.New("loop.queue_size must be at least 1"))
	}
	return errors.Join(errs...)
}
