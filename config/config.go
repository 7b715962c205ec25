// Package config loads the fabdrive configuration file: server settings,
// notification endpoints, persistence, device preset templates and the
// devices to create at startup.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/openfab/fabdrive/device"
	"github.com/openfab/fabdrive/logger"
)

// Defaults applied before the file is decoded.
const (
	DefaultListen    = ":8080"
	DefaultLogLevel  = "info"
	DefaultStorePath = "fabdrive.db"
)

// ErrUnknownConnType indicates a preset declaring a connection type no
// executor variant implements.
var ErrUnknownConnType = errors.New("config: unknown connection type")

// MQTT configures the optional MQTT notification publisher.
type MQTT struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"clientId"`
	TopicPrefix string `yaml:"topicPrefix"`
}

// Preset is one device template: static info plus default settings.
type Preset struct {
	Info     device.Info     `yaml:"info"`
	Settings device.Settings `yaml:"settings"`
}

// Device is one device to create (and optionally discover) at startup.
type Device struct {
	Preset    string         `yaml:"preset"`
	Overrides map[string]any `yaml:"overrides"`
	Discover  bool           `yaml:"discover"`
}

// Config is the root of the configuration file.
type Config struct {
	// Listen is the HTTP listen address for the websocket hub and metrics.
	Listen string `yaml:"listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"logLevel"`

	// StorePath is the sqlite database path. Empty disables persistence.
	StorePath string `yaml:"storePath"`

	MQTT MQTT `yaml:"mqtt"`

	Presets map[string]Preset `yaml:"presets"`
	Devices []Device          `yaml:"devices"`
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, nil
}

// Parse decodes a configuration document, applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{
		Listen:    DefaultListen,
		LogLevel:  DefaultLogLevel,
		StorePath: DefaultStorePath,
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}

	for name, preset := range c.Presets {
		switch preset.Info.ConnType {
		case device.ConnSerial, device.ConnTelnet, device.ConnVirtual, device.ConnRemote:
		default:
			return fmt.Errorf("%w: %q in preset %q", ErrUnknownConnType, preset.Info.ConnType, name)
		}
	}

	for i, dev := range c.Devices {
		if _, ok := c.Presets[dev.Preset]; !ok {
			return fmt.Errorf("config: device %d references unknown preset %q", i, dev.Preset)
		}
	}

	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return errors.New("config: mqtt enabled without a broker URL")
	}

	return nil
}

// DevicePresets converts the preset templates to their device form.
func (c *Config) DevicePresets() map[string]device.Preset {
	presets := make(map[string]device.Preset, len(c.Presets))
	for name, p := range c.Presets {
		presets[name] = device.Preset{Info: p.Info, Settings: p.Settings}
	}

	return presets
}

// Level returns the configured log level.
func (c *Config) Level() logger.Level {
	level, _ := ParseLevel(c.LogLevel) // validated at parse time

	return level
}

// ParseLevel maps a level name to its logger level.
func ParseLevel(name string) (logger.Level, error) {
	switch name {
	case "debug":
		return logger.DebugLevel, nil
	case "info", "":
		return logger.InfoLevel, nil
	case "warn":
		return logger.WarnLevel, nil
	case "error":
		return logger.ErrorLevel, nil
	default:
		return logger.InfoLevel, fmt.Errorf("config: unknown log level %q", name)
	}
}
