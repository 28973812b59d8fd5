// Package config loads the YAML configuration shared by the collector and
// the server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/derktes/pi-ir/gpio"
	"github.com/derktes/pi-ir/pulse"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Driver names.
const (
	DriverSerial   = "serial"
	DriverLoopback = "loopback"
)

// Config is the full configuration file.
type Config struct {
	GPIO    GPIO    `yaml:"gpio"`
	Record  Record  `yaml:"record"`
	Send    Send    `yaml:"send"`
	Server  Server  `yaml:"server"`
	Logging Logging `yaml:"logging"`
}

// GPIO selects and configures the hardware driver.
type GPIO struct {
	Driver string `yaml:"driver"`
	Port   string `yaml:"port"`
	Baud   int    `yaml:"baud"`
	// Loopback only.
	Echo   bool    `yaml:"echo"`
	Jitter float64 `yaml:"jitter"`
	Seed   uint64  `yaml:"seed"`
}

// Record holds the input pin and the recording parameters.
type Record struct {
	Pin     int                 `yaml:"pin"`
	Options pulse.RecordOptions `yaml:",inline"`
}

// Send holds the output pin and the transmit parameters.
type Send struct {
	Pin     int               `yaml:"pin"`
	Options pulse.SendOptions `yaml:",inline"`
}

// Server configures the HTTP API.
type Server struct {
	Bind           string   `yaml:"bind"`
	Port           int      `yaml:"port"`
	DataDir        string   `yaml:"data_dir"`
	OriginPatterns []string `yaml:"origin_patterns"`
}

// Logging configures the log level.
type Logging struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a configuration with every default filled in.
func DefaultConfig() *Config {
	return &Config{
		GPIO: GPIO{
			Driver: DriverSerial,
			Port:   "/dev/ttyACM0",
			Baud:   gpio.DefaultBaud,
		},
		Record: Record{
			Pin: 17,
			Options: pulse.RecordOptions{
				Average:   pulse.AverageOptions{Tolerance: pulse.DefaultTolerance},
				Listen:    pulse.ListenOptions{MaxWidth: pulse.DefaultMaxWidth, MinWidth: pulse.DefaultMinWidth},
				Confirm:   pulse.DefaultConfirm,
				MinLength: pulse.DefaultMinLength,
			},
		},
		Send: Send{
			Pin: 18,
			Options: pulse.SendOptions{
				Frequency: pulse.DefaultFrequency,
				Interval:  pulse.DefaultInterval,
			},
		},
		Server: Server{
			Bind:    "127.0.0.1",
			Port:    8080,
			DataDir: "./data",
		},
		Logging: Logging{
			Level: "info",
		},
	}
}

// LoadConfig reads the file at configPath on top of DefaultConfig, so a
// file only needs the values it changes.
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file does not exist: %s", configPath)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig writes config to configPath, creating its directory.
func SaveConfig(config *Config, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GetDefaultConfigPath returns ~/.config/pi-ir/config.yaml, or a file in
// the working directory when there is no home directory.
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./pi-ir.yaml"
	}
	return filepath.Join(homeDir, ".config", "pi-ir", "config.yaml")
}

// ConfigExists checks if a configuration file exists.
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}

// Validate checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.GPIO.Driver {
	case DriverSerial, DriverLoopback:
	default:
		return fmt.Errorf("unknown gpio driver %q", c.GPIO.Driver)
	}
	if err := gpio.ValidatePin(c.Record.Pin); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	if err := gpio.ValidatePin(c.Send.Pin); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}

// NewLogger builds a logger at the configured level.
func (c *Config) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(strings.TrimSpace(c.Logging.Level))
	if err != nil {
		return nil, err
	}
	log := logrus.New()
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return log, nil
}

// OpenDriver opens the configured GPIO driver. A loopback driver echoes
// the send pin back to the record pin when GPIO.Echo is set.
func (c *Config) OpenDriver(log logrus.FieldLogger) (gpio.Driver, error) {
	switch c.GPIO.Driver {
	case DriverLoopback:
		return gpio.NewLoopback(gpio.LoopbackOptions{
			Echo:    c.GPIO.Echo,
			EchoPin: c.Record.Pin,
			Jitter:  c.GPIO.Jitter,
			Seed:    c.GPIO.Seed,
			Logger:  log,
		}), nil
	case DriverSerial:
		d, err := gpio.OpenSerial(c.GPIO.Port, c.GPIO.Baud, log)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown gpio driver %q", c.GPIO.Driver)
	}
}
