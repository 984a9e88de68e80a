// Package config loads the station configuration file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mfkiwl/SRAM-Acquisition/chain"
	"github.com/mfkiwl/SRAM-Acquisition/logger"
	"github.com/mfkiwl/SRAM-Acquisition/packet"
	"github.com/mfkiwl/SRAM-Acquisition/power"
	"github.com/mfkiwl/SRAM-Acquisition/transport"
)

// Config is the station configuration file.
type Config struct {
	// PortPattern selects the serial devices registered when Ports is empty.
	PortPattern string `yaml:"port_pattern"`
	// Ports lists serial devices to open explicitly.
	Ports    []string `yaml:"ports,omitempty"`
	BaudRate int      `yaml:"baud_rate"`

	DevicesPerChain int           `yaml:"devices_per_chain"`
	ReplyTimeout    time.Duration `yaml:"reply_timeout"`
	DrainSilence    time.Duration `yaml:"drain_silence"`
	// MemorySize is the device memory in bytes; 0 disables the host check.
	MemorySize int    `yaml:"memory_size"`
	Checksum   string `yaml:"checksum"`

	// StoreDir is the badger directory; empty keeps samples in memory.
	StoreDir string `yaml:"store_dir,omitempty"`

	PowerCommand string `yaml:"power_command"`
	PowerPort    string `yaml:"power_port"`

	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`

	LogLevel string `yaml:"log_level"`
	// LogFormat is json, text or console; empty follows the ENV variable.
	LogFormat string `yaml:"log_format,omitempty"`
}

// TelemetryConfig selects the telemetry sinks. Every sink is optional.
type TelemetryConfig struct {
	// File receives events in InfluxDB line protocol.
	File string `yaml:"file,omitempty"`
	// InfluxURL is the base URL of an InfluxDB 1.x server.
	InfluxURL      string        `yaml:"influx_url,omitempty"`
	InfluxDatabase string        `yaml:"influx_database,omitempty"`
	InfluxTimeout  time.Duration `yaml:"influx_timeout,omitempty"`
	BufferSize     int           `yaml:"buffer_size,omitempty"`
	// Log writes events to the station log.
	Log bool `yaml:"log,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		PortPattern:     transport.DefaultPortPattern,
		BaudRate:        transport.DefaultBaudRate,
		DevicesPerChain: chain.DefaultDevicesPerChain,
		ReplyTimeout:    chain.DefaultReplyTimeout,
		DrainSilence:    chain.DefaultDrainSilence,
		MemorySize:      chain.DefaultMemorySize,
		Checksum:        packet.ChecksumSum8.String(),
		PowerCommand:    power.DefaultCommand,
		PowerPort:       power.AllPorts,
		Telemetry: TelemetryConfig{
			InfluxDatabase: "station",
			InfluxTimeout:  5 * time.Second,
		},
		LogLevel: "info",
	}
}

// Load reads and validates the configuration file at path. Keys missing
// from the file keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes and validates YAML configuration data.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges. Chain limits are checked by ChainOptions.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Ports) == 0 {
		if c.PortPattern == "" {
			errs = append(errs, errors.New("port_pattern is required when ports is empty"))
		} else if _, err := regexp.Compile(c.PortPattern); err != nil {
			errs = append(errs, fmt.Errorf("port_pattern: %w", err))
		}
	}

	if c.BaudRate <= 0 {
		errs = append(errs, fmt.Errorf("baud_rate must be > 0, got %d", c.BaudRate))
	}

	if _, err := packet.ParseChecksumMode(c.Checksum); err != nil {
		errs = append(errs, fmt.Errorf("checksum: %w", err))
	}

	if _, err := c.ChainOptions(nil); err != nil {
		errs = append(errs, err)
	}

	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel))
	}

	switch c.LogFormat {
	case "", logger.FormatJSON, logger.FormatText, logger.FormatConsole:
	default:
		errs = append(errs, fmt.Errorf("log_format must be json, text or console, got %q", c.LogFormat))
	}

	if c.Telemetry.InfluxURL != "" && c.Telemetry.InfluxDatabase == "" {
		errs = append(errs, errors.New("telemetry.influx_database is required with telemetry.influx_url"))
	}
	if c.Telemetry.BufferSize < 0 {
		errs = append(errs, errors.New("telemetry.buffer_size must be >= 0"))
	}

	return errors.Join(errs...)
}

// ChainOptions converts the file values to chain controller options and
// checks them against the controller limits.
func (c *Config) ChainOptions(l logger.Logger) ([]chain.Option, error) {
	mode, err := packet.ParseChecksumMode(c.Checksum)
	if err != nil {
		return nil, err
	}

	opts := []chain.Option{
		chain.WithReplyTimeout(c.ReplyTimeout),
		chain.WithDrainSilence(c.DrainSilence),
		chain.WithDevicesPerChain(c.DevicesPerChain),
		chain.WithMemorySize(c.MemorySize),
		chain.WithChecksum(mode),
		chain.WithLogger(l),
	}

	if _, err := chain.NewConfig(opts...); err != nil {
		return nil, err
	}

	return opts, nil
}

// Level returns the configured log level.
func (c *Config) Level() logger.Level {
	return logger.ParseLevel(c.LogLevel)
}

// NewLogger creates the station logger on w.
func (c *Config) NewLogger(w io.Writer) logger.Logger {
	if c.LogFormat == "" {
		return logger.NewSlogWriter(w, c.Level(), false)
	}

	return logger.NewSlogFormat(w, c.Level(), c.LogFormat, false)
}
