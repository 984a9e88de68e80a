package chain

import (
	"fmt"
	"time"

	"github.com/mfkiwl/SRAM-Acquisition/logger"
	"github.com/mfkiwl/SRAM-Acquisition/packet"
)

// Default values.
const (
	// DefaultReplyTimeout bounds each blocking read. It must cover the
	// device settle delay.
	DefaultReplyTimeout = 2 * time.Second
	// DefaultDrainSilence is the line silence that ends draining after a
	// failed exchange.
	DefaultDrainSilence = 50 * time.Millisecond
	// DefaultDevicesPerChain is the expected chain length for discovery.
	DefaultDevicesPerChain = 13
	// DefaultMemorySize is the device memory used for the host-side
	// address check: 80 KiB.
	DefaultMemorySize = 80 * 1024

	DefaultQueueSize    = 8
	DefaultQueueTimeout = 3 * time.Second
)

// Range limits.
const (
	MinReplyTimeout = 10 * time.Millisecond
	MaxReplyTimeout = 120 * time.Second

	MaxDrainSilence = 5 * time.Second

	// MaxDevicesPerChain is bounded by the 8-bit hop count.
	MaxDevicesPerChain = 255

	MaxMemorySize = (1 << 16) * packet.PayloadSize

	MaxQueueSize = 1024
)

// Config holds the configuration of a chain controller and its worker.
type Config struct {
	replyTimeout    time.Duration
	drainSilence    time.Duration
	devicesPerChain int
	memorySize      int
	checksum        packet.ChecksumMode
	queueSize       int
	queueTimeout    time.Duration
	logger          logger.Logger
}

// NewConfig creates a controller configuration with defaults overridden by opts.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		replyTimeout:    DefaultReplyTimeout,
		drainSilence:    DefaultDrainSilence,
		devicesPerChain: DefaultDevicesPerChain,
		memorySize:      DefaultMemorySize,
		checksum:        packet.ChecksumSum8,
		queueSize:       DefaultQueueSize,
		queueTimeout:    DefaultQueueTimeout,
		logger:          logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Option configures a controller.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithReplyTimeout sets the deadline of each blocking read.
func WithReplyTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinReplyTimeout || d > MaxReplyTimeout {
			return fmt.Errorf("chain: reply timeout %v out of range [%v, %v]", d, MinReplyTimeout, MaxReplyTimeout)
		}
		cfg.replyTimeout = d

		return nil
	})
}

// WithDrainSilence sets the silence that ends draining after a failure.
func WithDrainSilence(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 || d > MaxDrainSilence {
			return fmt.Errorf("chain: drain silence %v out of range [0, %v]", d, MaxDrainSilence)
		}
		cfg.drainSilence = d

		return nil
	})
}

// WithDevicesPerChain sets the chain length Discover expects by default.
func WithDevicesPerChain(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 1 || n > MaxDevicesPerChain {
			return fmt.Errorf("chain: devices per chain %d out of range [1, %d]", n, MaxDevicesPerChain)
		}
		cfg.devicesPerChain = n

		return nil
	})
}

// WithMemorySize sets the device memory size used to reject out-of-range
// offsets before anything is sent. Zero disables the check and leaves it to
// the device.
func WithMemorySize(size int) Option {
	return optFunc(func(cfg *Config) error {
		if size < 0 || size > MaxMemorySize || size%packet.PayloadSize != 0 {
			return fmt.Errorf("chain: memory size %d must be a multiple of %d in [0, %d]", size, packet.PayloadSize, MaxMemorySize)
		}
		cfg.memorySize = size

		return nil
	})
}

// WithChecksum sets the checksum mode used to seal and verify packets.
func WithChecksum(mode packet.ChecksumMode) Option {
	return optFunc(func(cfg *Config) error {
		cfg.checksum = mode
		return nil
	})
}

// WithQueueSize sets the worker request queue size.
func WithQueueSize(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 1 || n > MaxQueueSize {
			return fmt.Errorf("chain: queue size %d out of range [1, %d]", n, MaxQueueSize)
		}
		cfg.queueSize = n

		return nil
	})
}

// WithQueueTimeout sets how long a worker request may wait to be queued.
func WithQueueTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return fmt.Errorf("chain: queue timeout %v must be positive", d)
		}
		cfg.queueTimeout = d

		return nil
	})
}

// WithLogger sets the logger. Nil keeps the default logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l != nil {
			cfg.logger = l
		}

		return nil
	})
}

// ReplyTimeout returns the per-read deadline.
func (cfg *Config) ReplyTimeout() time.Duration { return cfg.replyTimeout }

// DrainSilence returns the drain silence.
func (cfg *Config) DrainSilence() time.Duration { return cfg.drainSilence }

// DevicesPerChain returns the default discovery length.
func (cfg *Config) DevicesPerChain() int { return cfg.devicesPerChain }

// MemorySize returns the memory size for the address check, 0 if disabled.
func (cfg *Config) MemorySize() int { return cfg.memorySize }

// Checksum returns the checksum mode.
func (cfg *Config) Checksum() packet.ChecksumMode { return cfg.checksum }

// Logger returns the logger.
func (cfg *Config) Logger() logger.Logger { return cfg.logger }
