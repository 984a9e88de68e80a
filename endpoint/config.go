package endpoint

import (
	"fmt"
	"time"

	"github.com/mfkiwl/SRAM-Acquisition/logger"
	"github.com/mfkiwl/SRAM-Acquisition/packet"
)

// Default values.
const (
	// DefaultSettleDelay is the pause after a claim or an addressed ACK.
	DefaultSettleDelay = 800 * time.Millisecond
	// DefaultBodyTimeout bounds the wait for the next packet of an exchange.
	DefaultBodyTimeout = 5 * time.Second
	// DefaultInterByteTimeout discards a partially received packet when the
	// line stays silent this long.
	DefaultInterByteTimeout = 500 * time.Millisecond
	// DefaultMemorySize is the probed memory of a device: 80 KiB, 160 pages.
	DefaultMemorySize = 80 * 1024
)

// Range limits.
const (
	MaxSettleDelay = 10 * time.Second

	MinBodyTimeout = 10 * time.Millisecond
	MaxBodyTimeout = 120 * time.Second

	MinInterByteTimeout = time.Millisecond
	MaxInterByteTimeout = 10 * time.Second

	MinMemorySize = packet.PayloadSize
	MaxMemorySize = (1 << 16) * packet.PayloadSize
)

// Config holds the configuration of a device endpoint.
type Config struct {
	settleDelay      time.Duration
	bodyTimeout      time.Duration
	interByteTimeout time.Duration
	memorySize       int
	checksum         packet.ChecksumMode
	stateHandlers    []StateChangeHandler
	logger           logger.Logger
}

// NewConfig creates an endpoint configuration with defaults overridden by opts.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		settleDelay:      DefaultSettleDelay,
		bodyTimeout:      DefaultBodyTimeout,
		interByteTimeout: DefaultInterByteTimeout,
		memorySize:       DefaultMemorySize,
		checksum:         packet.ChecksumSum8,
		logger:           logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Option configures an endpoint.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithSettleDelay sets the pause after a claim or an addressed ACK.
func WithSettleDelay(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 || d > MaxSettleDelay {
			return fmt.Errorf("endpoint: settle delay %v out of range [0, %v]", d, MaxSettleDelay)
		}
		cfg.settleDelay = d

		return nil
	})
}

// WithBodyTimeout sets how long the device waits for the next packet of an
// exchange before returning to idle.
func WithBodyTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinBodyTimeout || d > MaxBodyTimeout {
			return fmt.Errorf("endpoint: body timeout %v out of range [%v, %v]", d, MinBodyTimeout, MaxBodyTimeout)
		}
		cfg.bodyTimeout = d

		return nil
	})
}

// WithInterByteTimeout sets the silence after which a partial packet is dropped.
func WithInterByteTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinInterByteTimeout || d > MaxInterByteTimeout {
			return fmt.Errorf("endpoint: inter-byte timeout %v out of range [%v, %v]", d, MinInterByteTimeout, MaxInterByteTimeout)
		}
		cfg.interByteTimeout = d

		return nil
	})
}

// WithMemorySize sets the addressable memory of the device in bytes. It must
// be a multiple of the payload size.
func WithMemorySize(size int) Option {
	return optFunc(func(cfg *Config) error {
		if size < MinMemorySize || size > MaxMemorySize || size%packet.PayloadSize != 0 {
			return fmt.Errorf("endpoint: memory size %d must be a multiple of %d in [%d, %d]",
				size, packet.PayloadSize, MinMemorySize, MaxMemorySize)
		}
		cfg.memorySize = size

		return nil
	})
}

// WithChecksum sets the checksum mode used to verify and seal packets.
func WithChecksum(mode packet.ChecksumMode) Option {
	return optFunc(func(cfg *Config) error {
		cfg.checksum = mode
		return nil
	})
}

// WithStateChangeHandler adds a handler invoked on every state transition.
func WithStateChangeHandler(h StateChangeHandler) Option {
	return optFunc(func(cfg *Config) error {
		if h != nil {
			cfg.stateHandlers = append(cfg.stateHandlers, h)
		}

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

// SettleDelay returns the settle delay.
func (cfg *Config) SettleDelay() time.Duration { return cfg.settleDelay }

// BodyTimeout returns the body timeout.
func (cfg *Config) BodyTimeout() time.Duration { return cfg.bodyTimeout }

// InterByteTimeout returns the inter-byte timeout.
func (cfg *Config) InterByteTimeout() time.Duration { return cfg.interByteTimeout }

// MemorySize returns the addressable memory size in bytes.
func (cfg *Config) MemorySize() int { return cfg.memorySize }

// Checksum returns the checksum mode.
func (cfg *Config) Checksum() packet.ChecksumMode { return cfg.checksum }

// Logger returns the logger.
func (cfg *Config) Logger() logger.Logger { return cfg.logger }
