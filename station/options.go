package station

import (
	"time"

	"github.com/mfkiwl/SRAM-Acquisition/chain"
	"github.com/mfkiwl/SRAM-Acquisition/logger"
	"github.com/mfkiwl/SRAM-Acquisition/power"
	"github.com/mfkiwl/SRAM-Acquisition/store"
	"github.com/mfkiwl/SRAM-Acquisition/telemetry"
)

// Events receives station telemetry. *telemetry.Notifier implements it.
type Events interface {
	Notify(e telemetry.Event)
}

type nopEvents struct{}

func (nopEvents) Notify(telemetry.Event) {}

// Option configures a Station.
type Option func(*Station)

// WithChainConfig sets the configuration of every port's controller.
func WithChainConfig(cfg *chain.Config) Option {
	return func(s *Station) {
		if cfg != nil {
			s.chainCfg = cfg
		}
	}
}

// WithStore sets the sample store. An in-memory store is used by default.
func WithStore(st store.SampleStore) Option {
	return func(s *Station) {
		if st != nil {
			s.store = st
		}
	}
}

// WithEvents sets the telemetry receiver.
func WithEvents(e Events) Option {
	return func(s *Station) {
		if e != nil {
			s.events = e
		}
	}
}

// WithPower sets the power switch. Power commands do nothing by default.
func WithPower(p power.Switch) Option {
	return func(s *Station) {
		if p != nil {
			s.power = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Station) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the time source stamped on samples.
func WithClock(now func() time.Time) Option {
	return func(s *Station) {
		if now != nil {
			s.now = now
		}
	}
}
