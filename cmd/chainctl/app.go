package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mfkiwl/SRAM-Acquisition/chain"
	"github.com/mfkiwl/SRAM-Acquisition/endpoint"
	"github.com/mfkiwl/SRAM-Acquisition/internal/config"
	"github.com/mfkiwl/SRAM-Acquisition/logger"
	"github.com/mfkiwl/SRAM-Acquisition/packet"
	"github.com/mfkiwl/SRAM-Acquisition/power"
	"github.com/mfkiwl/SRAM-Acquisition/sim"
	"github.com/mfkiwl/SRAM-Acquisition/station"
	"github.com/mfkiwl/SRAM-Acquisition/store"
	"github.com/mfkiwl/SRAM-Acquisition/telemetry"
)

const (
	simPort        = "sim0"
	simSeed        = 1
	simSettleDelay = 5 * time.Millisecond
)

type globalFlags struct {
	configPath string
	ports      []string
	simulate   int
	output     string
	logLevel   string
	storeDir   string
}

// app is the station wired from the config file and flags.
type app struct {
	cfg      *config.Config
	logger   logger.Logger
	station  *station.Station
	store    store.SampleStore
	notifier *telemetry.Notifier
	chain    *sim.Chain
	closers  []func() error
}

func loadConfig(gf *globalFlags) (*config.Config, error) {
	cfg := config.Default()
	if gf.configPath != "" {
		loaded, err := config.Load(gf.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if len(gf.ports) > 0 {
		cfg.Ports = gf.ports
	}
	if gf.logLevel != "" {
		cfg.LogLevel = gf.logLevel
	}
	if gf.storeDir != "" {
		cfg.StoreDir = gf.storeDir
	}
	if gf.simulate > 0 {
		cfg.DevicesPerChain = gf.simulate
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// newApp builds the station. With withPorts the configured serial ports
// (or the simulated chain) are registered.
func newApp(ctx context.Context, gf *globalFlags, withPorts bool) (*app, error) {
	if err := checkOutput(gf.output); err != nil {
		return nil, err
	}

	cfg, err := loadConfig(gf)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: cfg.NewLogger(os.Stderr)}
	logger.SetLogger(a.logger)

	if err := a.openStore(); err != nil {
		return nil, err
	}

	if err := a.openTelemetry(ctx); err != nil {
		_ = a.close()
		return nil, err
	}

	chainOpts, err := cfg.ChainOptions(a.logger)
	if err != nil {
		_ = a.close()
		return nil, err
	}
	chainCfg, err := chain.NewConfig(chainOpts...)
	if err != nil {
		_ = a.close()
		return nil, err
	}

	a.station, err = station.New(ctx,
		station.WithChainConfig(chainCfg),
		station.WithStore(a.store),
		station.WithEvents(a.notifier),
		station.WithPower(power.NewHub(cfg.PowerCommand, power.WithPort(cfg.PowerPort), power.WithLogger(a.logger))),
		station.WithLogger(a.logger),
	)
	if err != nil {
		_ = a.close()
		return nil, err
	}
	a.closers = append([]func() error{a.station.Close}, a.closers...)

	if !withPorts {
		return a, nil
	}

	if gf.simulate > 0 {
		err = a.attachSimulation(gf.simulate)
	} else {
		err = a.registerPorts()
	}
	if err != nil {
		_ = a.close()
		return nil, err
	}

	return a, nil
}

func (a *app) openStore() error {
	if a.cfg.StoreDir == "" {
		a.store = store.NewMemoryStore()
		return nil
	}

	st, err := store.OpenBadgerStore(a.cfg.StoreDir)
	if err != nil {
		return err
	}
	a.store = st
	a.closers = append(a.closers, st.Close)

	return nil
}

func (a *app) openTelemetry(ctx context.Context) error {
	tc := a.cfg.Telemetry

	var sinks []telemetry.Sink
	if tc.Log {
		sinks = append(sinks, telemetry.NewLogSink(a.logger))
	}

	if tc.File != "" {
		f, err := os.OpenFile(tc.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open telemetry file: %w", err)
		}
		sinks = append(sinks, telemetry.NewLineWriter(f))
		a.closers = append(a.closers, f.Close)
	}

	if tc.InfluxURL != "" {
		w, err := telemetry.NewHTTPWriter(tc.InfluxURL, tc.InfluxDatabase, tc.InfluxTimeout)
		if err != nil {
			return err
		}
		sinks = append(sinks, w)
	}

	if len(sinks) == 0 {
		return nil
	}

	n, err := telemetry.NewNotifier(ctx, a.logger, tc.BufferSize, sinks...)
	if err != nil {
		return err
	}
	a.notifier = n
	// the notifier flushes into the sinks, so it closes before them
	a.closers = append([]func() error{func() error { n.Close(); return nil }}, a.closers...)

	return nil
}

func (a *app) attachSimulation(n int) error {
	mode, err := packet.ParseChecksumMode(a.cfg.Checksum)
	if err != nil {
		return err
	}

	memory := a.cfg.MemorySize
	if memory == 0 {
		memory = endpoint.DefaultMemorySize
	}

	c, err := sim.NewChain(sim.GenerateIDs(simSeed, n),
		endpoint.WithSettleDelay(simSettleDelay),
		endpoint.WithMemorySize(memory),
		endpoint.WithChecksum(mode),
		endpoint.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}
	a.chain = c
	a.closers = append(a.closers, func() error { c.Close(); return nil })

	return a.station.AddPort(simPort, c.Host())
}

func (a *app) registerPorts() error {
	var (
		added []string
		err   error
	)

	if len(a.cfg.Ports) > 0 {
		added, err = a.station.OpenPorts(a.cfg.Ports, a.cfg.BaudRate)
	} else {
		added, err = a.station.RegisterPorts(a.cfg.PortPattern, a.cfg.BaudRate)
	}

	if len(added) == 0 {
		if err == nil {
			err = errors.New("no serial ports registered")
		}
		return err
	}

	if err != nil {
		a.logger.Warn("some ports could not be opened", "error", err)
	}

	return nil
}

func (a *app) close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil

	return errors.Join(errs...)
}
