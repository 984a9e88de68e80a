// Package station runs the host side of the acquisition setup: one chain
// worker per serial port, the device registry, sample persistence,
// telemetry and hub power.
//
// Every command maps to exactly one chain operation on one port. Ports run
// concurrently; operations on the same port are serialized by its worker.
package station

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/mfkiwl/SRAM-Acquisition/chain"
	"github.com/mfkiwl/SRAM-Acquisition/logger"
	"github.com/mfkiwl/SRAM-Acquisition/packet"
	"github.com/mfkiwl/SRAM-Acquisition/power"
	"github.com/mfkiwl/SRAM-Acquisition/registry"
	"github.com/mfkiwl/SRAM-Acquisition/store"
	"github.com/mfkiwl/SRAM-Acquisition/telemetry"
	"github.com/mfkiwl/SRAM-Acquisition/transport"
)

var (
	// ErrUnknownPort indicates a port that was never registered.
	ErrUnknownPort = errors.New("station: unknown port")
	// ErrPortExists indicates a port registered twice.
	ErrPortExists = errors.New("station: port already registered")
	// ErrUnknownDevice indicates a board id not found by any discovery.
	ErrUnknownDevice = errors.New("station: unknown device")
	// ErrNoReference indicates a write-invert without a stored reference.
	ErrNoReference = errors.New("station: no reference sample")
	// ErrClosed indicates a station that was closed.
	ErrClosed = errors.New("station: closed")
)

// Station owns the chain workers of every registered port.
type Station struct {
	ctx      context.Context
	chainCfg *chain.Config
	reg      *registry.Registry
	workers  *xsync.MapOf[string, *chain.Worker]
	store    store.SampleStore
	events   Events
	power    power.Switch
	logger   logger.Logger
	now      func() time.Time

	mu     sync.Mutex // serializes port registration with Close
	closed bool
}

// ReadResult is the outcome of a Read.
type ReadResult struct {
	Port   string
	Sample store.Sample
	// Reference reports whether the sample was stored as the reference of
	// its board id and address.
	Reference bool
}

// New creates a station without ports. Workers stop when ctx is done.
func New(ctx context.Context, opts ...Option) (*Station, error) {
	s := &Station{
		ctx:     ctx,
		reg:     registry.New(),
		workers: xsync.NewMapOf[string, *chain.Worker](),
		events:  nopEvents{},
		power:   power.Nop{},
		logger:  logger.GetLogger(),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.chainCfg == nil {
		cfg, err := chain.NewConfig(chain.WithLogger(s.logger))
		if err != nil {
			return nil, err
		}
		s.chainCfg = cfg
	}

	if s.store == nil {
		s.store = store.NewMemoryStore()
	}

	return s, nil
}

// Registry returns the device registry.
func (s *Station) Registry() *registry.Registry { return s.reg }

// Store returns the sample store.
func (s *Station) Store() store.SampleStore { return s.store }

// AddPort starts a worker for p under name. The station owns p afterwards.
func (s *Station) AddPort(name string, p transport.Port) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, ok := s.workers.Load(name); ok {
		return fmt.Errorf("%w: %s", ErrPortExists, name)
	}

	ctrl, err := chain.NewController(name, p, s.chainCfg)
	if err != nil {
		return err
	}

	w, err := chain.NewWorker(s.ctx, ctrl, s.reg)
	if err != nil {
		_ = ctrl.Close()
		return err
	}

	s.workers.Store(name, w)
	s.events.Notify(telemetry.PortRegistered(name))
	s.logger.Info("station: port registered", "port", name)

	return nil
}

// RegisterPorts opens every serial port whose name matches pattern at baud
// and adds it. Ports already registered are skipped. It returns the names
// of the newly added ports; ports that fail to open are reported in the
// joined error.
func (s *Station) RegisterPorts(pattern string, baud int) ([]string, error) {
	names, err := transport.ListPorts(pattern)
	if err != nil {
		return nil, err
	}

	return s.openPorts(names, baud, transport.OpenSerial)
}

// OpenPorts opens and adds the named serial ports at baud.
func (s *Station) OpenPorts(names []string, baud int) ([]string, error) {
	return s.openPorts(names, baud, transport.OpenSerial)
}

func (s *Station) openPorts(names []string, baud int, open func(string, int) (transport.Port, error)) ([]string, error) {
	var (
		added []string
		errs  []error
	)

	for _, name := range names {
		if _, ok := s.workers.Load(name); ok {
			continue
		}

		p, err := open(name, baud)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if err := s.AddPort(name, p); err != nil {
			_ = p.Close()
			errs = append(errs, err)
			continue
		}
		added = append(added, name)
	}

	return added, errors.Join(errs...)
}

// AvailablePorts returns the registered port names, sorted.
func (s *Station) AvailablePorts() []string {
	return s.reg.Ports()
}

// Devices returns the devices of every port from the latest discoveries.
func (s *Station) Devices() map[string][]registry.DeviceRecord {
	return s.reg.Snapshot()
}

// Discover runs discovery on port. count <= 0 uses the configured chain
// length. Every discovery replaces the port's devices, a failed one with
// the devices that answered before the failure.
func (s *Station) Discover(ctx context.Context, port string, count int) ([]registry.DeviceRecord, error) {
	w, err := s.worker(port)
	if err != nil {
		return nil, err
	}

	s.events.Notify(telemetry.CommandIssued("devices", "register"))

	return w.Discover(ctx, count)
}

// DiscoverAll runs discovery on every port concurrently. The result holds
// the ports whose discovery succeeded; failures are joined in the error.
func (s *Station) DiscoverAll(ctx context.Context, count int) (map[string][]registry.DeviceRecord, error) {
	s.events.Notify(telemetry.CommandIssued("devices", "register"))

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		errs    []error
		results = make(map[string][]registry.DeviceRecord)
	)

	s.workers.Range(func(port string, w *chain.Worker) bool {
		wg.Add(1)
		go func() {
			defer wg.Done()

			records, err := w.Discover(ctx, count)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			results[port] = records
		}()

		return true
	})
	wg.Wait()

	return results, errors.Join(errs...)
}

// Ping checks that id answers on port. An empty port is resolved from the
// registry.
func (s *Station) Ping(ctx context.Context, port string, id packet.BoardID) (packet.Header, error) {
	w, err := s.resolve(port, id)
	if err != nil {
		return packet.Header{}, err
	}

	return w.Ping(ctx, id)
}

// Read reads the page at offset from id and persists it: the first page of
// a (board id, address) pair becomes its reference, later ones are samples.
// An empty port is resolved from the registry.
func (s *Station) Read(ctx context.Context, port string, id packet.BoardID, offset uint16) (ReadResult, error) {
	w, err := s.resolve(port, id)
	if err != nil {
		return ReadResult{}, err
	}

	data, err := w.Read(ctx, id, offset)
	if err != nil {
		return ReadResult{}, err
	}

	sample := store.NewSample(id, offset, data, s.now())
	s.events.Notify(telemetry.DeviceCommand("READ", sample.BoardID, sample.Address))

	exists, err := s.store.HasReference(ctx, sample.BoardID, sample.Address)
	if err != nil {
		return ReadResult{}, fmt.Errorf("station: lookup reference: %w", err)
	}

	if err := s.store.Put(ctx, sample, !exists); err != nil {
		return ReadResult{}, fmt.Errorf("station: store sample: %w", err)
	}

	return ReadResult{Port: w.Port(), Sample: sample, Reference: !exists}, nil
}

// Write writes data to the page at offset of id and returns its ACK. An
// empty port is resolved from the registry.
func (s *Station) Write(ctx context.Context, port string, id packet.BoardID, offset uint16, data packet.Payload) (packet.Header, error) {
	w, err := s.resolve(port, id)
	if err != nil {
		return packet.Header{}, err
	}

	ack, err := w.Write(ctx, id, offset, data)
	if err != nil {
		return packet.Header{}, err
	}

	s.events.Notify(telemetry.DeviceCommand("WRITE", id.String(), packet.FormatAddress(offset)))

	return ack, nil
}

// WriteInvert writes the bitwise inverse of the stored reference back to
// the page it was read from.
func (s *Station) WriteInvert(ctx context.Context, port string, id packet.BoardID, offset uint16) (packet.Header, error) {
	ref, err := s.store.Reference(ctx, id.String(), packet.FormatAddress(offset))
	if errors.Is(err, store.ErrNotFound) {
		return packet.Header{}, fmt.Errorf("%w: %s at %s", ErrNoReference, id, packet.FormatAddress(offset))
	}
	if err != nil {
		return packet.Header{}, fmt.Errorf("station: load reference: %w", err)
	}

	return s.Write(ctx, port, id, offset, ref.Payload().Inverted())
}

// PowerOn powers every chain up.
func (s *Station) PowerOn(ctx context.Context) error {
	if err := s.power.On(ctx); err != nil {
		return err
	}
	s.events.Notify(telemetry.PowerChanged("ON", "ALL"))

	return nil
}

// PowerOff powers every chain down.
func (s *Station) PowerOff(ctx context.Context) error {
	if err := s.power.Off(ctx); err != nil {
		return err
	}
	s.events.Notify(telemetry.PowerChanged("OFF", "ALL"))

	return nil
}

// Stats returns the controller metrics and link counters of port.
func (s *Station) Stats(port string) (PortStats, error) {
	w, err := s.worker(port)
	if err != nil {
		return PortStats{}, err
	}

	ctrl := w.Controller()
	m := ctrl.Metrics()

	return PortStats{
		Port:      port,
		Discovers: m.DiscoverCount.Load(),
		Pings:     m.PingCount.Load(),
		Reads:     m.ReadCount.Load(),
		Writes:    m.WriteCount.Load(),
		Errors:    m.ErrorCount.Load(),
		Timeouts:  m.TimeoutCount.Load(),
		Nacks:     m.NackCount.Load(),
		Link:      ctrl.LinkStats(),
	}, nil
}

// Close stops every worker and closes its port. The store is not closed.
func (s *Station) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	s.workers.Range(func(port string, w *chain.Worker) bool {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("station: close %s: %w", port, err))
		}
		s.workers.Delete(port)

		return true
	})

	return errors.Join(errs...)
}

func (s *Station) worker(port string) (*chain.Worker, error) {
	w, ok := s.workers.Load(port)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPort, port)
	}

	return w, nil
}

func (s *Station) resolve(port string, id packet.BoardID) (*chain.Worker, error) {
	if port != "" {
		return s.worker(port)
	}

	found, _, ok := s.reg.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}

	return s.worker(found)
}
