package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mfkiwl/SRAM-Acquisition/logger"
	"github.com/mfkiwl/SRAM-Acquisition/packet"
	"github.com/mfkiwl/SRAM-Acquisition/registry"
	"github.com/mfkiwl/SRAM-Acquisition/transport"
)

// Controller drives the chain attached to one port.
//
// Controller methods are goroutine-safe; exchanges on the same controller
// are serialized.
type Controller struct {
	port   string
	link   *transport.Link
	cfg    *Config
	logger logger.Logger

	mu      sync.Mutex
	metrics Metrics
}

// NewController creates a controller for the chain on p. port names the
// chain in logs and errors. A nil cfg uses the defaults.
func NewController(port string, p transport.Port, cfg *Config) (*Controller, error) {
	if cfg == nil {
		var err error
		if cfg, err = NewConfig(); err != nil {
			return nil, err
		}
	}

	l := cfg.logger.With("port", port)

	return &Controller{
		port:   port,
		link:   transport.NewLink(port, p, l),
		cfg:    cfg,
		logger: l,
	}, nil
}

// Port returns the port name.
func (c *Controller) Port() string { return c.port }

// Config returns the controller configuration.
func (c *Controller) Config() *Config { return c.cfg }

// Metrics returns the controller counters.
func (c *Controller) Metrics() *Metrics { return &c.metrics }

// LinkStats returns the byte counters of the port.
func (c *Controller) LinkStats() transport.LinkStats { return c.link.Stats() }

// Close closes the port.
func (c *Controller) Close() error {
	return c.link.Close()
}

// Discover broadcasts a PING and collects count ACKs, one per device, in chain
// order. count <= 0 uses the configured chain length.
//
// The protocol has no end-of-chain marker, so a chain shorter than count fails
// with ErrTimeout. The records collected before the failure are returned
// together with the error. Devices beyond count still claim the PING and
// their late ACKs can fail the next exchange.
func (c *Controller) Discover(ctx context.Context, count int) ([]registry.DeviceRecord, error) {
	if count <= 0 {
		count = c.cfg.devicesPerChain
	}
	if count > MaxDevicesPerChain {
		return nil, c.reject(OpDiscover, packet.Broadcast, fmt.Errorf("chain: %d devices exceed the hop count range", count))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics.incDiscoverCount()

	if err := c.begin(ctx); err != nil {
		return nil, c.fail(OpDiscover, packet.Broadcast, err)
	}

	if err := c.sendHeader(packet.OpPing, packet.Broadcast); err != nil {
		return nil, c.fail(OpDiscover, packet.Broadcast, err)
	}

	records := make([]registry.DeviceRecord, 0, count)
	for i := 0; i < count; i++ {
		ack, err := c.readHeader(ctx)
		if err == nil {
			err = expectAck(ack, packet.Broadcast)
		}
		if err != nil {
			return records, c.fail(OpDiscover, packet.Broadcast, fmt.Errorf("after %d of %d devices: %w", i, count, err))
		}

		if int(ack.HopCount) != i+1 {
			c.logger.Warn("chain: unexpected hop count", "device", ack.Target.String(), "hop", ack.HopCount, "want", i+1)
		}

		records = append(records, registry.DeviceRecord{
			BoardID:  ack.Target,
			Position: int(ack.HopCount),
			Online:   true,
		})
	}

	c.metrics.setDevicesGauge(len(records))
	c.logger.Info("chain: discovery complete", "devices", len(records))

	return records, nil
}

// Ping sends a PING addressed to id and returns its ACK.
func (c *Controller) Ping(ctx context.Context, id packet.BoardID) (packet.Header, error) {
	if id.IsBroadcast() {
		return packet.Header{}, c.reject(OpPing, id, ErrInvalidTarget)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics.incPingCount()

	ack, err := c.exchangeHeader(ctx, packet.OpPing, id)
	if err != nil {
		return packet.Header{}, c.fail(OpPing, id, err)
	}

	return ack, nil
}

// Read returns the page at offset of device id.
func (c *Controller) Read(ctx context.Context, id packet.BoardID, offset uint16) (packet.Payload, error) {
	if err := c.checkTarget(id, offset); err != nil {
		return packet.Payload{}, c.reject(OpRead, id, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics.incReadCount()

	if _, err := c.exchangeHeader(ctx, packet.OpRead, id); err != nil {
		return packet.Payload{}, c.fail(OpRead, id, err)
	}

	request := packet.NewMemoryBody(id, offset, packet.Payload{}).Seal(c.cfg.checksum)
	if err := c.link.Write(request.Bytes()); err != nil {
		return packet.Payload{}, c.fail(OpRead, id, err)
	}

	reply, err := c.readReplyBody(ctx)
	if err == nil {
		err = expectBody(reply, id, offset)
	}
	if err != nil {
		return packet.Payload{}, c.fail(OpRead, id, err)
	}

	c.logger.Debug("chain: page read", "device", id.String(), "addr", packet.FormatAddress(offset))

	return reply.Payload, nil
}

// Write stores data at offset of device id and returns the ACK of the WRITE
// header. The device does not confirm the Body.
func (c *Controller) Write(ctx context.Context, id packet.BoardID, offset uint16, data packet.Payload) (packet.Header, error) {
	if err := c.checkTarget(id, offset); err != nil {
		return packet.Header{}, c.reject(OpWrite, id, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics.incWriteCount()

	ack, err := c.exchangeHeader(ctx, packet.OpWrite, id)
	if err != nil {
		return packet.Header{}, c.fail(OpWrite, id, err)
	}

	body := packet.NewMemoryBody(id, offset, data).Seal(c.cfg.checksum)
	if err := c.link.Write(body.Bytes()); err != nil {
		return packet.Header{}, c.fail(OpWrite, id, err)
	}

	c.logger.Debug("chain: page written", "device", id.String(), "addr", packet.FormatAddress(offset))

	return ack, nil
}

func (c *Controller) checkTarget(id packet.BoardID, offset uint16) error {
	if id.IsBroadcast() {
		return ErrInvalidTarget
	}

	if c.cfg.memorySize > 0 && int(packet.AddressOf(offset))+packet.PayloadSize > c.cfg.memorySize {
		return fmt.Errorf("%w: offset %d, memory %d bytes", ErrAddressOutOfRange, offset, c.cfg.memorySize)
	}

	return nil
}

// begin drops input left over from earlier exchanges.
func (c *Controller) begin(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return c.link.Discard(ctx, 0)
}

// exchangeHeader sends a header addressed to id and waits for its ACK.
func (c *Controller) exchangeHeader(ctx context.Context, op packet.Operation, id packet.BoardID) (packet.Header, error) {
	if err := c.begin(ctx); err != nil {
		return packet.Header{}, err
	}

	if err := c.sendHeader(op, id); err != nil {
		return packet.Header{}, err
	}

	ack, err := c.readHeader(ctx)
	if err != nil {
		return packet.Header{}, err
	}

	if err := expectAck(ack, id); err != nil {
		return packet.Header{}, err
	}

	return ack, nil
}

func (c *Controller) sendHeader(op packet.Operation, target packet.BoardID) error {
	h := packet.NewHeader(op, target).Seal(c.cfg.checksum)
	return c.link.Write(h.Bytes())
}

func (c *Controller) readHeader(ctx context.Context) (packet.Header, error) {
	buf := make([]byte, packet.HeaderSize)
	if _, err := c.link.ReadFull(ctx, buf, c.cfg.replyTimeout); err != nil {
		return packet.Header{}, err
	}

	return c.decodeHeader(buf)
}

func (c *Controller) decodeHeader(buf []byte) (packet.Header, error) {
	h, err := packet.DecodeHeader(buf)
	if err != nil {
		return h, err
	}

	if err := h.Validate(); err != nil {
		return h, err
	}

	if err := h.Verify(c.cfg.checksum); err != nil {
		return h, err
	}

	if h.Op == packet.OpNack {
		c.metrics.incNackCount()
	}

	return h, nil
}

// readReplyBody reads the answer to a READ body: either a reply Body or a
// NACK header. Both start with a byte that tells them apart.
func (c *Controller) readReplyBody(ctx context.Context) (packet.Body, error) {
	buf := make([]byte, packet.BodySize)
	if _, err := c.link.ReadFull(ctx, buf[:packet.HeaderSize], c.cfg.replyTimeout); err != nil {
		return packet.Body{}, err
	}

	if !packet.IsBodyLead(buf[0]) {
		h, err := c.decodeHeader(buf[:packet.HeaderSize])
		if err != nil {
			return packet.Body{}, err
		}

		if h.Op == packet.OpNack {
			return packet.Body{}, fmt.Errorf("%w: device %s sent NACK", ErrAddressOutOfRange, h.Target)
		}

		return packet.Body{}, fmt.Errorf("%w: %s while waiting for a body", ErrUnexpectedReply, h.Op)
	}

	if _, err := c.link.ReadFull(ctx, buf[packet.HeaderSize:], c.cfg.replyTimeout); err != nil {
		return packet.Body{}, err
	}

	b, err := packet.DecodeBody(buf)
	if err != nil {
		return b, err
	}

	if err := b.Validate(); err != nil {
		return b, err
	}

	return b, b.Verify(c.cfg.checksum)
}

// fail records err, drains the line and wraps err into an OpError.
func (c *Controller) fail(op string, target packet.BoardID, err error) error {
	if !errors.Is(err, transport.ErrClosed) {
		c.drain()
	}

	return c.reject(op, target, err)
}

// reject records err and wraps it into an OpError without touching the line.
func (c *Controller) reject(op string, target packet.BoardID, err error) error {
	c.metrics.incErrorCount()
	if errors.Is(err, ErrTimeout) {
		c.metrics.incTimeoutCount()
	}

	c.logger.Warn("chain: operation failed", "op", op, "device", target.String(), "error", err)

	return &OpError{Op: op, Port: c.port, Target: target, Err: err}
}

// drain discards replies that may still arrive for the failed exchange.
// It uses its own context so a canceled caller still leaves a clean line.
func (c *Controller) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.replyTimeout+c.cfg.drainSilence)
	defer cancel()

	if err := c.link.Discard(ctx, c.cfg.drainSilence); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		c.logger.Debug("chain: drain failed", "error", err)
	}
}

func expectAck(h packet.Header, id packet.BoardID) error {
	switch {
	case h.Op == packet.OpNack:
		return fmt.Errorf("%w: device %s sent NACK", ErrAddressOutOfRange, h.Target)
	case h.Op != packet.OpAck:
		return fmt.Errorf("%w: %s instead of ACK", ErrUnexpectedReply, h.Op)
	case id.IsBroadcast() && h.Target.IsBroadcast():
		return fmt.Errorf("%w: ACK carries the broadcast id", ErrUnexpectedReply)
	case !id.IsBroadcast() && h.Target != id:
		return fmt.Errorf("%w: ACK from %s", ErrUnexpectedReply, h.Target)
	default:
		return nil
	}
}

func expectBody(b packet.Body, id packet.BoardID, offset uint16) error {
	switch {
	case b.Kind != packet.KindMemory:
		return fmt.Errorf("%w: %s body", ErrUnexpectedReply, b.Kind)
	case b.Target != id:
		return fmt.Errorf("%w: body from %s", ErrUnexpectedReply, b.Target)
	case b.AddressOffset != offset:
		return fmt.Errorf("%w: body for %s", ErrUnexpectedReply, packet.FormatAddress(b.AddressOffset))
	default:
		return nil
	}
}
