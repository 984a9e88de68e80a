package endpoint

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mfkiwl/SRAM-Acquisition/logger"
	"github.com/mfkiwl/SRAM-Acquisition/packet"
)

var (
	// ErrBroadcastIdentity indicates a device configured with the reserved
	// all-zero id.
	ErrBroadcastIdentity = errors.New("endpoint: device id must not be the broadcast id")

	// ErrAddressOutOfRange indicates an offset beyond the device memory.
	ErrAddressOutOfRange = errors.New("endpoint: address out of range")
)

// Direction identifies one of the two links of a device.
type Direction uint8

const (
	// Uplink faces the host or the previous device.
	Uplink Direction = iota
	// Downlink faces the next device.
	Downlink
)

func (d Direction) String() string {
	if d == Uplink {
		return "uplink"
	}

	return "downlink"
}

// ActionKind is the kind of an Action.
type ActionKind uint8

const (
	// ActionSend writes Data to the link To.
	ActionSend ActionKind = iota
	// ActionSettle pauses for Delay.
	ActionSettle
)

// Action is one side effect requested by the machine, executed in order.
type Action struct {
	Kind  ActionKind
	To    Direction
	Data  []byte
	Delay time.Duration
}

func sendAction(to Direction, data []byte) Action {
	return Action{Kind: ActionSend, To: to, Data: data}
}

func settleAction(d time.Duration) Action {
	return Action{Kind: ActionSettle, Delay: d}
}

// Result is the outcome of feeding one packet to a Machine.
type Result struct {
	// Actions lists the packets to send and delays to observe, in order.
	Actions []Action
	// Next is the state after the transition.
	Next State
}

// relay describes the exchange passing through the device while in
// StateRelaying.
type relay struct {
	target packet.BoardID
	op     packet.Operation
	phase  relayPhase
}

// Machine is the receive/dispatch state machine of one device.
//
// Handle and Timeout must be called from a single goroutine. State, Metrics
// and the memory accessors are safe for concurrent use.
type Machine struct {
	id     packet.BoardID
	cfg    *Config
	logger logger.Logger

	state   atomic.Uint32
	pending packet.Header
	relay   relay

	memMu  sync.RWMutex
	memory []byte

	metrics Metrics
}

// NewMachine creates the state machine of the device id. A nil cfg uses the
// defaults.
func NewMachine(id packet.BoardID, cfg *Config) (*Machine, error) {
	if id.IsBroadcast() {
		return nil, ErrBroadcastIdentity
	}

	if cfg == nil {
		var err error
		if cfg, err = NewConfig(); err != nil {
			return nil, err
		}
	}

	return &Machine{
		id:     id,
		cfg:    cfg,
		logger: cfg.logger.With("device", id.String()),
		memory: make([]byte, cfg.memorySize),
	}, nil
}

// ID returns the device id.
func (m *Machine) ID() packet.BoardID { return m.id }

// State returns the current state.
func (m *Machine) State() State { return State(m.state.Load()) }

// Metrics returns the endpoint counters.
func (m *Machine) Metrics() *Metrics { return &m.metrics }

// Pages returns the number of addressable payload-sized pages.
func (m *Machine) Pages() int { return len(m.memory) / packet.PayloadSize }

// ReadMemory returns the page at offset.
func (m *Machine) ReadMemory(offset uint16) (packet.Payload, error) {
	var page packet.Payload

	start, err := m.pageStart(offset)
	if err != nil {
		return page, err
	}

	m.memMu.RLock()
	copy(page[:], m.memory[start:])
	m.memMu.RUnlock()

	return page, nil
}

// WriteMemory stores data into the page at offset.
func (m *Machine) WriteMemory(offset uint16, data packet.Payload) error {
	start, err := m.pageStart(offset)
	if err != nil {
		return err
	}

	m.memMu.Lock()
	copy(m.memory[start:start+packet.PayloadSize], data[:])
	m.memMu.Unlock()

	return nil
}

func (m *Machine) pageStart(offset uint16) (int, error) {
	start := int(packet.AddressOf(offset))
	if start+packet.PayloadSize > len(m.memory) {
		return 0, fmt.Errorf("%w: offset %d, %d pages", ErrAddressOutOfRange, offset, m.Pages())
	}

	return start, nil
}

// Arm re-arms header reception after an exchange completed.
func (m *Machine) Arm() {
	if m.State() == StateIdle {
		m.setState(StateAwaitingHeader)
	}
}

// Timeout abandons the exchange in progress, if any.
func (m *Machine) Timeout() Result {
	if st := m.State(); !st.IsRest() {
		m.metrics.incTimeoutCount()
		m.logger.Debug("endpoint: exchange timed out", "state", st.String())
		m.setState(StateIdle)
	}

	return Result{Next: m.State()}
}

// Handle consumes one complete packet received from the given link.
// frame must hold exactly one header or one body; anything else is dropped.
func (m *Machine) Handle(from Direction, frame []byte) Result {
	if len(frame) == 0 {
		m.drop("empty frame", nil)
		return Result{Next: m.State()}
	}

	var actions []Action

	switch {
	case from == Downlink:
		actions = m.handleDownlink(frame)
	case packet.IsBodyLead(frame[0]):
		actions = m.handleBody(frame)
	default:
		actions = m.handleHeader(frame)
	}

	return Result{Actions: actions, Next: m.State()}
}

// handleDownlink relays every packet from the next device uplink and tracks
// the progress of a relayed exchange.
func (m *Machine) handleDownlink(frame []byte) []Action {
	m.metrics.incRelayCount()
	actions := []Action{sendAction(Uplink, clone(frame))}

	if m.State() != StateRelaying {
		return actions
	}

	switch len(frame) {
	case packet.HeaderSize:
		h, err := packet.DecodeHeader(frame)
		if err != nil {
			return actions
		}

		switch {
		case h.Op == packet.OpAck && m.relay.phase == relayAwaitAck:
			m.relay.phase = relayAwaitBody
		case h.Op == packet.OpNack:
			m.setState(StateIdle)
		}

	case packet.BodySize:
		if m.relay.phase == relayAwaitReply {
			m.setState(StateIdle)
		}
	}

	return actions
}

func (m *Machine) handleHeader(frame []byte) []Action {
	h, err := packet.DecodeHeader(frame)
	if err == nil {
		err = h.Validate()
	}
	if err == nil {
		err = h.Verify(m.cfg.checksum)
	}
	if err != nil {
		m.drop("header rejected", err)
		return nil
	}

	if h.Op == packet.OpAck || h.Op == packet.OpNack {
		// ACK and NACK only travel toward the host. One arriving from it is
		// never forwarded but still ends any wait.
		m.drop("uplink "+h.Op.String(), nil)
		m.setState(StateIdle)
		return nil
	}

	if st := m.State(); !st.IsRest() {
		m.logger.Debug("endpoint: new header abandons exchange", "state", st.String(), "op", h.Op.String())
		m.setState(StateIdle)
	}

	switch h.Op {
	case packet.OpPing:
		return m.handlePing(h, frame)
	case packet.OpRead, packet.OpWrite:
		return m.handleAddressed(h, frame)
	default:
		if h.Target == m.id {
			m.setState(StateExecuting)
			m.setState(StateIdle)

			return nil
		}

		return m.forward(frame, StateIdle)
	}
}

func (m *Machine) handlePing(h packet.Header, frame []byte) []Action {
	switch {
	case h.Target.IsBroadcast():
		hop := h.HopCount + 1
		m.metrics.incClaimCount()
		m.metrics.incAckCount()
		m.logger.Debug("endpoint: claimed broadcast ping", "hop", hop)

		return []Action{
			sendAction(Uplink, m.header(packet.OpAck, hop, m.id)),
			settleAction(m.cfg.settleDelay),
			sendAction(Downlink, m.header(packet.OpPing, hop, packet.Broadcast)),
		}

	case h.Target == m.id:
		m.metrics.incAckCount()
		return []Action{sendAction(Uplink, m.header(packet.OpAck, h.HopCount, m.id))}

	default:
		return m.forward(frame, StateIdle)
	}
}

func (m *Machine) handleAddressed(h packet.Header, frame []byte) []Action {
	switch {
	case h.Target == m.id:
		m.metrics.incAckCount()
		m.pending = h
		m.setState(StateAwaitingBody)

		return []Action{
			sendAction(Uplink, m.header(packet.OpAck, h.HopCount, m.id)),
			settleAction(m.cfg.settleDelay),
		}

	case h.Target.IsBroadcast():
		m.drop(h.Op.String()+" to broadcast id", nil)
		return nil

	default:
		m.relay = relay{target: h.Target, op: h.Op, phase: relayAwaitAck}
		return m.forward(frame, StateRelaying)
	}
}

func (m *Machine) handleBody(frame []byte) []Action {
	b, err := packet.DecodeBody(frame)
	if err == nil {
		err = b.Validate()
	}
	if err == nil {
		err = b.Verify(m.cfg.checksum)
	}
	if err != nil {
		m.drop("body rejected", err)
		return nil
	}

	switch m.State() {
	case StateAwaitingBody:
		return m.handleOwnBody(b)

	case StateRelaying:
		if m.relay.phase != relayAwaitBody || b.Target != m.relay.target {
			m.drop("unexpected body while relaying", nil)
			return nil
		}

		actions := []Action{sendAction(Downlink, clone(frame))}
		m.metrics.incForwardCount()

		if m.relay.op == packet.OpRead {
			m.relay.phase = relayAwaitReply
		} else {
			m.setState(StateIdle)
		}

		return actions

	default:
		m.drop("body without header", nil)
		return nil
	}
}

func (m *Machine) handleOwnBody(b packet.Body) []Action {
	if b.Target != m.id {
		m.drop("body target mismatch", nil)
		m.setState(StateIdle)

		return nil
	}

	switch b.Kind {
	case packet.KindSensors:
		m.setState(StateAwaitingSensorData)
		m.setState(StateIdle)

		return nil

	case packet.KindCode:
		m.setState(StateExecuting)
		m.setState(StateIdle)

		return nil
	}

	defer m.setState(StateIdle)

	if m.pending.Op == packet.OpWrite {
		if err := m.WriteMemory(b.AddressOffset, b.Payload); err != nil {
			return m.nack(err)
		}
		m.metrics.incMemoryWriteCount()
		m.logger.Debug("endpoint: page written", "addr", packet.FormatAddress(b.AddressOffset))

		return nil
	}

	page, err := m.ReadMemory(b.AddressOffset)
	if err != nil {
		return m.nack(err)
	}
	m.metrics.incMemoryReadCount()

	reply := packet.NewMemoryBody(m.id, b.AddressOffset, page).Seal(m.cfg.checksum)

	return []Action{sendAction(Uplink, reply.Bytes())}
}

func (m *Machine) nack(err error) []Action {
	m.metrics.incNackCount()
	m.logger.Debug("endpoint: nack", "error", err)

	return []Action{sendAction(Uplink, m.header(packet.OpNack, 0, m.id))}
}

// forward passes frame downlink unchanged and settles in next.
func (m *Machine) forward(frame []byte, next State) []Action {
	m.setState(StateForwarding)
	m.metrics.incForwardCount()
	m.setState(next)

	return []Action{sendAction(Downlink, clone(frame))}
}

func (m *Machine) header(op packet.Operation, hop uint8, target packet.BoardID) []byte {
	h := packet.Header{Op: op, HopCount: hop, Target: target}
	return h.Seal(m.cfg.checksum).Bytes()
}

func (m *Machine) drop(reason string, err error) {
	m.metrics.incDropCount()
	if err != nil {
		m.logger.Debug("endpoint: packet dropped", "reason", reason, "error", err)
	} else {
		m.logger.Debug("endpoint: packet dropped", "reason", reason)
	}
}

func (m *Machine) setState(next State) {
	prev := State(m.state.Swap(uint32(next)))
	if prev == next {
		return
	}

	for _, h := range m.cfg.stateHandlers {
		h(prev, next)
	}
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)

	return out
}
