package endpoint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfkiwl/SRAM-Acquisition/packet"
)

func TestNewMachine_RejectsBroadcast(t *testing.T) {
	_, err := NewMachine(packet.Broadcast, nil)
	require.ErrorIs(t, err, ErrBroadcastIdentity)
}

func TestNewMachine_Defaults(t *testing.T) {
	m, err := NewMachine(idA, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultMemorySize/packet.PayloadSize, m.Pages())
	assert.Equal(t, StateIdle, m.State())
	assert.Equal(t, DefaultSettleDelay, m.cfg.SettleDelay())
}

func TestMachine_PingBroadcast_Claims(t *testing.T) {
	m := newTestMachine(t, idA)

	res := m.Handle(Uplink, sealedHeader(packet.OpPing, 0, packet.Broadcast))

	require.Len(t, res.Actions, 3)
	assert.Equal(t, ActionSend, res.Actions[0].Kind)
	assert.Equal(t, Uplink, res.Actions[0].To)
	assert.Equal(t, ActionSettle, res.Actions[1].Kind)
	assert.Equal(t, time.Millisecond, res.Actions[1].Delay)
	assert.Equal(t, ActionSend, res.Actions[2].Kind)
	assert.Equal(t, Downlink, res.Actions[2].To)

	ack := decodeHeader(t, res.Actions[0].Data)
	assert.Equal(t, packet.OpAck, ack.Op)
	assert.Equal(t, uint8(1), ack.HopCount)
	assert.Equal(t, idA, ack.Target)

	next := decodeHeader(t, res.Actions[2].Data)
	assert.Equal(t, packet.OpPing, next.Op)
	assert.Equal(t, uint8(1), next.HopCount)
	assert.True(t, next.Target.IsBroadcast())

	assert.Equal(t, StateIdle, res.Next)
	assert.Equal(t, uint64(1), m.Metrics().ClaimCount.Load())
}

func TestMachine_PingBroadcast_CarriesHop(t *testing.T) {
	m := newTestMachine(t, idB)

	res := m.Handle(Uplink, sealedHeader(packet.OpPing, 4, packet.Broadcast))

	out := sends(res)
	require.Len(t, out, 2)
	assert.Equal(t, uint8(5), decodeHeader(t, out[0].Data).HopCount)
	assert.Equal(t, uint8(5), decodeHeader(t, out[1].Data).HopCount)
}

func TestMachine_PingOwnID_Echoes(t *testing.T) {
	m := newTestMachine(t, idA)

	res := m.Handle(Uplink, sealedHeader(packet.OpPing, 0, idA))

	out := sends(res)
	require.Len(t, out, 1)
	assert.Equal(t, Uplink, out[0].To)

	ack := decodeHeader(t, out[0].Data)
	assert.Equal(t, packet.OpAck, ack.Op)
	assert.Equal(t, uint8(0), ack.HopCount, "hop count is untouched for addressed pings")
	assert.Equal(t, idA, ack.Target)
}

func TestMachine_PingOtherID_ForwardsVerbatim(t *testing.T) {
	var transitions []State
	m := newTestMachine(t, idA, WithStateChangeHandler(func(_, next State) {
		transitions = append(transitions, next)
	}))

	frame := sealedHeader(packet.OpPing, 0, idB)
	res := m.Handle(Uplink, frame)

	out := sends(res)
	require.Len(t, out, 1)
	assert.Equal(t, Downlink, out[0].To)
	assert.Equal(t, frame, out[0].Data)
	assert.Equal(t, []State{StateForwarding, StateIdle}, transitions)
}

func TestMachine_UplinkAckDropped(t *testing.T) {
	m := newTestMachine(t, idA)

	res := m.Handle(Uplink, sealedHeader(packet.OpAck, 1, idB))
	assert.Empty(t, res.Actions)

	res = m.Handle(Uplink, sealedHeader(packet.OpNack, 0, idB))
	assert.Empty(t, res.Actions)
	assert.Equal(t, uint64(2), m.Metrics().DropCount.Load())
}

func TestMachine_UplinkAckEndsWait(t *testing.T) {
	m := newTestMachine(t, idA)

	m.Handle(Uplink, sealedHeader(packet.OpWrite, 0, idA))
	require.Equal(t, StateAwaitingBody, m.State())

	res := m.Handle(Uplink, sealedHeader(packet.OpAck, 0, idA))
	assert.Empty(t, res.Actions)
	assert.Equal(t, StateIdle, res.Next)
}

func TestMachine_ChecksumMismatchDropped(t *testing.T) {
	m := newTestMachine(t, idA)

	frame := sealedHeader(packet.OpPing, 0, packet.Broadcast)
	frame[2]++

	res := m.Handle(Uplink, frame)
	assert.Empty(t, res.Actions)
	assert.Equal(t, uint64(1), m.Metrics().DropCount.Load())
}

func TestMachine_ChecksumNoneAcceptsAnyField(t *testing.T) {
	m := newTestMachine(t, idA, WithChecksum(packet.ChecksumNone))

	frame := packet.Header{Op: packet.OpPing, Checksum: 0x5A, Target: idA}.Bytes()
	res := m.Handle(Uplink, frame)
	require.Len(t, sends(res), 1)
}

func TestMachine_EmptyFrameDropped(t *testing.T) {
	m := newTestMachine(t, idA)

	m.Handle(Uplink, sealedHeader(packet.OpWrite, 0, idA))
	require.Equal(t, StateAwaitingBody, m.State())

	for _, from := range []Direction{Uplink, Downlink} {
		var res Result
		require.NotPanics(t, func() { res = m.Handle(from, nil) })
		assert.Empty(t, res.Actions)
		assert.Equal(t, StateAwaitingBody, res.Next)

		require.NotPanics(t, func() { res = m.Handle(from, []byte{}) })
		assert.Empty(t, res.Actions)
	}

	assert.Equal(t, uint64(4), m.Metrics().DropCount.Load())
}

func TestMachine_UnknownOperationDropped(t *testing.T) {
	m := newTestMachine(t, idA)

	frame := sealedHeader(packet.Operation(0x42), 0, idA)
	res := m.Handle(Uplink, frame)

	assert.Empty(t, res.Actions)
	assert.Equal(t, StateIdle, res.Next)
}

func TestMachine_WriteThenRead_OwnID(t *testing.T) {
	m := newTestMachine(t, idA)
	data := patternPayload(3)

	res := m.Handle(Uplink, sealedHeader(packet.OpWrite, 0, idA))
	require.Len(t, res.Actions, 2)
	assert.Equal(t, packet.OpAck, decodeHeader(t, res.Actions[0].Data).Op)
	assert.Equal(t, ActionSettle, res.Actions[1].Kind)
	assert.Equal(t, StateAwaitingBody, res.Next)

	res = m.Handle(Uplink, sealedBody(idA, 2, data))
	assert.Empty(t, res.Actions, "writes are not confirmed")
	assert.Equal(t, StateIdle, res.Next)

	page, err := m.ReadMemory(2)
	require.NoError(t, err)
	assert.Equal(t, data, page)

	m.Handle(Uplink, sealedHeader(packet.OpRead, 0, idA))
	res = m.Handle(Uplink, sealedBody(idA, 2, packet.Payload{}))

	out := sends(res)
	require.Len(t, out, 1)
	assert.Equal(t, Uplink, out[0].To)

	reply, err := packet.DecodeBody(out[0].Data)
	require.NoError(t, err)
	require.NoError(t, reply.Verify(packet.ChecksumSum8))
	assert.Equal(t, packet.KindMemory, reply.Kind)
	assert.Equal(t, idA, reply.Target)
	assert.Equal(t, uint16(2), reply.AddressOffset)
	assert.Equal(t, data, reply.Payload)
	assert.Equal(t, uint64(1), m.Metrics().MemoryReadCount.Load())
	assert.Equal(t, uint64(1), m.Metrics().MemoryWriteCount.Load())
}

func TestMachine_OutOfRangeOffset_Nacks(t *testing.T) {
	m := newTestMachine(t, idA)

	m.Handle(Uplink, sealedHeader(packet.OpWrite, 0, idA))
	res := m.Handle(Uplink, sealedBody(idA, 4, patternPayload(1)))

	out := sends(res)
	require.Len(t, out, 1)
	nack := decodeHeader(t, out[0].Data)
	assert.Equal(t, packet.OpNack, nack.Op)
	assert.Equal(t, idA, nack.Target)
	assert.Equal(t, StateIdle, res.Next)
	assert.Equal(t, uint64(1), m.Metrics().NackCount.Load())
}

func TestMachine_BodyTargetMismatch(t *testing.T) {
	m := newTestMachine(t, idA)

	m.Handle(Uplink, sealedHeader(packet.OpWrite, 0, idA))
	res := m.Handle(Uplink, sealedBody(idB, 0, patternPayload(1)))

	assert.Empty(t, res.Actions)
	assert.Equal(t, StateIdle, res.Next)

	page, err := m.ReadMemory(0)
	require.NoError(t, err)
	assert.Equal(t, packet.Payload{}, page)
}

func TestMachine_CorruptBodyKeepsWaiting(t *testing.T) {
	m := newTestMachine(t, idA)

	m.Handle(Uplink, sealedHeader(packet.OpWrite, 0, idA))
	frame := sealedBody(idA, 0, patternPayload(1))
	frame[200] ^= 0x80

	res := m.Handle(Uplink, frame)
	assert.Empty(t, res.Actions)
	assert.Equal(t, StateAwaitingBody, res.Next)
}

func TestMachine_BodyWithoutHeaderDropped(t *testing.T) {
	m := newTestMachine(t, idA)

	res := m.Handle(Uplink, sealedBody(idA, 0, patternPayload(1)))
	assert.Empty(t, res.Actions)
	assert.Equal(t, uint64(1), m.Metrics().DropCount.Load())
}

func TestMachine_ReservedKinds(t *testing.T) {
	var seen []State
	m := newTestMachine(t, idA, WithStateChangeHandler(func(_, next State) { seen = append(seen, next) }))

	m.Handle(Uplink, sealedHeader(packet.OpRead, 0, idA))
	sensors := packet.Body{Kind: packet.KindSensors, Target: idA}.Seal(packet.ChecksumSum8).Bytes()
	res := m.Handle(Uplink, sensors)
	assert.Empty(t, res.Actions)

	m.Handle(Uplink, sealedHeader(packet.OpRead, 0, idA))
	code := packet.Body{Kind: packet.KindCode, Target: idA}.Seal(packet.ChecksumSum8).Bytes()
	res = m.Handle(Uplink, code)
	assert.Empty(t, res.Actions)

	assert.Contains(t, seen, StateAwaitingSensorData)
	assert.Contains(t, seen, StateExecuting)
	assert.Equal(t, StateIdle, m.State())
}

func TestMachine_ExecOwnID(t *testing.T) {
	m := newTestMachine(t, idA)

	res := m.Handle(Uplink, sealedHeader(packet.OpExec, 0, idA))
	assert.Empty(t, res.Actions)
	assert.Equal(t, StateIdle, res.Next)
}

func TestMachine_RelayRead(t *testing.T) {
	m := newTestMachine(t, idA)

	header := sealedHeader(packet.OpRead, 0, idB)
	res := m.Handle(Uplink, header)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, Downlink, res.Actions[0].To)
	assert.Equal(t, header, res.Actions[0].Data)
	assert.Equal(t, StateRelaying, res.Next)

	ack := sealedHeader(packet.OpAck, 0, idB)
	res = m.Handle(Downlink, ack)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, Uplink, res.Actions[0].To)
	assert.Equal(t, ack, res.Actions[0].Data)
	assert.Equal(t, StateRelaying, res.Next)

	request := sealedBody(idB, 1, packet.Payload{})
	res = m.Handle(Uplink, request)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, Downlink, res.Actions[0].To)
	assert.Equal(t, request, res.Actions[0].Data)
	assert.Equal(t, StateRelaying, res.Next)

	reply := sealedBody(idB, 1, patternPayload(9))
	res = m.Handle(Downlink, reply)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, Uplink, res.Actions[0].To)
	assert.Equal(t, reply, res.Actions[0].Data)
	assert.Equal(t, StateIdle, res.Next)
}

func TestMachine_RelayWrite_EndsAfterBody(t *testing.T) {
	m := newTestMachine(t, idA)

	m.Handle(Uplink, sealedHeader(packet.OpWrite, 0, idB))
	m.Handle(Downlink, sealedHeader(packet.OpAck, 0, idB))

	res := m.Handle(Uplink, sealedBody(idB, 0, patternPayload(1)))
	require.Len(t, res.Actions, 1)
	assert.Equal(t, Downlink, res.Actions[0].To)
	assert.Equal(t, StateIdle, res.Next)

	page, err := m.ReadMemory(0)
	require.NoError(t, err)
	assert.Equal(t, packet.Payload{}, page, "relayed writes never touch local memory")
}

func TestMachine_RelayNackEndsExchange(t *testing.T) {
	m := newTestMachine(t, idA)

	m.Handle(Uplink, sealedHeader(packet.OpRead, 0, idB))
	m.Handle(Downlink, sealedHeader(packet.OpAck, 0, idB))
	m.Handle(Uplink, sealedBody(idB, 99, packet.Payload{}))

	res := m.Handle(Downlink, sealedHeader(packet.OpNack, 0, idB))
	require.Len(t, res.Actions, 1)
	assert.Equal(t, Uplink, res.Actions[0].To)
	assert.Equal(t, StateIdle, res.Next)
}

func TestMachine_RelayBodyForOtherTargetDropped(t *testing.T) {
	m := newTestMachine(t, idA)

	m.Handle(Uplink, sealedHeader(packet.OpWrite, 0, idB))
	m.Handle(Downlink, sealedHeader(packet.OpAck, 0, idB))

	res := m.Handle(Uplink, sealedBody(idC, 0, packet.Payload{}))
	assert.Empty(t, res.Actions)
	assert.Equal(t, StateRelaying, res.Next)
}

func TestMachine_DownlinkAlwaysRelayed(t *testing.T) {
	m := newTestMachine(t, idA)

	ack := sealedHeader(packet.OpAck, 2, idB)
	res := m.Handle(Downlink, ack)

	require.Len(t, res.Actions, 1)
	assert.Equal(t, Uplink, res.Actions[0].To)
	assert.Equal(t, ack, res.Actions[0].Data)
	assert.Equal(t, uint64(1), m.Metrics().RelayCount.Load())
}

func TestMachine_NewHeaderAbandonsExchange(t *testing.T) {
	m := newTestMachine(t, idA)

	m.Handle(Uplink, sealedHeader(packet.OpRead, 0, idB))
	require.Equal(t, StateRelaying, m.State())

	res := m.Handle(Uplink, sealedHeader(packet.OpPing, 0, idA))
	require.Len(t, sends(res), 1)
	assert.Equal(t, StateIdle, res.Next)
}

func TestMachine_Timeout(t *testing.T) {
	m := newTestMachine(t, idA)

	m.Handle(Uplink, sealedHeader(packet.OpRead, 0, idA))
	require.Equal(t, StateAwaitingBody, m.State())

	res := m.Timeout()
	assert.Equal(t, StateIdle, res.Next)
	assert.Equal(t, uint64(1), m.Metrics().TimeoutCount.Load())

	m.Timeout()
	assert.Equal(t, uint64(1), m.Metrics().TimeoutCount.Load(), "timeout at rest is a no-op")
}

func TestMachine_ArmTransitions(t *testing.T) {
	m := newTestMachine(t, idA)

	m.Arm()
	assert.Equal(t, StateAwaitingHeader, m.State())
	assert.True(t, m.State().IsRest())

	m.Handle(Uplink, sealedHeader(packet.OpPing, 0, idB))
	assert.Equal(t, StateIdle, m.State())
}

func TestMachine_MemoryBounds(t *testing.T) {
	m := newTestMachine(t, idA)

	require.NoError(t, m.WriteMemory(3, patternPayload(1)))
	require.ErrorIs(t, m.WriteMemory(4, patternPayload(1)), ErrAddressOutOfRange)

	_, err := m.ReadMemory(4)
	require.ErrorIs(t, err, ErrAddressOutOfRange)
}

func TestConfig_Validation(t *testing.T) {
	_, err := NewConfig(WithMemorySize(1000))
	require.Error(t, err)

	_, err = NewConfig(WithSettleDelay(-time.Second))
	require.Error(t, err)

	_, err = NewConfig(WithBodyTimeout(time.Microsecond))
	require.Error(t, err)

	_, err = NewConfig(WithInterByteTimeout(time.Hour))
	require.Error(t, err)

	cfg, err := NewConfig(WithSettleDelay(0), WithMemorySize(packet.PayloadSize), WithLogger(nil))
	require.NoError(t, err)
	assert.Zero(t, cfg.SettleDelay())
	assert.NotNil(t, cfg.Logger())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "relaying", StateRelaying.String())
	assert.Equal(t, "awaiting-sensor-data", StateAwaitingSensorData.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.Equal(t, "downlink", Downlink.String())
}
