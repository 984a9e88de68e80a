package endpoint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfkiwl/SRAM-Acquisition/packet"
	"github.com/mfkiwl/SRAM-Acquisition/transport"
)

type runnerHarness struct {
	host *transport.Link
	next *transport.Link
	m    *Machine
	done chan error
}

func startRunner(t *testing.T, id packet.BoardID, opts ...Option) *runnerHarness {
	t.Helper()

	hostEnd, upEnd := transport.NewPipe()
	downEnd, nextEnd := transport.NewPipe()

	m := newTestMachine(t, id, opts...)
	r := NewRunner(m, upEnd, downEnd)
	require.Same(t, m, r.Machine())

	ctx, cancel := context.WithCancel(context.Background())
	h := &runnerHarness{
		host: transport.NewLink("host", hostEnd, newTestLogger()),
		next: transport.NewLink("next", nextEnd, newTestLogger()),
		m:    m,
		done: make(chan error, 1),
	}

	go func() { h.done <- r.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
			t.Error("runner did not stop")
		}
		_ = hostEnd.Close()
		_ = nextEnd.Close()
	})

	return h
}

func (h *runnerHarness) read(t *testing.T, l *transport.Link, n int) []byte {
	t.Helper()

	buf := make([]byte, n)
	_, err := l.ReadFull(context.Background(), buf, time.Second)
	require.NoError(t, err)

	return buf
}

func TestRunner_ClaimAndPassOn(t *testing.T) {
	h := startRunner(t, idA)

	require.NoError(t, h.host.Write(sealedHeader(packet.OpPing, 0, packet.Broadcast)))

	ack := decodeHeader(t, h.read(t, h.host, packet.HeaderSize))
	assert.Equal(t, packet.OpAck, ack.Op)
	assert.Equal(t, uint8(1), ack.HopCount)
	assert.Equal(t, idA, ack.Target)

	ping := decodeHeader(t, h.read(t, h.next, packet.HeaderSize))
	assert.Equal(t, packet.OpPing, ping.Op)
	assert.Equal(t, uint8(1), ping.HopCount)
	assert.True(t, ping.Target.IsBroadcast())
}

func TestRunner_SplitChunksAssemble(t *testing.T) {
	h := startRunner(t, idA)

	frame := sealedHeader(packet.OpPing, 0, idA)
	require.NoError(t, h.host.Write(frame[:4]))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, h.host.Write(frame[4:]))

	ack := decodeHeader(t, h.read(t, h.host, packet.HeaderSize))
	assert.Equal(t, packet.OpAck, ack.Op)
}

func TestRunner_PartialPacketDiscarded(t *testing.T) {
	h := startRunner(t, idA)

	require.NoError(t, h.host.Write([]byte{byte(packet.OpPing), 0, 0}))
	time.Sleep(150 * time.Millisecond)

	require.NoError(t, h.host.Write(sealedHeader(packet.OpPing, 0, idA)))
	ack := decodeHeader(t, h.read(t, h.host, packet.HeaderSize))
	assert.Equal(t, packet.OpAck, ack.Op)
	assert.GreaterOrEqual(t, h.m.Metrics().DropCount.Load(), uint64(1))
}

func TestRunner_RelaysDownlinkTraffic(t *testing.T) {
	h := startRunner(t, idA)

	ack := sealedHeader(packet.OpAck, 2, idB)
	require.NoError(t, h.next.Write(ack))

	assert.Equal(t, ack, h.read(t, h.host, packet.HeaderSize))
}

func TestRunner_BodyTimeoutReturnsToIdle(t *testing.T) {
	h := startRunner(t, idA)

	require.NoError(t, h.host.Write(sealedHeader(packet.OpRead, 0, idA)))
	_ = h.read(t, h.host, packet.HeaderSize)

	require.Eventually(t, func() bool {
		return h.m.Metrics().TimeoutCount.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, h.m.State().IsRest())
}

func TestRunner_ReadOwnMemory(t *testing.T) {
	h := startRunner(t, idA)
	data := patternPayload(42)
	require.NoError(t, h.m.WriteMemory(1, data))

	require.NoError(t, h.host.Write(sealedHeader(packet.OpRead, 0, idA)))
	_ = h.read(t, h.host, packet.HeaderSize)
	require.NoError(t, h.host.Write(sealedBody(idA, 1, packet.Payload{})))

	reply, err := packet.DecodeBody(h.read(t, h.host, packet.BodySize))
	require.NoError(t, err)
	assert.Equal(t, data, reply.Payload)
}

func TestRunner_LastDeviceWithoutDownlink(t *testing.T) {
	hostEnd, upEnd := transport.NewPipe()
	m := newTestMachine(t, idA)
	r := NewRunner(m, upEnd, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	host := transport.NewLink("host", hostEnd, newTestLogger())
	require.NoError(t, host.Write(sealedHeader(packet.OpPing, 0, packet.Broadcast)))

	buf := make([]byte, packet.HeaderSize)
	_, err := host.ReadFull(context.Background(), buf, time.Second)
	require.NoError(t, err)

	cancel()
	require.NoError(t, <-done)
}

func TestRunner_StopsWhenUplinkCloses(t *testing.T) {
	hostEnd, upEnd := transport.NewPipe()
	r := NewRunner(newTestMachine(t, idA), upEnd, nil)

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	require.NoError(t, hostEnd.Close())

	select {
	case err := <-done:
		require.ErrorIs(t, err, transport.ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop on closed uplink")
	}
}
