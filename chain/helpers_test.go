package chain

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mfkiwl/SRAM-Acquisition/endpoint"
	"github.com/mfkiwl/SRAM-Acquisition/logger"
	"github.com/mfkiwl/SRAM-Acquisition/packet"
	"github.com/mfkiwl/SRAM-Acquisition/sim"
	"github.com/mfkiwl/SRAM-Acquisition/transport"
)

var (
	idA = packet.NewBoardID(0x1, 0x2, 0x3)
	idB = packet.NewBoardID(0x4, 0x5, 0x6)
)

const (
	testReplyTimeout = 300 * time.Millisecond
	testMemorySize   = 4 * packet.PayloadSize
)

func newTestLogger() logger.Logger {
	return logger.NewSlogWriter(io.Discard, logger.ErrorLevel, false)
}

func newTestConfig(t *testing.T, opts ...Option) *Config {
	t.Helper()

	base := []Option{
		WithReplyTimeout(testReplyTimeout),
		WithDrainSilence(10 * time.Millisecond),
		WithMemorySize(testMemorySize),
		WithLogger(newTestLogger()),
	}

	cfg, err := NewConfig(append(base, opts...)...)
	require.NoError(t, err)

	return cfg
}

// newTestChain starts a simulated chain and a controller attached to it.
func newTestChain(t *testing.T, ids []packet.BoardID, opts ...Option) (*Controller, *sim.Chain) {
	t.Helper()

	c, err := sim.NewChain(ids,
		endpoint.WithSettleDelay(time.Millisecond),
		endpoint.WithMemorySize(testMemorySize),
		endpoint.WithLogger(newTestLogger()),
	)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	ctrl, err := NewController("sim0", c.Host(), newTestConfig(t, opts...))
	require.NoError(t, err)

	return ctrl, c
}

// fakeDevice is the device end of a pipe driven directly by a test.
type fakeDevice struct {
	link *transport.Link
}

func newFakeDevice(t *testing.T, opts ...Option) (*Controller, *fakeDevice) {
	t.Helper()

	hostEnd, devEnd := transport.NewPipe()
	t.Cleanup(func() {
		_ = hostEnd.Close()
		_ = devEnd.Close()
	})

	ctrl, err := NewController("fake0", hostEnd, newTestConfig(t, opts...))
	require.NoError(t, err)

	return ctrl, &fakeDevice{link: transport.NewLink("device", devEnd, newTestLogger())}
}

func (d *fakeDevice) readHeader(t *testing.T) packet.Header {
	t.Helper()

	buf := make([]byte, packet.HeaderSize)
	_, err := d.link.ReadFull(context.Background(), buf, time.Second)
	require.NoError(t, err)

	h, err := packet.DecodeHeader(buf)
	require.NoError(t, err)

	return h
}

func (d *fakeDevice) readBody(t *testing.T) packet.Body {
	t.Helper()

	buf := make([]byte, packet.BodySize)
	_, err := d.link.ReadFull(context.Background(), buf, time.Second)
	require.NoError(t, err)

	b, err := packet.DecodeBody(buf)
	require.NoError(t, err)

	return b
}

func (d *fakeDevice) send(t *testing.T, data []byte) {
	t.Helper()
	require.NoError(t, d.link.Write(data))
}

func ackFrom(id packet.BoardID, hop uint8) []byte {
	return packet.Header{Op: packet.OpAck, HopCount: hop, Target: id}.Seal(packet.ChecksumSum8).Bytes()
}

func patternPayload(seed byte) packet.Payload {
	var p packet.Payload
	for i := range p {
		p[i] = seed ^ byte(i*7)
	}

	return p
}
