package endpoint

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mfkiwl/SRAM-Acquisition/logger"
	"github.com/mfkiwl/SRAM-Acquisition/packet"
)

var (
	idA = packet.NewBoardID(0x1, 0x2, 0x3)
	idB = packet.NewBoardID(0x4, 0x5, 0x6)
	idC = packet.NewBoardID(0x7, 0x8, 0x9)
)

func newTestLogger() logger.Logger {
	return logger.NewSlogWriter(io.Discard, logger.ErrorLevel, false)
}

func newTestConfig(t *testing.T, opts ...Option) *Config {
	t.Helper()

	base := []Option{
		WithSettleDelay(time.Millisecond),
		WithBodyTimeout(200 * time.Millisecond),
		WithInterByteTimeout(50 * time.Millisecond),
		WithMemorySize(4 * packet.PayloadSize),
		WithLogger(newTestLogger()),
	}

	cfg, err := NewConfig(append(base, opts...)...)
	require.NoError(t, err)

	return cfg
}

func newTestMachine(t *testing.T, id packet.BoardID, opts ...Option) *Machine {
	t.Helper()

	m, err := NewMachine(id, newTestConfig(t, opts...))
	require.NoError(t, err)

	return m
}

func sealedHeader(op packet.Operation, hop uint8, target packet.BoardID) []byte {
	return packet.Header{Op: op, HopCount: hop, Target: target}.Seal(packet.ChecksumSum8).Bytes()
}

func sealedBody(target packet.BoardID, offset uint16, data packet.Payload) []byte {
	return packet.NewMemoryBody(target, offset, data).Seal(packet.ChecksumSum8).Bytes()
}

func patternPayload(seed byte) packet.Payload {
	var p packet.Payload
	for i := range p {
		p[i] = seed + byte(i)
	}

	return p
}

// sends returns the Send actions of res, in order.
func sends(res Result) []Action {
	var out []Action
	for _, a := range res.Actions {
		if a.Kind == ActionSend {
			out = append(out, a)
		}
	}

	return out
}

func decodeHeader(t *testing.T, data []byte) packet.Header {
	t.Helper()

	h, err := packet.DecodeHeader(data)
	require.NoError(t, err)
	require.NoError(t, h.Verify(packet.ChecksumSum8))

	return h
}
