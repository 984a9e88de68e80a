package station

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mfkiwl/SRAM-Acquisition/chain"
	"github.com/mfkiwl/SRAM-Acquisition/endpoint"
	"github.com/mfkiwl/SRAM-Acquisition/logger"
	"github.com/mfkiwl/SRAM-Acquisition/packet"
	"github.com/mfkiwl/SRAM-Acquisition/sim"
	"github.com/mfkiwl/SRAM-Acquisition/telemetry"
)

const testMemorySize = 4 * packet.PayloadSize

var (
	idA = packet.NewBoardID(0xA, 0x1, 0x1)
	idB = packet.NewBoardID(0xA, 0x2, 0x2)
	idC = packet.NewBoardID(0xC, 0x3, 0x3)
)

func newTestLogger() logger.Logger {
	return logger.NewSlogWriter(io.Discard, logger.ErrorLevel, false)
}

// recorder adapts telemetry.Recorder to Events without the async notifier.
type recorder struct {
	*telemetry.Recorder
}

func (r recorder) Notify(e telemetry.Event) { _ = r.Emit(e) }

func (r recorder) measurements(name string) []telemetry.Event {
	var out []telemetry.Event
	for _, e := range r.Events() {
		if e.Measurement == name {
			out = append(out, e)
		}
	}

	return out
}

func newTestStation(t *testing.T, opts ...Option) (*Station, recorder) {
	t.Helper()

	cfg, err := chain.NewConfig(
		chain.WithReplyTimeout(300*time.Millisecond),
		chain.WithDrainSilence(10*time.Millisecond),
		chain.WithMemorySize(testMemorySize),
		chain.WithDevicesPerChain(2),
		chain.WithLogger(newTestLogger()),
	)
	require.NoError(t, err)

	rec := recorder{telemetry.NewRecorder()}
	base := []Option{WithChainConfig(cfg), WithEvents(rec), WithLogger(newTestLogger())}

	s, err := New(context.Background(), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s, rec
}

// attachChain adds a simulated chain of ids to s under port.
func attachChain(t *testing.T, s *Station, port string, ids ...packet.BoardID) {
	t.Helper()

	c, err := sim.NewChain(ids,
		endpoint.WithSettleDelay(time.Millisecond),
		endpoint.WithMemorySize(testMemorySize),
		endpoint.WithLogger(newTestLogger()),
	)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	require.NoError(t, s.AddPort(port, c.Host()))
}

func patternPayload(seed byte) packet.Payload {
	var p packet.Payload
	for i := range p {
		p[i] = seed + byte(i)
	}

	return p
}
