package sim

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfkiwl/SRAM-Acquisition/endpoint"
	"github.com/mfkiwl/SRAM-Acquisition/logger"
	"github.com/mfkiwl/SRAM-Acquisition/packet"
	"github.com/mfkiwl/SRAM-Acquisition/transport"
)

func testOptions() []endpoint.Option {
	return []endpoint.Option{
		endpoint.WithSettleDelay(time.Millisecond),
		endpoint.WithLogger(logger.NewSlogWriter(io.Discard, logger.ErrorLevel, false)),
	}
}

func TestNewChain_Errors(t *testing.T) {
	_, err := NewChain(nil)
	require.ErrorIs(t, err, ErrEmptyChain)

	id := packet.NewBoardID(1, 2, 3)
	_, err = NewChain([]packet.BoardID{id, id}, testOptions()...)
	require.Error(t, err)

	_, err = NewChain([]packet.BoardID{packet.Broadcast}, testOptions()...)
	require.ErrorIs(t, err, endpoint.ErrBroadcastIdentity)
}

func TestChain_BroadcastPingClaimsInOrder(t *testing.T) {
	ids := GenerateIDs(7, 3)
	c, err := NewChain(ids, testOptions()...)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, ids, c.IDs())
	assert.Len(t, c.Machines(), 3)

	host := transport.NewLink("host", c.Host(), nil)
	ping := packet.Header{Op: packet.OpPing}.Seal(packet.ChecksumSum8)
	require.NoError(t, host.Write(ping.Bytes()))

	for i, id := range ids {
		buf := make([]byte, packet.HeaderSize)
		_, err := host.ReadFull(context.Background(), buf, time.Second)
		require.NoError(t, err)

		ack, err := packet.DecodeHeader(buf)
		require.NoError(t, err)
		assert.Equal(t, packet.OpAck, ack.Op)
		assert.Equal(t, uint8(i+1), ack.HopCount)
		assert.Equal(t, id, ack.Target)
	}
}

func TestGenerateIDs(t *testing.T) {
	ids := GenerateIDs(0, 13)

	seen := map[packet.BoardID]bool{}
	for _, id := range ids {
		assert.False(t, id.IsBroadcast())
		assert.False(t, seen[id])
		seen[id] = true
	}
	assert.Equal(t, ids, GenerateIDs(0, 13))
}
