package transport

import (
	"context"
	"net"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipe_WriteDoesNotBlock(t *testing.T) {
	a, b := NewPipe()
	defer a.Close()

	done := make(chan struct{})
	go func() {
		_, _ = a.Write(make([]byte, 4096))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("write blocked without a reader")
	}

	require.NoError(t, b.SetReadTimeout(100*time.Millisecond))
	buf := make([]byte, 8192)
	n, err := b.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4096, n)
}

func TestPipe_ReadTimeoutReturnsZero(t *testing.T) {
	a, b := NewPipe()
	defer a.Close()

	require.NoError(t, b.SetReadTimeout(20*time.Millisecond))
	n, err := b.Read(make([]byte, 1))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPipe_CloseDrainsThenEOF(t *testing.T) {
	a, b := NewPipe()
	_, err := a.Write([]byte{1, 2})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	buf := make([]byte, 4)
	n, err := b.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = b.Read(buf)
	require.Error(t, err)

	_, err = b.Write([]byte{1})
	require.Error(t, err)
}

func TestPipe_ResetInputBuffer(t *testing.T) {
	a, b := NewPipe()
	defer a.Close()

	_, _ = a.Write([]byte{1, 2, 3})
	require.NoError(t, b.ResetInputBuffer())

	require.NoError(t, b.SetReadTimeout(10*time.Millisecond))
	n, err := b.Read(make([]byte, 4))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLink_ReadFull_Success(t *testing.T) {
	a, b := newTestLinks(t)

	go func() {
		_ = a.Write([]byte{1, 2, 3})
		time.Sleep(10 * time.Millisecond)
		_ = a.Write([]byte{4, 5})
	}()

	buf := make([]byte, 5)
	n, err := b.ReadFull(context.Background(), buf, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, buf)
	assert.Equal(t, uint64(5), b.Stats().BytesRead)
	assert.Equal(t, uint64(5), a.Stats().BytesWritten)
}

func TestLink_ReadFull_Timeout(t *testing.T) {
	a, b := newTestLinks(t)
	mustWrite(t, a, []byte{1, 2})

	start := time.Now()
	n, err := b.ReadFull(context.Background(), make([]byte, 15), 80*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 2, n)
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.Equal(t, uint64(1), b.Stats().Timeouts)
}

func TestLink_ReadFull_ContextCanceled(t *testing.T) {
	_, b := newTestLinks(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := b.ReadFull(ctx, make([]byte, 1), 5*time.Second)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLink_ReadFull_Closed(t *testing.T) {
	a, b := newTestLinks(t)
	require.NoError(t, a.Close())

	_, err := b.ReadFull(context.Background(), make([]byte, 1), time.Second)
	require.ErrorIs(t, err, ErrClosed)
}

func TestLink_ReadSome(t *testing.T) {
	a, b := newTestLinks(t)

	n, err := b.ReadSome(context.Background(), make([]byte, 8), 20*time.Millisecond)
	require.NoError(t, err)
	assert.Zero(t, n)

	mustWrite(t, a, []byte{9, 9, 9})
	buf := make([]byte, 8)
	n, err = b.ReadSome(context.Background(), buf, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestLink_Discard(t *testing.T) {
	a, b := newTestLinks(t)
	mustWrite(t, a, []byte{0xEE, 0xEE})

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = a.Write([]byte{0xDD})
	}()

	require.NoError(t, b.Discard(context.Background(), 50*time.Millisecond))

	n, err := b.ReadSome(context.Background(), make([]byte, 4), 20*time.Millisecond)
	require.NoError(t, err)
	assert.Zero(t, n, "late stale bytes must be drained too")
}

func TestNull(t *testing.T) {
	p := Null()

	n, err := p.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, p.SetReadTimeout(10*time.Millisecond))
	n, err = p.Read(make([]byte, 1))
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, p.Close())
	_, err = p.Write([]byte{1})
	require.Error(t, err)
}

func TestFromConn(t *testing.T) {
	c1, c2 := net.Pipe()
	p := FromConn(c1)
	defer p.Close()
	defer c2.Close()

	require.NoError(t, p.SetReadTimeout(20*time.Millisecond))
	n, err := p.Read(make([]byte, 4))
	require.NoError(t, err, "timeout is reported as an empty read")
	assert.Zero(t, n)

	go func() { _, _ = c2.Write([]byte{7, 8}) }()

	require.NoError(t, p.SetReadTimeout(time.Second))
	buf := make([]byte, 4)
	n, err = p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{7, 8}, buf[:n])
}

func TestFilterPorts(t *testing.T) {
	re := regexp.MustCompile(DefaultPortPattern)

	ports, err := filterPorts([]string{"/dev/ttyUSB1", "/dev/ttyS0", "/dev/ttyUSB0", "COM3"}, re)
	require.NoError(t, err)
	assert.Equal(t, []string{"/dev/ttyUSB0", "/dev/ttyUSB1"}, ports)

	_, err = filterPorts([]string{"/dev/ttyS0"}, re)
	require.ErrorIs(t, err, ErrNoPorts)
}
