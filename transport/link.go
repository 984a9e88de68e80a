package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/mfkiwl/SRAM-Acquisition/logger"
)

// DefaultPollInterval bounds a single blocking Read, so context cancellation
// is noticed within this interval.
const DefaultPollInterval = 50 * time.Millisecond

// LinkStats holds byte counters of a Link.
type LinkStats struct {
	BytesRead    uint64 `json:"bytes_read"`
	BytesWritten uint64 `json:"bytes_written"`
	Timeouts     uint64 `json:"timeouts"`
}

// Link wraps a Port with deadline-based read helpers.
//
// A Link is not goroutine-safe for concurrent reads. One reader and one
// writer may run at the same time.
type Link struct {
	name   string
	port   Port
	poll   time.Duration
	logger logger.Logger

	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64
	timeouts     atomic.Uint64
}

// NewLink wraps port. name identifies the link in logs and errors.
func NewLink(name string, port Port, l logger.Logger) *Link {
	if l == nil {
		l = logger.GetLogger()
	}

	return &Link{
		name:   name,
		port:   port,
		poll:   DefaultPollInterval,
		logger: l.With("link", name),
	}
}

// Name returns the link name.
func (l *Link) Name() string {
	return l.name
}

// Port returns the wrapped port.
func (l *Link) Port() Port {
	return l.port
}

// Stats returns a snapshot of the byte counters.
func (l *Link) Stats() LinkStats {
	return LinkStats{
		BytesRead:    l.bytesRead.Load(),
		BytesWritten: l.bytesWritten.Load(),
		Timeouts:     l.timeouts.Load(),
	}
}

// Write writes all of data.
func (l *Link) Write(data []byte) error {
	for written := 0; written < len(data); {
		n, err := l.port.Write(data[written:])
		written += n
		l.bytesWritten.Add(uint64(n))

		if err != nil {
			return l.wrapErr(err)
		}
	}

	l.logger.Debug("tx", "len", len(data))

	return nil
}

// ReadFull reads exactly len(buf) bytes. The whole read must complete
// within timeout, otherwise ErrTimeout is returned together with the bytes
// already read.
func (l *Link) ReadFull(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)

	read := 0
	for read < len(buf) {
		if err := ctx.Err(); err != nil {
			return read, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			l.timeouts.Add(1)
			return read, fmt.Errorf("%w: %s: got %d of %d bytes after %s", ErrTimeout, l.name, read, len(buf), timeout)
		}

		n, err := l.readOnce(buf[read:], min(remaining, l.poll))
		read += n

		if err != nil {
			return read, err
		}
	}

	l.logger.Debug("rx", "len", read)

	return read, nil
}

// ReadSome waits up to timeout for at least one byte and returns what is
// available. It returns (0, nil) if nothing arrived in time.
func (l *Link) ReadSome(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)

	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, nil
		}

		n, err := l.readOnce(buf, min(remaining, l.poll))
		if n > 0 || err != nil {
			return n, err
		}
	}
}

// Discard drops buffered input and then reads until the line has been
// silent for the given duration, so stale bytes from an earlier exchange
// cannot be taken for a reply.
func (l *Link) Discard(ctx context.Context, silence time.Duration) error {
	if err := l.port.ResetInputBuffer(); err != nil {
		return l.wrapErr(err)
	}

	if silence <= 0 {
		return nil
	}

	buf := make([]byte, 256)
	dropped := 0
	for {
		n, err := l.ReadSome(ctx, buf, silence)
		if err != nil {
			return err
		}

		if n == 0 {
			break
		}
		dropped += n
	}

	if dropped > 0 {
		l.logger.Debug("discarded stale input", "len", dropped)
	}

	return nil
}

// Close closes the underlying port.
func (l *Link) Close() error {
	return l.port.Close()
}

func (l *Link) readOnce(buf []byte, timeout time.Duration) (int, error) {
	if err := l.port.SetReadTimeout(timeout); err != nil {
		return 0, l.wrapErr(err)
	}

	n, err := l.port.Read(buf)
	l.bytesRead.Add(uint64(n))

	if err != nil {
		return n, l.wrapErr(err)
	}

	return n, nil
}

func (l *Link) wrapErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
		return fmt.Errorf("%w: %s: %w", ErrClosed, l.name, err)
	}

	return fmt.Errorf("transport: %s: %w", l.name, err)
}
