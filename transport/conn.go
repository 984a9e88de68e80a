package transport

import (
	"errors"
	"net"
	"os"
	"sync"
	"time"
)

// resetDrainTimeout bounds each read while ResetInputBuffer empties a conn.
const resetDrainTimeout = 5 * time.Millisecond

// connPort adapts a net.Conn, e.g. a serial-over-TCP bridge, to Port.
type connPort struct {
	conn net.Conn

	mu      sync.Mutex
	timeout time.Duration
}

// FromConn wraps conn as a Port.
func FromConn(conn net.Conn) Port {
	return &connPort{conn: conn, timeout: NoTimeout}
}

func (c *connPort) SetReadTimeout(t time.Duration) error {
	c.mu.Lock()
	c.timeout = t
	c.mu.Unlock()

	return nil
}

func (c *connPort) Read(p []byte) (int, error) {
	c.mu.Lock()
	timeout := c.timeout
	c.mu.Unlock()

	deadline := time.Time{}
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}

	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return 0, err
	}

	n, err := c.conn.Read(p)
	if err != nil && isTimeout(err) {
		return n, nil
	}

	return n, err
}

func (c *connPort) Write(p []byte) (int, error) {
	return c.conn.Write(p)
}

func (c *connPort) ResetInputBuffer() error {
	buf := make([]byte, 256)
	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(resetDrainTimeout)); err != nil {
			return err
		}

		n, err := c.conn.Read(buf)
		if err != nil {
			if isTimeout(err) {
				return nil
			}

			return err
		}

		if n == 0 {
			return nil
		}
	}
}

func (c *connPort) Close() error {
	return c.conn.Close()
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}
