package transport

import (
	"io"
	"sync"
	"time"

	"github.com/mfkiwl/SRAM-Acquisition/internal/pool"
)

// pipeBuffer is one direction of an in-memory pipe. Writes never block.
type pipeBuffer struct {
	mu     sync.Mutex
	data   []byte
	ready  chan struct{}
	done   chan struct{}
	closed bool
}

func newPipeBuffer() *pipeBuffer {
	return &pipeBuffer{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

func (b *pipeBuffer) write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, io.ErrClosedPipe
	}

	b.data = append(b.data, p...)

	select {
	case b.ready <- struct{}{}:
	default:
	}

	return len(p), nil
}

func (b *pipeBuffer) read(p []byte, timeout time.Duration) (int, error) {
	var expired <-chan time.Time
	if timeout >= 0 {
		timer := pool.GetTimer(timeout)
		defer pool.PutTimer(timer)
		expired = timer.C
	}

	for {
		b.mu.Lock()
		if len(b.data) > 0 {
			n := copy(p, b.data)
			b.data = b.data[n:]
			if len(b.data) > 0 {
				select {
				case b.ready <- struct{}{}:
				default:
				}
			}
			b.mu.Unlock()

			return n, nil
		}
		closed := b.closed
		b.mu.Unlock()

		if closed {
			return 0, io.EOF
		}

		select {
		case <-b.ready:
		case <-b.done:
		case <-expired:
			return 0, nil
		}
	}
}

func (b *pipeBuffer) reset() {
	b.mu.Lock()
	b.data = nil
	b.mu.Unlock()
}

func (b *pipeBuffer) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.done)
	}
}

// pipeEnd is one side of a pipe: it reads from rx and writes to tx.
type pipeEnd struct {
	rx *pipeBuffer
	tx *pipeBuffer

	mu      sync.Mutex
	timeout time.Duration
}

// NewPipe returns the two ends of a buffered in-memory byte stream. Bytes
// written to one end are read from the other. Unlike net.Pipe, writes never
// wait for a reader, which matches a UART with a receive buffer.
func NewPipe() (Port, Port) {
	ab := newPipeBuffer()
	ba := newPipeBuffer()

	return &pipeEnd{rx: ba, tx: ab, timeout: NoTimeout}, &pipeEnd{rx: ab, tx: ba, timeout: NoTimeout}
}

func (e *pipeEnd) SetReadTimeout(t time.Duration) error {
	e.mu.Lock()
	e.timeout = t
	e.mu.Unlock()

	return nil
}

func (e *pipeEnd) Read(p []byte) (int, error) {
	e.mu.Lock()
	timeout := e.timeout
	e.mu.Unlock()

	return e.rx.read(p, timeout)
}

func (e *pipeEnd) Write(p []byte) (int, error) {
	return e.tx.write(p)
}

func (e *pipeEnd) ResetInputBuffer() error {
	e.rx.reset()
	return nil
}

// Close closes both directions, so the peer sees io.EOF once drained.
func (e *pipeEnd) Close() error {
	e.rx.close()
	e.tx.close()

	return nil
}

// nullPort accepts and drops every write and never yields data. It stands in
// for the open downlink of the last device of a chain.
type nullPort struct {
	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	timeout time.Duration
}

// Null returns a Port that discards writes and never has input.
func Null() Port {
	return &nullPort{done: make(chan struct{}), timeout: NoTimeout}
}

func (n *nullPort) SetReadTimeout(t time.Duration) error {
	n.mu.Lock()
	n.timeout = t
	n.mu.Unlock()

	return nil
}

func (n *nullPort) Read(_ []byte) (int, error) {
	n.mu.Lock()
	timeout := n.timeout
	n.mu.Unlock()

	if timeout < 0 {
		<-n.done
		return 0, io.EOF
	}

	timer := pool.GetTimer(timeout)
	defer pool.PutTimer(timer)

	select {
	case <-n.done:
		return 0, io.EOF
	case <-timer.C:
		return 0, nil
	}
}

func (n *nullPort) Write(p []byte) (int, error) {
	select {
	case <-n.done:
		return 0, io.ErrClosedPipe
	default:
		return len(p), nil
	}
}

func (n *nullPort) ResetInputBuffer() error { return nil }

func (n *nullPort) Close() error {
	n.once.Do(func() { close(n.done) })
	return nil
}
