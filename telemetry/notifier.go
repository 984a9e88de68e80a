package telemetry

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/mfkiwl/SRAM-Acquisition/internal/task"
	"github.com/mfkiwl/SRAM-Acquisition/logger"
)

// DefaultBufferSize is the number of events queued before Notify drops.
const DefaultBufferSize = 256

// Sink receives events from a Notifier, one at a time.
type Sink interface {
	Emit(e Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(e Event) error

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) error { return f(e) }

// Notifier fans events out to sinks from a background goroutine. Notify
// never blocks: when the queue is full the event is dropped and counted.
type Notifier struct {
	sinks   []Sink
	queue   chan Event
	tm      *task.Manager
	logger  logger.Logger
	dropped atomic.Uint64
	sent    atomic.Uint64

	closeOnce sync.Once
	closed    atomic.Bool
}

// NewNotifier starts a notifier delivering to sinks. bufferSize <= 0 uses
// DefaultBufferSize.
func NewNotifier(ctx context.Context, l logger.Logger, bufferSize int, sinks ...Sink) (*Notifier, error) {
	if l == nil {
		l = logger.GetLogger()
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	n := &Notifier{
		sinks:  sinks,
		queue:  make(chan Event, bufferSize),
		tm:     task.NewManager(ctx, l),
		logger: l,
	}

	if err := n.tm.Go("telemetry", n.loop); err != nil {
		return nil, err
	}

	return n, nil
}

// Notify queues e for delivery.
func (n *Notifier) Notify(e Event) {
	if n == nil || n.closed.Load() {
		return
	}

	select {
	case n.queue <- e:
	default:
		n.dropped.Add(1)
	}
}

// Dropped returns the number of events dropped because the queue was full.
func (n *Notifier) Dropped() uint64 { return n.dropped.Load() }

// Sent returns the number of events handed to the sinks.
func (n *Notifier) Sent() uint64 { return n.sent.Load() }

// Close delivers the queued events and stops the notifier.
func (n *Notifier) Close() {
	n.closeOnce.Do(func() {
		n.closed.Store(true)
		n.tm.Stop()
		n.tm.Wait()
	})
}

func (n *Notifier) loop(ctx context.Context) {
	for {
		select {
		case e := <-n.queue:
			n.deliver(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-n.queue:
					n.deliver(e)
				default:
					return
				}
			}
		}
	}
}

func (n *Notifier) deliver(e Event) {
	n.sent.Add(1)
	for _, s := range n.sinks {
		if err := s.Emit(e); err != nil {
			n.logger.Warn("telemetry: sink failed", "measurement", e.Measurement, "error", err)
		}
	}
}
