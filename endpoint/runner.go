package endpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mfkiwl/SRAM-Acquisition/internal/pool"
	"github.com/mfkiwl/SRAM-Acquisition/internal/task"
	"github.com/mfkiwl/SRAM-Acquisition/logger"
	"github.com/mfkiwl/SRAM-Acquisition/packet"
	"github.com/mfkiwl/SRAM-Acquisition/transport"
)

// chunkQueueSize is the number of received chunks buffered between the
// link readers and the dispatch loop.
const chunkQueueSize = 64

const readChunkSize = 1024

// chunk is a piece of the byte stream received on one link.
type chunk struct {
	from Direction
	data []byte
}

// assembler accumulates the bytes of one link into complete packets.
// Each link owns its own assembler, so uplink and downlink bytes never mix.
type assembler struct {
	buf  []byte
	last time.Time
}

func newAssembler() *assembler {
	return &assembler{buf: make([]byte, 0, 2*packet.BodySize)}
}

// push appends data and returns every packet completed by it.
func (a *assembler) push(data []byte, now time.Time) [][]byte {
	a.buf = append(a.buf, data...)
	a.last = now

	var frames [][]byte
	for len(a.buf) > 0 {
		size := packet.FrameSize(a.buf[0])
		if len(a.buf) < size {
			break
		}

		frames = append(frames, clone(a.buf[:size]))
		a.buf = append(a.buf[:0], a.buf[size:]...)
	}

	return frames
}

// expire drops a partial packet that has seen no bytes for timeout and
// returns the number of bytes dropped.
func (a *assembler) expire(now time.Time, timeout time.Duration) int {
	if len(a.buf) == 0 || now.Sub(a.last) < timeout {
		return 0
	}

	n := len(a.buf)
	a.buf = a.buf[:0]

	return n
}

// Runner drives a Machine from two links.
type Runner struct {
	machine *Machine
	links   [2]*transport.Link
	cfg     *Config
	logger  logger.Logger
}

// NewRunner wires m to its uplink and downlink ports. A nil downlink marks
// the last device of a chain.
func NewRunner(m *Machine, uplink, downlink transport.Port) *Runner {
	if downlink == nil {
		downlink = transport.Null()
	}

	l := m.logger

	return &Runner{
		machine: m,
		links: [2]*transport.Link{
			Uplink:   transport.NewLink(Uplink.String(), uplink, l),
			Downlink: transport.NewLink(Downlink.String(), downlink, l),
		},
		cfg:    m.cfg,
		logger: l,
	}
}

// Machine returns the driven state machine.
func (r *Runner) Machine() *Machine { return r.machine }

// Run dispatches packets until ctx is done or a link is closed. It returns
// nil when ctx is canceled.
func (r *Runner) Run(ctx context.Context) error {
	tm := task.NewManager(ctx, r.logger)
	defer func() {
		tm.Stop()
		tm.Wait()
	}()

	chunks := make(chan chunk, chunkQueueSize)
	readErrs := make(chan error, 2)

	for _, dir := range []Direction{Uplink, Downlink} {
		if err := tm.Start(dir.String()+"-reader", r.reader(dir, chunks, readErrs)); err != nil {
			return err
		}
	}

	asm := [2]*assembler{Uplink: newAssembler(), Downlink: newAssembler()}
	ticker := time.NewTicker(r.tickInterval())
	defer ticker.Stop()

	lastProgress := time.Now()
	r.machine.Arm()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-readErrs:
			return err

		case c := <-chunks:
			now := time.Now()
			for _, frame := range asm[c.from].push(c.data, now) {
				res := r.machine.Handle(c.from, frame)
				if err := r.execute(ctx, res.Actions); err != nil {
					if ctx.Err() != nil {
						return nil
					}

					return err
				}
				lastProgress = time.Now()
				r.machine.Arm()
			}

		case now := <-ticker.C:
			for dir, a := range asm {
				if n := a.expire(now, r.cfg.interByteTimeout); n > 0 {
					r.machine.metrics.incDropCount()
					r.logger.Debug("endpoint: partial packet discarded", "link", Direction(dir).String(), "len", n)
				}
			}

			if !r.machine.State().IsRest() && now.Sub(lastProgress) >= r.cfg.bodyTimeout {
				r.machine.Timeout()
				r.machine.Arm()
			}
		}
	}
}

func (r *Runner) reader(dir Direction, chunks chan<- chunk, errs chan<- error) task.Func {
	link := r.links[dir]
	buf := make([]byte, readChunkSize)

	return func(ctx context.Context) bool {
		n, err := link.ReadSome(ctx, buf, transport.DefaultPollInterval)
		if err != nil {
			if ctx.Err() == nil {
				errs <- fmt.Errorf("endpoint: %s read: %w", dir, err)
			}

			return false
		}

		if n == 0 {
			return true
		}

		select {
		case chunks <- chunk{from: dir, data: clone(buf[:n])}:
			return true
		case <-ctx.Done():
			return false
		}
	}
}

func (r *Runner) execute(ctx context.Context, actions []Action) error {
	for _, act := range actions {
		switch act.Kind {
		case ActionSettle:
			if err := pool.Sleep(ctx, act.Delay); err != nil {
				return err
			}

		case ActionSend:
			err := r.links[act.To].Write(act.Data)
			if err == nil {
				continue
			}

			if errors.Is(err, transport.ErrClosed) {
				return err
			}

			r.logger.Warn("endpoint: send failed", "link", act.To.String(), "error", err)
		}
	}

	return nil
}

func (r *Runner) tickInterval() time.Duration {
	d := min(r.cfg.interByteTimeout, r.cfg.bodyTimeout) / 4
	if d < time.Millisecond {
		d = time.Millisecond
	}

	return d
}
