package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/mfkiwl/SRAM-Acquisition/internal/pool"
	"github.com/mfkiwl/SRAM-Acquisition/internal/task"
	"github.com/mfkiwl/SRAM-Acquisition/packet"
	"github.com/mfkiwl/SRAM-Acquisition/registry"
)

// request is one operation queued for the worker loop.
type request struct {
	ctx    context.Context
	run    func(ctx context.Context, c *Controller) error
	doneCh chan error
}

// Worker owns a Controller and runs its operations one at a time from a
// request channel. Every discovery replaces the port's registry entry.
type Worker struct {
	ctrl    *Controller
	reg     *registry.Registry
	reqChan chan *request
	done    chan struct{}
	tm      *task.Manager
	once    sync.Once
}

// NewWorker starts the request loop of ctrl. reg may be nil.
func NewWorker(ctx context.Context, ctrl *Controller, reg *registry.Registry) (*Worker, error) {
	w := &Worker{
		ctrl:    ctrl,
		reg:     reg,
		reqChan: make(chan *request, ctrl.cfg.queueSize),
		done:    make(chan struct{}),
		tm:      task.NewManager(ctx, ctrl.logger),
	}

	if reg != nil {
		reg.Register(ctrl.port)
	}

	if err := w.tm.Go("chain-worker", w.loop); err != nil {
		return nil, err
	}

	return w, nil
}

// Controller returns the driven controller.
func (w *Worker) Controller() *Controller { return w.ctrl }

// Port returns the port name.
func (w *Worker) Port() string { return w.ctrl.port }

// Discover runs Controller.Discover and replaces the port's registry entry
// with the result. A failed discovery still clears the prior list and keeps
// only the devices that answered before the failure.
func (w *Worker) Discover(ctx context.Context, count int) ([]registry.DeviceRecord, error) {
	var records []registry.DeviceRecord

	err := w.submit(ctx, func(ctx context.Context, c *Controller) error {
		var err error
		records, err = c.Discover(ctx, count)
		if w.reg != nil {
			w.reg.Replace(c.port, records)
		}

		return err
	})

	return records, err
}

// Ping runs Controller.Ping and records the outcome as the device's online
// flag.
func (w *Worker) Ping(ctx context.Context, id packet.BoardID) (packet.Header, error) {
	var ack packet.Header

	err := w.submit(ctx, func(ctx context.Context, c *Controller) error {
		var err error
		ack, err = c.Ping(ctx, id)
		if w.reg != nil {
			w.reg.SetOnline(c.port, id, err == nil)
		}

		return err
	})

	return ack, err
}

// Read runs Controller.Read.
func (w *Worker) Read(ctx context.Context, id packet.BoardID, offset uint16) (packet.Payload, error) {
	var data packet.Payload

	err := w.submit(ctx, func(ctx context.Context, c *Controller) error {
		var err error
		data, err = c.Read(ctx, id, offset)

		return err
	})

	return data, err
}

// Write runs Controller.Write.
func (w *Worker) Write(ctx context.Context, id packet.BoardID, offset uint16, data packet.Payload) (packet.Header, error) {
	var ack packet.Header

	err := w.submit(ctx, func(ctx context.Context, c *Controller) error {
		var err error
		ack, err = c.Write(ctx, id, offset, data)

		return err
	})

	return ack, err
}

// Close stops the request loop after the running request and closes the
// port. Queued requests fail with ErrWorkerClosed.
func (w *Worker) Close() error {
	var err error
	w.once.Do(func() {
		w.tm.Stop()
		w.tm.Wait()
		err = w.ctrl.Close()
	})

	return err
}

// loop runs requests until the worker stops. done is closed only after the
// last request has reported its result.
func (w *Worker) loop(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-w.reqChan:
			if err := req.ctx.Err(); err != nil {
				req.doneCh <- err
				continue
			}

			req.doneCh <- req.run(req.ctx, w.ctrl)
		}
	}
}

func (w *Worker) submit(ctx context.Context, run func(ctx context.Context, c *Controller) error) error {
	req := &request{ctx: ctx, run: run, doneCh: make(chan error, 1)}

	timer := pool.GetTimer(w.ctrl.cfg.queueTimeout)
	defer pool.PutTimer(timer)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done:
		return ErrWorkerClosed
	case <-timer.C:
		return fmt.Errorf("%w: %s", ErrQueueTimeout, w.ctrl.port)
	case w.reqChan <- req:
	}

	select {
	case err := <-req.doneCh:
		return err
	case <-w.done:
		select {
		case err := <-req.doneCh:
			return err
		default:
			return ErrWorkerClosed
		}
	}
}
