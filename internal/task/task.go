// Package task runs and tears down the goroutines owned by chain workers and
// endpoint runners.
package task

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mfkiwl/SRAM-Acquisition/logger"
)

// startTimeout bounds how long Start waits for a goroutine to come up.
const startTimeout = 5 * time.Second

// Func is run repeatedly by a task goroutine until it returns false or the
// manager is stopped.
type Func func(ctx context.Context) bool

// Manager manages the lifecycle of a group of goroutines.
//
//	mgr := task.NewManager(ctx, l)
//	_ = mgr.Start("uplink-reader", func(ctx context.Context) bool {
//	    // ... one iteration ...
//	    return true
//	})
//	mgr.Stop()
//	mgr.Wait()
type Manager struct {
	pctx   context.Context
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger logger.Logger
	count  atomic.Int32
	mu     sync.RWMutex // protect ctx and cancel
	taskMu sync.RWMutex // protect task creation during Wait()
}

// NewManager creates a Manager whose tasks stop when ctx is done.
func NewManager(ctx context.Context, l logger.Logger) *Manager {
	if l == nil {
		l = logger.GetLogger()
	}

	mgr := &Manager{pctx: ctx, logger: l}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

// Context returns the context shared by the running tasks.
func (mgr *Manager) Context() context.Context {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	return mgr.ctx
}

// Start starts a goroutine that calls fn until it returns false or the
// manager is stopped.
func (mgr *Manager) Start(name string, fn Func) error {
	return mgr.start(name, func(ctx context.Context) {
		mgr.runLoop(ctx, name, fn)
	})
}

// Go starts a goroutine that calls fn once.
func (mgr *Manager) Go(name string, fn func(ctx context.Context)) error {
	return mgr.start(name, func(ctx context.Context) {
		defer mgr.recoverPanic(name)
		fn(ctx)
	})
}

// Stop signals every running task to exit.
func (mgr *Manager) Stop() {
	mgr.mu.Lock()
	if mgr.cancel != nil {
		mgr.cancel()
	}
	mgr.mu.Unlock()
}

// Wait waits for every task to exit. The manager can be reused afterwards.
func (mgr *Manager) Wait() {
	mgr.taskMu.Lock()
	defer mgr.taskMu.Unlock()

	mgr.wg.Wait()

	mgr.mu.Lock()
	mgr.ctx, mgr.cancel = context.WithCancel(mgr.pctx)
	mgr.mu.Unlock()
}

// TaskCount returns the number of running tasks.
func (mgr *Manager) TaskCount() int {
	return int(mgr.count.Load())
}

func (mgr *Manager) start(name string, body func(ctx context.Context)) error {
	ctx := mgr.Context()

	select {
	case <-ctx.Done():
		return fmt.Errorf("task: manager already stopped, cannot start %s", name)
	default:
	}

	mgr.taskMu.RLock()
	defer mgr.taskMu.RUnlock()

	mgr.logger.Debug("start task", "name", name)

	started := make(chan struct{})
	mgr.wg.Add(1)

	go func() {
		defer mgr.wg.Done()

		mgr.count.Add(1)
		close(started)

		defer func() {
			mgr.count.Add(-1)
			mgr.logger.Debug("task terminated", "name", name, "task_count", mgr.TaskCount())
		}()

		body(ctx)
	}()

	select {
	case <-started:
		return nil
	case <-time.After(startTimeout):
		return fmt.Errorf("task: timeout waiting for %s to start", name)
	}
}

func (mgr *Manager) runLoop(ctx context.Context, name string, fn Func) {
	defer mgr.recoverPanic(name)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if !fn(ctx) {
				return
			}
		}
	}
}

func (mgr *Manager) recoverPanic(name string) {
	if r := recover(); r != nil {
		mgr.logger.Error("panic in task", "name", name, "panic", r)
	}
}
