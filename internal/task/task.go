// Package task manages the goroutines of go-gpib: the dispatcher worker loop and
// the transfer goroutines of bus transports.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-gpib/logger"
)

// ErrStopped is returned when a task is started on a stopped Manager.
var ErrStopped = errors.New("task manager already stopped")

// Func is one iteration of a looping task. Return false to stop the goroutine.
type Func func(ctx context.Context) bool

// OnceFunc is the body of a one-shot task.
type OnceFunc func(ctx context.Context)

// PanicFunc is called with the recovered value when a task panics.
type PanicFunc func(name string, recovered any)

// Manager starts goroutines bound to a shared context and waits for them.
//
//	mgr := task.NewManager(ctx, logger)
//	_ = mgr.Go("worker", func(ctx context.Context) { ... })
//	mgr.Stop()
//	mgr.Wait()
type Manager struct {
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  logger.Logger
	count   atomic.Int32
	onPanic PanicFunc
	mu      sync.Mutex // serializes wg.Add against Wait
}

// NewManager creates a Manager whose tasks are canceled together with ctx.
func NewManager(ctx context.Context, l logger.Logger) *Manager {
	if l == nil {
		l = logger.GetLogger()
	}
	mgr := &Manager{logger: l}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

// OnPanic registers fn to be notified of recovered panics in addition to logging.
func (mgr *Manager) OnPanic(fn PanicFunc) {
	mgr.mu.Lock()
	mgr.onPanic = fn
	mgr.mu.Unlock()
}

// Context returns the context shared by all tasks.
func (mgr *Manager) Context() context.Context {
	return mgr.ctx
}

// Go runs fn once in a new goroutine.
func (mgr *Manager) Go(name string, fn OnceFunc) error {
	return mgr.spawn(name, func() {
		mgr.CallWithRecover(name, func() { fn(mgr.ctx) })
	})
}

// Start runs fn repeatedly in a new goroutine until it returns false or the
// manager is stopped.
func (mgr *Manager) Start(name string, fn Func) error {
	return mgr.spawn(name, func() {
		for {
			select {
			case <-mgr.ctx.Done():
				return
			default:
			}

			cont := true
			mgr.CallWithRecover(name, func() { cont = fn(mgr.ctx) })
			if !cont {
				return
			}
		}
	})
}

func (mgr *Manager) spawn(name string, body func()) error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	if mgr.ctx.Err() != nil {
		return fmt.Errorf("start %s: %w", name, ErrStopped)
	}

	mgr.logger.Debug("start task", "name", name)
	mgr.wg.Add(1)
	mgr.count.Add(1)

	go func() {
		defer func() {
			mgr.count.Add(-1)
			mgr.wg.Done()
			mgr.logger.Debug("task terminated", "name", name, "task_count", mgr.Count())
		}()
		body()
	}()

	return nil
}

// CallWithRecover calls fn and converts a panic into a log record.
// It reports whether fn returned normally.
func (mgr *Manager) CallWithRecover(name string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task", "name", name, "panic", r)
			mgr.mu.Lock()
			onPanic := mgr.onPanic
			mgr.mu.Unlock()
			if onPanic != nil {
				onPanic(name, r)
			}
			ok = false
		}
	}()

	fn()

	return true
}

// Stop cancels the shared context; tasks observe it cooperatively.
func (mgr *Manager) Stop() {
	mgr.cancel()
}

// Wait blocks until every task has returned.
func (mgr *Manager) Wait() {
	mgr.wg.Wait()
}

// Count returns the number of running tasks.
func (mgr *Manager) Count() int {
	return int(mgr.count.Load())
}
