// Package worker runs request tasks on a fixed set of goroutines.
//
// Each worker owns one rpccontext.Slot for its whole life and hands it to every
// task it runs. Tasks reset the slot themselves; the pool resets it again after a
// task that panicked, so the next task never starts with a bound context.
package worker

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mini-rpc-server/rpccontext"
)

var ErrPoolClosed = errors.New("worker: pool closed")

// Runnable is one unit of work.
type Runnable interface {
	Run(slot *rpccontext.Slot)
}

// RunnableFunc adapts a function to Runnable.
type RunnableFunc func(slot *rpccontext.Slot)

func (f RunnableFunc) Run(slot *rpccontext.Slot) { f(slot) }

type Pool struct {
	tasks  chan Runnable
	group  errgroup.Group
	logger *zap.Logger

	mu      sync.RWMutex
	closed  bool
	quit    chan struct{}  // Closed by Close, unblocks pending Submits
	pending sync.WaitGroup // Submits past the closed check

	closeOnce sync.Once
	done      chan struct{} // Closed once every worker has exited
	err       error
}

// NewPool starts workers goroutines sharing a queue of queueSize tasks.
func NewPool(workers, queueSize int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{
		tasks:  make(chan Runnable, queueSize),
		logger: logger,
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		slot := &rpccontext.Slot{}
		p.group.Go(func() error {
			p.work(slot)
			return nil
		})
	}
	return p
}

// Submit queues task, blocking while the queue is full. A Submit still
// waiting when Close is called returns ErrPoolClosed.
func (p *Pool) Submit(task Runnable) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPoolClosed
	}
	p.pending.Add(1)
	p.mu.RUnlock()
	defer p.pending.Done()

	select {
	case p.tasks <- task:
		return nil
	case <-p.quit:
		return ErrPoolClosed
	}
}

// Close stops accepting tasks and waits for queued ones to finish or ctx to end.
func (p *Pool) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.quit)
		p.mu.Unlock()

		go func() {
			// No sender is left once pending drains, so tasks can be closed.
			p.pending.Wait()
			close(p.tasks)
			p.err = p.group.Wait()
			close(p.done)
		}()
	})

	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) work(slot *rpccontext.Slot) {
	for task := range p.tasks {
		p.run(task, slot)
	}
}

func (p *Pool) run(task Runnable, slot *rpccontext.Slot) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
		slot.Reset()
	}()
	task.Run(slot)
}
