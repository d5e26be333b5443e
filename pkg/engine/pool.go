package engine

import (
	"context"
	"runtime"
	"sync"
)

// DefaultWorkers is used when no worker count is configured and the CPU
// count cannot be determined.
const DefaultWorkers = 4

// WorkerCount resolves the pool size: the configured value when positive,
// otherwise the CPU count, otherwise DefaultWorkers.
func WorkerCount(configured int) int {
	if configured > 0 {
		return configured
	}
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return DefaultWorkers
}

// WorkerPool is a fixed-size pool executing submitted tasks. Workers are
// started once and live until Close; tasks are queued on a buffered channel.
type WorkerPool struct {
	workers int
	tasks   chan func()
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	closed  sync.Once
}

// NewWorkerPool creates and starts a pool with the given number of workers.
func NewWorkerPool(workers int) *WorkerPool {
	workers = WorkerCount(workers)
	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		workers: workers,
		tasks:   make(chan func(), workers*4),
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Workers reports the pool size.
func (p *WorkerPool) Workers() int {
	return p.workers
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task := <-p.tasks:
			task()
		}
	}
}

// Submit queues a task, blocking while the queue is full. It fails once the
// pool is closed or the caller's context expires. The tasks channel is never
// closed, so Submit cannot panic however it races Close.
func (p *WorkerPool) Submit(ctx context.Context, task func()) error {
	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	default:
	}

	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	case p.tasks <- task:
		return nil
	}
}

// Close stops the workers and waits for in-flight tasks to finish. Queued
// tasks that no worker has picked up are dropped. Safe to call more than
// once.
func (p *WorkerPool) Close() {
	p.closed.Do(p.cancel)
	p.wg.Wait()
}
