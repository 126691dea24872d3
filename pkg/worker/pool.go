// Package worker provides a generic bounded worker pool. The scheduler
// uses it to fan rule evaluation out across goroutines: evaluation is
// pure, so work items need no coordination beyond the queue itself.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrNilProcessor is returned when a pool is constructed without a
// processor function.
var ErrNilProcessor = errors.New("worker: processor cannot be nil")

// ErrQueueFull is returned by TrySubmit when the queue is at capacity.
var ErrQueueFull = errors.New("worker: queue full")

// ErrStopped is returned when submitting to a stopped pool.
var ErrStopped = errors.New("worker: pool stopped")

// Pool processes work items of type T on a fixed set of goroutines with
// a bounded queue.
type Pool[T any] struct {
	workers   int
	processor func(context.Context, T) error

	workChan chan T
	wg       sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool

	// Statistics (atomic)
	submitted int64
	processed int64
	failed    int64
	dropped   int64
}

// NewPool creates a pool with the given worker count and queue size.
// processor is called once per item; its error only affects statistics.
func NewPool[T any](workers, queueSize int, processor func(context.Context, T) error) (*Pool[T], error) {
	if processor == nil {
		return nil, ErrNilProcessor
	}
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}

	return &Pool[T]{
		workers:   workers,
		processor: processor,
		workChan:  make(chan T, queueSize),
	}, nil
}

// Start launches the worker goroutines. Workers exit when the context is
// cancelled or the pool is stopped.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return errors.New("worker: pool already started")
	}
	p.started = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx)
	}
	return nil
}

func (p *Pool[T]) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-p.workChan:
			if !ok {
				return
			}
			if err := p.processor(ctx, item); err != nil {
				atomic.AddInt64(&p.failed, 1)
			} else {
				atomic.AddInt64(&p.processed, 1)
			}
		}
	}
}

// TrySubmit enqueues an item without blocking. Items submitted to a full
// queue are dropped and counted. The lock is held across the send so a
// concurrent Stop cannot close the channel between the state check and
// the enqueue.
func (p *Pool[T]) TrySubmit(item T) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped || !p.started {
		return ErrStopped
	}

	select {
	case p.workChan <- item:
		atomic.AddInt64(&p.submitted, 1)
		return nil
	default:
		atomic.AddInt64(&p.dropped, 1)
		return ErrQueueFull
	}
}

// Stop closes the queue and waits for in-flight work to drain.
func (p *Pool[T]) Stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.workChan)
	p.mu.Unlock()

	p.wg.Wait()
}

// Stats reports pool counters since creation.
func (p *Pool[T]) Stats() (submitted, processed, failed, dropped int64) {
	return atomic.LoadInt64(&p.submitted),
		atomic.LoadInt64(&p.processed),
		atomic.LoadInt64(&p.failed),
		atomic.LoadInt64(&p.dropped)
}

// QueueDepth reports the number of items waiting in the queue.
func (p *Pool[T]) QueueDepth() int {
	return len(p.workChan)
}
