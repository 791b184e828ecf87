package core

import (
	"context"
	"sync"
	"time"

	"github.com/eapache/queue"
)

const (
	// maxAllowedConcurrency caps the maxConcurrency parameter. Values higher
	// than this could lead to excessive goroutine creation and memory
	// exhaustion.
	maxAllowedConcurrency = 10000
)

// ParallelTaskRunner fans tasks out to a target runner while keeping at most
// maxConcurrency of them in flight. Overflow tasks wait in a FIFO queue and
// are released as running tasks complete. Unlike a Sequence it makes no
// ordering guarantee between concurrent tasks.
type ParallelTaskRunner struct {
	target         TaskRunner
	maxConcurrency int

	mu      sync.Mutex
	pending *queue.Queue
	running int
	closed  bool
}

var _ TaskRunner = (*ParallelTaskRunner)(nil)

// NewParallelTaskRunner creates a runner dispatching to target with the given
// concurrency limit. Panics if target is nil or maxConcurrency is out of
// range [1, 10000].
func NewParallelTaskRunner(target TaskRunner, maxConcurrency int) *ParallelTaskRunner {
	if target == nil {
		panic("core: ParallelTaskRunner requires a target runner")
	}
	if maxConcurrency < 1 || maxConcurrency > maxAllowedConcurrency {
		panic("core: ParallelTaskRunner maxConcurrency out of range")
	}
	return &ParallelTaskRunner{
		target:         target,
		maxConcurrency: maxConcurrency,
		pending:        queue.New(),
	}
}

// MaxConcurrency returns the maximum number of concurrent tasks.
func (r *ParallelTaskRunner) MaxConcurrency() int {
	return r.maxConcurrency
}

// PendingTaskCount returns the number of tasks waiting for a slot.
func (r *ParallelTaskRunner) PendingTaskCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending.Length()
}

// RunningTaskCount returns the number of in-flight tasks.
func (r *ParallelTaskRunner) RunningTaskCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// PostTask submits a task. It dispatches immediately if a slot is free,
// otherwise it queues until one opens up.
func (r *ParallelTaskRunner) PostTask(task Task) {
	if task == nil {
		panic("core: ParallelTaskRunner.PostTask requires a non-nil task")
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if r.running >= r.maxConcurrency {
		r.pending.Add(task)
		r.mu.Unlock()
		return
	}
	r.running++
	r.mu.Unlock()

	r.target.PostTask(r.wrap(task))
}

// PostDelayedTask submits a task after delay. The concurrency slot is claimed
// when the delay expires, not at post time.
func (r *ParallelTaskRunner) PostDelayedTask(task Task, delay time.Duration) {
	if delay <= 0 {
		r.PostTask(task)
		return
	}
	r.target.PostDelayedTask(func(ctx context.Context) {
		// Re-enter through PostTask so the slot accounting applies.
		r.PostTask(task)
	}, delay)
}

// Shutdown drops queued tasks and rejects future posts. In-flight tasks are
// unaffected.
func (r *ParallelTaskRunner) Shutdown() {
	r.mu.Lock()
	r.closed = true
	r.pending = queue.New()
	r.mu.Unlock()
}

// IsClosed returns true if the runner has been shut down.
func (r *ParallelTaskRunner) IsClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// wrap decorates a task so slot release and queue promotion happen even when
// the task panics.
func (r *ParallelTaskRunner) wrap(task Task) Task {
	return func(ctx context.Context) {
		defer r.onTaskDone()
		task(ctx)
	}
}

func (r *ParallelTaskRunner) onTaskDone() {
	r.mu.Lock()
	if r.closed || r.pending.Length() == 0 {
		r.running--
		r.mu.Unlock()
		return
	}
	next := r.pending.Remove().(Task)
	r.mu.Unlock()

	// Slot stays claimed; hand it straight to the promoted task.
	r.target.PostTask(r.wrap(next))
}
