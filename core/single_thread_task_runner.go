package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// SingleThreadTaskRunner binds a dedicated goroutine to execute tasks
// sequentially. All tasks submitted to it run on the same goroutine
// (thread affinity), unlike a Sequence whose tasks may hop between pool
// workers.
//
// Use cases:
// 1. Blocking IO operations that should not occupy pool workers
// 2. CGO calls that require thread local storage
// 3. Simulating main thread / UI thread behavior
type SingleThreadTaskRunner struct {
	workQueue chan Task

	ctx    context.Context
	cancel context.CancelFunc

	stopped chan struct{}
	once    sync.Once
	closed  atomic.Bool
}

var _ TaskRunner = (*SingleThreadTaskRunner)(nil)

// NewSingleThreadTaskRunner creates the runner and immediately spawns its
// dedicated goroutine.
func NewSingleThreadTaskRunner() *SingleThreadTaskRunner {
	ctx, cancel := context.WithCancel(context.Background())
	r := &SingleThreadTaskRunner{
		workQueue: make(chan Task, 100), // Buffer to avoid blocking senders
		ctx:       ctx,
		cancel:    cancel,
		stopped:   make(chan struct{}),
	}

	go r.runLoop()

	return r
}

// PostTask submits a task for execution. Tasks posted after Stop are dropped.
func (r *SingleThreadTaskRunner) PostTask(task Task) {
	if r.closed.Load() {
		return
	}

	select {
	case <-r.ctx.Done():
		// Runner stopped, drop task
	case r.workQueue <- task:
	}
}

// PostDelayedTask submits a task after delay. Uses time.AfterFunc, which is
// independent of any pool scheduler, so these timers are unaffected by pool
// load or fences.
func (r *SingleThreadTaskRunner) PostDelayedTask(task Task, delay time.Duration) {
	if r.closed.Load() {
		return
	}

	select {
	case <-r.ctx.Done():
	default:
		time.AfterFunc(delay, func() {
			r.PostTask(task)
		})
	}
}

// IsClosed returns true if the runner has been stopped.
func (r *SingleThreadTaskRunner) IsClosed() bool {
	return r.closed.Load()
}

// Stop stops the runner. The task currently executing finishes; queued tasks
// are dropped.
func (r *SingleThreadTaskRunner) Stop() {
	r.once.Do(func() {
		r.closed.Store(true)
		r.cancel()
		<-r.stopped
	})
}

// WaitIdle blocks until all currently queued tasks have completed. Implemented
// by posting a barrier task: the runner executes sequentially, so when the
// barrier runs everything posted before it has finished.
//
// Tasks posted after WaitIdle is called are not waited for.
func (r *SingleThreadTaskRunner) WaitIdle(ctx context.Context) error {
	if r.IsClosed() {
		return fmt.Errorf("runner is closed")
	}

	done := make(chan struct{})
	r.PostTask(func(taskCtx context.Context) {
		close(done)
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runLoop occupies the dedicated goroutine for the runner's lifetime.
func (r *SingleThreadTaskRunner) runLoop() {
	defer close(r.stopped)

	// Tasks can retrieve this runner via GetCurrentTaskRunner.
	runCtx := context.WithValue(r.ctx, taskRunnerKey, TaskRunner(r))

	for {
		select {
		case task := <-r.workQueue:
			func() {
				defer func() {
					if rec := recover(); rec != nil {
						fmt.Printf("[SingleThreadTaskRunner] Panic: %v\n", rec)
					}
				}()
				task(runCtx)
			}()

		case <-r.ctx.Done():
			return
		}
	}
}
