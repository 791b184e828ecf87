package taskpool

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/kaidokert/taskpool/core"
)

// GoroutineThreadPool manages a set of worker goroutines.
// Workers pull task sources from the scheduler's priority queue and execute
// one task at a time; admission is subject to any active execution fences.
type GoroutineThreadPool struct {
	id        string
	workers   int
	scheduler *core.TaskScheduler
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	running   bool
	runningMu sync.RWMutex
}

var _ core.FenceController = (*GoroutineThreadPool)(nil)
var _ core.TaskRunner = (*GoroutineThreadPool)(nil)

// NewGoroutineThreadPool creates a new GoroutineThreadPool
func NewGoroutineThreadPool(id string, workers int) *GoroutineThreadPool {
	return NewGoroutineThreadPoolWithConfig(id, workers, core.DefaultSchedulerConfig())
}

// NewGoroutineThreadPoolWithConfig creates a pool with explicit scheduler
// configuration (handlers, metrics, logger, thread-type mapping).
func NewGoroutineThreadPoolWithConfig(id string, workers int, config *core.SchedulerConfig) *GoroutineThreadPool {
	return &GoroutineThreadPool{
		id:        id,
		workers:   workers,
		scheduler: core.NewTaskSchedulerWithConfig(id, workers, config),
	}
}

// Start starts all worker goroutines
func (tg *GoroutineThreadPool) Start(ctx context.Context) {
	tg.runningMu.Lock()
	defer tg.runningMu.Unlock()

	if tg.running {
		return // Already running
	}

	tg.ctx, tg.cancel = context.WithCancel(ctx)
	tg.running = true

	for i := 0; i < tg.workers; i++ {
		tg.wg.Add(1)
		go tg.workerLoop(i, tg.ctx)
	}
}

// Stop stops the thread pool
func (tg *GoroutineThreadPool) Stop() {
	// Always shutdown scheduler to clean up resources (queue, delayed tasks)
	// even if pool was never started
	tg.scheduler.Shutdown()

	tg.runningMu.Lock()
	if !tg.running {
		tg.runningMu.Unlock()
		return
	}
	tg.runningMu.Unlock()

	if tg.cancel != nil {
		tg.cancel()
	}
	tg.Join()

	tg.runningMu.Lock()
	tg.running = false
	tg.runningMu.Unlock()
}

// StopGraceful stops the thread pool gracefully, waiting for queued tasks to complete
// Returns error if timeout is exceeded before tasks complete
func (tg *GoroutineThreadPool) StopGraceful(timeout time.Duration) error {
	tg.runningMu.Lock()
	if !tg.running {
		// Not running, nothing to do
		tg.runningMu.Unlock()
		return nil
	}
	tg.runningMu.Unlock()

	// First, gracefully shutdown the scheduler (waits for queues to drain)
	if err := tg.scheduler.ShutdownGraceful(timeout); err != nil {
		// Timeout occurred, but we still need to cancel workers
		if tg.cancel != nil {
			tg.cancel()
		}
		tg.Join()

		tg.runningMu.Lock()
		tg.running = false
		tg.runningMu.Unlock()

		return err
	}

	// Scheduler drained successfully, now cancel workers
	if tg.cancel != nil {
		tg.cancel()
	}
	tg.Join()

	tg.runningMu.Lock()
	tg.running = false
	tg.runningMu.Unlock()

	return nil
}

// ID returns the ID of the thread pool
func (tg *GoroutineThreadPool) ID() string {
	return tg.id
}

// IsRunning returns whether the thread pool is running
func (tg *GoroutineThreadPool) IsRunning() bool {
	tg.runningMu.RLock()
	defer tg.runningMu.RUnlock()
	return tg.running
}

// workerLoop is the main loop for each worker
func (tg *GoroutineThreadPool) workerLoop(id int, ctx context.Context) {
	defer tg.wg.Done()
	stopCh := ctx.Done()

	for {
		// Pull the next admissible task from the scheduler
		task, source, ok := tg.scheduler.GetWork(stopCh)
		if !ok {
			// Context canceled
			return
		}

		tg.scheduler.OnTaskStart()
		priority := source.Priority()
		startedAt := time.Now()

		record := core.TaskExecutionRecord{
			PoolName:  tg.id,
			WorkerID:  id,
			Priority:  priority,
			StartedAt: startedAt,
		}

		// Execute task and capture panic
		func() {
			defer func() {
				tg.scheduler.OnTaskEnd()
				record.FinishedAt = time.Now()
				record.Duration = record.FinishedAt.Sub(startedAt)
				if r := recover(); r != nil {
					record.Panicked = true
					record.PanicInfo = r
					tg.scheduler.GetPanicHandler().HandlePanic(ctx, tg.id, id, r, debug.Stack())
				}
				tg.scheduler.RecordExecution(record)
			}()
			task(ctx)
		}()

		// Hand the source back; it re-enqueues itself if more work is pending
		tg.scheduler.DidProcessTask(source)
	}
}

// Join waits for all worker goroutines to finish
func (tg *GoroutineThreadPool) Join() {
	tg.wg.Wait()
}

// WorkerCount returns the number of workers
func (tg *GoroutineThreadPool) WorkerCount() int {
	return tg.workers
}

func (tg *GoroutineThreadPool) QueuedTaskSourceCount() int {
	return tg.scheduler.QueuedTaskSourceCount()
}

func (tg *GoroutineThreadPool) ActiveTaskCount() int {
	return tg.scheduler.ActiveTaskCount()
}

func (tg *GoroutineThreadPool) DelayedTaskCount() int {
	return tg.scheduler.DelayedTaskCount()
}

// Scheduler exposes the underlying TaskScheduler for advanced integrations
// (e.g. the Prometheus snapshot poller).
func (tg *GoroutineThreadPool) Scheduler() *core.TaskScheduler {
	return tg.scheduler
}

// Stats returns a point-in-time snapshot of pool state.
func (tg *GoroutineThreadPool) Stats() core.PoolStats {
	s := tg.scheduler.Stats()
	return core.PoolStats{
		ID:                   tg.id,
		Workers:              tg.workers,
		Queued:               s.QueuedSources,
		Active:               s.Active,
		Delayed:              s.Delayed,
		Running:              tg.IsRunning(),
		ForegroundSources:    s.ForegroundSources,
		BackgroundSources:    s.BackgroundSources,
		FenceCount:           s.FenceCount,
		BestEffortFenceCount: s.BestEffortFenceCount,
	}
}

// RecentExecutions returns up to limit most recent execution records.
func (tg *GoroutineThreadPool) RecentExecutions(limit int) []core.TaskExecutionRecord {
	return tg.scheduler.RecentExecutions(limit)
}

// =============================================================================
// Posting surface
// =============================================================================

// PostTask posts a one-shot task with default traits.
func (tg *GoroutineThreadPool) PostTask(task core.Task) {
	tg.PostTaskWithTraits(task, core.DefaultTaskTraits())
}

// PostTaskWithTraits posts a one-shot task with the given traits.
func (tg *GoroutineThreadPool) PostTaskWithTraits(task core.Task, traits core.TaskTraits) {
	tg.scheduler.PostInternal(task, traits)
}

// PostDelayedTask posts a one-shot task with default traits after delay.
func (tg *GoroutineThreadPool) PostDelayedTask(task core.Task, delay time.Duration) {
	tg.PostDelayedTaskWithTraits(task, delay, core.DefaultTaskTraits())
}

// PostDelayedTaskWithTraits posts a one-shot task with traits after delay.
func (tg *GoroutineThreadPool) PostDelayedTaskWithTraits(task core.Task, delay time.Duration, traits core.TaskTraits) {
	if delay <= 0 {
		tg.PostTaskWithTraits(task, traits)
		return
	}
	tg.scheduler.PostDelayedInternal(task, delay, &traitsRunner{pool: tg, traits: traits})
}

// CreateSequence creates a FIFO task source dispatching through this pool.
func (tg *GoroutineThreadPool) CreateSequence(traits core.TaskTraits) *core.Sequence {
	return core.NewSequence(tg.scheduler, traits)
}

// traitsRunner posts into the pool with pinned traits. Used as the delay
// manager's target for direct delayed posts.
type traitsRunner struct {
	pool   *GoroutineThreadPool
	traits core.TaskTraits
}

func (r *traitsRunner) PostTask(task core.Task) {
	r.pool.PostTaskWithTraits(task, r.traits)
}

func (r *traitsRunner) PostDelayedTask(task core.Task, delay time.Duration) {
	r.pool.PostDelayedTaskWithTraits(task, delay, r.traits)
}

// =============================================================================
// Fence hooks
// =============================================================================

// BeginFence blocks admission of all new work in this pool.
func (tg *GoroutineThreadPool) BeginFence() { tg.scheduler.BeginFence() }

// EndFence lifts one full fence.
func (tg *GoroutineThreadPool) EndFence() { tg.scheduler.EndFence() }

// BeginBestEffortFence blocks admission of best-effort work in this pool.
func (tg *GoroutineThreadPool) BeginBestEffortFence() { tg.scheduler.BeginBestEffortFence() }

// EndBestEffortFence lifts one best-effort fence.
func (tg *GoroutineThreadPool) EndBestEffortFence() { tg.scheduler.EndBestEffortFence() }

// =============================================================================
// Global Thread Pool Helper (Singleton)
// =============================================================================

var (
	globalThreadPool *GoroutineThreadPool
	globalMu         sync.Mutex
)

// InitGlobalThreadPool initializes the global thread pool with specified number of workers.
// It starts the pool immediately.
func InitGlobalThreadPool(workers int) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalThreadPool != nil {
		return // Already initialized
	}

	globalThreadPool = NewGoroutineThreadPool("global-pool", workers)
	globalThreadPool.Start(context.Background())
}

// GetGlobalThreadPool returns the global thread pool instance.
// It panics if InitGlobalThreadPool has not been called.
func GetGlobalThreadPool() *GoroutineThreadPool {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalThreadPool == nil {
		panic("GlobalThreadPool not initialized. Call InitGlobalThreadPool() first.")
	}
	return globalThreadPool
}

// ShutdownGlobalThreadPool stops the global thread pool.
func ShutdownGlobalThreadPool() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalThreadPool != nil {
		globalThreadPool.Stop()
		globalThreadPool = nil
	}
}

// CreateTaskRunner creates a new Sequence on the global thread pool.
// This is the recommended way to get a new TaskRunner.
func CreateTaskRunner(traits core.TaskTraits) *core.Sequence {
	return GetGlobalThreadPool().CreateSequence(traits)
}
