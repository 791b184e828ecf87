package core

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// TaskScheduler owns the task-source priority queue and the execution-fence
// counters. Both live under a single mutex so that a worker's admission check
// is atomic with respect to concurrent fence construction and destruction: a
// task never starts "just after" a fence logically took effect, and a fence
// never misses a task it should have blocked.
type TaskScheduler struct {
	name        string
	signal      chan struct{}
	workerCount int

	delayManager *DelayManager

	mu                   sync.Mutex
	queue                *TaskSourcePriorityQueue
	fenceCount           int
	bestEffortFenceCount int
	nextSequence         uint64

	metricActive int32 // Executing in Worker

	history executionHistory

	// Handlers and Metrics
	panicHandler        PanicHandler
	metrics             Metrics
	rejectedTaskHandler RejectedTaskHandler
	logger              Logger
	threadType          ThreadTypeMapper

	// Lifecycle
	shuttingDown atomic.Bool
}

// NewTaskScheduler creates a scheduler dispatching to workerCount workers.
func NewTaskScheduler(name string, workerCount int) *TaskScheduler {
	return NewTaskSchedulerWithConfig(name, workerCount, DefaultSchedulerConfig())
}

// NewTaskSchedulerWithConfig creates a scheduler with explicit configuration.
// Nil config fields fall back to defaults.
func NewTaskSchedulerWithConfig(name string, workerCount int, config *SchedulerConfig) *TaskScheduler {
	s := &TaskScheduler{
		name:        name,
		signal:      make(chan struct{}, workerCount*2),
		workerCount: workerCount,
	}

	if config == nil {
		config = DefaultSchedulerConfig()
	}
	s.panicHandler = config.PanicHandler
	s.metrics = config.Metrics
	s.rejectedTaskHandler = config.RejectedTaskHandler
	s.logger = config.Logger
	s.threadType = config.ThreadType

	if s.panicHandler == nil {
		s.panicHandler = &DefaultPanicHandler{}
	}
	if s.metrics == nil {
		s.metrics = &NilMetrics{}
	}
	if s.rejectedTaskHandler == nil {
		s.rejectedTaskHandler = &DefaultRejectedTaskHandler{}
	}
	if s.logger == nil {
		s.logger = NewNoOpLogger()
	}
	if s.threadType == nil {
		s.threadType = DefaultThreadTypeMapper
	}

	s.queue = NewTaskSourcePriorityQueue(s.threadType)
	s.history = newExecutionHistory(config.HistoryCapacity)
	s.delayManager = NewDelayManager()

	return s
}

// Name returns the scheduler's name, used for logging and metrics labels.
func (s *TaskScheduler) Name() string {
	return s.name
}

// EnqueueTaskSource registers a task source for dispatch, assigning its sort
// key at insertion (current priority plus a fresh sequence number, so equal
// priorities dispatch FIFO).
func (s *TaskScheduler) EnqueueTaskSource(taskSource TaskSource) {
	if s.shuttingDown.Load() {
		s.rejectedTaskHandler.HandleRejectedTask(s.name, "shutting down")
		s.metrics.RecordTaskRejected(s.name, "shutting down")
		return
	}

	s.mu.Lock()
	sortKey := TaskSourceSortKey{Priority: taskSource.Priority(), Sequence: s.nextSequence}
	s.nextSequence++
	s.queue.Push(taskSource, sortKey)
	depth := s.queue.Size()
	s.mu.Unlock()

	s.metrics.RecordQueueDepth(s.name, depth)

	select {
	case s.signal <- struct{}{}:
	default:
		// Signal channel full; a worker will find the work anyway.
	}
}

// PostInternal wraps a directly posted task in a one-shot task source.
func (s *TaskScheduler) PostInternal(task Task, traits TaskTraits) {
	if s.shuttingDown.Load() {
		s.rejectedTaskHandler.HandleRejectedTask(s.name, "shutting down")
		s.metrics.RecordTaskRejected(s.name, "shutting down")
		return
	}
	s.EnqueueTaskSource(newSingleTaskSource(task, traits))
}

// PostDelayedInternal hands a task to the delay manager, which posts it to
// target when the delay expires.
func (s *TaskScheduler) PostDelayedInternal(task Task, delay time.Duration, target TaskRunner) {
	if s.shuttingDown.Load() {
		return
	}
	s.delayManager.AddDelayedTask(task, delay, target)
}

// GetWork blocks until an admissible task is available or stopCh closes.
// Admission is checked before popping: while a full fence is active nothing
// is popped, and while a best-effort fence is active a best-effort top of
// heap stays parked in the queue, keeping its place relative to its peers.
// The returned task source must be handed back via DidProcessTask after the
// task ran.
func (s *TaskScheduler) GetWork(stopCh <-chan struct{}) (Task, TaskSource, bool) {
	for {
		if task, taskSource, ok := s.tryGetWork(); ok {
			return task, taskSource, true
		}

		select {
		case <-s.signal:
			continue
		case <-stopCh:
			return nil, nil, false
		}
	}
}

func (s *TaskScheduler) tryGetWork() (Task, TaskSource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.queue.IsEmpty() || s.fenceCount > 0 {
			return nil, nil, false
		}

		sortKey := s.queue.PeekSortKey()
		if s.bestEffortFenceCount > 0 && sortKey.Priority == TaskPriorityBestEffort {
			// The max element is fenced; everything below it is best-effort
			// too, so nothing is admissible.
			return nil, nil, false
		}

		taskSource := s.queue.PopTaskSource()
		task, ok := taskSource.TakeTask()
		if !ok {
			// Emptied between enqueue and dispatch; keep scanning.
			continue
		}
		return task, taskSource, true
	}
}

// DidProcessTask re-enqueues the task source if it reports more pending work.
// Called by workers after each task completes.
func (s *TaskScheduler) DidProcessTask(taskSource TaskSource) {
	if taskSource.DidProcessTask() {
		s.EnqueueTaskSource(taskSource)
	}
}

// UpdateSortKey re-keys a queued task source after its priority changed,
// assigning a fresh sequence number so it queues behind existing peers of its
// new priority. No-op if the source is not currently queued.
func (s *TaskScheduler) UpdateSortKey(taskSource TaskSource) {
	s.mu.Lock()
	sortKey := TaskSourceSortKey{Priority: taskSource.Priority(), Sequence: s.nextSequence}
	s.nextSequence++
	s.queue.UpdateSortKey(taskSource, sortKey)
	s.mu.Unlock()

	// The source may have become the new maximum.
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// RemoveTaskSource detaches a queued task source and returns ownership to the
// caller, who decides whether to drop or reschedule it. Returns nil if the
// source already left the queue.
func (s *TaskScheduler) RemoveTaskSource(taskSource TaskSource) TaskSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.RemoveTaskSource(taskSource)
}

// =============================================================================
// Execution fences
// =============================================================================

// BeginFence blocks admission of all new work until the matching EndFence.
func (s *TaskScheduler) BeginFence() {
	s.mu.Lock()
	s.fenceCount++
	count := s.fenceCount
	s.mu.Unlock()

	s.logger.Debug("execution fence raised", F("pool", s.name), F("count", count))
	s.metrics.RecordFenceTransition(s.name, "full", count)
}

// EndFence lifts one full fence; admission resumes when the count reaches zero.
func (s *TaskScheduler) EndFence() {
	s.mu.Lock()
	if s.fenceCount == 0 {
		s.mu.Unlock()
		panic("core: EndFence without matching BeginFence")
	}
	s.fenceCount--
	count := s.fenceCount
	s.mu.Unlock()

	s.logger.Debug("execution fence released", F("pool", s.name), F("count", count))
	s.metrics.RecordFenceTransition(s.name, "full", count)
	if count == 0 {
		s.wakeAllWorkers()
	}
}

// BeginBestEffortFence blocks admission of best-effort work until the matching
// EndBestEffortFence.
func (s *TaskScheduler) BeginBestEffortFence() {
	s.mu.Lock()
	s.bestEffortFenceCount++
	count := s.bestEffortFenceCount
	s.mu.Unlock()

	s.logger.Debug("best-effort fence raised", F("pool", s.name), F("count", count))
	s.metrics.RecordFenceTransition(s.name, "best_effort", count)
}

// EndBestEffortFence lifts one best-effort fence.
func (s *TaskScheduler) EndBestEffortFence() {
	s.mu.Lock()
	if s.bestEffortFenceCount == 0 {
		s.mu.Unlock()
		panic("core: EndBestEffortFence without matching BeginBestEffortFence")
	}
	s.bestEffortFenceCount--
	count := s.bestEffortFenceCount
	s.mu.Unlock()

	s.logger.Debug("best-effort fence released", F("pool", s.name), F("count", count))
	s.metrics.RecordFenceTransition(s.name, "best_effort", count)
	if count == 0 {
		s.wakeAllWorkers()
	}
}

// FenceCounts returns the active full and best-effort fence counts.
func (s *TaskScheduler) FenceCounts() (full, bestEffort int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fenceCount, s.bestEffortFenceCount
}

// wakeAllWorkers signals every worker so parked tasks get reconsidered after
// the last fence lifts.
func (s *TaskScheduler) wakeAllWorkers() {
	for i := 0; i < s.workerCount; i++ {
		select {
		case s.signal <- struct{}{}:
		default:
			return
		}
	}
}

// =============================================================================
// Lifecycle
// =============================================================================

// Shutdown stops accepting new work and drops queued task sources. Running
// tasks are unaffected.
func (s *TaskScheduler) Shutdown() {
	// 1. Mark as shutting down to stop accepting new tasks
	s.shuttingDown.Store(true)

	// 2. Stop DelayManager (no more new tasks generated)
	s.delayManager.Stop()

	// 3. Release all queued task sources (their pending work is dropped)
	s.mu.Lock()
	s.queue.Destroy()
	s.mu.Unlock()
}

// ShutdownGraceful waits for all queued and active work to complete.
// Returns an error if the timeout is exceeded first.
func (s *TaskScheduler) ShutdownGraceful(timeout time.Duration) error {
	// 1. Mark as shutting down to stop accepting new tasks
	s.shuttingDown.Store(true)

	// 2. Stop DelayManager (no more new tasks generated)
	s.delayManager.Stop()

	// 3. Wait for the queue to drain and active tasks to complete
	deadline := time.After(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			s.mu.Lock()
			s.queue.Destroy()
			s.mu.Unlock()
			return fmt.Errorf("shutdown graceful timeout after %v, forced clearing", timeout)
		case <-ticker.C:
			if s.QueuedTaskSourceCount() == 0 && s.ActiveTaskCount() == 0 {
				return nil
			}
		}
	}
}

// EnableFlushTaskSourcesOnDestroyForTesting makes Shutdown drain remaining
// pending tasks inline instead of dropping them. Testing only.
func (s *TaskScheduler) EnableFlushTaskSourcesOnDestroyForTesting() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.EnableFlushTaskSourcesOnDestroyForTesting()
}

// =============================================================================
// Stats
// =============================================================================

func (s *TaskScheduler) WorkerCount() int { return s.workerCount }

// QueuedTaskSourceCount returns the number of task sources awaiting dispatch.
func (s *TaskScheduler) QueuedTaskSourceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Size()
}

// QueuedSourceCounts returns the foreground/background split of the queue.
func (s *TaskScheduler) QueuedSourceCounts() (foreground, background int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.NumForegroundSources(), s.queue.NumBackgroundSources()
}

func (s *TaskScheduler) ActiveTaskCount() int { return int(atomic.LoadInt32(&s.metricActive)) }

func (s *TaskScheduler) DelayedTaskCount() int {
	return s.delayManager.TaskCount()
}

func (s *TaskScheduler) OnTaskStart() {
	atomic.AddInt32(&s.metricActive, 1)
}

func (s *TaskScheduler) OnTaskEnd() {
	atomic.AddInt32(&s.metricActive, -1)
}

// RecordExecution appends a record to the bounded execution history.
func (s *TaskScheduler) RecordExecution(record TaskExecutionRecord) {
	s.history.Add(record)
	s.metrics.RecordTaskDuration(s.name, record.Priority, record.Duration)
	if record.Panicked {
		s.metrics.RecordTaskPanic(s.name, record.PanicInfo)
	}
}

// RecentExecutions returns up to limit most recent execution records, newest
// first. limit <= 0 returns all retained records.
func (s *TaskScheduler) RecentExecutions(limit int) []TaskExecutionRecord {
	return s.history.Recent(limit)
}

// GetPanicHandler returns the panic handler for this scheduler
func (s *TaskScheduler) GetPanicHandler() PanicHandler {
	return s.panicHandler
}

// GetMetrics returns the metrics collector for this scheduler
func (s *TaskScheduler) GetMetrics() Metrics {
	return s.metrics
}

// GetLogger returns the logger for this scheduler
func (s *TaskScheduler) GetLogger() Logger {
	return s.logger
}
