package core

import "time"

// TaskExecutionRecord captures a completed task execution event.
type TaskExecutionRecord struct {
	PoolName   string
	WorkerID   int
	Priority   TaskPriority
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Panicked   bool
	PanicInfo  any
}

// SchedulerStats represents runtime observability state for a scheduler.
type SchedulerStats struct {
	Name                 string
	Workers              int
	QueuedSources        int
	ForegroundSources    int
	BackgroundSources    int
	Active               int
	Delayed              int
	FenceCount           int
	BestEffortFenceCount int
}

// Stats returns a point-in-time snapshot of the scheduler's state.
func (s *TaskScheduler) Stats() SchedulerStats {
	fg, bg := s.QueuedSourceCounts()
	full, bestEffort := s.FenceCounts()
	return SchedulerStats{
		Name:                 s.name,
		Workers:              s.workerCount,
		QueuedSources:        s.QueuedTaskSourceCount(),
		ForegroundSources:    fg,
		BackgroundSources:    bg,
		Active:               s.ActiveTaskCount(),
		Delayed:              s.DelayedTaskCount(),
		FenceCount:           full,
		BestEffortFenceCount: bestEffort,
	}
}

// PoolStats represents runtime observability state for a thread pool.
type PoolStats struct {
	ID      string
	Workers int
	Queued  int
	Active  int
	Delayed int
	Running bool

	ForegroundSources    int
	BackgroundSources    int
	FenceCount           int
	BestEffortFenceCount int
}
