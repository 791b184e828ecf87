package taskpool

import "github.com/kaidokert/taskpool/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the taskpool package for most use cases.

// Task is the unit of work (Closure)
type Task = core.Task

// TaskTraits defines task attributes (priority, blocking behavior, etc.)
type TaskTraits = core.TaskTraits

// TaskPriority defines the priority levels for tasks
type TaskPriority = core.TaskPriority

// TaskRunner is the interface for posting tasks
type TaskRunner = core.TaskRunner

// TaskSource is an opaque schedulable unit of queued work
type TaskSource = core.TaskSource

// Sequence ensures sequential execution of tasks posted to it
type Sequence = core.Sequence

// SingleThreadTaskRunner runs tasks sequentially on one dedicated goroutine
type SingleThreadTaskRunner = core.SingleThreadTaskRunner

// ParallelTaskRunner fans tasks out with a concurrency cap
type ParallelTaskRunner = core.ParallelTaskRunner

// ExecutionFence blocks admission of all new work while held
type ExecutionFence = core.ExecutionFence

// BestEffortExecutionFence blocks admission of best-effort work while held
type BestEffortExecutionFence = core.BestEffortExecutionFence

// Priority constants
const (
	TaskPriorityBestEffort   TaskPriority = core.TaskPriorityBestEffort
	TaskPriorityUserVisible  TaskPriority = core.TaskPriorityUserVisible
	TaskPriorityUserBlocking TaskPriority = core.TaskPriorityUserBlocking
)

// Convenience functions for creating TaskTraits
var (
	DefaultTaskTraits  = core.DefaultTaskTraits
	TraitsUserBlocking = core.TraitsUserBlocking
	TraitsBestEffort   = core.TraitsBestEffort
	TraitsUserVisible  = core.TraitsUserVisible
)

// NewExecutionFence raises a full fence on the given pool. New work of any
// priority is parked until Release.
func NewExecutionFence(pool *GoroutineThreadPool) *ExecutionFence {
	return core.NewExecutionFence(pool)
}

// NewBestEffortExecutionFence raises a best-effort fence on the given pool.
// Only best-effort work is parked until Release.
func NewBestEffortExecutionFence(pool *GoroutineThreadPool) *BestEffortExecutionFence {
	return core.NewBestEffortExecutionFence(pool)
}

// NewSingleThreadTaskRunner creates a runner with its own dedicated goroutine.
var NewSingleThreadTaskRunner = core.NewSingleThreadTaskRunner

// NewParallelTaskRunner creates a concurrency-capped runner over target.
var NewParallelTaskRunner = core.NewParallelTaskRunner

// PostTaskAndReply runs task on target, then posts reply to replyRunner.
var PostTaskAndReply = core.PostTaskAndReply

// GetCurrentTaskRunner retrieves the current TaskRunner from context
var GetCurrentTaskRunner = core.GetCurrentTaskRunner
