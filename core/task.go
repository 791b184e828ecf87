package core

import (
	"context"
	"time"
)

// Task is the unit of work (Closure)
type Task func(ctx context.Context)

// =============================================================================
// TaskTraits: Define task attributes (priority, blocking behavior, etc.)
// =============================================================================

type TaskPriority int

const (
	// TaskPriorityBestEffort: Lowest priority
	// Best-effort tasks are background work the user is not waiting on; they
	// are the only class gated by a best-effort execution fence.
	TaskPriorityBestEffort TaskPriority = iota

	// TaskPriorityUserVisible: Default priority
	TaskPriorityUserVisible

	// TaskPriorityUserBlocking: Highest priority
	// `UserBlocking` means the user is actively waiting on the result.
	TaskPriorityUserBlocking
)

func (p TaskPriority) String() string {
	switch p {
	case TaskPriorityBestEffort:
		return "best_effort"
	case TaskPriorityUserVisible:
		return "user_visible"
	case TaskPriorityUserBlocking:
		return "user_blocking"
	default:
		return "unknown"
	}
}

type TaskTraits struct {
	Priority TaskPriority
	MayBlock bool
	Category string
}

func DefaultTaskTraits() TaskTraits {
	return TaskTraits{Priority: TaskPriorityUserVisible}
}

func TraitsUserBlocking() TaskTraits {
	return TaskTraits{Priority: TaskPriorityUserBlocking}
}

func TraitsBestEffort() TaskTraits {
	return TaskTraits{Priority: TaskPriorityBestEffort}
}

func TraitsUserVisible() TaskTraits {
	return TaskTraits{Priority: TaskPriorityUserVisible}
}

// =============================================================================
// ThreadType: Worker classification derived from priority
// =============================================================================

// ThreadType classifies a task source for aggregate bookkeeping (how many
// background vs. foreground sources are queued). It never affects sort order.
type ThreadType int

const (
	ThreadTypeBackground ThreadType = iota
	ThreadTypeForeground
)

func (t ThreadType) String() string {
	if t == ThreadTypeBackground {
		return "background"
	}
	return "foreground"
}

// ThreadTypeMapper maps a task priority to the thread type used for the
// priority queue's foreground/background counts. It is a pluggable strategy
// supplied through SchedulerConfig.
type ThreadTypeMapper func(priority TaskPriority) ThreadType

// DefaultThreadTypeMapper classifies best-effort work as background and
// everything else as foreground.
func DefaultThreadTypeMapper(priority TaskPriority) ThreadType {
	if priority == TaskPriorityBestEffort {
		return ThreadTypeBackground
	}
	return ThreadTypeForeground
}

// =============================================================================
// TaskRunner: Define task submission interface
// =============================================================================
type TaskRunner interface {
	PostTask(task Task)
	PostDelayedTask(task Task, delay time.Duration)
}

// =============================================================================
// Context Helper
// =============================================================================
type taskRunnerKeyType struct{}

var taskRunnerKey taskRunnerKeyType

func GetCurrentTaskRunner(ctx context.Context) TaskRunner {
	if v := ctx.Value(taskRunnerKey); v != nil {
		return v.(TaskRunner)
	}
	return nil
}
