package core

// FenceController is the scheduler surface the fence guards drive. The worker
// pool implements it by delegating to its TaskScheduler.
type FenceController interface {
	BeginFence()
	EndFence()
	BeginBestEffortFence()
	EndBestEffortFence()
}

// ExecutionFence prevents the pool from starting any task that was not
// already running when the fence was raised, until Release is called. Fences
// nest: admission resumes only once every fence has been released. Already
// running tasks are never disturbed.
//
// A nil or torn-down controller at construction or release time is a
// lifecycle bug in the host process, not a recoverable state, and panics.
type ExecutionFence struct {
	controller FenceController
	released   bool
}

// NewExecutionFence raises a full fence on the given controller.
func NewExecutionFence(controller FenceController) *ExecutionFence {
	if controller == nil {
		panic("core: NewExecutionFence requires a fence controller")
	}
	controller.BeginFence()
	return &ExecutionFence{controller: controller}
}

// Release lowers the fence. Calling Release twice is a programmer error.
func (f *ExecutionFence) Release() {
	if f.released {
		panic("core: ExecutionFence released twice")
	}
	f.released = true
	f.controller.EndFence()
}

// BestEffortExecutionFence is the same mechanism restricted to best-effort
// priority work; higher-priority tasks keep dispatching normally while it is
// active.
type BestEffortExecutionFence struct {
	controller FenceController
	released   bool
}

// NewBestEffortExecutionFence raises a best-effort fence on the controller.
func NewBestEffortExecutionFence(controller FenceController) *BestEffortExecutionFence {
	if controller == nil {
		panic("core: NewBestEffortExecutionFence requires a fence controller")
	}
	controller.BeginBestEffortFence()
	return &BestEffortExecutionFence{controller: controller}
}

// Release lowers the fence. Calling Release twice is a programmer error.
func (f *BestEffortExecutionFence) Release() {
	if f.released {
		panic("core: BestEffortExecutionFence released twice")
	}
	f.released = true
	f.controller.EndBestEffortFence()
}
