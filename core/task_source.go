package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/eapache/queue"
)

// =============================================================================
// HeapHandle: Stable position of a task source inside the priority queue
// =============================================================================

// HeapHandle locates a task source inside TaskSourcePriorityQueue's backing
// storage so that arbitrary-position removal and reordering cost O(log n).
// The zero value is invalid; the queue writes the current handle back into the
// task source on every heap mutation.
type HeapHandle struct {
	pos int // 1-based; 0 means "not in any queue"
}

// InvalidHeapHandle is the handle of a task source not held by any queue.
var InvalidHeapHandle = HeapHandle{}

func (h HeapHandle) IsValid() bool {
	return h.pos > 0
}

func (h HeapHandle) index() int {
	return h.pos - 1
}

func heapHandleForIndex(i int) HeapHandle {
	return HeapHandle{pos: i + 1}
}

// HeapHandleHolder is implemented by anything the intrusive heap can store.
// Embed TaskSourceBase to satisfy it.
type HeapHandleHolder interface {
	HeapHandle() HeapHandle
	SetHeapHandle(h HeapHandle)
	ClearHeapHandle()
}

// =============================================================================
// TaskSource: Opaque schedulable unit of queued work
// =============================================================================

// TaskSource is a unit of potentially-many queued tasks. Ownership is
// exclusive: at most one container (the priority queue, or the worker that
// popped it) holds a task source at a time.
type TaskSource interface {
	HeapHandleHolder

	// Priority returns the source's current priority class. It feeds the sort
	// key on (re-)insertion and the queue's foreground/background counts.
	Priority() TaskPriority

	// TakeTask extracts the next pending task. ok is false when the source has
	// nothing to run.
	TakeTask() (task Task, ok bool)

	// DidProcessTask is called after a taken task finished running. It reports
	// whether the source still has pending work and must be re-enqueued.
	DidProcessTask() bool
}

// TaskSourceBase provides the heap-handle storage every TaskSource needs.
// Embed it in concrete task source types.
type TaskSourceBase struct {
	handle HeapHandle
}

func (b *TaskSourceBase) HeapHandle() HeapHandle {
	return b.handle
}

func (b *TaskSourceBase) SetHeapHandle(h HeapHandle) {
	b.handle = h
}

func (b *TaskSourceBase) ClearHeapHandle() {
	b.handle = InvalidHeapHandle
}

// =============================================================================
// TaskSourceAndSortKey: Move-only pairing stored in the priority queue
// =============================================================================

// TaskSourceAndSortKey pairs a task source with the sort key assigned at
// (re-)insertion. The task source may be extracted exactly once via take;
// afterwards the pairing is dead and must not be reused.
type TaskSourceAndSortKey struct {
	taskSource TaskSource
	sortKey    TaskSourceSortKey
}

func NewTaskSourceAndSortKey(taskSource TaskSource, sortKey TaskSourceSortKey) TaskSourceAndSortKey {
	if taskSource == nil {
		panic("core: NewTaskSourceAndSortKey requires a non-nil task source")
	}
	return TaskSourceAndSortKey{taskSource: taskSource, sortKey: sortKey}
}

func (p *TaskSourceAndSortKey) SortKey() TaskSourceSortKey {
	return p.sortKey
}

func (p *TaskSourceAndSortKey) TaskSource() TaskSource {
	return p.taskSource
}

// take transfers ownership of the task source out of the pairing. Taking twice
// is a scheduler invariant violation.
func (p *TaskSourceAndSortKey) take() TaskSource {
	if p.taskSource == nil {
		panic("core: task source already taken from pairing")
	}
	ts := p.taskSource
	p.taskSource = nil
	return ts
}

// =============================================================================
// Sequence: FIFO task source executing at most one task at a time
// =============================================================================

// Sequence is the canonical TaskSource: a FIFO of tasks that runs at most one
// task at a time. After each task the sequence yields back to the scheduler,
// re-entering the priority queue behind same-priority peers, so a long
// sequence cannot starve the pool.
type Sequence struct {
	TaskSourceBase

	scheduler *TaskScheduler
	traits    TaskTraits

	mu     sync.Mutex
	tasks  *queue.Queue // pending Task closures, FIFO
	queued bool         // registered with the scheduler (queued or running)
	closed bool
}

var _ TaskSource = (*Sequence)(nil)
var _ TaskRunner = (*Sequence)(nil)

// NewSequence creates a sequence that dispatches through the given scheduler.
func NewSequence(scheduler *TaskScheduler, traits TaskTraits) *Sequence {
	if scheduler == nil {
		panic("core: NewSequence requires a scheduler")
	}
	return &Sequence{
		scheduler: scheduler,
		traits:    traits,
		tasks:     queue.New(),
	}
}

// Priority returns the sequence's current priority class.
func (s *Sequence) Priority() TaskPriority {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.traits.Priority
}

// SetPriority changes the sequence's priority class. If the sequence is
// currently queued it is re-keyed in place; the lock is dropped first so the
// scheduler can read the new priority without re-entering the sequence.
func (s *Sequence) SetPriority(priority TaskPriority) {
	s.mu.Lock()
	s.traits.Priority = priority
	s.mu.Unlock()
	s.scheduler.UpdateSortKey(s)
}

// Traits returns the traits the sequence was created with.
func (s *Sequence) Traits() TaskTraits {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.traits
}

// PostTask appends a task to the sequence and registers the sequence with the
// scheduler if it is not already queued or running.
func (s *Sequence) PostTask(task Task) {
	if task == nil {
		panic("core: Sequence.PostTask requires a non-nil task")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.tasks.Add(task)
	shouldEnqueue := !s.queued
	if shouldEnqueue {
		s.queued = true
	}
	s.mu.Unlock()

	if shouldEnqueue {
		s.scheduler.EnqueueTaskSource(s)
	}
}

// PostDelayedTask appends a task to the sequence after the given delay.
func (s *Sequence) PostDelayedTask(task Task, delay time.Duration) {
	if delay <= 0 {
		s.PostTask(task)
		return
	}
	s.scheduler.PostDelayedInternal(task, delay, s)
}

// TakeTask pops the sequence's next pending task. Called by the scheduler
// after the sequence was popped from the priority queue.
func (s *Sequence) TakeTask() (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tasks.Length() == 0 {
		// Popped with nothing to run (e.g. cleared by Shutdown between
		// enqueue and dispatch). Hand occupancy back.
		s.queued = false
		return nil, false
	}
	task := s.tasks.Remove().(Task)
	return task, true
}

// DidProcessTask reports whether the sequence still has pending tasks. When it
// returns false the sequence releases its queue occupancy and the next
// PostTask re-registers it.
func (s *Sequence) DidProcessTask() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.tasks.Length() == 0 {
		s.queued = false
		return false
	}
	return true
}

// PendingTaskCount returns the number of tasks waiting in the sequence.
func (s *Sequence) PendingTaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks.Length()
}

// Shutdown drops all pending tasks and rejects future posts. Tasks already
// handed to a worker are unaffected.
func (s *Sequence) Shutdown() {
	s.mu.Lock()
	s.closed = true
	s.tasks = queue.New()
	s.mu.Unlock()
}

// IsClosed returns true if the sequence has been shut down.
func (s *Sequence) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// =============================================================================
// singleTaskSource: One-shot task source for directly posted tasks
// =============================================================================

// singleTaskSource wraps one directly posted task. It never re-enqueues.
type singleTaskSource struct {
	TaskSourceBase

	traits TaskTraits
	task   Task
}

var _ TaskSource = (*singleTaskSource)(nil)

func newSingleTaskSource(task Task, traits TaskTraits) *singleTaskSource {
	if task == nil {
		panic("core: newSingleTaskSource requires a non-nil task")
	}
	return &singleTaskSource{traits: traits, task: task}
}

func (s *singleTaskSource) Priority() TaskPriority {
	return s.traits.Priority
}

func (s *singleTaskSource) TakeTask() (Task, bool) {
	if s.task == nil {
		return nil, false
	}
	task := s.task
	s.task = nil
	return task, true
}

func (s *singleTaskSource) DidProcessTask() bool {
	return false
}

func (s *singleTaskSource) String() string {
	return fmt.Sprintf("singleTaskSource(%s)", s.traits.Priority)
}
