package core

import (
	"container/heap"
	"context"
	"fmt"
)

const defaultQueueCap = 16

// =============================================================================
// taskSourceHeap: intrusive max-heap backing TaskSourcePriorityQueue
// =============================================================================

// taskSourceHeap implements heap.Interface over a dense slice of pairings.
// Every mutation writes the element's current position back into its task
// source as a HeapHandle, which is what makes O(log n) arbitrary-position
// removal and reordering possible.
type taskSourceHeap []TaskSourceAndSortKey

var _ heap.Interface = (*taskSourceHeap)(nil)

func (h taskSourceHeap) Len() int { return len(h) }

// Less implements max-heap order: the element that runs first sorts first.
func (h taskSourceHeap) Less(i, j int) bool {
	return h[i].sortKey.RunsBefore(h[j].sortKey)
}

func (h taskSourceHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].taskSource.SetHeapHandle(heapHandleForIndex(i))
	h[j].taskSource.SetHeapHandle(heapHandleForIndex(j))
}

func (h *taskSourceHeap) Push(x any) {
	pairing := x.(TaskSourceAndSortKey)
	pairing.taskSource.SetHeapHandle(heapHandleForIndex(len(*h)))
	*h = append(*h, pairing)
}

func (h *taskSourceHeap) Pop() any {
	old := *h
	n := len(old)
	pairing := old[n-1]
	old[n-1] = TaskSourceAndSortKey{} // release the reference
	pairing.taskSource.ClearHeapHandle()
	*h = old[:n-1]
	return pairing
}

// =============================================================================
// TaskSourcePriorityQueue
// =============================================================================

// TaskSourcePriorityQueue holds task sources awaiting dispatch, ordered by
// sort key (max first), and tracks how many queued sources are foreground vs.
// background class.
//
// The queue performs no internal locking. Every operation, including size
// reads, must run under the owning scheduler's mutex: push/pop decisions are
// made atomically with other scheduler bookkeeping such as fence checks and
// worker wake-ups.
type TaskSourcePriorityQueue struct {
	heap       taskSourceHeap
	threadType ThreadTypeMapper

	numForeground int
	numBackground int

	// When set, Destroy runs every remaining pending task inline instead of
	// dropping it. Testing only; unsafe for production shutdown ordering.
	flushOnDestroy bool
}

// NewTaskSourcePriorityQueue creates an empty queue. A nil mapper falls back
// to DefaultThreadTypeMapper.
func NewTaskSourcePriorityQueue(mapper ThreadTypeMapper) *TaskSourcePriorityQueue {
	if mapper == nil {
		mapper = DefaultThreadTypeMapper
	}
	return &TaskSourcePriorityQueue{
		heap:       make(taskSourceHeap, 0, defaultQueueCap),
		threadType: mapper,
	}
}

// Push inserts a task source with the sort key assigned at insertion.
// The task source must not already be in a queue.
func (q *TaskSourcePriorityQueue) Push(taskSource TaskSource, sortKey TaskSourceSortKey) {
	if taskSource == nil {
		panic("core: TaskSourcePriorityQueue.Push requires a non-nil task source")
	}
	if taskSource.HeapHandle().IsValid() {
		panic("core: task source is already in a queue")
	}

	heap.Push(&q.heap, NewTaskSourceAndSortKey(taskSource, sortKey))
	q.adjustCount(sortKey, +1)
}

// PeekSortKey returns the maximum element's sort key without removing it.
// The queue must not be empty.
func (q *TaskSourcePriorityQueue) PeekSortKey() TaskSourceSortKey {
	if q.IsEmpty() {
		panic("core: PeekSortKey on empty TaskSourcePriorityQueue")
	}
	return q.heap[0].sortKey
}

// PeekTaskSource returns the maximum element's task source without removing
// it. Mutating the returned source must not be used to change its sort order;
// use UpdateSortKey for that. The queue must not be empty.
func (q *TaskSourcePriorityQueue) PeekTaskSource() TaskSource {
	if q.IsEmpty() {
		panic("core: PeekTaskSource on empty TaskSourcePriorityQueue")
	}
	return q.heap[0].taskSource
}

// PopTaskSource removes and returns the maximum element, transferring
// ownership to the caller. The queue must not be empty.
func (q *TaskSourcePriorityQueue) PopTaskSource() TaskSource {
	if q.IsEmpty() {
		panic("core: PopTaskSource on empty TaskSourcePriorityQueue")
	}

	q.adjustCount(q.heap[0].sortKey, -1)
	pairing := heap.Pop(&q.heap).(TaskSourceAndSortKey)
	return pairing.take()
}

// RemoveTaskSource removes a specific, possibly non-maximum, task source and
// returns ownership of it. Returns nil if the queue is empty or the task
// source is not a member; callers may legitimately race to remove a source
// that already completed.
func (q *TaskSourcePriorityQueue) RemoveTaskSource(taskSource TaskSource) TaskSource {
	if q.IsEmpty() {
		return nil
	}

	handle := taskSource.HeapHandle()
	if !handle.IsValid() {
		return nil
	}

	i := handle.index()
	if i >= len(q.heap) || q.heap[i].taskSource != taskSource {
		panic(fmt.Sprintf("core: heap handle corruption (index %d)", i))
	}

	q.adjustCount(q.heap[i].sortKey, -1)
	pairing := heap.Remove(&q.heap, i).(TaskSourceAndSortKey)
	return pairing.take()
}

// UpdateSortKey re-prioritizes a queued task source in place. No-op if the
// queue is empty or the task source is not a member.
func (q *TaskSourcePriorityQueue) UpdateSortKey(taskSource TaskSource, sortKey TaskSourceSortKey) {
	if q.IsEmpty() {
		return
	}

	handle := taskSource.HeapHandle()
	if !handle.IsValid() {
		return
	}

	i := handle.index()
	if i >= len(q.heap) || q.heap[i].taskSource != taskSource {
		panic(fmt.Sprintf("core: heap handle corruption (index %d)", i))
	}

	q.adjustCount(q.heap[i].sortKey, -1)
	q.heap[i].sortKey = sortKey
	q.adjustCount(sortKey, +1)
	heap.Fix(&q.heap, i)
}

// IsEmpty returns true if the queue holds no task sources.
func (q *TaskSourcePriorityQueue) IsEmpty() bool {
	return len(q.heap) == 0
}

// Size returns the number of queued task sources.
func (q *TaskSourcePriorityQueue) Size() int {
	return len(q.heap)
}

// NumForegroundSources returns how many queued sources classify as foreground.
func (q *TaskSourcePriorityQueue) NumForegroundSources() int {
	return q.numForeground
}

// NumBackgroundSources returns how many queued sources classify as background.
func (q *TaskSourcePriorityQueue) NumBackgroundSources() int {
	return q.numBackground
}

// EnableFlushTaskSourcesOnDestroyForTesting makes Destroy run every remaining
// pending task inline so tests can observe that no work leaked. Never the
// default: forcing synchronous execution during teardown is unsafe for
// production shutdown ordering.
func (q *TaskSourcePriorityQueue) EnableFlushTaskSourcesOnDestroyForTesting() {
	q.flushOnDestroy = true
}

// Destroy releases all remaining task sources. By default their pending work
// is silently dropped (the normal shutdown path); in the opt-in testing mode
// it is drained inline instead.
func (q *TaskSourcePriorityQueue) Destroy() {
	for !q.IsEmpty() {
		taskSource := q.PopTaskSource()
		if !q.flushOnDestroy {
			continue
		}
		for {
			task, ok := taskSource.TakeTask()
			if !ok {
				break
			}
			task(context.Background())
			if !taskSource.DidProcessTask() {
				break
			}
		}
	}
}

func (q *TaskSourcePriorityQueue) adjustCount(sortKey TaskSourceSortKey, delta int) {
	if q.threadType(sortKey.Priority) == ThreadTypeBackground {
		q.numBackground += delta
	} else {
		q.numForeground += delta
	}
}
