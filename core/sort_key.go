package core

// TaskSourceSortKey determines a task source's position in the priority queue.
// Ordering is a strict weak order: higher priority runs first, and among equal
// priorities the lower (earlier) sequence number runs first, giving FIFO
// behavior between same-priority sources. The tiebreak is deterministic on
// purpose; reproducible scheduling tests depend on it.
type TaskSourceSortKey struct {
	Priority TaskPriority

	// Sequence is an insertion-ordering number assigned by the scheduler at
	// (re-)insertion time. It only breaks ties between equal priorities.
	Sequence uint64
}

// RunsBefore reports whether k is strictly greater than other in the max-heap
// order, i.e. whether k's task source should be dispatched first.
func (k TaskSourceSortKey) RunsBefore(other TaskSourceSortKey) bool {
	if k.Priority != other.Priority {
		return k.Priority > other.Priority
	}
	return k.Sequence < other.Sequence
}
