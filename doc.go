// Package taskpool provides a priority-scheduled worker pool with execution
// fences for Go.
//
// Producers post tasks to task sources (a Sequence is the common one); the
// pool's scheduler keeps queued sources in a priority queue ordered by a
// dynamic sort key (priority class plus insertion order, so equal priorities
// dispatch FIFO), and worker goroutines pull the highest-priority admissible
// source one task at a time.
//
// # Quick Start
//
// Initialize the global thread pool at application startup:
//
//	taskpool.InitGlobalThreadPool(4) // 4 workers
//	defer taskpool.ShutdownGlobalThreadPool()
//
// Create a Sequence for sequential task execution:
//
//	runner := taskpool.CreateTaskRunner(taskpool.DefaultTaskTraits())
//	runner.PostTask(func(ctx context.Context) {
//		// Your code here - guaranteed sequential execution
//	})
//
// # Key Concepts
//
// Sequence: a FIFO task source. Tasks posted to a Sequence execute one at a
// time, eliminating the need for locks on resources owned by that sequence.
// Priority determines when the sequence gets scheduled, not the order within
// the sequence.
//
// TaskTraits: describes task attributes including priority (BestEffort,
// UserVisible, UserBlocking). Best-effort sources count as background for the
// scheduler's bookkeeping; everything else is foreground.
//
// Execution fences: scoped guards that pause admission of new work without
// disturbing tasks that are already running. A full fence parks everything; a
// best-effort fence parks only best-effort work. Fences nest, and independent
// fences may overlap in any order; work resumes once the last applicable
// fence is released.
//
//	fence := taskpool.NewBestEffortExecutionFence(pool)
//	// ... best-effort tasks queue up but do not start ...
//	fence.Release()
//
// # Example
//
//	func main() {
//		taskpool.InitGlobalThreadPool(4)
//		defer taskpool.ShutdownGlobalThreadPool()
//
//		runner := taskpool.CreateTaskRunner(taskpool.DefaultTaskTraits())
//
//		// Tasks execute sequentially
//		runner.PostTask(func(ctx context.Context) {
//			println("Task 1")
//		})
//		runner.PostTask(func(ctx context.Context) {
//			println("Task 2")
//		})
//
//		// Delayed task
//		runner.PostDelayedTask(func(ctx context.Context) {
//			println("Task 3 - delayed")
//		}, 1*time.Second)
//	}
package taskpool
