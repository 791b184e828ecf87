package taskpool_test

import (
	"context"
	"fmt"
	"time"

	taskpool "github.com/kaidokert/taskpool"
)

// ExampleCreateTaskRunner demonstrates the basic usage with only one import.
func ExampleCreateTaskRunner() {
	// Initialize global thread pool
	taskpool.InitGlobalThreadPool(2)
	defer taskpool.ShutdownGlobalThreadPool()

	// Create a sequence; tasks posted to it run one at a time, in order
	runner := taskpool.CreateTaskRunner(taskpool.DefaultTaskTraits())

	done := make(chan struct{})

	runner.PostTask(func(ctx context.Context) {
		fmt.Println("Task 1")
	})

	runner.PostTask(func(ctx context.Context) {
		fmt.Println("Task 2")
	})

	runner.PostTask(func(ctx context.Context) {
		fmt.Println("Task 3")
		close(done)
	})

	<-done
	time.Sleep(10 * time.Millisecond) // Allow output to flush

	// Output:
	// Task 1
	// Task 2
	// Task 3
}

// ExampleNewExecutionFence demonstrates pausing and resuming a pool.
func ExampleNewExecutionFence() {
	pool := taskpool.NewGoroutineThreadPool("example", 2)
	pool.Start(context.Background())
	defer pool.Stop()

	// While the fence is held, posted work is queued but never started.
	fence := taskpool.NewExecutionFence(pool)

	done := make(chan struct{})
	pool.PostTask(func(ctx context.Context) {
		fmt.Println("ran after the fence lifted")
		close(done)
	})

	fmt.Println("queued:", pool.QueuedTaskSourceCount())

	fence.Release()
	<-done
	time.Sleep(10 * time.Millisecond)

	// Output:
	// queued: 1
	// ran after the fence lifted
}

// ExampleNewBestEffortExecutionFence demonstrates shedding background work
// while keeping user-facing work flowing.
func ExampleNewBestEffortExecutionFence() {
	pool := taskpool.NewGoroutineThreadPool("example", 1)
	pool.Start(context.Background())
	defer pool.Stop()

	fence := taskpool.NewBestEffortExecutionFence(pool)

	background := make(chan struct{})
	pool.PostTaskWithTraits(func(ctx context.Context) {
		fmt.Println("background cleanup")
		close(background)
	}, taskpool.TraitsBestEffort())

	urgent := make(chan struct{})
	pool.PostTaskWithTraits(func(ctx context.Context) {
		fmt.Println("urgent work")
		close(urgent)
	}, taskpool.TraitsUserBlocking())

	<-urgent
	fence.Release()
	<-background
	time.Sleep(10 * time.Millisecond)

	// Output:
	// urgent work
	// background cleanup
}
