package core

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// inlineRunner runs posted tasks immediately on the posting goroutine.
type inlineRunner struct {
	executed atomic.Int32
}

func (r *inlineRunner) PostTask(task Task) {
	task(context.Background())
	r.executed.Add(1)
}

func (r *inlineRunner) PostDelayedTask(task Task, delay time.Duration) {
	r.PostTask(task)
}

func TestDelayManager_PostsAfterDelay(t *testing.T) {
	dm := NewDelayManager()
	defer dm.Stop()

	runner := &inlineRunner{}
	var executedAt atomic.Int64

	start := time.Now()
	dm.AddDelayedTask(func(ctx context.Context) {
		executedAt.Store(time.Now().UnixNano())
	}, 50*time.Millisecond, runner)

	time.Sleep(200 * time.Millisecond)

	if executedAt.Load() == 0 {
		t.Fatal("Task was not executed")
	}
	elapsed := time.Unix(0, executedAt.Load()).Sub(start)
	if elapsed < 30*time.Millisecond || elapsed > 120*time.Millisecond {
		t.Errorf("Expected ~50ms delay, got %v", elapsed)
	}
}

func TestDelayManager_OrderFollowsDeadlines(t *testing.T) {
	dm := NewDelayManager()
	defer dm.Stop()

	var mu sync.Mutex
	var order []int
	runner := &inlineRunner{}

	// Add out of deadline order; the heap must still fire 1, 2, 3.
	for _, c := range []struct {
		id    int
		delay time.Duration
	}{
		{3, 90 * time.Millisecond},
		{1, 30 * time.Millisecond},
		{2, 60 * time.Millisecond},
	} {
		id := c.id
		dm.AddDelayedTask(func(ctx context.Context) {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
		}, c.delay, runner)
	}

	time.Sleep(250 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 {
		t.Fatalf("Expected 3 tasks executed, got %d", len(order))
	}
	for i, want := range []int{1, 2, 3} {
		if order[i] != want {
			t.Errorf("Position %d: expected task %d, got %d", i, want, order[i])
		}
	}
}

func TestDelayManager_EarlierTaskRetargetsTimer(t *testing.T) {
	dm := NewDelayManager()
	defer dm.Stop()

	runner := &inlineRunner{}

	// Park the loop on a long deadline, then add a short one; the wakeup
	// channel must re-arm the timer for the earlier deadline.
	dm.AddDelayedTask(func(ctx context.Context) {}, time.Hour, runner)
	dm.AddDelayedTask(func(ctx context.Context) {}, 20*time.Millisecond, runner)

	time.Sleep(150 * time.Millisecond)

	if got := runner.executed.Load(); got != 1 {
		t.Errorf("Expected the short-delay task to fire, executed=%d", got)
	}
	if count := dm.TaskCount(); count != 1 {
		t.Errorf("Expected the long-delay task to remain queued, TaskCount=%d", count)
	}
}

func TestDelayManager_ConcurrentAdd(t *testing.T) {
	dm := NewDelayManager()
	defer dm.Stop()

	runner := &inlineRunner{}

	const numTasks = 100
	var wg sync.WaitGroup
	for i := 0; i < numTasks; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			delay := time.Duration(id%10)*10*time.Millisecond + 50*time.Millisecond
			dm.AddDelayedTask(func(ctx context.Context) {}, delay, runner)
		}(i)
	}
	wg.Wait()

	time.Sleep(500 * time.Millisecond)

	count := runner.executed.Load()
	if count < numTasks*90/100 { // Allow 10% tolerance
		t.Errorf("Expected ~%d tasks executed, got %d", numTasks, count)
	}
}

func TestDelayManager_StopDropsPending(t *testing.T) {
	dm := NewDelayManager()

	runner := &inlineRunner{}
	for i := 0; i < 10; i++ {
		dm.AddDelayedTask(func(ctx context.Context) {}, time.Second, runner)
	}
	if count := dm.TaskCount(); count != 10 {
		t.Errorf("Expected 10 tasks queued, got %d", count)
	}

	dm.Stop()

	if count := dm.TaskCount(); count != 0 {
		t.Errorf("Expected Stop to clear pending tasks, got %d", count)
	}
	time.Sleep(50 * time.Millisecond)
	if got := runner.executed.Load(); got != 0 {
		t.Errorf("Expected no tasks to run after Stop, executed=%d", got)
	}
}
