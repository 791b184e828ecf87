package taskpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kaidokert/taskpool/core"
)

// Ensure GoroutineThreadPool satisfies the interfaces fences and posting rely on.
var _ core.FenceController = (*GoroutineThreadPool)(nil)
var _ core.TaskRunner = (*GoroutineThreadPool)(nil)

func TestGoroutineThreadPool_Lifecycle(t *testing.T) {
	pool := NewGoroutineThreadPool("test-pool", 2)

	if pool.ID() != "test-pool" {
		t.Errorf("expected ID 'test-pool', got %s", pool.ID())
	}

	if pool.IsRunning() {
		t.Error("pool should not be running initially")
	}

	pool.Start(context.Background())

	if !pool.IsRunning() {
		t.Error("pool should be running after Start()")
	}

	if pool.WorkerCount() != 2 {
		t.Errorf("expected 2 workers, got %d", pool.WorkerCount())
	}

	pool.Stop()

	if pool.IsRunning() {
		t.Error("pool should not be running after Stop()")
	}
}

func TestGoroutineThreadPool_TaskExecution(t *testing.T) {
	pool := NewGoroutineThreadPool("exec-pool", 4)
	pool.Start(context.Background())
	defer pool.Stop()

	var counter int32
	var wg sync.WaitGroup
	taskCount := 10

	wg.Add(taskCount)

	task := func(ctx context.Context) {
		defer wg.Done()
		atomic.AddInt32(&counter, 1)
		time.Sleep(10 * time.Millisecond) // Simulate work
	}

	for i := 0; i < taskCount; i++ {
		pool.PostTask(task)
	}

	wg.Wait()

	if val := atomic.LoadInt32(&counter); val != int32(taskCount) {
		t.Errorf("expected %d executed tasks, got %d", taskCount, val)
	}
}

func TestGoroutineThreadPool_PriorityOrdering(t *testing.T) {
	pool := NewGoroutineThreadPool("priority-pool", 1) // Single worker forces queuing
	pool.Start(context.Background())
	defer pool.Stop()

	// Block the worker so the queue builds up, then post in reverse priority
	// order. The worker must drain highest priority first.
	blockCh := make(chan struct{})
	started := make(chan struct{})
	pool.PostTask(func(ctx context.Context) {
		close(started)
		<-blockCh
	})
	<-started

	var mu sync.Mutex
	var order []TaskPriority
	record := func(p TaskPriority) Task {
		return func(ctx context.Context) {
			mu.Lock()
			order = append(order, p)
			mu.Unlock()
		}
	}

	done := make(chan struct{})
	pool.PostTaskWithTraits(record(TaskPriorityBestEffort), TraitsBestEffort())
	pool.PostTaskWithTraits(record(TaskPriorityUserVisible), TraitsUserVisible())
	pool.PostTaskWithTraits(record(TaskPriorityUserBlocking), TraitsUserBlocking())
	pool.PostTaskWithTraits(func(ctx context.Context) { close(done) }, TraitsBestEffort())

	close(blockCh)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queued tasks did not drain")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []TaskPriority{TaskPriorityUserBlocking, TaskPriorityUserVisible, TaskPriorityBestEffort}
	for i, p := range want {
		if order[i] != p {
			t.Errorf("position %d: expected %v, got %v", i, p, order[i])
		}
	}
}

func TestGoroutineThreadPool_DelayedTask(t *testing.T) {
	pool := NewGoroutineThreadPool("delay-pool", 2)
	pool.Start(context.Background())
	defer pool.Stop()

	done := make(chan time.Time, 1)
	start := time.Now()
	pool.PostDelayedTask(func(ctx context.Context) {
		done <- time.Now()
	}, 50*time.Millisecond)

	if count := pool.DelayedTaskCount(); count != 1 {
		t.Errorf("expected 1 delayed task, got %d", count)
	}

	select {
	case fired := <-done:
		if elapsed := fired.Sub(start); elapsed < 40*time.Millisecond {
			t.Errorf("delayed task fired too early: %v", elapsed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("delayed task never fired")
	}
}

func TestGoroutineThreadPool_Metrics(t *testing.T) {
	pool := NewGoroutineThreadPool("metrics-pool", 1) // Single worker to force queuing
	pool.Start(context.Background())
	defer pool.Stop()

	// 1. Block the worker
	blockCh := make(chan struct{})
	bgDone := make(chan struct{})

	pool.PostTask(func(ctx context.Context) {
		<-blockCh
		bgDone <- struct{}{}
	})

	// Wait a bit for worker to pick it up
	time.Sleep(50 * time.Millisecond)

	if active := pool.ActiveTaskCount(); active != 1 {
		t.Errorf("expected 1 active task, got %d", active)
	}

	// 2. Queue more tasks
	pool.PostTaskWithTraits(func(ctx context.Context) {}, TraitsUserBlocking())
	pool.PostTaskWithTraits(func(ctx context.Context) {}, TraitsBestEffort())

	// Wait for queue update
	time.Sleep(10 * time.Millisecond)

	stats := pool.Stats()
	if stats.Queued != 2 {
		t.Errorf("expected 2 queued sources, got %d", stats.Queued)
	}
	if stats.ForegroundSources != 1 || stats.BackgroundSources != 1 {
		t.Errorf("expected 1 foreground / 1 background, got %d / %d",
			stats.ForegroundSources, stats.BackgroundSources)
	}

	// 3. Unblock
	close(blockCh)
	<-bgDone

	// Wait for drain
	time.Sleep(100 * time.Millisecond)

	if active := pool.ActiveTaskCount(); active != 0 {
		t.Errorf("expected 0 active tasks, got %d", active)
	}
	if queued := pool.QueuedTaskSourceCount(); queued != 0 {
		t.Errorf("expected 0 queued sources, got %d", queued)
	}
}

func TestGoroutineThreadPool_PanicRecovery(t *testing.T) {
	pool := NewGoroutineThreadPool("panic-pool", 1)
	pool.Start(context.Background())
	defer pool.Stop()

	pool.PostTask(func(ctx context.Context) {
		panic("task blew up")
	})

	// The worker must survive the panic and keep executing.
	done := make(chan struct{})
	pool.PostTask(func(ctx context.Context) { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive a panicking task")
	}

	records := pool.RecentExecutions(0)
	found := false
	for _, r := range records {
		if r.Panicked {
			found = true
			if r.PanicInfo != "task blew up" {
				t.Errorf("expected panic info 'task blew up', got %v", r.PanicInfo)
			}
		}
	}
	if !found {
		t.Error("expected a panicked execution record")
	}
}

func TestGoroutineThreadPool_StopGraceful(t *testing.T) {
	pool := NewGoroutineThreadPool("graceful-pool", 2)
	pool.Start(context.Background())

	var counter int32
	for i := 0; i < 5; i++ {
		pool.PostTask(func(ctx context.Context) {
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&counter, 1)
		})
	}

	if err := pool.StopGraceful(2 * time.Second); err != nil {
		t.Fatalf("graceful stop failed: %v", err)
	}

	if val := atomic.LoadInt32(&counter); val != 5 {
		t.Errorf("expected 5 tasks completed before stop, got %d", val)
	}
	if pool.IsRunning() {
		t.Error("pool should not be running after StopGraceful")
	}
}

func TestGoroutineThreadPool_SequencePostsRunInOrder(t *testing.T) {
	pool := NewGoroutineThreadPool("seq-pool", 4)
	pool.Start(context.Background())
	defer pool.Stop()

	seq := pool.CreateSequence(DefaultTaskTraits())

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	const n = 20
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		seq.PostTask(func(ctx context.Context) {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i := 0; i < n; i++ {
		if order[i] != i {
			t.Fatalf("sequence order violated at %d: got %v", i, order)
		}
	}
}

func TestGlobalThreadPool(t *testing.T) {
	defer ShutdownGlobalThreadPool()

	InitGlobalThreadPool(2)
	pool := GetGlobalThreadPool()
	if pool == nil {
		t.Fatal("expected a global pool after init")
	}

	done := make(chan struct{})
	runner := CreateTaskRunner(DefaultTaskTraits())
	runner.PostTask(func(ctx context.Context) { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task on global pool runner never ran")
	}

	ShutdownGlobalThreadPool()

	defer func() {
		if recover() == nil {
			t.Error("expected panic after shutdown")
		}
	}()
	GetGlobalThreadPool()
}
