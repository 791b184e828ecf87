package core

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// spawningRunner runs every posted task on its own goroutine, giving the
// parallel runner unlimited downstream concurrency.
type spawningRunner struct {
	wg sync.WaitGroup
}

func (r *spawningRunner) PostTask(task Task) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		task(context.Background())
	}()
}

func (r *spawningRunner) PostDelayedTask(task Task, delay time.Duration) {
	time.AfterFunc(delay, func() { r.PostTask(task) })
}

func TestParallelTaskRunner_ConcurrencyCap(t *testing.T) {
	target := &spawningRunner{}
	runner := NewParallelTaskRunner(target, 3)

	var current, peak int32
	release := make(chan struct{})
	var wg sync.WaitGroup

	const n = 10
	wg.Add(n)
	for i := 0; i < n; i++ {
		runner.PostTask(func(ctx context.Context) {
			defer wg.Done()
			c := atomic.AddInt32(&current, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if c <= p || atomic.CompareAndSwapInt32(&peak, p, c) {
					break
				}
			}
			<-release
			atomic.AddInt32(&current, -1)
		})
	}

	// All slots busy, the rest must be queued.
	time.Sleep(50 * time.Millisecond)
	if running := runner.RunningTaskCount(); running != 3 {
		t.Errorf("expected 3 running, got %d", running)
	}
	if pending := runner.PendingTaskCount(); pending != n-3 {
		t.Errorf("expected %d pending, got %d", n-3, pending)
	}

	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&peak); got > 3 {
		t.Errorf("concurrency cap violated: peak=%d", got)
	}
	if pending := runner.PendingTaskCount(); pending != 0 {
		t.Errorf("expected empty queue after drain, got %d", pending)
	}
}

func TestParallelTaskRunner_PromotesQueuedOnCompletion(t *testing.T) {
	target := &spawningRunner{}
	runner := NewParallelTaskRunner(target, 1)

	firstRunning := make(chan struct{})
	releaseFirst := make(chan struct{})
	secondRan := make(chan struct{})

	runner.PostTask(func(ctx context.Context) {
		close(firstRunning)
		<-releaseFirst
	})
	<-firstRunning

	runner.PostTask(func(ctx context.Context) { close(secondRan) })

	select {
	case <-secondRan:
		t.Fatal("second task ran while the only slot was occupied")
	case <-time.After(50 * time.Millisecond):
	}

	close(releaseFirst)
	select {
	case <-secondRan:
	case <-time.After(2 * time.Second):
		t.Fatal("queued task was never promoted")
	}
}

func TestParallelTaskRunner_SlotReleasedOnPanic(t *testing.T) {
	// Recover downstream like a pool worker would, so the panic doesn't kill
	// the test goroutine.
	target := &spawningRunner{}
	safeTarget := &recoveringRunner{inner: target}
	runner := NewParallelTaskRunner(safeTarget, 1)

	runner.PostTask(func(ctx context.Context) { panic("boom") })

	done := make(chan struct{})
	runner.PostTask(func(ctx context.Context) { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("slot was not released after a panicking task")
	}
}

type recoveringRunner struct {
	inner TaskRunner
}

func (r *recoveringRunner) PostTask(task Task) {
	r.inner.PostTask(func(ctx context.Context) {
		defer func() { recover() }()
		task(ctx)
	})
}

func (r *recoveringRunner) PostDelayedTask(task Task, delay time.Duration) {
	r.inner.PostDelayedTask(task, delay)
}

func TestParallelTaskRunner_ShutdownDropsQueued(t *testing.T) {
	target := &spawningRunner{}
	runner := NewParallelTaskRunner(target, 1)

	block := make(chan struct{})
	started := make(chan struct{})
	runner.PostTask(func(ctx context.Context) {
		close(started)
		<-block
	})
	<-started

	var ran atomic.Int32
	runner.PostTask(func(ctx context.Context) { ran.Add(1) })

	runner.Shutdown()
	close(block)
	time.Sleep(50 * time.Millisecond)

	if !runner.IsClosed() {
		t.Error("expected IsClosed after Shutdown")
	}
	if got := ran.Load(); got != 0 {
		t.Errorf("queued task ran after Shutdown, ran=%d", got)
	}

	runner.PostTask(func(ctx context.Context) { ran.Add(1) })
	time.Sleep(50 * time.Millisecond)
	if got := ran.Load(); got != 0 {
		t.Errorf("post after Shutdown was accepted, ran=%d", got)
	}
}

func TestParallelTaskRunner_InvalidConstruction(t *testing.T) {
	target := &spawningRunner{}

	for _, tc := range []struct {
		name string
		fn   func()
	}{
		{"nil target", func() { NewParallelTaskRunner(nil, 1) }},
		{"zero concurrency", func() { NewParallelTaskRunner(target, 0) }},
		{"excessive concurrency", func() { NewParallelTaskRunner(target, maxAllowedConcurrency+1) }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			tc.fn()
		})
	}
}
