package worker

import (
	"context"
	"runtime"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewWorkerPool(t *testing.T) {
	pool := NewPool(4)
	if pool.NumWorkers() != 4 {
		t.Errorf("expected 4 workers, got %d", pool.NumWorkers())
	}

	// Zero should default to CPU count
	pool2 := NewPool(0)
	if pool2.NumWorkers() != runtime.NumCPU() {
		t.Errorf("expected %d workers, got %d", runtime.NumCPU(), pool2.NumWorkers())
	}
}

func TestWorkerPoolNegativeWorkers(t *testing.T) {
	pool := NewPool(-5)
	if pool.NumWorkers() != runtime.NumCPU() {
		t.Errorf("expected %d workers for negative input, got %d", runtime.NumCPU(), pool.NumWorkers())
	}
}

func TestWorkerPoolStartStop(t *testing.T) {
	pool := NewPool(2)
	ctx := context.Background()

	pool.Start(ctx)
	// Double start should be no-op
	pool.Start(ctx)

	pool.Stop()
	// Double stop should be no-op
	pool.Stop()
	pool.Wait()
}

func TestWorkerPoolSubmitBeforeStart(t *testing.T) {
	pool := NewPool(1)
	if pool.Submit(func(context.Context, int) {}) {
		t.Error("expected Submit to return false before Start")
	}
}

func TestWorkerPoolWaitRunsEverything(t *testing.T) {
	pool := NewPool(3)
	pool.Start(context.Background())

	var counter atomic.Int32
	for range 50 {
		if !pool.Submit(func(context.Context, int) {
			time.Sleep(time.Millisecond)
			counter.Add(1)
		}) {
			t.Fatal("expected Submit to succeed")
		}
	}
	pool.Wait()

	if counter.Load() != 50 {
		t.Errorf("expected 50 jobs completed, got %d", counter.Load())
	}
	if pool.QueueSize() != 0 {
		t.Errorf("expected empty queue, got %d", pool.QueueSize())
	}
}

func TestWorkerPoolJobIDs(t *testing.T) {
	pool := NewPool(2)
	pool.Start(context.Background())

	var bad atomic.Int32
	for range 20 {
		pool.Submit(func(_ context.Context, id int) {
			if id < 0 || id >= 2 {
				bad.Add(1)
			}
		})
	}
	pool.Wait()

	if bad.Load() != 0 {
		t.Errorf("%d jobs saw an out-of-range worker id", bad.Load())
	}
}

func TestWorkerPoolSubmitAfterWait(t *testing.T) {
	pool := NewPool(2)
	pool.Start(context.Background())
	pool.Wait()

	if pool.Submit(func(context.Context, int) {}) {
		t.Error("expected Submit to return false after Wait")
	}
}

func TestWorkerPoolStopCancelsJobs(t *testing.T) {
	pool := NewPool(2)
	pool.Start(context.Background())

	started := make(chan struct{})
	var cancelled atomic.Bool
	pool.Submit(func(ctx context.Context, _ int) {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
	})

	<-started
	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
	if !cancelled.Load() {
		t.Error("expected running job to observe cancellation")
	}
}

func TestWorkerPoolContextCancel(t *testing.T) {
	pool := NewPool(2)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	cancel()

	if pool.Submit(func(context.Context, int) {}) {
		t.Error("expected Submit to return false after context cancel")
	}
	pool.Stop()
}

func TestWorkerPoolConcurrentSubmit(t *testing.T) {
	pool := NewPool(4)
	pool.Start(context.Background())

	var counter atomic.Int32
	const numGoroutines = 10
	const jobsPerGoroutine = 100

	var submitted atomic.Int32
	submitted.Store(numGoroutines)
	for range numGoroutines {
		go func() {
			for range jobsPerGoroutine {
				pool.Submit(func(context.Context, int) {
					counter.Add(1)
				})
			}
			submitted.Add(-1)
		}()
	}

	for submitted.Load() > 0 {
		time.Sleep(time.Millisecond)
	}
	pool.Wait()

	expected := int32(numGoroutines * jobsPerGoroutine)
	if counter.Load() != expected {
		t.Errorf("expected %d jobs completed, got %d", expected, counter.Load())
	}
}
