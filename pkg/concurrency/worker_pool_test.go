package concurrency

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPoolRunsAllSubmittedTasks(t *testing.T) {
	pool := NewWorkerPool(4, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	var count int64
	for i := 0; i < 20; i++ {
		pool.Submit(func(ctx context.Context) {
			atomic.AddInt64(&count, 1)
		})
	}
	pool.Stop()

	if got := atomic.LoadInt64(&count); got != 20 {
		t.Fatalf("expected 20 tasks to run, got %d", got)
	}
}

func TestWorkerPoolStopsOnContextCancel(t *testing.T) {
	pool := NewWorkerPool(1, 4)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	blocked := make(chan struct{})
	pool.Submit(func(ctx context.Context) {
		<-ctx.Done()
		close(blocked)
	})

	cancel()

	select {
	case <-blocked:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not observe context cancellation")
	}
}
