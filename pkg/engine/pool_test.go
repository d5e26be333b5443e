package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPoolRunsTasks(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()

	var ran atomic.Int64
	done := make(chan struct{}, 1)
	for i := 0; i < 8; i++ {
		err := pool.Submit(context.Background(), func() {
			if ran.Add(1) == 8 {
				done <- struct{}{}
			}
		})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tasks did not finish")
	}
	if got := ran.Load(); got != 8 {
		t.Fatalf("ran %d tasks, want 8", got)
	}
}

func TestWorkerPoolSubmitAfterClose(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()

	// Submitting after Close must fail, never panic, even when repeated
	// enough to fill the internal queue.
	for i := 0; i < 32; i++ {
		if err := pool.Submit(context.Background(), func() {}); err == nil {
			t.Fatal("Submit after Close returned nil error")
		}
	}
}

func TestWorkerPoolSubmitCanceledContext(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Close()

	blocker := make(chan struct{})
	defer close(blocker)
	if err := pool.Submit(context.Background(), func() { <-blocker }); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	// Fill the queue so the next Submit would block.
	for i := 0; i < cap(pool.tasks); i++ {
		if err := pool.Submit(context.Background(), func() {}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pool.Submit(ctx, func() {}); err != context.Canceled {
		t.Fatalf("Submit err = %v, want context.Canceled", err)
	}
}

func TestWorkerCount(t *testing.T) {
	if got := WorkerCount(3); got != 3 {
		t.Fatalf("WorkerCount(3) = %d", got)
	}
	if got := WorkerCount(0); got < 1 {
		t.Fatalf("WorkerCount(0) = %d, want >= 1", got)
	}
}
