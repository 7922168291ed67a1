package taskqueue

import (
	"context"
	"errors"
	"testing"
	"time"
)

// runQueueContract checks FIFO order, Len and cancellation for q, which
// must start empty.
func runQueueContract(t *testing.T, q Queue) {
	t.Helper()
	ctx := context.Background()

	t1 := NewExecuteTask("out-1", "wf", "tenant-1")
	t2 := NewExecuteTask("out-2", "wf", "tenant-1")
	t3 := NewExecuteTask("out-3", "wf", "tenant-2")
	for _, task := range []Task{t1, t2, t3} {
		if err := q.Enqueue(ctx, task); err != nil {
			t.Fatalf("Enqueue %s failed: %v", task.OutcomeID, err)
		}
	}

	if q.Len() != 3 {
		t.Fatalf("expected Len 3, got %d", q.Len())
	}

	for _, want := range []Task{t1, t2, t3} {
		got, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue failed: %v", err)
		}
		if got.ID != want.ID || got.OutcomeID != want.OutcomeID {
			t.Fatalf("expected %s/%s, got %s/%s", want.ID, want.OutcomeID, got.ID, got.OutcomeID)
		}
		if got.Type != TaskTypeExecuteOutcome || got.TenantID != want.TenantID || got.WorkflowID != "wf" {
			t.Fatalf("task fields not preserved: %+v", got)
		}
		if !got.EnqueuedAt.Equal(want.EnqueuedAt) {
			t.Fatalf("expected EnqueuedAt %v, got %v", want.EnqueuedAt, got.EnqueuedAt)
		}
	}

	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got Len %d", q.Len())
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := q.Dequeue(timeoutCtx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded on empty queue, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Dequeue did not honour cancellation promptly: %v", elapsed)
	}
}

// runBlockingDequeue checks that a waiting consumer receives a task enqueued
// after it started waiting.
func runBlockingDequeue(t *testing.T, q Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan *Task, 1)
	errs := make(chan error, 1)
	go func() {
		task, err := q.Dequeue(ctx)
		if err != nil {
			errs <- err
			return
		}
		got <- task
	}()

	time.Sleep(50 * time.Millisecond)
	want := NewExecuteTask("late", "wf", "tenant-1")
	if err := q.Enqueue(ctx, want); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	select {
	case task := <-got:
		if task.ID != want.ID {
			t.Fatalf("expected task %s, got %s", want.ID, task.ID)
		}
	case err := <-errs:
		t.Fatalf("Dequeue failed: %v", err)
	case <-ctx.Done():
		t.Fatalf("timed out waiting for task")
	}
}
