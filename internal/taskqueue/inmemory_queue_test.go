package taskqueue

import (
	"context"
	"errors"
	"testing"
)

func TestInMemoryQueue_Contract(t *testing.T) {
	runQueueContract(t, NewInMemoryQueue(8))
}

func TestInMemoryQueue_BlockingDequeue(t *testing.T) {
	runBlockingDequeue(t, NewInMemoryQueue(8))
}

func TestInMemoryQueue_EnqueueFullRespectsContext(t *testing.T) {
	q := NewInMemoryQueue(1)
	if err := q.Enqueue(context.Background(), NewExecuteTask("a", "wf", "t")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := q.Enqueue(ctx, NewExecuteTask("b", "wf", "t")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if q.Len() != 1 {
		t.Fatalf("expected Len 1, got %d", q.Len())
	}
}

func TestInMemoryQueue_DefaultCapacity(t *testing.T) {
	q := NewInMemoryQueue(0)
	if cap(q.ch) != DefaultCapacity {
		t.Fatalf("expected default capacity %d, got %d", DefaultCapacity, cap(q.ch))
	}
}
