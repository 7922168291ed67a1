package taskqueue

import "context"

// DefaultCapacity bounds an InMemoryQueue created without an explicit size.
const DefaultCapacity = 1024

// InMemoryQueue hands tasks between goroutines of one process. Enqueue
// waits for room when the buffer is full; nothing survives a restart.
type InMemoryQueue struct {
	ch chan Task
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue returns a queue holding up to capacity pending tasks.
func NewInMemoryQueue(capacity int) *InMemoryQueue {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &InMemoryQueue{ch: make(chan Task, capacity)}
}

func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) error {
	// A done context wins over free buffer space.
	if ctx.Err() != nil {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- t:
		return nil
	}
}

func (q *InMemoryQueue) Dequeue(ctx context.Context) (*Task, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case t := <-q.ch:
		return &t, nil
	}
}

// Len reports the tasks waiting in the buffer.
func (q *InMemoryQueue) Len() int { return len(q.ch) }
