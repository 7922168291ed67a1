package taskqueue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TaskType tells a worker what to do with a task.
type TaskType string

const (
	// TaskTypeExecuteOutcome asks a worker to run Engine.Execute for the
	// outcome named by Task.OutcomeID.
	TaskTypeExecuteOutcome TaskType = "execute-outcome"
)

// Task is one queued request to run an outcome. WorkflowID and TenantID
// are carried for logging; the outcome itself is reloaded from storage.
type Task struct {
	ID   string
	Type TaskType

	OutcomeID  string
	WorkflowID string
	TenantID   string

	EnqueuedAt time.Time
}

// NewExecuteTask returns a task that executes the given outcome.
func NewExecuteTask(outcomeID, workflowID, tenantID string) Task {
	return Task{
		ID:         uuid.NewString(),
		Type:       TaskTypeExecuteOutcome,
		OutcomeID:  outcomeID,
		WorkflowID: workflowID,
		TenantID:   tenantID,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Queue delivers tasks to workers, each task to exactly one consumer.
type Queue interface {
	Enqueue(ctx context.Context, t Task) error
	// Dequeue blocks until a task is claimed or ctx is done.
	Dequeue(ctx context.Context) (*Task, error)
	// Len is a best-effort count of pending tasks.
	Len() int
}
