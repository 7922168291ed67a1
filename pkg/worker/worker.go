package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/petrijr/credflow/internal/taskqueue"
	"github.com/petrijr/credflow/pkg/api"
)

// dequeueBackoff is the pause after a failed Dequeue.
const dequeueBackoff = 200 * time.Millisecond

// Worker pulls tasks from a Queue and executes them using an Engine.
type Worker struct {
	engine api.Engine
	queue  taskqueue.Queue
	logger *slog.Logger
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the logger used for task failures. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a new Worker.
func New(engine api.Engine, queue taskqueue.Queue, opts ...Option) *Worker {
	w := &Worker{
		engine: engine,
		queue:  queue,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Submit records a new outcome for workflowID and enqueues its execution.
// It does NOT run the workflow itself; that is done by ProcessOne.
func (w *Worker) Submit(ctx context.Context, workflowID string, payload api.TriggerPayload) (*api.WorkflowOutcome, error) {
	out, err := w.engine.Trigger(ctx, workflowID, payload)
	if err != nil {
		return nil, err
	}
	if err := w.Enqueue(ctx, out); err != nil {
		return out, fmt.Errorf("enqueue outcome %s: %w", out.ID, err)
	}
	return out, nil
}

// Enqueue schedules execution of an existing outcome.
func (w *Worker) Enqueue(ctx context.Context, out *api.WorkflowOutcome) error {
	return w.queue.Enqueue(ctx, taskqueue.NewExecuteTask(out.ID, out.WorkflowID, out.TenantID))
}

// ProcessOne pulls a single task from the queue and processes it.
// Returns (processed, error):
//   - processed == false: no task was obtained (ctx cancelled or dequeue failed).
//   - processed == true: a task was processed; err is the run failure, if any.
//
// Tasks for outcomes that are already terminal are treated as done, so a
// task delivered twice never runs a workflow twice.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	switch task.Type {
	case taskqueue.TaskTypeExecuteOutcome:
		_, runErr := w.engine.Execute(ctx, task.OutcomeID)
		if errors.Is(runErr, api.ErrOutcomeFinalized) {
			w.logger.Info("task_skipped_finalized",
				slog.String("task_id", task.ID),
				slog.String("outcome_id", task.OutcomeID),
			)
			return true, nil
		}
		return true, runErr

	default:
		// Mark as processed but return an error so this isn't silently ignored.
		return true, fmt.Errorf("unknown task type: %s", task.Type)
	}
}

// Run starts concurrency goroutines that call ProcessOne until ctx is
// cancelled, then waits for them to exit. Run failures are logged and do
// not stop the loop.
func (w *Worker) Run(ctx context.Context, concurrency int) {
	if concurrency <= 0 {
		concurrency = 1
	}

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(slot int) {
			defer wg.Done()
			w.loop(ctx, slot)
		}(i)
	}
	wg.Wait()
}

func (w *Worker) loop(ctx context.Context, slot int) {
	for {
		processed, err := w.ProcessOne(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			continue
		}
		if !processed {
			w.logger.Error("task_dequeue_failed",
				slog.Int("worker", slot),
				slog.String("error", err.Error()),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(dequeueBackoff):
			}
			continue
		}
		w.logger.Warn("task_failed",
			slog.Int("worker", slot),
			slog.String("error", err.Error()),
		)
	}
}
