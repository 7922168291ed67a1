package credflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/petrijr/credflow/internal/taskqueue"
	"github.com/petrijr/credflow/pkg/worker"
)

// ErrRunnerStarted is returned by StartWorkers while workers are running.
var ErrRunnerStarted = errors.New("credflow: local runner already started")

// LocalRunner wires an in-memory engine to an in-memory queue and a worker
// pool, for tests and single-process tools.
//
//	runner := credflow.NewLocalRunner(credflow.Options{Keys: keys, Verifier: v})
//	credflow.New("onboard", "tenant-1").IssueCredential(...).MustSave(ctx, runner.Engine)
//	_ = runner.StartWorkers(ctx, 2)
//	defer runner.Stop()
//	out, err := runner.Submit(ctx, "onboard", payload)
//
// credflow.Run executes on the caller's goroutine instead and needs no
// workers.
type LocalRunner struct {
	Engine Engine
	Queue  taskqueue.Queue
	Worker *worker.Worker

	mu   sync.Mutex
	stop func()
}

// NewLocalRunner builds a runner from opts. Workers are not started.
func NewLocalRunner(opts Options) *LocalRunner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	eng := NewInMemoryEngine(opts)
	q := taskqueue.NewInMemoryQueue(taskqueue.DefaultCapacity)
	return &LocalRunner{
		Engine: eng,
		Queue:  q,
		Worker: worker.New(eng, q, worker.WithLogger(logger)),
	}
}

// StartWorkers runs n workers in the background until Stop or until ctx
// ends.
func (r *LocalRunner) StartWorkers(ctx context.Context, n int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != nil {
		return ErrRunnerStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		r.Worker.Run(runCtx, n)
	}()
	r.stop = func() {
		cancel()
		<-exited
	}
	return nil
}

// Stop halts the workers and waits for them. The runner may be started
// again afterwards.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	stop := r.stop
	r.stop = nil
	r.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// Submit records a new outcome for workflowID and queues it for the workers.
func (r *LocalRunner) Submit(ctx context.Context, workflowID string, payload TriggerPayload) (*WorkflowOutcome, error) {
	return r.Worker.Submit(ctx, workflowID, payload)
}
