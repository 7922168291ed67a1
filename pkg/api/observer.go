package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the engine for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay workflow execution.
type Observer interface {
	// OnRunStart is called once per Execute, before the first action runs.
	OnRunStart(ctx context.Context, out *WorkflowOutcome)

	// OnRunSucceeded is called when the outcome is finalized as Success.
	OnRunSucceeded(ctx context.Context, out *WorkflowOutcome)

	// OnRunFailed is called when the outcome is finalized as Failed.
	OnRunFailed(ctx context.Context, out *WorkflowOutcome, err error)

	// OnActionStart is called before a handler is invoked.
	// index is the 0-based position of the action in the chain.
	OnActionStart(ctx context.Context, out *WorkflowOutcome, actionID string, actionType ActionType, index int)

	// OnActionCompleted is called after a handler returns, for both successes
	// and failures (err != nil).
	OnActionCompleted(ctx context.Context, out *WorkflowOutcome, actionID string, actionType ActionType, index int, err error, duration time.Duration)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnRunStart(ctx context.Context, out *WorkflowOutcome)             {}
func (NoopObserver) OnRunSucceeded(ctx context.Context, out *WorkflowOutcome)         {}
func (NoopObserver) OnRunFailed(ctx context.Context, out *WorkflowOutcome, err error) {}
func (NoopObserver) OnActionStart(ctx context.Context, out *WorkflowOutcome, id string, t ActionType, idx int) {
}
func (NoopObserver) OnActionCompleted(ctx context.Context, out *WorkflowOutcome, id string, t ActionType, idx int, err error, d time.Duration) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnRunStart(ctx context.Context, out *WorkflowOutcome) {
	for _, o := range c.observers {
		o.OnRunStart(ctx, out)
	}
}

func (c *CompositeObserver) OnRunSucceeded(ctx context.Context, out *WorkflowOutcome) {
	for _, o := range c.observers {
		o.OnRunSucceeded(ctx, out)
	}
}

func (c *CompositeObserver) OnRunFailed(ctx context.Context, out *WorkflowOutcome, err error) {
	for _, o := range c.observers {
		o.OnRunFailed(ctx, out, err)
	}
}

func (c *CompositeObserver) OnActionStart(ctx context.Context, out *WorkflowOutcome, id string, t ActionType, idx int) {
	for _, o := range c.observers {
		o.OnActionStart(ctx, out, id, t, idx)
	}
}

func (c *CompositeObserver) OnActionCompleted(ctx context.Context, out *WorkflowOutcome, id string, t ActionType, idx int, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnActionCompleted(ctx, out, id, t, idx, err, d)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs run / action lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnRunStart(ctx context.Context, out *WorkflowOutcome) {
	o.Logger.InfoContext(ctx, "run_start",
		slog.String("workflow_id", out.WorkflowID),
		slog.String("outcome_id", out.ID),
		slog.String("tenant_id", out.TenantID),
	)
}

func (o *LoggingObserver) OnRunSucceeded(ctx context.Context, out *WorkflowOutcome) {
	o.Logger.InfoContext(ctx, "run_succeeded",
		slog.String("workflow_id", out.WorkflowID),
		slog.String("outcome_id", out.ID),
		slog.Int("actions", len(out.ActionOutcomes)),
	)
}

func (o *LoggingObserver) OnRunFailed(ctx context.Context, out *WorkflowOutcome, err error) {
	o.Logger.ErrorContext(ctx, "run_failed",
		slog.String("workflow_id", out.WorkflowID),
		slog.String("outcome_id", out.ID),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnActionStart(ctx context.Context, out *WorkflowOutcome, id string, t ActionType, idx int) {
	o.Logger.DebugContext(ctx, "action_start",
		slog.String("outcome_id", out.ID),
		slog.String("action_id", id),
		slog.String("action_type", string(t)),
		slog.Int("action_index", idx),
	)
}

func (o *LoggingObserver) OnActionCompleted(ctx context.Context, out *WorkflowOutcome, id string, t ActionType, idx int, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "action_completed",
		slog.String("outcome_id", out.ID),
		slog.String("action_id", id),
		slog.String("action_type", string(t)),
		slog.Int("action_index", idx),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters and aggregate action durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	runsStarted         atomic.Int64
	runsSucceeded       atomic.Int64
	runsFailed          atomic.Int64
	actionsSucceeded    atomic.Int64
	actionsFailed       atomic.Int64
	totalActionDuration atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	RunsStarted   int64
	RunsSucceeded int64
	RunsFailed    int64
	RunsInFlight  int64

	ActionsSucceeded  int64
	ActionsFailed     int64
	AvgActionDuration time.Duration
}

func (m *BasicMetrics) OnRunStart(ctx context.Context, out *WorkflowOutcome) {
	m.runsStarted.Add(1)
}

func (m *BasicMetrics) OnRunSucceeded(ctx context.Context, out *WorkflowOutcome) {
	m.runsSucceeded.Add(1)
}

func (m *BasicMetrics) OnRunFailed(ctx context.Context, out *WorkflowOutcome, err error) {
	m.runsFailed.Add(1)
}

func (m *BasicMetrics) OnActionCompleted(ctx context.Context, out *WorkflowOutcome, id string, t ActionType, idx int, err error, d time.Duration) {
	if err != nil {
		m.actionsFailed.Add(1)
		return
	}
	// Only successful actions count towards the average duration.
	m.actionsSucceeded.Add(1)
	m.totalActionDuration.Add(d.Nanoseconds())
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.runsStarted.Load()
	succeeded := m.runsSucceeded.Load()
	failed := m.runsFailed.Load()
	ok := m.actionsSucceeded.Load()
	totalNs := m.totalActionDuration.Load()

	var avg time.Duration
	if ok > 0 {
		avg = time.Duration(totalNs / ok)
	}

	return BasicMetricsSnapshot{
		RunsStarted:       started,
		RunsSucceeded:     succeeded,
		RunsFailed:        failed,
		RunsInFlight:      started - succeeded - failed,
		ActionsSucceeded:  ok,
		ActionsFailed:     m.actionsFailed.Load(),
		AvgActionDuration: avg,
	}
}
