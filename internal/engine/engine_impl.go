package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/credflow/internal/persistence"
	"github.com/petrijr/credflow/pkg/api"
)

// engineImpl runs one workflow outcome at a time per Execute call. It holds
// no per-run state, so a single instance can serve many workers.
type engineImpl struct {
	workflows persistence.WorkflowStore
	outcomes  persistence.OutcomeStore
	events    persistence.EventStore
	handlers  *HandlerRegistry
	observer  api.Observer
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// Config describes how to construct an engine.
type Config struct {
	Persistence persistence.Persistence
	Handlers    *HandlerRegistry
	Observer    api.Observer
	// Logger reports failed history writes; defaults to slog.Default().
	Logger *slog.Logger

	// Now and NewID default to time.Now and uuid.NewString.
	Now   func() time.Time
	NewID func() string
}

var (
	_ api.Engine        = (*engineImpl)(nil)
	_ api.HistoryReader = (*engineImpl)(nil)
)

// NewEngineWithConfig creates a new Engine using the given configuration.
func NewEngineWithConfig(cfg Config) api.Engine {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	handlers := cfg.Handlers
	if handlers == nil {
		handlers = NewHandlerRegistry()
	}
	events := cfg.Persistence.Events
	if events == nil {
		events = persistence.NoopEventStore{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &engineImpl{
		workflows: cfg.Persistence.Workflows,
		outcomes:  cfg.Persistence.Outcomes,
		events:    events,
		handlers:  handlers,
		observer:  obs,
		logger:    logger,
		now:       func() time.Time { return now().UTC() },
		newID:     newID,
	}
}

// NewInMemoryEngine returns an engine whose stores live in process memory.
func NewInMemoryEngine(cfg Config) api.Engine {
	cfg.Persistence = persistence.NewInMemory()
	return NewEngineWithConfig(cfg)
}

// NewSQLiteEngine stores workflows, outcomes and events in db.
func NewSQLiteEngine(db *sql.DB, cfg Config) (api.Engine, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	events, err := persistence.NewSQLiteEventStore(db)
	if err != nil {
		return nil, err
	}
	cfg.Persistence = persistence.Persistence{Workflows: store, Outcomes: store, Events: events}
	return NewEngineWithConfig(cfg), nil
}

// NewPostgresEngine stores workflows, outcomes and events in PostgreSQL. The schema
// must exist (see PostgresStore.InitSchema).
func NewPostgresEngine(db persistence.DBInterface, cfg Config) api.Engine {
	store := persistence.NewPostgresStore(db)
	cfg.Persistence = persistence.Of(store)
	return NewEngineWithConfig(cfg)
}

// NewRedisEngine stores workflows, outcomes and events in Redis under the
// "credflow:" prefix.
func NewRedisEngine(client *redis.Client, cfg Config) api.Engine {
	store := persistence.NewRedisStore(client, "credflow:")
	cfg.Persistence = persistence.Of(store)
	return NewEngineWithConfig(cfg)
}

// NewMongoEngine stores workflows, outcomes and events in the given Mongo
// database.
func NewMongoEngine(client *mongo.Client, dbName string, cfg Config) api.Engine {
	store := persistence.NewMongoStore(client, dbName)
	cfg.Persistence = persistence.Of(store)
	return NewEngineWithConfig(cfg)
}

func (e *engineImpl) SaveWorkflow(ctx context.Context, flow api.ProcessFlow) error {
	if err := ValidateFlow(&flow); err != nil {
		return err
	}
	return e.workflows.SaveWorkflow(ctx, flow)
}

func (e *engineImpl) GetWorkflow(ctx context.Context, id string) (*api.ProcessFlow, error) {
	flow, err := e.workflows.GetWorkflow(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrWorkflowNotFound) {
			return nil, fmt.Errorf("unknown workflow %s: %w", id, err)
		}
		return nil, err
	}
	return flow, nil
}

func (e *engineImpl) Trigger(ctx context.Context, workflowID string, payload api.TriggerPayload) (*api.WorkflowOutcome, error) {
	flow, err := e.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	if payload.ReceivedAt.IsZero() {
		payload.ReceivedAt = now
	}
	out := &api.WorkflowOutcome{
		ID:         e.newID(),
		WorkflowID: flow.ID,
		TenantID:   flow.TenantID,
		State:      api.WorkflowNotStarted,
		Trigger:    payload,
		CreatedUTC: now,
	}
	if err := e.outcomes.CreateOutcome(ctx, out); err != nil {
		return nil, err
	}
	e.record(ctx, out, api.EventRunTriggered, "", "")
	return out, nil
}

func (e *engineImpl) GetOutcome(ctx context.Context, id string) (*api.WorkflowOutcome, error) {
	out, err := e.outcomes.GetOutcome(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrOutcomeNotFound) {
			return nil, fmt.Errorf("outcome %s: %w", id, err)
		}
		return nil, err
	}
	return out, nil
}

func (e *engineImpl) ListOutcomes(ctx context.Context, filter api.OutcomeFilter) ([]*api.WorkflowOutcome, error) {
	return e.outcomes.ListOutcomes(ctx, filter)
}

func (e *engineImpl) ListEvents(ctx context.Context, outcomeID string) ([]api.WorkflowEvent, error) {
	return e.events.ListEvents(ctx, outcomeID)
}

func (e *engineImpl) Execute(ctx context.Context, outcomeID string) (*api.WorkflowOutcome, error) {
	out, err := e.GetOutcome(ctx, outcomeID)
	if err != nil {
		return nil, err
	}
	if out.State.Terminal() {
		return out, api.ErrOutcomeFinalized
	}

	started := e.now()
	out.State = api.WorkflowRunning
	out.StartedUTC = &started
	out.ActionOutcomes = nil
	out.ErrorMessage = ""

	e.observer.OnRunStart(ctx, out)
	e.record(ctx, out, api.EventRunStarted, "", "")

	flow, err := e.workflows.GetWorkflow(ctx, out.WorkflowID)
	if err != nil {
		if !errors.Is(err, persistence.ErrWorkflowNotFound) {
			// Store trouble: leave the outcome as stored so it can be retried.
			e.observer.OnRunFailed(ctx, out, err)
			return out, err
		}
		return e.finish(ctx, out, api.NewError(api.KindConfiguration, "workflow "+out.WorkflowID+" not found", err))
	}

	chain, err := BuildChain(flow)
	if err != nil {
		return e.finish(ctx, out, err)
	}

	ec := BuildExecutionContext(flow, out.TenantID, out.Trigger)

	for i, step := range chain {
		if err := ctx.Err(); err != nil {
			e.observer.OnRunFailed(ctx, out, err)
			return out, err
		}

		ao, err := e.runAction(ctx, flow, out, ec, step, i)
		out.ActionOutcomes = append(out.ActionOutcomes, *ao)
		if err != nil {
			return e.finish(ctx, out, err)
		}
	}

	return e.finish(ctx, out, nil)
}

func (e *engineImpl) runAction(
	ctx context.Context,
	flow *api.ProcessFlow,
	out *api.WorkflowOutcome,
	ec *api.ExecutionContext,
	step ChainStep,
	index int,
) (*api.ActionOutcome, error) {
	ao := api.NewActionOutcome(step.ID, e.now())

	e.observer.OnActionStart(ctx, out, step.ID, step.Action.Type, index)
	e.record(ctx, out, api.EventActionStarted, step.ID, "")

	previous := make([]api.ActionOutcome, len(out.ActionOutcomes))
	copy(previous, out.ActionOutcomes)

	req := &api.ActionRequest{
		ActionID: step.ID,
		Action:   step.Action,
		Context:  ec,
		Previous: previous,
		Flow:     flow,
	}

	start := time.Now()
	var err error
	if h, ok := e.handlers.Get(step.Action.Type); ok {
		err = invoke(ctx, h, req)
	} else {
		err = api.Errorf(api.KindConfiguration, "no handler registered for action type %q", step.Action.Type)
	}
	duration := time.Since(start)

	if err != nil {
		ao.Output = req.Output
		ao.Fail(err.Error(), e.now())
		e.record(ctx, out, api.EventActionFailed, step.ID, err.Error())
	} else {
		ao.Succeed(req.Output, e.now())
		e.record(ctx, out, api.EventActionSucceeded, step.ID, "")
	}
	e.observer.OnActionCompleted(ctx, out, step.ID, step.Action.Type, index, err, duration)
	return ao, err
}

// invoke calls h, converting a panic into an error.
func invoke(ctx context.Context, h api.ActionHandler, req *api.ActionRequest) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action %s panicked: %v", req.ActionID, r)
		}
	}()
	return h.Handle(ctx, req)
}

// finish writes the terminal outcome. runErr == nil means Success.
func (e *engineImpl) finish(ctx context.Context, out *api.WorkflowOutcome, runErr error) (*api.WorkflowOutcome, error) {
	ended := e.now()
	out.EndedUTC = &ended
	if runErr != nil {
		out.State = api.WorkflowFailed
		out.ErrorMessage = runErr.Error()
	} else {
		out.State = api.WorkflowSuccess
	}

	// Cancellation after the last action does not prevent the final write.
	if err := e.outcomes.UpdateOutcome(context.WithoutCancel(ctx), out); err != nil {
		err = fmt.Errorf("finalize outcome %s: %w", out.ID, err)
		e.observer.OnRunFailed(ctx, out, err)
		return out, err
	}

	if runErr != nil {
		e.record(ctx, out, api.EventRunFailed, "", runErr.Error())
		e.observer.OnRunFailed(ctx, out, runErr)
		return out, runErr
	}
	e.record(ctx, out, api.EventRunSucceeded, "", "")
	e.observer.OnRunSucceeded(ctx, out)
	return out, nil
}

// record appends a history event. History is best effort: a failed write
// is logged and the run goes on.
func (e *engineImpl) record(ctx context.Context, out *api.WorkflowOutcome, t api.EventType, actionID, detail string) {
	err := e.events.AppendEvent(context.WithoutCancel(ctx), api.WorkflowEvent{
		OutcomeID:  out.ID,
		At:         e.now(),
		Type:       t,
		WorkflowID: out.WorkflowID,
		ActionID:   actionID,
		Detail:     detail,
	})
	if err != nil {
		e.logger.WarnContext(ctx, "event_append_failed",
			slog.String("outcome_id", out.ID),
			slog.String("event", string(t)),
			slog.String("error", err.Error()),
		)
	}
}
