package api

import (
	"context"
	"errors"
)

// ErrOutcomeFinalized is returned by Execute when the outcome already
// reached a terminal state.
var ErrOutcomeFinalized = errors.New("workflow outcome already finalized")

// Engine runs credential workflows.
type Engine interface {
	// SaveWorkflow validates and stores a workflow definition. Flows whose
	// action chain is ambiguous or broken are rejected.
	SaveWorkflow(ctx context.Context, flow ProcessFlow) error

	// GetWorkflow loads a workflow definition by id.
	GetWorkflow(ctx context.Context, id string) (*ProcessFlow, error)

	// Trigger records a new NotStarted outcome for workflowID carrying the raw
	// trigger payload. The run itself happens in Execute, usually from a
	// queue consumer.
	Trigger(ctx context.Context, workflowID string, payload TriggerPayload) (*WorkflowOutcome, error)

	// Execute runs the workflow behind outcomeID to completion and finalizes
	// the outcome exactly once.
	//
	// The returned error is non-nil when the run did not succeed; in that case
	// the returned outcome (if non-nil) carries the failure details. Outcomes
	// that are already terminal are rejected with ErrOutcomeFinalized.
	Execute(ctx context.Context, outcomeID string) (*WorkflowOutcome, error)

	// GetOutcome looks up a workflow outcome by id.
	GetOutcome(ctx context.Context, id string) (*WorkflowOutcome, error)

	// ListOutcomes returns outcomes matching the filter.
	ListOutcomes(ctx context.Context, filter OutcomeFilter) ([]*WorkflowOutcome, error)
}
