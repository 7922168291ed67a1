package persistence

import (
	"context"
	"errors"

	"github.com/petrijr/credflow/pkg/api"
)

var (
	// ErrWorkflowNotFound is returned when a workflow definition is not found.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrOutcomeNotFound is returned when a workflow outcome is not found.
	ErrOutcomeNotFound = errors.New("outcome not found")

	// ErrOutcomeExists is returned by CreateOutcome for a duplicate id.
	ErrOutcomeExists = errors.New("outcome already exists")
)

// WorkflowStore handles storage of workflow definitions.
type WorkflowStore interface {
	// SaveWorkflow inserts or replaces a definition by id.
	SaveWorkflow(ctx context.Context, flow api.ProcessFlow) error
	GetWorkflow(ctx context.Context, id string) (*api.ProcessFlow, error)
	// ListWorkflows returns the definitions of a tenant; empty tenant lists all.
	ListWorkflows(ctx context.Context, tenantID string) ([]*api.ProcessFlow, error)
}

// OutcomeStore handles storage of workflow outcomes.
type OutcomeStore interface {
	CreateOutcome(ctx context.Context, out *api.WorkflowOutcome) error
	// UpdateOutcome overwrites a stored outcome. Outcomes that are already
	// terminal are never overwritten: implementations return
	// api.ErrOutcomeFinalized instead, so concurrent executions of the same
	// outcome cannot both finalize it.
	UpdateOutcome(ctx context.Context, out *api.WorkflowOutcome) error
	GetOutcome(ctx context.Context, id string) (*api.WorkflowOutcome, error)
	ListOutcomes(ctx context.Context, filter api.OutcomeFilter) ([]*api.WorkflowOutcome, error)
}

func matchesFilter(out *api.WorkflowOutcome, f api.OutcomeFilter) bool {
	if f.TenantID != "" && out.TenantID != f.TenantID {
		return false
	}
	if f.WorkflowID != "" && out.WorkflowID != f.WorkflowID {
		return false
	}
	if f.State != "" && out.State != f.State {
		return false
	}
	return true
}
