package api

import (
	"context"
	"encoding/json"
	"fmt"
)

// ActionRequest is what an ActionHandler receives for one action execution.
type ActionRequest struct {
	ActionID string
	Action   Action
	Context  *ExecutionContext

	// Previous holds the outcomes of the actions that already ran in this
	// run, in execution order. Handlers must not modify it.
	Previous []ActionOutcome

	Flow *ProcessFlow

	// Output is set by the handler and becomes the ActionOutcome output. It is
	// kept on failures too, so a handler can attach diagnostics.
	Output json.RawMessage
}

// SetOutput JSON-encodes v into r.Output.
func (r *ActionRequest) SetOutput(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode output of action %s: %w", r.ActionID, err)
	}
	r.Output = b
	return nil
}

// ActionHandler executes one kind of action. A non-nil error fails the
// action and, with it, the run.
type ActionHandler interface {
	Handle(ctx context.Context, req *ActionRequest) error
}

// ActionHandlerFunc adapts a function to ActionHandler.
type ActionHandlerFunc func(ctx context.Context, req *ActionRequest) error

func (f ActionHandlerFunc) Handle(ctx context.Context, req *ActionRequest) error {
	return f(ctx, req)
}
