package credflow

import (
	"context"
	"fmt"

	"github.com/petrijr/credflow/internal/engine"
	"github.com/petrijr/credflow/pkg/api"
)

// FlowBuilder provides a fluent API for defining linear workflows. Each
// action runs after the one added before it; the first runs after the
// trigger.
//
//	flow, err := credflow.New("welcome", "tenant-1").
//	    HTTPTrigger("POST", "email").
//	    IssueCredential("issue", credflow.IssueCredentialInput{...}).
//	    SendEmail("notify", credflow.SendEmailInput{...}).
//	    Build()
type FlowBuilder struct {
	flow api.ProcessFlow
	last string
}

// New creates a builder for a workflow owned by tenantID. The trigger
// defaults to a Manual trigger with id "trigger".
func New(id, tenantID string) *FlowBuilder {
	return &FlowBuilder{
		flow: api.ProcessFlow{
			ID:       id,
			TenantID: tenantID,
			Trigger:  &api.Trigger{ID: "trigger", Type: api.TriggerManual},
			Actions:  make(map[string]api.Action),
		},
		last: "trigger",
	}
}

// ID returns the workflow id.
func (b *FlowBuilder) ID() string {
	return b.flow.ID
}

// Name sets the display name.
func (b *FlowBuilder) Name(name string) *FlowBuilder {
	b.flow.Name = name
	return b
}

// HTTPTrigger starts the flow from an HTTP request. params lists the
// expected input names.
func (b *FlowBuilder) HTTPTrigger(method string, params ...string) *FlowBuilder {
	return b.trigger(api.TriggerHTTPRequest, api.TriggerInput{Method: method, Parameters: params})
}

// TimerTrigger starts the flow on a standard 5-field cron schedule.
func (b *FlowBuilder) TimerTrigger(cron string) *FlowBuilder {
	return b.trigger(api.TriggerRecurringTimer, api.TriggerInput{Cron: cron})
}

// ManualTrigger starts the flow only through explicit calls.
func (b *FlowBuilder) ManualTrigger() *FlowBuilder {
	return b.trigger(api.TriggerManual, api.TriggerInput{})
}

func (b *FlowBuilder) trigger(typ api.TriggerType, in api.TriggerInput) *FlowBuilder {
	if len(b.flow.Actions) > 0 {
		panic("credflow: trigger must be set before adding actions")
	}
	b.flow.Trigger.Type = typ
	b.flow.Trigger.Input = in
	return b
}

// IssueCredential appends an IssueCredential action.
func (b *FlowBuilder) IssueCredential(id string, in IssueCredentialInput) *FlowBuilder {
	return b.Action(id, api.ActionIssueCredential, api.ActionInput{IssueCredential: &in})
}

// VerifyCredential appends a VerifyCredential action.
func (b *FlowBuilder) VerifyCredential(id string, in VerifyCredentialInput) *FlowBuilder {
	return b.Action(id, api.ActionVerifyCredential, api.ActionInput{VerifyCredential: &in})
}

// SendEmail appends a SendEmail action.
func (b *FlowBuilder) SendEmail(id string, in SendEmailInput) *FlowBuilder {
	return b.Action(id, api.ActionSendEmail, api.ActionInput{SendEmail: &in})
}

// Action appends an action of any type, including custom handler types.
func (b *FlowBuilder) Action(id string, typ api.ActionType, in api.ActionInput) *FlowBuilder {
	if id == "" {
		panic("credflow: action id must not be empty")
	}
	if _, dup := b.flow.Actions[id]; dup || id == b.flow.Trigger.ID {
		panic(fmt.Sprintf("credflow: duplicate action id %q", id))
	}
	b.flow.Actions[id] = api.Action{
		Type:     typ,
		Input:    in,
		RunAfter: api.RunAfter{PredecessorID: b.last, Status: api.RunAfterSucceeded},
	}
	b.last = id
	return b
}

// Build validates and returns the workflow definition.
func (b *FlowBuilder) Build() (ProcessFlow, error) {
	flow := b.flow
	if err := engine.ValidateFlow(&flow); err != nil {
		return ProcessFlow{}, err
	}
	return flow, nil
}

// Save validates the workflow and stores it on eng.
func (b *FlowBuilder) Save(ctx context.Context, eng Engine) error {
	flow, err := b.Build()
	if err != nil {
		return err
	}
	return eng.SaveWorkflow(ctx, flow)
}

// MustSave is like Save but panics on error.
// Useful for initialization in main().
func (b *FlowBuilder) MustSave(ctx context.Context, eng Engine) {
	if err := b.Save(ctx, eng); err != nil {
		panic(err)
	}
}
