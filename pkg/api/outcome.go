package api

import (
	"encoding/json"
	"time"
)

// ActionState is the lifecycle state of a single action execution.
type ActionState string

const (
	ActionNotStarted ActionState = "NotStarted"
	ActionRunning    ActionState = "Running"
	ActionSuccess    ActionState = "Success"
	ActionFailed     ActionState = "Failed"
)

// Terminal reports whether s is Success or Failed.
func (s ActionState) Terminal() bool {
	return s == ActionSuccess || s == ActionFailed
}

// WorkflowState is the lifecycle state of a workflow run.
type WorkflowState string

const (
	WorkflowNotStarted WorkflowState = "NotStarted"
	WorkflowRunning    WorkflowState = "Running"
	WorkflowSuccess    WorkflowState = "Success"
	WorkflowFailed     WorkflowState = "Failed"
)

// Terminal reports whether s is Success or Failed.
func (s WorkflowState) Terminal() bool {
	return s == WorkflowSuccess || s == WorkflowFailed
}

// ActionOutcome records one action execution. EndedUTC is set exactly when
// State is terminal; use Succeed and Fail to keep that true.
type ActionOutcome struct {
	ActionID     string          `json:"actionId"`
	State        ActionState     `json:"state"`
	StartedUTC   time.Time       `json:"startedUtc"`
	EndedUTC     *time.Time      `json:"endedUtc,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	Output       json.RawMessage `json:"output,omitempty"`
}

// NewActionOutcome returns a Running outcome started at now.
func NewActionOutcome(actionID string, now time.Time) *ActionOutcome {
	return &ActionOutcome{
		ActionID:   actionID,
		State:      ActionRunning,
		StartedUTC: now.UTC(),
	}
}

// Succeed finalizes the outcome as Success with the given output.
// It is a no-op on an already terminal outcome.
func (o *ActionOutcome) Succeed(output json.RawMessage, now time.Time) {
	if o.State.Terminal() {
		return
	}
	ended := now.UTC()
	o.State = ActionSuccess
	o.Output = output
	o.EndedUTC = &ended
}

// Fail finalizes the outcome as Failed with msg.
// It is a no-op on an already terminal outcome.
func (o *ActionOutcome) Fail(msg string, now time.Time) {
	if o.State.Terminal() {
		return
	}
	ended := now.UTC()
	o.State = ActionFailed
	o.ErrorMessage = msg
	o.EndedUTC = &ended
}

// WorkflowOutcome is the durable record of one workflow run. It is created
// when the run is triggered and finalized once by the engine.
type WorkflowOutcome struct {
	ID             string          `json:"id"`
	WorkflowID     string          `json:"workflowId"`
	TenantID       string          `json:"tenantId"`
	State          WorkflowState   `json:"state"`
	Trigger        TriggerPayload  `json:"trigger"`
	ActionOutcomes []ActionOutcome `json:"actionOutcomes,omitempty"`
	ErrorMessage   string          `json:"errorMessage,omitempty"`
	CreatedUTC     time.Time       `json:"createdUtc"`
	StartedUTC     *time.Time      `json:"startedUtc,omitempty"`
	EndedUTC       *time.Time      `json:"endedUtc,omitempty"`
}

// Find returns the outcome of actionID, if present.
func (w *WorkflowOutcome) Find(actionID string) (*ActionOutcome, bool) {
	return FindOutcome(w.ActionOutcomes, actionID)
}

// FindOutcome returns the last outcome recorded for actionID.
func FindOutcome(outcomes []ActionOutcome, actionID string) (*ActionOutcome, bool) {
	for i := len(outcomes) - 1; i >= 0; i-- {
		if outcomes[i].ActionID == actionID {
			return &outcomes[i], true
		}
	}
	return nil, false
}

// OutcomeFilter selects outcomes in OutcomeStore.ListOutcomes and
// Engine.ListOutcomes. Zero values mean "no filter" for that field.
type OutcomeFilter struct {
	TenantID   string
	WorkflowID string
	State      WorkflowState
}
