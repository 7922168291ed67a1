package api

import "time"

// EventType identifies a workflow history event.
type EventType string

const (
	EventRunTriggered EventType = "run.triggered"
	EventRunStarted   EventType = "run.started"
	EventRunSucceeded EventType = "run.succeeded"
	EventRunFailed    EventType = "run.failed"

	EventActionStarted   EventType = "action.started"
	EventActionSucceeded EventType = "action.succeeded"
	EventActionFailed    EventType = "action.failed"
)

// WorkflowEvent is a minimal append-only history record for audit/debugging.
// It is intentionally small and stable; the full per-action record lives in
// WorkflowOutcome.ActionOutcomes.
type WorkflowEvent struct {
	OutcomeID  string
	At         time.Time
	Type       EventType
	WorkflowID string

	// ActionID is empty for run-level events.
	ActionID string

	// Small, human-oriented details (e.g. the error string).
	// Keep this low-volume: do NOT dump credentials here.
	Detail string
}
