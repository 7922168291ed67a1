package persistence

import (
	"context"
	"time"

	"github.com/petrijr/credflow/pkg/api"
)

// EventStore keeps the append-only execution history of outcomes.
type EventStore interface {
	AppendEvent(ctx context.Context, ev api.WorkflowEvent) error
	// ListEvents returns the events of one outcome in append order.
	ListEvents(ctx context.Context, outcomeID string) ([]api.WorkflowEvent, error)
}

// NoopEventStore drops every event. Backends without history use it.
type NoopEventStore struct{}

func (NoopEventStore) AppendEvent(context.Context, api.WorkflowEvent) error { return nil }

func (NoopEventStore) ListEvents(context.Context, string) ([]api.WorkflowEvent, error) {
	return nil, nil
}

// eventRecord is the document form of a WorkflowEvent used by the Redis and
// Mongo stores.
type eventRecord struct {
	OutcomeID  string    `json:"outcomeId" bson:"outcome_id"`
	At         time.Time `json:"at" bson:"at"`
	Type       string    `json:"type" bson:"type"`
	WorkflowID string    `json:"workflowId,omitempty" bson:"workflow_id"`
	ActionID   string    `json:"actionId,omitempty" bson:"action_id"`
	Detail     string    `json:"detail,omitempty" bson:"detail"`
}

func newEventRecord(ev api.WorkflowEvent) eventRecord {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	return eventRecord{
		OutcomeID:  ev.OutcomeID,
		At:         at.UTC(),
		Type:       string(ev.Type),
		WorkflowID: ev.WorkflowID,
		ActionID:   ev.ActionID,
		Detail:     ev.Detail,
	}
}

func (r eventRecord) event() api.WorkflowEvent {
	return api.WorkflowEvent{
		OutcomeID:  r.OutcomeID,
		At:         r.At.UTC(),
		Type:       api.EventType(r.Type),
		WorkflowID: r.WorkflowID,
		ActionID:   r.ActionID,
		Detail:     r.Detail,
	}
}
