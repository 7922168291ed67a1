package api

import "context"

// HistoryReader is implemented by engines that keep lifecycle events.
type HistoryReader interface {
	// ListEvents returns the events of one outcome in chronological order.
	ListEvents(ctx context.Context, outcomeID string) ([]WorkflowEvent, error)
}
