package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/petrijr/credflow/pkg/api"
)

const sqliteEventSchema = `
CREATE TABLE IF NOT EXISTS workflow_events (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	outcome_id TEXT NOT NULL,
	at_unix_nano INTEGER NOT NULL,
	type TEXT NOT NULL,
	workflow_id TEXT NOT NULL DEFAULT '',
	action_id TEXT NOT NULL DEFAULT '',
	detail TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_workflow_events_outcome ON workflow_events(outcome_id, seq);
`

// SQLiteEventStore keeps outcome history in the workflow_events table.
// Append order is the autoincrement sequence.
type SQLiteEventStore struct {
	db *sql.DB
}

var _ EventStore = (*SQLiteEventStore)(nil)

// NewSQLiteEventStore creates the events table if needed.
func NewSQLiteEventStore(db *sql.DB) (*SQLiteEventStore, error) {
	if _, err := db.Exec(sqliteEventSchema); err != nil {
		return nil, err
	}
	return &SQLiteEventStore{db: db}, nil
}

func (s *SQLiteEventStore) AppendEvent(ctx context.Context, ev api.WorkflowEvent) error {
	rec := newEventRecord(ev)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflow_events (outcome_id, at_unix_nano, type, workflow_id, action_id, detail) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.OutcomeID, rec.At.UnixNano(), rec.Type, rec.WorkflowID, rec.ActionID, rec.Detail,
	)
	return err
}

func (s *SQLiteEventStore) ListEvents(ctx context.Context, outcomeID string) ([]api.WorkflowEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT outcome_id, at_unix_nano, type, workflow_id, action_id, detail FROM workflow_events WHERE outcome_id = ? ORDER BY seq`,
		outcomeID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []api.WorkflowEvent
	for rows.Next() {
		var (
			rec  eventRecord
			nano int64
		)
		if err := rows.Scan(&rec.OutcomeID, &nano, &rec.Type, &rec.WorkflowID, &rec.ActionID, &rec.Detail); err != nil {
			return nil, err
		}
		rec.At = time.Unix(0, nano)
		events = append(events, rec.event())
	}
	return events, rows.Err()
}
