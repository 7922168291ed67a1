package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/petrijr/credflow/pkg/api"
)

// SQLiteStore is a WorkflowStore and OutcomeStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
//
// Documents are stored as JSON next to the columns used for filtering.
type SQLiteStore struct {
	db *sql.DB
}

// Ensure SQLiteStore implements the interfaces.
var (
	_ WorkflowStore = (*SQLiteStore)(nil)
	_ OutcomeStore  = (*SQLiteStore)(nil)
)

// NewSQLiteStore initializes the required schema in the given
// database and returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			definition BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS outcomes (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			state TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			document BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_outcomes_workflow ON outcomes(workflow_id, created_at);
	`)
	return err
}

func (s *SQLiteStore) SaveWorkflow(ctx context.Context, flow api.ProcessFlow) error {
	def, err := EncodeValue(flow)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflows (id, tenant_id, name, definition)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET tenant_id = excluded.tenant_id, name = excluded.name, definition = excluded.definition`,
		flow.ID,
		flow.TenantID,
		flow.Name,
		def,
	)
	return err
}

func (s *SQLiteStore) GetWorkflow(ctx context.Context, id string) (*api.ProcessFlow, error) {
	var def []byte
	err := s.db.QueryRowContext(ctx, `SELECT definition FROM workflows WHERE id = ?`, id).Scan(&def)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWorkflowNotFound
		}
		return nil, err
	}

	flow, err := DecodeValue[api.ProcessFlow](def)
	if err != nil {
		return nil, err
	}
	return &flow, nil
}

func (s *SQLiteStore) ListWorkflows(ctx context.Context, tenantID string) ([]*api.ProcessFlow, error) {
	query := `SELECT definition FROM workflows`
	var args []any
	if tenantID != "" {
		query += ` WHERE tenant_id = ?`
		args = append(args, tenantID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flows []*api.ProcessFlow
	for rows.Next() {
		var def []byte
		if err := rows.Scan(&def); err != nil {
			return nil, err
		}
		flow, err := DecodeValue[api.ProcessFlow](def)
		if err != nil {
			return nil, err
		}
		flows = append(flows, &flow)
	}
	return flows, rows.Err()
}

func (s *SQLiteStore) CreateOutcome(ctx context.Context, out *api.WorkflowOutcome) error {
	doc, err := EncodeValue(out)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO outcomes (id, workflow_id, tenant_id, state, created_at, document)
		VALUES (?, ?, ?, ?, ?, ?)`,
		out.ID,
		out.WorkflowID,
		out.TenantID,
		string(out.State),
		out.CreatedUTC.UnixNano(),
		doc,
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrOutcomeExists
	}
	return err
}

func (s *SQLiteStore) UpdateOutcome(ctx context.Context, out *api.WorkflowOutcome) error {
	doc, err := EncodeValue(out)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE outcomes
		SET state = ?, document = ?
		WHERE id = ? AND state NOT IN (?, ?)`,
		string(out.State),
		doc,
		out.ID,
		string(api.WorkflowSuccess),
		string(api.WorkflowFailed),
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return s.explainNoUpdate(ctx, out.ID)
	}
	return nil
}

// explainNoUpdate tells a missing outcome from a finalized one after a
// conditional UPDATE matched no rows.
func (s *SQLiteStore) explainNoUpdate(ctx context.Context, id string) error {
	var state string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM outcomes WHERE id = ?`, id).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrOutcomeNotFound
	}
	if err != nil {
		return err
	}
	return api.ErrOutcomeFinalized
}

func (s *SQLiteStore) GetOutcome(ctx context.Context, id string) (*api.WorkflowOutcome, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `SELECT document FROM outcomes WHERE id = ?`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOutcomeNotFound
		}
		return nil, err
	}

	out, err := DecodeValue[api.WorkflowOutcome](doc)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *SQLiteStore) ListOutcomes(ctx context.Context, filter api.OutcomeFilter) ([]*api.WorkflowOutcome, error) {
	query := `SELECT document FROM outcomes`
	var args []any
	var clauses []string

	if filter.TenantID != "" {
		clauses = append(clauses, "tenant_id = ?")
		args = append(args, filter.TenantID)
	}
	if filter.WorkflowID != "" {
		clauses = append(clauses, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.State != "" {
		clauses = append(clauses, "state = ?")
		args = append(args, string(filter.State))
	}
	if len(clauses) > 0 {
		query = query + " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []*api.WorkflowOutcome
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		out, err := DecodeValue[api.WorkflowOutcome](doc)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, &out)
	}
	return outcomes, rows.Err()
}
