package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/petrijr/credflow/pkg/api"
)

// DBInterface is the subset of pgx used by PostgresStore. Both
// *pgxpool.Pool and pgxmock.PgxPoolIface satisfy it.
type DBInterface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is a WorkflowStore and OutcomeStore backed by PostgreSQL.
type PostgresStore struct {
	db DBInterface
}

// Ensure PostgresStore implements the interfaces.
var (
	_ WorkflowStore = (*PostgresStore)(nil)
	_ OutcomeStore  = (*PostgresStore)(nil)
	_ EventStore    = (*PostgresStore)(nil)
)

// postgresSchema is applied by InitSchema.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS workflows (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	definition JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS outcomes (
	id TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL,
	tenant_id TEXT NOT NULL,
	state TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	document JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outcomes_workflow ON outcomes(workflow_id, created_at);
CREATE TABLE IF NOT EXISTS workflow_events (
	seq BIGSERIAL PRIMARY KEY,
	outcome_id TEXT NOT NULL,
	at TIMESTAMPTZ NOT NULL,
	type TEXT NOT NULL,
	workflow_id TEXT NOT NULL DEFAULT '',
	action_id TEXT NOT NULL DEFAULT '',
	detail TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_workflow_events_outcome ON workflow_events(outcome_id, seq);
`

// NewPostgresPool opens a pgx connection pool for dsn and verifies it.
func NewPostgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// NewPostgresStore returns a PostgresStore using db. Call InitSchema once
// before first use.
func NewPostgresStore(db DBInterface) *PostgresStore {
	return &PostgresStore{db: db}
}

// InitSchema creates the tables used by the store if they do not exist.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, postgresSchema)
	return err
}

func (s *PostgresStore) SaveWorkflow(ctx context.Context, flow api.ProcessFlow) error {
	def, err := EncodeValue(flow)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO workflows (id, tenant_id, name, definition)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET tenant_id = EXCLUDED.tenant_id, name = EXCLUDED.name, definition = EXCLUDED.definition`,
		flow.ID, flow.TenantID, flow.Name, def,
	)
	return err
}

func (s *PostgresStore) GetWorkflow(ctx context.Context, id string) (*api.ProcessFlow, error) {
	var def []byte
	err := s.db.QueryRow(ctx, `SELECT definition FROM workflows WHERE id = $1`, id).Scan(&def)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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

func (s *PostgresStore) ListWorkflows(ctx context.Context, tenantID string) ([]*api.ProcessFlow, error) {
	query := `SELECT definition FROM workflows`
	var args []any
	if tenantID != "" {
		query += ` WHERE tenant_id = $1`
		args = append(args, tenantID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.Query(ctx, query, args...)
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

func (s *PostgresStore) CreateOutcome(ctx context.Context, out *api.WorkflowOutcome) error {
	doc, err := EncodeValue(out)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO outcomes (id, workflow_id, tenant_id, state, created_at, document)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		out.ID, out.WorkflowID, out.TenantID, string(out.State), out.CreatedUTC, doc,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrOutcomeExists
	}
	return err
}

func (s *PostgresStore) UpdateOutcome(ctx context.Context, out *api.WorkflowOutcome) error {
	doc, err := EncodeValue(out)
	if err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE outcomes SET state = $1, document = $2
		WHERE id = $3 AND state NOT IN ($4, $5)`,
		string(out.State), doc, out.ID, string(api.WorkflowSuccess), string(api.WorkflowFailed),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var state string
	err = s.db.QueryRow(ctx, `SELECT state FROM outcomes WHERE id = $1`, out.ID).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrOutcomeNotFound
	}
	if err != nil {
		return err
	}
	return api.ErrOutcomeFinalized
}

func (s *PostgresStore) GetOutcome(ctx context.Context, id string) (*api.WorkflowOutcome, error) {
	var doc []byte
	err := s.db.QueryRow(ctx, `SELECT document FROM outcomes WHERE id = $1`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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

func (s *PostgresStore) ListOutcomes(ctx context.Context, filter api.OutcomeFilter) ([]*api.WorkflowOutcome, error) {
	query := `SELECT document FROM outcomes`
	var args []any
	var clauses []string

	add := func(col, val string) {
		args = append(args, val)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if filter.TenantID != "" {
		add("tenant_id", filter.TenantID)
	}
	if filter.WorkflowID != "" {
		add("workflow_id", filter.WorkflowID)
	}
	if filter.State != "" {
		add("state", string(filter.State))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.Query(ctx, query, args...)
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

func (s *PostgresStore) AppendEvent(ctx context.Context, ev api.WorkflowEvent) error {
	rec := newEventRecord(ev)
	_, err := s.db.Exec(ctx, `
		INSERT INTO workflow_events (outcome_id, at, type, workflow_id, action_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.OutcomeID, rec.At, rec.Type, rec.WorkflowID, rec.ActionID, rec.Detail,
	)
	return err
}

func (s *PostgresStore) ListEvents(ctx context.Context, outcomeID string) ([]api.WorkflowEvent, error) {
	rows, err := s.db.Query(ctx, `
		SELECT outcome_id, at, type, workflow_id, action_id, detail
		FROM workflow_events WHERE outcome_id = $1 ORDER BY seq`, outcomeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []api.WorkflowEvent
	for rows.Next() {
		var rec eventRecord
		if err := rows.Scan(&rec.OutcomeID, &rec.At, &rec.Type, &rec.WorkflowID, &rec.ActionID, &rec.Detail); err != nil {
			return nil, err
		}
		events = append(events, rec.event())
	}
	return events, rows.Err()
}
