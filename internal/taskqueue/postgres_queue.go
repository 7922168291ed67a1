package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxDB is the subset of pgx used by PostgresQueue. Both *pgxpool.Pool and
// pgxmock.PgxPoolIface satisfy it.
type PgxDB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresQueue implements Queue using a PostgreSQL table. Workers claim
// rows with FOR UPDATE SKIP LOCKED, so several processes can share one
// queue without handing out a task twice.
type PostgresQueue struct {
	db           PgxDB
	pollInterval time.Duration
}

var _ Queue = (*PostgresQueue)(nil)

// NewPostgresQueue creates the queue_tasks table if needed.
func NewPostgresQueue(ctx context.Context, db PgxDB) (*PostgresQueue, error) {
	q := &PostgresQueue{db: db, pollInterval: 100 * time.Millisecond}
	_, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS queue_tasks (
			id          BIGSERIAL PRIMARY KEY,
			task_id     TEXT NOT NULL,
			outcome_id  TEXT NOT NULL,
			payload     BYTEA NOT NULL,
			enqueued_at TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return nil, fmt.Errorf("create queue_tasks: %w", err)
	}
	return q, nil
}

func (q *PostgresQueue) Enqueue(ctx context.Context, t Task) error {
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now().UTC()
	}
	data, err := EncodeTask(t)
	if err != nil {
		return err
	}
	_, err = q.db.Exec(ctx, `
		INSERT INTO queue_tasks (task_id, outcome_id, payload, enqueued_at)
		VALUES ($1, $2, $3, $4)`,
		t.ID, t.OutcomeID, data, t.EnqueuedAt,
	)
	return err
}

// Dequeue claims the oldest task, polling while the table is empty.
func (q *PostgresQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		task, err := q.claim(ctx)
		if err == nil {
			return task, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.pollInterval):
		}
	}
}

func (q *PostgresQueue) claim(ctx context.Context) (*Task, error) {
	tx, err := q.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		id      int64
		payload []byte
	)
	err = tx.QueryRow(ctx, `
		SELECT id, payload FROM queue_tasks
		ORDER BY id
		LIMIT 1
		FOR UPDATE SKIP LOCKED`).Scan(&id, &payload)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM queue_tasks WHERE id = $1`, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	task, err := DecodeTask(payload)
	if err != nil {
		return nil, fmt.Errorf("decode task %d: %w", id, err)
	}
	return task, nil
}

func (q *PostgresQueue) Len() int {
	var n int
	if err := q.db.QueryRow(context.Background(), `SELECT COUNT(*) FROM queue_tasks`).Scan(&n); err != nil {
		slog.Warn("postgres_queue_len_failed", slog.String("error", err.Error()))
		return 0
	}
	return n
}
