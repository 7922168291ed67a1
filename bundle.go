package credflow

import (
	"database/sql"

	"github.com/petrijr/credflow/internal/taskqueue"
	"github.com/petrijr/credflow/pkg/worker"
)

// WorkerBundle wires together an Engine, a durable task queue, and a Worker
// that consumes tasks from that queue.
type WorkerBundle struct {
	Engine Engine
	Worker *worker.Worker

	queue taskqueue.Queue
}

// Pending returns the number of queued runs.
func (b *WorkerBundle) Pending() int {
	return b.queue.Len()
}

// NewSQLiteBundle constructs a durable Engine + Queue + Worker combo sharing
// the same SQLite database. Workflows, outcomes, events and queued tasks all
// live in db.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:credflow.db?_pragma=journal_mode(WAL)")
//	bundle, err := credflow.NewSQLiteBundle(db, credflow.Options{Keys: keys})
//	// save workflows on bundle.Engine
//	// submit runs with bundle.Worker.Submit and drain with bundle.Worker.Run
func NewSQLiteBundle(db *sql.DB, opts Options) (*WorkerBundle, error) {
	eng, err := NewSQLiteEngine(db, opts)
	if err != nil {
		return nil, err
	}

	q, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}

	var wopts []worker.Option
	if opts.Logger != nil {
		wopts = append(wopts, worker.WithLogger(opts.Logger))
	}

	return &WorkerBundle{
		Engine: eng,
		Worker: worker.New(eng, q, wopts...),
		queue:  q,
	}, nil
}
