package smartsalud

import (
	"database/sql"

	"github.com/AutonomosCdM/smartSalud-V2/internal/taskqueue"
	workerpkg "github.com/AutonomosCdM/smartSalud-V2/pkg/worker"
)

// WorkerBundle wires together an Engine, a durable task queue, and a Worker
// that consumes tasks from that queue.
type WorkerBundle struct {
	Engine Engine
	Worker *workerpkg.Worker

	// queue is kept unexported; it is primarily useful for internal
	// inspection and tests. The public API focuses on Engine and Worker.
	queue taskqueue.Queue
}

// NewSQLiteBundle constructs a durable Engine + Queue + Worker combo sharing
// the same SQLite database. Workflow instances and queued tasks are
// persisted in the provided *sql.DB, so a restarted process picks up both
// in-flight workflows and undelivered tasks.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:smartsalud.db?_journal=WAL")
//	bundle, err := smartsalud.NewSQLiteBundle(db, smartsalud.Options{
//	    Collaborators: collaborators,
//	})
//	// enqueue work via bundle.Worker
func NewSQLiteBundle(db *sql.DB, opts Options) (*WorkerBundle, error) {
	eng, err := NewSQLiteEngine(db, opts)
	if err != nil {
		return nil, err
	}

	q, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}

	return &WorkerBundle{
		Engine: eng,
		Worker: workerpkg.New(eng, q),
		queue:  q,
	}, nil
}
