package smartsalud

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/AutonomosCdM/smartSalud-V2/internal/taskqueue"
	"github.com/AutonomosCdM/smartSalud-V2/pkg/api"
	"github.com/AutonomosCdM/smartSalud-V2/pkg/worker"
)

// LocalRunner bundles an in-memory Engine, an in-memory task queue, and a
// Worker to provide a simple single-process runner for development and
// tests.
//
// Typical usage:
//
//	runner, _ := smartsalud.NewLocalRunner(smartsalud.Options{
//	    Collaborators: collaborators,
//	})
//
//	// Synchronous start (no queue/worker involved):
//	inst, err := runner.Engine.Start(ctx, subjectID, contact, appt)
//
//	// Asynchronous start:
//	_ = runner.StartWorkers(ctx, 2)
//	_ = runner.StartWorkflowAsync(ctx, subjectID, contact, appt)
//	...
//	runner.Stop()
type LocalRunner struct {
	// Engine is the in-memory workflow engine used by this runner.
	Engine Engine

	// Queue is the in-memory task queue used by the Worker.
	Queue taskqueue.Queue

	// Worker processes tasks from Queue using Engine.
	Worker *worker.Worker

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewLocalRunner constructs a LocalRunner backed by an in-memory engine and
// an in-memory queue.
func NewLocalRunner(opts Options) (*LocalRunner, error) {
	eng, err := NewInMemoryEngine(opts)
	if err != nil {
		return nil, err
	}
	q := taskqueue.NewInMemoryQueue()

	return &LocalRunner{
		Engine: eng,
		Queue:  q,
		Worker: worker.New(eng, q),
	}, nil
}

// StartWorkers starts 'concurrency' worker goroutines that continuously
// call Worker.ProcessOne(ctx) until the context is cancelled via Stop.
//
// If StartWorkers is called more than once without Stop, it returns an
// error.
func (r *LocalRunner) StartWorkers(ctx context.Context, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("smartsalud: LocalRunner already started")
	}

	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer r.wg.Done()

			for {
				processed, err := r.Worker.ProcessOne(ctx)
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return
					}
					// A single bad task must not kill the worker loop.
					log.Printf("smartsalud: local runner worker error: %v", err)
					continue
				}
				if !processed {
					continue
				}
			}
		}()
	}

	return nil
}

// Stop cancels all worker goroutines started by StartWorkers and waits for
// them to exit.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// StartWorkflowAsync enqueues a task to start a confirmation workflow for
// the given subject. The workflow runs when a worker picks up the task.
func (r *LocalRunner) StartWorkflowAsync(ctx context.Context, subjectID, contact string, appt Appointment) error {
	return r.Worker.EnqueueStart(ctx, subjectID, contact, appt)
}

// DeliverEventAsync enqueues a task that delivers an event to a waiting
// workflow instance.
func (r *LocalRunner) DeliverEventAsync(ctx context.Context, workflowID string, ev Event) error {
	return r.Worker.EnqueueEvent(ctx, workflowID, ev)
}

// ScheduleTimeout enqueues a delayed TIMEOUT event for the given instance,
// eligible at 'at'. If the patient answers before then, the engine drops
// the stale delivery.
func (r *LocalRunner) ScheduleTimeout(ctx context.Context, workflowID string, at time.Time) error {
	return r.Worker.EnqueueEventAt(ctx, workflowID, api.Event{
		Type:      api.EventTimeout,
		Timestamp: time.Now(),
		Timeout:   &api.TimeoutPayload{Reason: "scheduled timeout"},
	}, at)
}
