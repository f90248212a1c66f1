// Package worker runs queued workflow tasks asynchronously: starting
// confirmation workflows and delivering external events to waiting ones.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/AutonomosCdM/smartSalud-V2/internal/taskqueue"
	"github.com/AutonomosCdM/smartSalud-V2/pkg/api"
)

// Worker pulls tasks from a Queue and executes them against an Engine.
type Worker struct {
	engine api.Engine
	queue  taskqueue.Queue
}

// New creates a new Worker.
func New(engine api.Engine, queue taskqueue.Queue) *Worker {
	return &Worker{
		engine: engine,
		queue:  queue,
	}
}

// EnqueueStart enqueues a task to start a confirmation workflow
// asynchronously. It does NOT run the workflow itself; that is done by
// ProcessOne.
func (w *Worker) EnqueueStart(ctx context.Context, subjectID, contact string, appt api.Appointment) error {
	t := taskqueue.Task{
		ID:   uuid.NewString(),
		Type: taskqueue.TaskTypeStartWorkflow,
		Start: &taskqueue.StartPayload{
			SubjectID:   subjectID,
			Contact:     contact,
			Appointment: appt,
		},
		EnqueuedAt: time.Now(),
	}
	return w.queue.Enqueue(ctx, t)
}

// EnqueueStartAt enqueues a start task that becomes eligible no earlier than
// 'at'. This is how reminders are scheduled ahead of the appointment.
func (w *Worker) EnqueueStartAt(ctx context.Context, subjectID, contact string, appt api.Appointment, at time.Time) error {
	t := taskqueue.Task{
		ID:   uuid.NewString(),
		Type: taskqueue.TaskTypeStartWorkflow,
		Start: &taskqueue.StartPayload{
			SubjectID:   subjectID,
			Contact:     contact,
			Appointment: appt,
		},
		EnqueuedAt: time.Now(),
		NotBefore:  at,
	}
	return w.queue.Enqueue(ctx, t)
}

// EnqueueEvent enqueues a task to deliver an event to a waiting workflow
// instance. The event is applied asynchronously by ProcessOne.
func (w *Worker) EnqueueEvent(ctx context.Context, workflowID string, ev api.Event) error {
	t := taskqueue.Task{
		ID:         uuid.NewString(),
		Type:       taskqueue.TaskTypeDeliverEvent,
		WorkflowID: workflowID,
		Event:      &ev,
		EnqueuedAt: time.Now(),
	}
	return w.queue.Enqueue(ctx, t)
}

// EnqueueEventAt enqueues an event task that will be delivered no earlier
// than 'at'. Scheduling a delayed TIMEOUT event against a waiting instance
// gives it a nudge if the patient never answers.
func (w *Worker) EnqueueEventAt(ctx context.Context, workflowID string, ev api.Event, at time.Time) error {
	t := taskqueue.Task{
		ID:         uuid.NewString(),
		Type:       taskqueue.TaskTypeDeliverEvent,
		WorkflowID: workflowID,
		Event:      &ev,
		EnqueuedAt: time.Now(),
		NotBefore:  at,
	}
	return w.queue.Enqueue(ctx, t)
}

// ProcessOne pulls a single task from the queue and processes it.
// Returns (processed, error):
//   - processed == false, err != nil: nothing processed (usually ctx cancelled)
//   - processed == true: a task was processed; err indicates whether the
//     handler succeeded.
//
// An event delivered to an instance that is no longer waiting is counted as
// processed with no error: the dropped delivery is already logged by the
// engine and retrying it cannot succeed.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	switch task.Type {
	case taskqueue.TaskTypeStartWorkflow:
		if task.Start == nil {
			return true, errors.New("worker: start-workflow task without payload")
		}
		_, runErr := w.engine.Start(ctx, task.Start.SubjectID, task.Start.Contact, task.Start.Appointment)
		return true, runErr

	case taskqueue.TaskTypeDeliverEvent:
		if task.Event == nil {
			return true, errors.New("worker: deliver-event task without payload")
		}
		_, evErr := w.engine.HandleEvent(ctx, task.WorkflowID, *task.Event)
		if errors.Is(evErr, api.ErrNotWaiting) || errors.Is(evErr, api.ErrInstanceNotFound) {
			return true, nil
		}
		return true, evErr

	default:
		return true, errors.New("worker: unknown task type: " + string(task.Type))
	}
}

// Run processes tasks until the context is cancelled. Handler errors are
// reported through onError (may be nil) and do not stop the loop.
func (w *Worker) Run(ctx context.Context, onError func(error)) error {
	for {
		processed, err := w.ProcessOne(ctx)
		if !processed {
			if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		if err != nil && onError != nil {
			onError(err)
		}
	}
}
