package taskqueue

import (
	"context"
	"time"

	"github.com/AutonomosCdM/smartSalud-V2/pkg/api"
)

// TaskType identifies what the worker should do.
type TaskType string

const (
	TaskTypeStartWorkflow TaskType = "start-workflow"
	TaskTypeDeliverEvent  TaskType = "deliver-event"
)

// StartPayload is the payload of a start-workflow task.
type StartPayload struct {
	SubjectID   string          `json:"subject_id"`
	Contact     string          `json:"contact"`
	Appointment api.Appointment `json:"appointment"`
}

// Task represents a unit of work for the worker: starting a confirmation
// workflow, or delivering an external event to one.
type Task struct {
	ID   string
	Type TaskType

	// For deliver-event tasks.
	WorkflowID string
	Event      *api.Event

	// For start-workflow tasks.
	Start *StartPayload

	EnqueuedAt time.Time

	// NotBefore is the earliest time this task should be eligible for
	// processing. Zero value means "immediately". Delayed event tasks are
	// how externally scheduled TIMEOUT nudges reach waiting workflows.
	NotBefore time.Time

	Attempts int
}

// Queue is a simple async task queue interface.
type Queue interface {
	// Enqueue adds a task to the queue. It should respect ctx for cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next eligible task, blocking until one
	// is available or the context is cancelled.
	Dequeue(ctx context.Context) (*Task, error)

	// Len returns the approximate number of tasks queued.
	Len() int
}
