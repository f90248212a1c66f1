package api

import (
	"context"
	"time"
)

// Engine drives confirmation workflows through the fixed step catalogue.
//
// All methods are safe for concurrent use; the engine serializes operations
// per instance id, so at most one step execution is in flight per instance.
type Engine interface {
	// Start creates a new instance for the given subject and appointment,
	// persists it, and runs steps until the first wait step or a terminal
	// status. It returns a snapshot of the resulting instance.
	Start(ctx context.Context, subjectID, contact string, appt Appointment) (*Instance, error)

	// GetState returns a read-only snapshot of an instance.
	GetState(ctx context.Context, id string) (*Instance, error)

	// HandleEvent delivers an external event to a WAITING instance and
	// continues execution until the next wait step or a terminal status.
	// Events delivered while the instance is not WAITING are logged and
	// dropped without mutating state; ErrNotWaiting is returned.
	HandleEvent(ctx context.Context, id string, ev Event) (*Instance, error)

	// HandleReply classifies a free-text reply and delivers the resulting
	// PATIENT_RESPONSE event to the waiting instance for the contact.
	HandleReply(ctx context.Context, contact, text string) (*Instance, error)

	// Cancel explicitly cancels an instance. The calendar cancellation side
	// effect is best-effort. Cancelling a terminal instance is an error.
	Cancel(ctx context.Context, id string) error

	// ListInstances returns instances matching the options.
	ListInstances(ctx context.Context, opts InstanceListOptions) ([]*Instance, error)

	// Resume re-enters the persisted current step of a PENDING or RUNNING
	// instance, typically after a process restart interrupted execution.
	// WAITING and terminal instances are returned unchanged.
	Resume(ctx context.Context, id string) (*Instance, error)

	// RecoverInterrupted resumes every instance left PENDING or RUNNING by
	// a previous process. It returns the number of instances resumed and is
	// intended to be called once on startup.
	RecoverInterrupted(ctx context.Context) (int, error)

	// ExpireOverdue injects a TIMEOUT event into every WAITING instance
	// whose wait deadline (wait-step start plus wait-step timeout) is
	// before now. It returns the number of instances expired. The periodic
	// tick that calls it is supplied by the caller, not the engine.
	ExpireOverdue(ctx context.Context, now time.Time) (int, error)
}

// InstanceListOptions filters ListInstances. Zero values mean "no filter".
type InstanceListOptions struct {
	SubjectID string
	Contact   string
	Status    Status
}
