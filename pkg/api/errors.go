package api

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotWaiting is returned when an event is delivered to an instance
	// whose status is not WAITING. The event is dropped and state is
	// unchanged; a warning is logged.
	ErrNotWaiting = errors.New("workflow is not waiting for events")

	// ErrTerminal is returned for operations on an instance that already
	// reached COMPLETED, FAILED or CANCELLED.
	ErrTerminal = errors.New("workflow already reached a terminal status")

	// ErrInstanceNotFound is returned when no instance exists for an id.
	ErrInstanceNotFound = errors.New("workflow instance not found")

	// ErrNoWaitingInstance is returned by reply correlation when no WAITING
	// instance matches the contact address.
	ErrNoWaitingInstance = errors.New("no waiting workflow instance for contact")
)

// TimeoutError indicates that a step's action did not settle within its
// configured bound. It counts as a step failure and is subject to the step's
// retry policy.
type TimeoutError struct {
	Step  Step
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("step %s timed out after %s", e.Step, e.After)
}

// IsTimeout reports whether err is (or wraps) a step timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// TransportError indicates that a collaborator call failed. It counts as a
// step failure and is subject to the step's retry policy.
type TransportError struct {
	Step Step
	Op   string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("step %s: %s: %v", e.Step, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
