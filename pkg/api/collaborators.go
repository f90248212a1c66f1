package api

import (
	"context"
	"time"
)

// MessageReceipt is returned by the message channel after a send.
type MessageReceipt struct {
	Delivered bool   `json:"delivered"`
	MessageID string `json:"message_id"`
}

// Messenger is the outbound message channel (WhatsApp, SMS, ...).
type Messenger interface {
	Send(ctx context.Context, contact, text string) (MessageReceipt, error)
}

// AlternativesSource lists alternative appointment slots for a subject,
// in the order they should be offered.
type AlternativesSource interface {
	ListAlternatives(ctx context.Context, subjectID string) ([]Slot, error)
}

// CalendarSync mirrors workflow outcomes into the calendar vendor.
//
// Calendar failures are a non-critical side effect: the engine logs them and
// never lets them fail the owning step.
type CalendarSync interface {
	CreateEvent(ctx context.Context, subjectID string, at time.Time, duration time.Duration) (string, error)
	UpdateEvent(ctx context.Context, eventID string, at time.Time, duration time.Duration) error
	CancelEvent(ctx context.Context, eventID string) error
}

// VoiceChannel initiates an outbound voice call and returns the vendor call id.
// The call outcome arrives later as a VOICE_COMPLETED event.
type VoiceChannel interface {
	InitiateCall(ctx context.Context, contact string) (string, error)
}

// Collaborators bundles the external services the engine's steps talk to.
// Messenger is required; the others may be nil, in which case the steps that
// need them fail with a transport error (calendar excepted, it is optional
// everywhere).
type Collaborators struct {
	Messenger    Messenger
	Alternatives AlternativesSource
	Calendar     CalendarSync
	Voice        VoiceChannel

	// StaffContact receives the escalation message in ESCALATE_TO_HUMAN.
	StaffContact string
}
