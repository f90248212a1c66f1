package api

import "time"

// EventType identifies an external event delivered to a waiting workflow.
type EventType string

const (
	EventPatientResponse EventType = "PATIENT_RESPONSE"
	EventTimeout         EventType = "TIMEOUT"
	EventVoiceCompleted  EventType = "VOICE_COMPLETED"
	EventManualTrigger   EventType = "MANUAL_TRIGGER"
)

// Event is a typed external event. Exactly one payload field matching Type
// is set; Vendor carries opaque passthrough data.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	Response *ResponsePayload `json:"response,omitempty"`
	Voice    *VoicePayload    `json:"voice,omitempty"`
	Timeout  *TimeoutPayload  `json:"timeout,omitempty"`

	Vendor map[string]string `json:"vendor,omitempty"`
}

// ResponsePayload is the payload of a PATIENT_RESPONSE event.
//
// SlotID is set when the response selects one of the offered alternative
// slots; the engine then treats a confirming reply as a reschedule.
type ResponsePayload struct {
	Intent         Intent          `json:"intent"`
	Text           string          `json:"text,omitempty"`
	SlotID         string          `json:"slot_id,omitempty"`
	Classification *Classification `json:"classification,omitempty"`
}

// VoicePayload is the payload of a VOICE_COMPLETED event.
type VoicePayload struct {
	Resolved bool   `json:"resolved"`
	CallID   string `json:"call_id,omitempty"`
	Summary  string `json:"summary,omitempty"`
}

// TimeoutPayload is the payload of a TIMEOUT event.
type TimeoutPayload struct {
	Reason string `json:"reason,omitempty"`
}

// NotificationKind identifies a dashboard-facing notification.
type NotificationKind string

const (
	NotifyWorkflowUpdate   NotificationKind = "WORKFLOW_UPDATE"
	NotifyEscalationAlert  NotificationKind = "ESCALATION_ALERT"
	NotifyVoiceCallStarted NotificationKind = "VOICE_CALL_STARTED"
)

// Notification is a best-effort observability record published to the
// notification sink. Delivery failures never reach the workflow engine.
type Notification struct {
	Kind       NotificationKind `json:"kind"`
	WorkflowID string           `json:"workflow_id"`
	SubjectID  string           `json:"subject_id,omitempty"`
	Status     Status           `json:"status,omitempty"`
	Step       Step             `json:"step,omitempty"`
	Outcome    Outcome          `json:"outcome,omitempty"`
	At         time.Time        `json:"at"`
	Detail     string           `json:"detail,omitempty"`
}
