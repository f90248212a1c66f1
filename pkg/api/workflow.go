package api

import (
	"time"
)

// Status represents the lifecycle state of a confirmation workflow instance.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusWaiting   Status = "WAITING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no further transitions are accepted from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Outcome describes how a completed workflow ended.
type Outcome string

const (
	OutcomeConfirmed        Outcome = "CONFIRMED"
	OutcomeRescheduled      Outcome = "RESCHEDULED"
	OutcomeResolvedByVoice  Outcome = "RESOLVED_BY_VOICE"
	OutcomeEscalatedToHuman Outcome = "ESCALATED_TO_HUMAN"
	OutcomeTimeout          Outcome = "TIMEOUT"
	OutcomeError            Outcome = "ERROR"
)

// Step names the eight steps of the confirmation process, in catalogue order.
type Step string

const (
	StepSendInitialReminder     Step = "SEND_INITIAL_REMINDER"
	StepWaitInitialResponse     Step = "WAIT_INITIAL_RESPONSE"
	StepProcessCancellation     Step = "PROCESS_CANCELLATION"
	StepSendAlternatives        Step = "SEND_ALTERNATIVES"
	StepWaitAlternativeResponse Step = "WAIT_ALTERNATIVE_RESPONSE"
	StepTriggerVoiceCall        Step = "TRIGGER_VOICE_CALL"
	StepWaitVoiceOutcome        Step = "WAIT_VOICE_OUTCOME"
	StepEscalateToHuman         Step = "ESCALATE_TO_HUMAN"
)

// StepStatus is the sub-status of a single step execution record.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// ResultKind discriminates the closed set of step result payloads.
type ResultKind string

const (
	ResultMessageSent  ResultKind = "message_sent"
	ResultAlternatives ResultKind = "alternatives"
	ResultCallStarted  ResultKind = "call_started"
	ResultResponse     ResultKind = "response"
	ResultVoiceOutcome ResultKind = "voice_outcome"
	ResultTimeout      ResultKind = "timeout"
	ResultEscalated    ResultKind = "escalated"
	ResultManual       ResultKind = "manual_trigger"
)

// StepResult is the typed result payload of a completed step. Exactly one
// payload field matching Kind is set. Vendor carries opaque passthrough data
// that the engine never interprets.
type StepResult struct {
	Kind ResultKind `json:"kind"`

	Receipt      *MessageReceipt  `json:"receipt,omitempty"`
	Alternatives []Slot           `json:"alternatives,omitempty"`
	CallID       string           `json:"call_id,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	Response     *ResponsePayload `json:"response,omitempty"`
	Voice        *VoicePayload    `json:"voice,omitempty"`
	Timeout      *TimeoutPayload  `json:"timeout,omitempty"`

	Vendor map[string]string `json:"vendor,omitempty"`
}

// StepExecution tracks one step of one workflow instance.
type StepExecution struct {
	Step        Step        `json:"step"`
	Status      StepStatus  `json:"status"`
	Attempts    int         `json:"attempts"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	LastError   string      `json:"last_error,omitempty"`
	Result      *StepResult `json:"result,omitempty"`
}

// Appointment is the snapshot of the appointment being confirmed, taken when
// the workflow starts. The engine never reads it back from the scheduling
// system while the workflow is in flight.
type Appointment struct {
	PatientName string        `json:"patient_name"`
	DoctorName  string        `json:"doctor_name"`
	Specialty   string        `json:"specialty"`
	ScheduledAt time.Time     `json:"scheduled_at"`
	Duration    time.Duration `json:"duration"`
}

// Slot is one alternative appointment time offered to the subject.
type Slot struct {
	At     time.Time `json:"at"`
	SlotID string    `json:"slot_id"`
}

// Metadata carries bookkeeping and vendor correlation state for an instance.
type Metadata struct {
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Appointment         Appointment `json:"appointment"`
	AlternativesOffered []Slot      `json:"alternatives_offered,omitempty"`
	VoiceCallID         string      `json:"voice_call_id,omitempty"`
	CalendarEventID     string      `json:"calendar_event_id,omitempty"`
	EscalationReason    string      `json:"escalation_reason,omitempty"`

	Vendor map[string]string `json:"vendor,omitempty"`
}

// Instance is the full persisted representation of one in-flight (or
// finished) confirmation workflow.
//
// Invariants maintained by the engine:
//   - CurrentStep always resolves to exactly one entry in Steps.
//   - Step order is immutable and mirrors the catalogue.
//   - Status transitions are monotone toward a terminal state, except for
//     explicit cancellation.
type Instance struct {
	ID        string `json:"id"`
	SubjectID string `json:"subject_id"`
	Contact   string `json:"contact"`

	Status      Status          `json:"status"`
	CurrentStep Step            `json:"current_step"`
	Steps       []StepExecution `json:"steps"`
	Outcome     Outcome         `json:"outcome,omitempty"`
	Metadata    Metadata        `json:"metadata"`
}

// StepIndex returns the index of the given step in Steps, or -1.
func (in *Instance) StepIndex(step Step) int {
	for i := range in.Steps {
		if in.Steps[i].Step == step {
			return i
		}
	}
	return -1
}

// CurrentExecution returns the execution record for CurrentStep, or nil when
// the instance is malformed.
func (in *Instance) CurrentExecution() *StepExecution {
	if i := in.StepIndex(in.CurrentStep); i >= 0 {
		return &in.Steps[i]
	}
	return nil
}

// Clone returns a deep copy of the instance, safe for callers to inspect
// while the engine keeps mutating its own copy.
func (in *Instance) Clone() *Instance {
	out := *in
	out.Steps = make([]StepExecution, len(in.Steps))
	copy(out.Steps, in.Steps)
	for i := range out.Steps {
		if r := out.Steps[i].Result; r != nil {
			cr := *r
			cr.Alternatives = append([]Slot(nil), r.Alternatives...)
			cr.Vendor = cloneMap(r.Vendor)
			out.Steps[i].Result = &cr
		}
		if t := out.Steps[i].StartedAt; t != nil {
			tc := *t
			out.Steps[i].StartedAt = &tc
		}
		if t := out.Steps[i].CompletedAt; t != nil {
			tc := *t
			out.Steps[i].CompletedAt = &tc
		}
	}
	out.Metadata.AlternativesOffered = append([]Slot(nil), in.Metadata.AlternativesOffered...)
	out.Metadata.Vendor = cloneMap(in.Metadata.Vendor)
	if t := in.Metadata.CompletedAt; t != nil {
		tc := *t
		out.Metadata.CompletedAt = &tc
	}
	return &out
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
