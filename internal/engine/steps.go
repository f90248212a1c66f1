package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/AutonomosCdM/smartSalud-V2/pkg/api"
)

const appointmentTimeLayout = "02-01-2006 15:04"

// runAction dispatches one attempt of an active step. Wait steps never reach
// here.
//
// Actions receive a snapshot of the instance and must not mutate it: an
// attempt that loses its timeout race keeps running until the collaborator
// returns, so any state it produces travels back in the StepResult and is
// folded into the live instance by the executor only when the attempt wins.
func (e *engineImpl) runAction(ctx context.Context, inst *api.Instance, step api.Step) (*api.StepResult, error) {
	switch step {
	case api.StepSendInitialReminder:
		return e.sendInitialReminder(ctx, inst)
	case api.StepProcessCancellation:
		return e.processCancellation(ctx, inst)
	case api.StepSendAlternatives:
		return e.sendAlternatives(ctx, inst)
	case api.StepTriggerVoiceCall:
		return e.triggerVoiceCall(ctx, inst)
	case api.StepEscalateToHuman:
		return e.escalateToHuman(ctx, inst)
	default:
		return nil, fmt.Errorf("engine: no action for step %s", step)
	}
}

func (e *engineImpl) sendInitialReminder(ctx context.Context, inst *api.Instance) (*api.StepResult, error) {
	if e.collab.Messenger == nil {
		return nil, e.transportErr(api.StepSendInitialReminder, "send reminder", errNotConfigured("messenger"))
	}

	appt := inst.Metadata.Appointment
	var b strings.Builder
	fmt.Fprintf(&b, "Hola %s, le recordamos su cita", appt.PatientName)
	if appt.DoctorName != "" {
		fmt.Fprintf(&b, " con %s", appt.DoctorName)
	}
	if appt.Specialty != "" {
		fmt.Fprintf(&b, " (%s)", appt.Specialty)
	}
	fmt.Fprintf(&b, " el %s.\n", appt.ScheduledAt.Format(appointmentTimeLayout))
	b.WriteString("Responda 1 para confirmar o 2 para cancelar.")

	receipt, err := e.collab.Messenger.Send(ctx, inst.Contact, b.String())
	if err != nil {
		return nil, e.transportErr(api.StepSendInitialReminder, "send reminder", err)
	}
	return &api.StepResult{Kind: api.ResultMessageSent, Receipt: &receipt}, nil
}

func (e *engineImpl) processCancellation(ctx context.Context, inst *api.Instance) (*api.StepResult, error) {
	if e.collab.Alternatives == nil {
		return nil, e.transportErr(api.StepProcessCancellation, "list alternatives", errNotConfigured("alternatives source"))
	}

	slots, err := e.collab.Alternatives.ListAlternatives(ctx, inst.SubjectID)
	if err != nil {
		return nil, e.transportErr(api.StepProcessCancellation, "list alternatives", err)
	}
	return &api.StepResult{Kind: api.ResultAlternatives, Alternatives: slots}, nil
}

func (e *engineImpl) sendAlternatives(ctx context.Context, inst *api.Instance) (*api.StepResult, error) {
	if e.collab.Messenger == nil {
		return nil, e.transportErr(api.StepSendAlternatives, "send alternatives", errNotConfigured("messenger"))
	}

	slots := inst.Metadata.AlternativesOffered
	var b strings.Builder
	if len(slots) == 0 {
		b.WriteString("No encontramos horarios alternativos por ahora. Un miembro del equipo se pondra en contacto con usted.")
	} else {
		b.WriteString("Estos son los horarios disponibles para reagendar su cita:\n")
		for i, slot := range slots {
			fmt.Fprintf(&b, "%d. %s\n", i+1, slot.At.Format(appointmentTimeLayout))
		}
		b.WriteString("Responda con el numero de su preferencia.")
	}

	receipt, err := e.collab.Messenger.Send(ctx, inst.Contact, b.String())
	if err != nil {
		return nil, e.transportErr(api.StepSendAlternatives, "send alternatives", err)
	}
	return &api.StepResult{Kind: api.ResultMessageSent, Receipt: &receipt}, nil
}

func (e *engineImpl) triggerVoiceCall(ctx context.Context, inst *api.Instance) (*api.StepResult, error) {
	if e.collab.Voice == nil {
		return nil, e.transportErr(api.StepTriggerVoiceCall, "initiate call", errNotConfigured("voice channel"))
	}

	callID, err := e.collab.Voice.InitiateCall(ctx, inst.Contact)
	if err != nil {
		return nil, e.transportErr(api.StepTriggerVoiceCall, "initiate call", err)
	}
	return &api.StepResult{Kind: api.ResultCallStarted, CallID: callID}, nil
}

func (e *engineImpl) escalateToHuman(ctx context.Context, inst *api.Instance) (*api.StepResult, error) {
	reason := "patient unreachable after automated reminder, alternatives and voice call"

	if e.collab.Messenger != nil && e.collab.StaffContact != "" {
		appt := inst.Metadata.Appointment
		text := fmt.Sprintf(
			"Escalamiento: el paciente %s (%s) no respondio a los recordatorios automaticos de su cita del %s. Requiere contacto manual.",
			appt.PatientName, inst.Contact, appt.ScheduledAt.Format(appointmentTimeLayout),
		)
		if _, err := e.collab.Messenger.Send(ctx, e.collab.StaffContact, text); err != nil {
			return nil, e.transportErr(api.StepEscalateToHuman, "notify staff", err)
		}
	}

	e.logger.Warn("workflow escalated to human staff",
		slog.String("workflow_id", inst.ID),
		slog.String("subject_id", inst.SubjectID),
	)
	return &api.StepResult{Kind: api.ResultEscalated, Reason: reason}, nil
}

func (e *engineImpl) transportErr(step api.Step, op string, err error) error {
	return &api.TransportError{Step: step, Op: op, Err: err}
}

func errNotConfigured(name string) error {
	return fmt.Errorf("%s collaborator not configured", name)
}

// Calendar side effects are best effort: a calendar failure never changes
// the workflow outcome, it is only logged.

func (e *engineImpl) syncCalendarConfirm(ctx context.Context, inst *api.Instance) {
	if e.collab.Calendar == nil {
		return
	}
	appt := inst.Metadata.Appointment
	eventID, err := e.collab.Calendar.CreateEvent(ctx, inst.SubjectID, appt.ScheduledAt, appt.Duration)
	if err != nil {
		e.logCalendarError(inst, "create event", err)
		return
	}
	inst.Metadata.CalendarEventID = eventID
}

func (e *engineImpl) syncCalendarReschedule(ctx context.Context, inst *api.Instance, slot api.Slot) {
	if e.collab.Calendar == nil {
		return
	}
	appt := inst.Metadata.Appointment
	if inst.Metadata.CalendarEventID == "" {
		eventID, err := e.collab.Calendar.CreateEvent(ctx, inst.SubjectID, slot.At, appt.Duration)
		if err != nil {
			e.logCalendarError(inst, "create event", err)
			return
		}
		inst.Metadata.CalendarEventID = eventID
		return
	}
	if err := e.collab.Calendar.UpdateEvent(ctx, inst.Metadata.CalendarEventID, slot.At, appt.Duration); err != nil {
		e.logCalendarError(inst, "update event", err)
	}
}

func (e *engineImpl) syncCalendarCancel(ctx context.Context, inst *api.Instance) {
	if e.collab.Calendar == nil || inst.Metadata.CalendarEventID == "" {
		return
	}
	if err := e.collab.Calendar.CancelEvent(ctx, inst.Metadata.CalendarEventID); err != nil {
		e.logCalendarError(inst, "cancel event", err)
	}
}

func (e *engineImpl) logCalendarError(inst *api.Instance, op string, err error) {
	e.logger.Warn("calendar sync failed",
		slog.String("workflow_id", inst.ID),
		slog.String("op", op),
		slog.Any("error", err),
	)
}

// slotFromShorthand maps a bare numeric reply ("1", "2", ...) to the slot at
// that position in the offered alternatives, when the instance is waiting on
// the alternative-selection step.
func slotFromShorthand(inst *api.Instance, text string) string {
	if inst.CurrentStep != api.StepWaitAlternativeResponse {
		return ""
	}
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 1 || n > len(inst.Metadata.AlternativesOffered) {
		return ""
	}
	return inst.Metadata.AlternativesOffered[n-1].SlotID
}
