package engine

import (
	"context"
	"testing"
	"time"

	"github.com/AutonomosCdM/smartSalud-V2/internal/persistence"
	"github.com/AutonomosCdM/smartSalud-V2/pkg/api"
)

// A second engine over the same store must see exactly the state the first
// one persisted, and must be able to drive the workflow to completion.
func TestRestartRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemoryStore()
	msgr := &scriptedMessenger{}

	first := newTestEngine(t, store, defaultCollaborators(msgr), nil)
	started, err := first.Start(ctx, "patient-1", "+56911112222", testAppointment())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	second := newTestEngine(t, store, defaultCollaborators(msgr), nil)
	reloaded, err := second.GetState(ctx, started.ID)
	if err != nil {
		t.Fatalf("GetState on second engine failed: %v", err)
	}

	if reloaded.Status != started.Status || reloaded.CurrentStep != started.CurrentStep {
		t.Fatalf("reloaded %s/%s, expected %s/%s",
			reloaded.Status, reloaded.CurrentStep, started.Status, started.CurrentStep)
	}
	if len(reloaded.Steps) != len(started.Steps) {
		t.Fatalf("step history length changed across restart: %d vs %d",
			len(reloaded.Steps), len(started.Steps))
	}
	for i := range started.Steps {
		if reloaded.Steps[i].Status != started.Steps[i].Status ||
			reloaded.Steps[i].Attempts != started.Steps[i].Attempts {
			t.Fatalf("step %s diverged across restart: %+v vs %+v",
				started.Steps[i].Step, reloaded.Steps[i], started.Steps[i])
		}
	}

	// The second engine finishes the conversation.
	final, err := second.HandleReply(ctx, "+56911112222", "confirmo")
	if err != nil {
		t.Fatalf("HandleReply on second engine failed: %v", err)
	}
	if final.Status != api.StatusCompleted || final.Outcome != api.OutcomeConfirmed {
		t.Fatalf("expected COMPLETED/CONFIRMED, got %s/%s", final.Status, final.Outcome)
	}
}

func TestRecoverInterrupted(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemoryStore()
	msgr := &scriptedMessenger{}
	cat := api.DefaultCatalogue()

	// Simulate a process that died mid-step: a RUNNING instance persisted
	// with the reminder attempt in flight.
	now := time.Now()
	interrupted := &api.Instance{
		ID:          "wf-patient-9-deadbeef",
		SubjectID:   "patient-9",
		Contact:     "+56955556666",
		Status:      api.StatusRunning,
		CurrentStep: api.StepSendInitialReminder,
		Metadata: api.Metadata{
			CreatedAt:   now,
			UpdatedAt:   now,
			Appointment: testAppointment(),
		},
	}
	for _, def := range cat {
		interrupted.Steps = append(interrupted.Steps, api.StepExecution{
			Step: def.Step, Status: api.StepPending,
		})
	}
	rec := &interrupted.Steps[0]
	rec.Status = api.StepRunning
	rec.Attempts = 1
	rec.StartedAt = &now

	if err := persistence.NewInstanceStore(store).Save(ctx, interrupted); err != nil {
		t.Fatalf("seed save failed: %v", err)
	}

	eng := newTestEngine(t, store, defaultCollaborators(msgr), cat)
	count, err := eng.RecoverInterrupted(ctx)
	if err != nil {
		t.Fatalf("RecoverInterrupted failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 recovered instance, got %d", count)
	}

	got, err := eng.GetState(ctx, interrupted.ID)
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if got.Status != api.StatusWaiting || got.CurrentStep != api.StepWaitInitialResponse {
		t.Fatalf("expected recovery to reach the initial wait, got %s at %s",
			got.Status, got.CurrentStep)
	}
	if len(msgr.sent()) != 1 {
		t.Fatalf("expected the reminder to be re-sent once, got %d", len(msgr.sent()))
	}
}

func TestResumeLeavesWaitingAndTerminalAlone(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemoryStore()
	msgr := &scriptedMessenger{}
	eng := newTestEngine(t, store, defaultCollaborators(msgr), nil)

	inst, err := eng.Start(ctx, "patient-1", "+56911112222", testAppointment())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	resumed, err := eng.Resume(ctx, inst.ID)
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if resumed.Status != api.StatusWaiting || len(msgr.sent()) != 1 {
		t.Fatalf("resume of a waiting instance must be a no-op, got %s with %d sends",
			resumed.Status, len(msgr.sent()))
	}
}

func TestExpireOverdue(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemoryStore()
	msgr := &scriptedMessenger{}
	cat := fastCatalogue()
	_, idx, _ := cat.Find(api.StepWaitInitialResponse)
	cat[idx].Timeout = time.Hour

	eng := newTestEngine(t, store, defaultCollaborators(msgr), cat)
	inst, err := eng.Start(ctx, "patient-1", "+56911112222", testAppointment())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Not yet overdue.
	count, err := eng.ExpireOverdue(ctx, time.Now())
	if err != nil {
		t.Fatalf("ExpireOverdue failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no expiries, got %d", count)
	}

	count, err = eng.ExpireOverdue(ctx, time.Now().Add(2*time.Hour))
	if err != nil {
		t.Fatalf("ExpireOverdue failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 expiry, got %d", count)
	}

	got, err := eng.GetState(ctx, inst.ID)
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if got.CurrentStep != api.StepWaitAlternativeResponse {
		t.Fatalf("expected the cancellation path after expiry, got %s", got.CurrentStep)
	}
	if rec := got.Steps[1]; rec.Result == nil || rec.Result.Kind != api.ResultTimeout {
		t.Fatalf("expected timeout result on the expired wait, got %+v", rec.Result)
	}
}

// expiryInterceptor confirms the sibling instance from inside the first
// TIMEOUT delivery, so the other listed instance is no longer WAITING when
// its own TIMEOUT arrives.
type expiryInterceptor struct {
	api.NoopObserver
	eng   api.Engine
	ids   map[string]string
	fired bool
}

func (o *expiryInterceptor) OnEvent(ctx context.Context, inst *api.Instance, ev api.Event) {
	if ev.Type != api.EventTimeout || o.fired {
		return
	}
	o.fired = true
	_, _ = o.eng.HandleEvent(ctx, o.ids[inst.ID], api.Event{
		Type:      api.EventPatientResponse,
		Timestamp: time.Now(),
		Response:  &api.ResponsePayload{Intent: api.IntentConfirm, Text: "confirmo"},
	})
}

func TestExpireOverdueSkipsInstancesResolvedMidScan(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemoryStore()
	msgr := &scriptedMessenger{}
	cat := fastCatalogue()
	_, idx, _ := cat.Find(api.StepWaitInitialResponse)
	cat[idx].Timeout = time.Hour

	obs := &expiryInterceptor{ids: make(map[string]string)}
	eng, err := New(Config{
		Store:         store,
		Catalogue:     cat,
		Collaborators: defaultCollaborators(msgr),
		Observer:      obs,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	obs.eng = eng

	a, err := eng.Start(ctx, "patient-1", "+56911112222", testAppointment())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	b, err := eng.Start(ctx, "patient-2", "+56933334444", testAppointment())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	obs.ids[a.ID] = b.ID
	obs.ids[b.ID] = a.ID

	// Both waits are overdue, but the first expiry resolves the sibling, so
	// only one TIMEOUT is actually delivered.
	count, err := eng.ExpireOverdue(ctx, time.Now().Add(2*time.Hour))
	if err != nil {
		t.Fatalf("ExpireOverdue failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 expiry when the sibling was resolved mid-scan, got %d", count)
	}
}
