package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AutonomosCdM/smartSalud-V2/internal/persistence"
	"github.com/AutonomosCdM/smartSalud-V2/pkg/api"
)

func TestStepRetriesThenSucceeds(t *testing.T) {
	ctx := context.Background()
	msgr := &scriptedMessenger{failures: 2}
	eng := newTestEngine(t, persistence.NewMemoryStore(), defaultCollaborators(msgr), fastCatalogue())

	inst, err := eng.Start(ctx, "patient-1", "+56911112222", testAppointment())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if inst.Status != api.StatusWaiting {
		t.Fatalf("expected WAITING after retries, got %s", inst.Status)
	}
	rec := inst.Steps[0]
	if rec.Status != api.StepCompleted || rec.Attempts != 3 {
		t.Fatalf("expected 3 attempts ending completed, got %+v", rec)
	}
	if len(msgr.sent()) != 1 {
		t.Fatalf("expected exactly one delivered reminder, got %d", len(msgr.sent()))
	}
}

func TestStepFailsAfterRetryBudget(t *testing.T) {
	ctx := context.Background()
	msgr := &scriptedMessenger{failures: 100}
	cat := fastCatalogue()
	cat[0].MaxRetries = 1

	var rolledBack *api.Instance
	eng, err := New(Config{
		Store:         persistence.NewMemoryStore(),
		Catalogue:     cat,
		Collaborators: defaultCollaborators(msgr),
		Rollback: func(ctx context.Context, inst *api.Instance) {
			rolledBack = inst
		},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	inst, err := eng.Start(ctx, "patient-1", "+56911112222", testAppointment())
	if err == nil {
		t.Fatalf("expected Start to return the step error")
	}

	var te *api.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if inst == nil {
		t.Fatalf("expected instance snapshot alongside error")
	}
	if inst.Status != api.StatusFailed || inst.Outcome != api.OutcomeError {
		t.Fatalf("expected FAILED/ERROR, got %s/%s", inst.Status, inst.Outcome)
	}

	rec := inst.Steps[0]
	// MaxRetries 1 allows two attempts total.
	if rec.Status != api.StepFailed || rec.Attempts != 2 {
		t.Fatalf("unexpected failed record: %+v", rec)
	}
	if rec.LastError == "" {
		t.Fatalf("last error not recorded")
	}
	if rolledBack == nil || rolledBack.ID != inst.ID {
		t.Fatalf("rollback hook not invoked with failed instance")
	}
}

func TestAttemptsNeverExceedBudget(t *testing.T) {
	ctx := context.Background()
	msgr := &scriptedMessenger{failures: 100}
	cat := fastCatalogue()
	cat[0].MaxRetries = 3
	eng := newTestEngine(t, persistence.NewMemoryStore(), defaultCollaborators(msgr), cat)

	inst, _ := eng.Start(ctx, "patient-1", "+56911112222", testAppointment())
	if inst == nil {
		t.Fatalf("expected instance snapshot")
	}
	if got := inst.Steps[0].Attempts; got != cat[0].MaxRetries+1 {
		t.Fatalf("expected %d attempts, got %d", cat[0].MaxRetries+1, got)
	}
}

func TestExponentialBackoffSpacing(t *testing.T) {
	ctx := context.Background()
	msgr := &scriptedMessenger{failures: 3}
	cat := fastCatalogue()
	cat[0].MaxRetries = 3
	cat[0].RetryDelay = 20 * time.Millisecond
	cat[0].ExponentialBackoff = true
	eng := newTestEngine(t, persistence.NewMemoryStore(), defaultCollaborators(msgr), cat)

	start := time.Now()
	inst, err := eng.Start(ctx, "patient-1", "+56911112222", testAppointment())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	elapsed := time.Since(start)

	if inst.Steps[0].Attempts != 4 {
		t.Fatalf("expected 4 attempts, got %d", inst.Steps[0].Attempts)
	}
	// Delays of 20ms, 40ms and 80ms must have been observed.
	if min := 140 * time.Millisecond; elapsed < min {
		t.Fatalf("retries finished in %s, expected at least %s of backoff", elapsed, min)
	}
}

func TestConstantBackoffSpacing(t *testing.T) {
	ctx := context.Background()
	msgr := &scriptedMessenger{failures: 2}
	cat := fastCatalogue()
	cat[0].RetryDelay = 25 * time.Millisecond
	cat[0].ExponentialBackoff = false
	eng := newTestEngine(t, persistence.NewMemoryStore(), defaultCollaborators(msgr), cat)

	start := time.Now()
	if _, err := eng.Start(ctx, "patient-1", "+56911112222", testAppointment()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("retries finished in %s, expected two constant 25ms delays", elapsed)
	}
}

func TestStepTimeoutIsRetried(t *testing.T) {
	ctx := context.Background()
	msgr := &scriptedMessenger{delay: 60 * time.Millisecond}
	cat := fastCatalogue()
	cat[0].MaxRetries = 1
	cat[0].Timeout = 15 * time.Millisecond
	eng := newTestEngine(t, persistence.NewMemoryStore(), defaultCollaborators(msgr), cat)

	inst, err := eng.Start(ctx, "patient-1", "+56911112222", testAppointment())
	if err == nil {
		t.Fatalf("expected timeout failure")
	}
	if !api.IsTimeout(err) {
		t.Fatalf("expected step timeout, got %v", err)
	}
	if inst.Status != api.StatusFailed {
		t.Fatalf("expected FAILED, got %s", inst.Status)
	}
	if inst.Steps[0].Attempts != 2 {
		t.Fatalf("expected the timed-out attempt to be retried once, got %d attempts", inst.Steps[0].Attempts)
	}
}

// laggardAlternatives blocks until released, ignoring ctx the way a
// misbehaving HTTP client would.
type laggardAlternatives struct {
	release chan struct{}
	done    chan struct{}
	slots   []api.Slot
}

func (l *laggardAlternatives) ListAlternatives(ctx context.Context, subjectID string) ([]api.Slot, error) {
	<-l.release
	defer close(l.done)
	return l.slots, nil
}

func TestLateAttemptCannotMutateTimedOutInstance(t *testing.T) {
	ctx := context.Background()
	msgr := &scriptedMessenger{}
	alts := &laggardAlternatives{
		release: make(chan struct{}),
		done:    make(chan struct{}),
		slots:   testSlots(),
	}
	collab := defaultCollaborators(msgr)
	collab.Alternatives = alts
	cat := fastCatalogue()
	cat[2].MaxRetries = 0
	cat[2].Timeout = 10 * time.Millisecond
	eng := newTestEngine(t, persistence.NewMemoryStore(), collab, cat)

	started, err := eng.Start(ctx, "patient-1", "+56911112222", testAppointment())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	inst, err := eng.HandleReply(ctx, "+56911112222", "cancelar")
	if !api.IsTimeout(err) {
		t.Fatalf("expected step timeout, got %v", err)
	}
	if inst.Status != api.StatusFailed || inst.Outcome != api.OutcomeError {
		t.Fatalf("expected FAILED/ERROR, got %s/%s", inst.Status, inst.Outcome)
	}

	// Release the abandoned attempt after the engine has already failed the
	// workflow; its late return must not reach the persisted instance.
	close(alts.release)
	<-alts.done

	got, err := eng.GetState(ctx, started.ID)
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if len(got.Metadata.AlternativesOffered) != 0 {
		t.Fatalf("late attempt leaked %d slots into the failed instance",
			len(got.Metadata.AlternativesOffered))
	}
	if got.Status != api.StatusFailed || got.Outcome != api.OutcomeError {
		t.Fatalf("late attempt changed terminal state to %s/%s", got.Status, got.Outcome)
	}
}

func TestContextCancellationFailsWorkflow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	msgr := &scriptedMessenger{delay: 5 * time.Second}
	cat := fastCatalogue()
	eng := newTestEngine(t, persistence.NewMemoryStore(), defaultCollaborators(msgr), cat)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := eng.Start(ctx, "patient-1", "+56911112222", testAppointment())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
