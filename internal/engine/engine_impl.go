package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AutonomosCdM/smartSalud-V2/internal/intent"
	"github.com/AutonomosCdM/smartSalud-V2/internal/persistence"
	"github.com/AutonomosCdM/smartSalud-V2/pkg/api"
)

// Config describes how to construct an engine.
type Config struct {
	// Store is the key-value store used for instance persistence. Required.
	Store persistence.KVStore

	// Catalogue defaults to api.DefaultCatalogue().
	Catalogue api.Catalogue

	// Collaborators are the external services the steps talk to.
	Collaborators api.Collaborators

	// Intent is the classifier configuration used by HandleReply.
	Intent intent.Config

	// Observer receives lifecycle callbacks; NoopObserver if nil.
	Observer api.Observer

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Rollback, if set, is invoked after an instance fails terminally.
	Rollback func(ctx context.Context, inst *api.Instance)
}

type engineImpl struct {
	instances *persistence.InstanceStore
	catalogue api.Catalogue
	collab    api.Collaborators
	intentCfg intent.Config
	observer  api.Observer
	logger    *slog.Logger
	rollback  func(ctx context.Context, inst *api.Instance)

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an Engine from the given configuration.
func New(cfg Config) (api.Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("engine: store is required")
	}
	cat := cfg.Catalogue
	if cat == nil {
		cat = api.DefaultCatalogue()
	}
	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &engineImpl{
		instances: persistence.NewInstanceStore(cfg.Store),
		catalogue: cat,
		collab:    cfg.Collaborators,
		intentCfg: cfg.Intent,
		observer:  obs,
		logger:    logger.With("component", "workflow-engine"),
		rollback:  cfg.Rollback,
		locks:     make(map[string]*sync.Mutex),
	}, nil
}

// lockFor returns the mutex serializing all operations on one instance id.
// It guarantees at most one step execution in flight per instance.
func (e *engineImpl) lockFor(id string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	return l
}

func (e *engineImpl) Start(ctx context.Context, subjectID, contact string, appt api.Appointment) (*api.Instance, error) {
	if subjectID == "" {
		return nil, errors.New("engine: subject id is required")
	}
	if contact == "" {
		return nil, errors.New("engine: contact address is required")
	}

	now := time.Now()
	inst := &api.Instance{
		ID:          fmt.Sprintf("wf-%s-%s", subjectID, uuid.NewString()),
		SubjectID:   subjectID,
		Contact:     contact,
		Status:      api.StatusPending,
		CurrentStep: e.catalogue[0].Step,
		Steps:       e.initSteps(),
		Metadata: api.Metadata{
			CreatedAt:   now,
			UpdatedAt:   now,
			Appointment: appt,
		},
	}

	lock := e.lockFor(inst.ID)
	lock.Lock()
	defer lock.Unlock()

	inst.Status = api.StatusRunning
	if err := e.persist(ctx, inst); err != nil {
		return nil, err
	}
	e.observer.OnWorkflowStart(ctx, inst)

	if err := e.executeFrom(ctx, inst); err != nil {
		return inst.Clone(), err
	}
	return inst.Clone(), nil
}

func (e *engineImpl) initSteps() []api.StepExecution {
	steps := make([]api.StepExecution, len(e.catalogue))
	for i, def := range e.catalogue {
		steps[i] = api.StepExecution{Step: def.Step, Status: api.StepPending}
	}
	return steps
}

func (e *engineImpl) GetState(ctx context.Context, id string) (*api.Instance, error) {
	lock := e.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	inst, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return inst.Clone(), nil
}

func (e *engineImpl) ListInstances(ctx context.Context, opts api.InstanceListOptions) ([]*api.Instance, error) {
	return e.instances.List(ctx, opts)
}

func (e *engineImpl) HandleEvent(ctx context.Context, id string, ev api.Event) (*api.Instance, error) {
	lock := e.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	return e.handleEventLocked(ctx, id, ev)
}

func (e *engineImpl) handleEventLocked(ctx context.Context, id string, ev api.Event) (*api.Instance, error) {
	inst, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if inst.Status != api.StatusWaiting {
		// Duplicate or stale delivery: warn and drop without mutating state.
		e.logger.Warn("event dropped: workflow not waiting",
			slog.String("workflow_id", id),
			slog.String("status", string(inst.Status)),
			slog.String("event_type", string(ev.Type)),
		)
		return inst.Clone(), api.ErrNotWaiting
	}

	idx := inst.StepIndex(inst.CurrentStep)
	if idx < 0 {
		return nil, fmt.Errorf("engine: instance %s: current step %s not in step records", id, inst.CurrentStep)
	}
	rec := &inst.Steps[idx]

	// Complete the waiting step with the event payload as its result.
	now := time.Now()
	rec.Status = api.StepCompleted
	rec.CompletedAt = &now
	rec.Result = resultFromEvent(ev)

	if ev.Type == api.EventVoiceCompleted && ev.Voice != nil && ev.Voice.CallID != "" {
		inst.Metadata.VoiceCallID = ev.Voice.CallID
	}

	e.applyEventPolicy(ctx, inst, ev)
	e.observer.OnEvent(ctx, inst, ev)

	if inst.Status.Terminal() {
		if err := e.persist(ctx, inst); err != nil {
			return inst.Clone(), err
		}
		e.observer.OnWorkflowCompleted(ctx, inst)
		return inst.Clone(), nil
	}

	inst.Status = api.StatusRunning
	if idx+1 < len(e.catalogue) {
		inst.CurrentStep = e.catalogue[idx+1].Step
		if err := e.persist(ctx, inst); err != nil {
			return inst.Clone(), err
		}
		if err := e.executeFrom(ctx, inst); err != nil {
			return inst.Clone(), err
		}
		return inst.Clone(), nil
	}

	if err := e.complete(ctx, inst); err != nil {
		return inst.Clone(), err
	}
	return inst.Clone(), nil
}

// applyEventPolicy applies the event-specific transition rules. It may move
// the instance to a terminal status; otherwise the caller continues to the
// next step.
func (e *engineImpl) applyEventPolicy(ctx context.Context, inst *api.Instance, ev api.Event) {
	switch ev.Type {
	case api.EventPatientResponse:
		label := api.IntentUnknown
		if ev.Response != nil {
			label = ev.Response.Intent
		}
		switch label {
		case api.IntentConfirm:
			if slot, ok := e.selectedSlot(inst, ev.Response); ok {
				inst.Outcome = api.OutcomeRescheduled
				e.syncCalendarReschedule(ctx, inst, slot)
			} else {
				inst.Outcome = api.OutcomeConfirmed
				e.syncCalendarConfirm(ctx, inst)
			}
			e.markCompleted(inst)
		case api.IntentCancel:
			// Continue to the alternatives / escalation flow.
		default:
			// reschedule or unknown: continue to the next step.
		}

	case api.EventVoiceCompleted:
		if ev.Voice != nil && ev.Voice.Resolved {
			inst.Outcome = api.OutcomeResolvedByVoice
			e.markCompleted(inst)
		}

	case api.EventTimeout, api.EventManualTrigger:
		// Continue to the next step (the escalation path).
	}
}

// selectedSlot resolves a confirm response that selects one of the offered
// alternative slots; such a confirmation is a reschedule, not a plain
// confirmation of the original appointment.
func (e *engineImpl) selectedSlot(inst *api.Instance, resp *api.ResponsePayload) (api.Slot, bool) {
	if resp == nil || resp.SlotID == "" {
		return api.Slot{}, false
	}
	for _, slot := range inst.Metadata.AlternativesOffered {
		if slot.SlotID == resp.SlotID {
			return slot, true
		}
	}
	return api.Slot{}, false
}

// markCompleted flips the instance to COMPLETED without persisting; callers
// persist and notify.
func (e *engineImpl) markCompleted(inst *api.Instance) {
	now := time.Now()
	inst.Status = api.StatusCompleted
	inst.Metadata.CompletedAt = &now
}

// complete finishes an instance whose catalogue is exhausted.
func (e *engineImpl) complete(ctx context.Context, inst *api.Instance) error {
	e.markCompleted(inst)
	if err := e.persist(ctx, inst); err != nil {
		return err
	}
	e.observer.OnWorkflowCompleted(ctx, inst)
	return nil
}

func (e *engineImpl) HandleReply(ctx context.Context, contact, text string) (*api.Instance, error) {
	if contact == "" {
		return nil, errors.New("engine: contact address is required")
	}

	cls := intent.Detect(ctx, e.intentCfg, text)

	waiting, err := e.instances.List(ctx, api.InstanceListOptions{
		Contact: contact,
		Status:  api.StatusWaiting,
	})
	if err != nil {
		return nil, err
	}
	if len(waiting) == 0 {
		return nil, api.ErrNoWaitingInstance
	}

	// Correlate to the most recently created waiting instance.
	target := waiting[0]
	for _, inst := range waiting[1:] {
		if inst.Metadata.CreatedAt.After(target.Metadata.CreatedAt) {
			target = inst
		}
	}

	resp := &api.ResponsePayload{
		Intent:         cls.Label,
		Text:           text,
		Classification: &cls,
	}
	// At the alternative-selection wait, a bare in-range number is a slot
	// pick regardless of how the classifier read it ("2" alone would
	// otherwise match the cancel shorthand).
	if slotID := slotFromShorthand(target, text); slotID != "" {
		resp.SlotID = slotID
		resp.Intent = api.IntentConfirm
	}

	return e.HandleEvent(ctx, target.ID, api.Event{
		Type:      api.EventPatientResponse,
		Timestamp: time.Now(),
		Response:  resp,
	})
}

func (e *engineImpl) Cancel(ctx context.Context, id string) error {
	lock := e.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	inst, err := e.load(ctx, id)
	if err != nil {
		return err
	}
	if inst.Status.Terminal() {
		return api.ErrTerminal
	}

	inst.Status = api.StatusCancelled
	e.syncCalendarCancel(ctx, inst)
	if err := e.persist(ctx, inst); err != nil {
		return err
	}
	e.logger.Info("workflow cancelled", slog.String("workflow_id", id))
	return nil
}

func (e *engineImpl) Resume(ctx context.Context, id string) (*api.Instance, error) {
	lock := e.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	inst, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}

	switch inst.Status {
	case api.StatusPending:
		inst.Status = api.StatusRunning
		if err := e.persist(ctx, inst); err != nil {
			return inst.Clone(), err
		}
	case api.StatusRunning:
		// Interrupted mid-step: start the current step over with a fresh
		// attempt budget so the retry bound holds for the re-entered run.
		if rec := inst.CurrentExecution(); rec != nil && rec.Status != api.StepCompleted {
			rec.Status = api.StepPending
			rec.Attempts = 0
			rec.StartedAt = nil
			rec.LastError = ""
		}
		e.logger.Info("re-entering interrupted step",
			slog.String("workflow_id", id),
			slog.String("step", string(inst.CurrentStep)),
		)
	default:
		// WAITING and terminal instances resume via events, or not at all.
		return inst.Clone(), nil
	}

	if err := e.executeFrom(ctx, inst); err != nil {
		return inst.Clone(), err
	}
	return inst.Clone(), nil
}

func (e *engineImpl) RecoverInterrupted(ctx context.Context) (int, error) {
	var ids []string
	for _, status := range []api.Status{api.StatusPending, api.StatusRunning} {
		list, err := e.instances.List(ctx, api.InstanceListOptions{Status: status})
		if err != nil {
			return 0, err
		}
		for _, inst := range list {
			ids = append(ids, inst.ID)
		}
	}

	count := 0
	for _, id := range ids {
		if _, err := e.Resume(ctx, id); err != nil {
			// The instance itself records the failure; keep recovering.
			e.logger.Warn("recovery failed for instance",
				slog.String("workflow_id", id), slog.Any("error", err))
			continue
		}
		count++
	}
	return count, nil
}

func (e *engineImpl) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	waiting, err := e.instances.List(ctx, api.InstanceListOptions{Status: api.StatusWaiting})
	if err != nil {
		return 0, err
	}

	count := 0
	for _, inst := range waiting {
		def, _, ok := e.catalogue.Find(inst.CurrentStep)
		if !ok || !def.Wait {
			continue
		}
		rec := inst.CurrentExecution()
		if rec == nil || rec.StartedAt == nil {
			continue
		}
		deadline := rec.StartedAt.Add(def.Timeout)
		if !deadline.Before(now) {
			continue
		}

		_, err := e.HandleEvent(ctx, inst.ID, api.Event{
			Type:      api.EventTimeout,
			Timestamp: now,
			Timeout:   &api.TimeoutPayload{Reason: fmt.Sprintf("no response within %s", def.Timeout)},
		})
		if err != nil {
			// ErrNotWaiting means the instance was resolved between the
			// listing and the delivery; nothing expired either way.
			if !errors.Is(err, api.ErrNotWaiting) {
				e.logger.Warn("expiry failed for instance",
					slog.String("workflow_id", inst.ID), slog.Any("error", err))
			}
			continue
		}
		count++
	}
	return count, nil
}

// load fetches the persisted instance; the persisted record is the single
// source of truth between operations.
func (e *engineImpl) load(ctx context.Context, id string) (*api.Instance, error) {
	inst, err := e.instances.Get(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrInstanceNotFound) {
			return nil, api.ErrInstanceNotFound
		}
		return nil, err
	}
	return inst, nil
}

// persist writes the full instance record. Every state mutation is followed
// by a persist before any further action, so a restart resumes from the last
// persisted state.
func (e *engineImpl) persist(ctx context.Context, inst *api.Instance) error {
	inst.Metadata.UpdatedAt = time.Now()
	if err := e.instances.Save(ctx, inst); err != nil {
		return fmt.Errorf("engine: persist instance %s: %w", inst.ID, err)
	}
	return nil
}

func resultFromEvent(ev api.Event) *api.StepResult {
	switch ev.Type {
	case api.EventPatientResponse:
		return &api.StepResult{Kind: api.ResultResponse, Response: ev.Response, Vendor: ev.Vendor}
	case api.EventVoiceCompleted:
		return &api.StepResult{Kind: api.ResultVoiceOutcome, Voice: ev.Voice, Vendor: ev.Vendor}
	case api.EventTimeout:
		timeout := ev.Timeout
		if timeout == nil {
			timeout = &api.TimeoutPayload{}
		}
		return &api.StepResult{Kind: api.ResultTimeout, Timeout: timeout, Vendor: ev.Vendor}
	default:
		return &api.StepResult{Kind: api.ResultManual, Vendor: ev.Vendor}
	}
}
