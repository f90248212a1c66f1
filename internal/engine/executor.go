package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/AutonomosCdM/smartSalud-V2/pkg/api"
)

// executeFrom runs steps starting at the instance's current step, until the
// workflow suspends at a wait step, finishes the catalogue, or fails
// terminally. The caller holds the instance lock.
func (e *engineImpl) executeFrom(ctx context.Context, inst *api.Instance) error {
	for {
		idx := inst.StepIndex(inst.CurrentStep)
		def := e.catalogue[idx]
		rec := &inst.Steps[idx]

		if def.Wait {
			return e.suspend(ctx, inst, def, rec)
		}

		if err := e.runActiveStep(ctx, inst, def, rec); err != nil {
			return err
		}

		if idx+1 == len(e.catalogue) {
			return e.complete(ctx, inst)
		}
		inst.CurrentStep = e.catalogue[idx+1].Step
		if err := e.persist(ctx, inst); err != nil {
			return err
		}
	}
}

// suspend parks the instance at a wait step. Suspension is pure state: no
// goroutine blocks while waiting, the instance is simply persisted as
// WAITING and reloaded when an event arrives.
func (e *engineImpl) suspend(ctx context.Context, inst *api.Instance, def api.StepDefinition, rec *api.StepExecution) error {
	now := time.Now()
	rec.Status = api.StepRunning
	rec.Attempts = 1
	rec.StartedAt = &now
	inst.Status = api.StatusWaiting
	if err := e.persist(ctx, inst); err != nil {
		return err
	}
	e.observer.OnWorkflowWaiting(ctx, inst, def.Step)
	e.logger.Info("workflow waiting",
		slog.String("workflow_id", inst.ID),
		slog.String("step", string(def.Step)),
		slog.Duration("timeout", def.Timeout),
	)
	return nil
}

// runActiveStep executes one active step to completion, retrying failed
// attempts per the step definition. A step never runs more than
// MaxRetries+1 times; exhausting the budget fails the workflow.
func (e *engineImpl) runActiveStep(ctx context.Context, inst *api.Instance, def api.StepDefinition, rec *api.StepExecution) error {
	for {
		now := time.Now()
		rec.Status = api.StepRunning
		if rec.StartedAt == nil {
			rec.StartedAt = &now
		}
		rec.Attempts++
		attempt := rec.Attempts
		if err := e.persist(ctx, inst); err != nil {
			return err
		}
		e.observer.OnStepStart(ctx, inst, def.Step, attempt)

		started := time.Now()
		result, err := e.raceStep(ctx, inst, def)
		elapsed := time.Since(started)
		if err == nil {
			e.applyResult(inst, result)
		}
		e.observer.OnStepCompleted(ctx, inst, def.Step, attempt, err, elapsed)

		if err == nil {
			done := time.Now()
			rec.Status = api.StepCompleted
			rec.CompletedAt = &done
			rec.LastError = ""
			rec.Result = result
			return e.persist(ctx, inst)
		}

		rec.LastError = err.Error()
		if rec.Attempts > def.MaxRetries {
			return e.failWorkflow(ctx, inst, rec, err)
		}

		delay := def.RetryDelay
		if def.ExponentialBackoff {
			delay = def.RetryDelay * time.Duration(1<<(rec.Attempts-1))
		}
		rec.Status = api.StepPending
		if perr := e.persist(ctx, inst); perr != nil {
			return perr
		}
		e.logger.Warn("step failed, retrying",
			slog.String("workflow_id", inst.ID),
			slog.String("step", string(def.Step)),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)

		select {
		case <-ctx.Done():
			return e.failWorkflow(ctx, inst, rec, ctx.Err())
		case <-time.After(delay):
		}
	}
}

// applyResult folds a winning attempt's state into the live instance. This
// is the only path from an action to the instance: actions see a snapshot,
// so an attempt that lost its timeout race cannot touch anything the engine
// persisted after the timeout.
func (e *engineImpl) applyResult(inst *api.Instance, result *api.StepResult) {
	if result == nil {
		return
	}
	switch result.Kind {
	case api.ResultAlternatives:
		inst.Metadata.AlternativesOffered = result.Alternatives
	case api.ResultCallStarted:
		inst.Metadata.VoiceCallID = result.CallID
	case api.ResultEscalated:
		inst.Metadata.EscalationReason = result.Reason
		inst.Outcome = api.OutcomeEscalatedToHuman
	}
}

// raceStep runs the step action against its timeout. The action loses the
// race once the timeout fires even if it finishes later; its context is
// cancelled so it can abandon in-flight work. The goroutine gets its own
// deep copy of the instance so a laggard attempt never reads or writes
// state the engine is still working on.
func (e *engineImpl) raceStep(ctx context.Context, inst *api.Instance, def api.StepDefinition) (*api.StepResult, error) {
	type settled struct {
		result *api.StepResult
		err    error
	}
	ch := make(chan settled, 1)

	stepCtx, cancel := context.WithTimeout(ctx, def.Timeout)
	defer cancel()

	snapshot := inst.Clone()
	go func() {
		result, err := e.runAction(stepCtx, snapshot, def.Step)
		ch <- settled{result, err}
	}()

	select {
	case out := <-ch:
		return out.result, out.err
	case <-stepCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &api.TimeoutError{Step: def.Step, After: def.Timeout}
	}
}

// failWorkflow records the terminal failure of the current step and the
// whole instance.
func (e *engineImpl) failWorkflow(ctx context.Context, inst *api.Instance, rec *api.StepExecution, cause error) error {
	now := time.Now()
	rec.Status = api.StepFailed
	rec.CompletedAt = &now
	inst.Status = api.StatusFailed
	inst.Outcome = api.OutcomeError
	inst.Metadata.CompletedAt = &now
	if err := e.persist(ctx, inst); err != nil {
		return err
	}
	e.observer.OnWorkflowFailed(ctx, inst, cause)
	e.logger.Error("workflow failed",
		slog.String("workflow_id", inst.ID),
		slog.String("step", string(rec.Step)),
		slog.Int("attempts", rec.Attempts),
		slog.Any("error", cause),
	)
	if e.rollback != nil {
		e.rollback(ctx, inst)
	}
	return cause
}
