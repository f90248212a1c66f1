package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the workflow engine for logging, metrics
// and dashboard notifications.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay workflow execution. Observer failures are
// never allowed to affect a workflow step.
type Observer interface {
	// OnWorkflowStart is called once when an instance is first started,
	// before the first step is executed.
	OnWorkflowStart(ctx context.Context, inst *Instance)

	// OnWorkflowWaiting is called when an instance suspends on a wait step.
	OnWorkflowWaiting(ctx context.Context, inst *Instance, step Step)

	// OnWorkflowCompleted is called when an instance reaches COMPLETED.
	OnWorkflowCompleted(ctx context.Context, inst *Instance)

	// OnWorkflowFailed is called when an instance transitions to FAILED.
	OnWorkflowFailed(ctx context.Context, inst *Instance, err error)

	// OnEvent is called after an external event has been applied.
	OnEvent(ctx context.Context, inst *Instance, ev Event)

	// OnStepStart is called before each attempt of a step action.
	OnStepStart(ctx context.Context, inst *Instance, step Step, attempt int)

	// OnStepCompleted is called after a step attempt settles, for both
	// successes and failures (err != nil).
	OnStepCompleted(ctx context.Context, inst *Instance, step Step, attempt int, err error, duration time.Duration)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnWorkflowStart(ctx context.Context, inst *Instance)                 {}
func (NoopObserver) OnWorkflowWaiting(ctx context.Context, inst *Instance, step Step)    {}
func (NoopObserver) OnWorkflowCompleted(ctx context.Context, inst *Instance)             {}
func (NoopObserver) OnWorkflowFailed(ctx context.Context, inst *Instance, err error)     {}
func (NoopObserver) OnEvent(ctx context.Context, inst *Instance, ev Event)               {}
func (NoopObserver) OnStepStart(ctx context.Context, inst *Instance, step Step, att int) {}
func (NoopObserver) OnStepCompleted(ctx context.Context, inst *Instance, step Step, att int, err error, d time.Duration) {
}

// CompositeObserver fans out callbacks to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards callbacks to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnWorkflowStart(ctx context.Context, inst *Instance) {
	for _, o := range c.observers {
		o.OnWorkflowStart(ctx, inst)
	}
}

func (c *CompositeObserver) OnWorkflowWaiting(ctx context.Context, inst *Instance, step Step) {
	for _, o := range c.observers {
		o.OnWorkflowWaiting(ctx, inst, step)
	}
}

func (c *CompositeObserver) OnWorkflowCompleted(ctx context.Context, inst *Instance) {
	for _, o := range c.observers {
		o.OnWorkflowCompleted(ctx, inst)
	}
}

func (c *CompositeObserver) OnWorkflowFailed(ctx context.Context, inst *Instance, err error) {
	for _, o := range c.observers {
		o.OnWorkflowFailed(ctx, inst, err)
	}
}

func (c *CompositeObserver) OnEvent(ctx context.Context, inst *Instance, ev Event) {
	for _, o := range c.observers {
		o.OnEvent(ctx, inst, ev)
	}
}

func (c *CompositeObserver) OnStepStart(ctx context.Context, inst *Instance, step Step, att int) {
	for _, o := range c.observers {
		o.OnStepStart(ctx, inst, step, att)
	}
}

func (c *CompositeObserver) OnStepCompleted(ctx context.Context, inst *Instance, step Step, att int, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnStepCompleted(ctx, inst, step, att, err, d)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs workflow and step
// lifecycle events using the provided slog.Logger. If logger is nil,
// slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnWorkflowStart(ctx context.Context, inst *Instance) {
	o.Logger.InfoContext(ctx, "workflow_start",
		slog.String("workflow_id", inst.ID),
		slog.String("subject_id", inst.SubjectID),
	)
}

func (o *LoggingObserver) OnWorkflowWaiting(ctx context.Context, inst *Instance, step Step) {
	o.Logger.InfoContext(ctx, "workflow_waiting",
		slog.String("workflow_id", inst.ID),
		slog.String("step", string(step)),
	)
}

func (o *LoggingObserver) OnWorkflowCompleted(ctx context.Context, inst *Instance) {
	o.Logger.InfoContext(ctx, "workflow_completed",
		slog.String("workflow_id", inst.ID),
		slog.String("outcome", string(inst.Outcome)),
	)
}

func (o *LoggingObserver) OnWorkflowFailed(ctx context.Context, inst *Instance, err error) {
	o.Logger.ErrorContext(ctx, "workflow_failed",
		slog.String("workflow_id", inst.ID),
		slog.String("step", string(inst.CurrentStep)),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnEvent(ctx context.Context, inst *Instance, ev Event) {
	o.Logger.InfoContext(ctx, "workflow_event",
		slog.String("workflow_id", inst.ID),
		slog.String("event_type", string(ev.Type)),
	)
}

func (o *LoggingObserver) OnStepStart(ctx context.Context, inst *Instance, step Step, att int) {
	o.Logger.DebugContext(ctx, "step_start",
		slog.String("workflow_id", inst.ID),
		slog.String("step", string(step)),
		slog.Int("attempt", att),
	)
}

func (o *LoggingObserver) OnStepCompleted(ctx context.Context, inst *Instance, step Step, att int, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelWarn
	}
	o.Logger.Log(ctx, level, "step_completed",
		slog.String("workflow_id", inst.ID),
		slog.String("step", string(step)),
		slog.Int("attempt", att),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters and aggregate step durations.
// It implements Observer and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	workflowsStarted   atomic.Int64
	workflowsCompleted atomic.Int64
	workflowsFailed    atomic.Int64
	eventsApplied      atomic.Int64
	stepsCompleted     atomic.Int64
	totalStepDuration  atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	WorkflowsStarted   int64
	WorkflowsCompleted int64
	WorkflowsFailed    int64
	WorkflowsInFlight  int64
	EventsApplied      int64

	StepsCompleted  int64
	AvgStepDuration time.Duration
}

func (m *BasicMetrics) OnWorkflowStart(ctx context.Context, inst *Instance) {
	m.workflowsStarted.Add(1)
}

func (m *BasicMetrics) OnWorkflowCompleted(ctx context.Context, inst *Instance) {
	m.workflowsCompleted.Add(1)
}

func (m *BasicMetrics) OnWorkflowFailed(ctx context.Context, inst *Instance, err error) {
	m.workflowsFailed.Add(1)
}

func (m *BasicMetrics) OnEvent(ctx context.Context, inst *Instance, ev Event) {
	m.eventsApplied.Add(1)
}

func (m *BasicMetrics) OnStepCompleted(ctx context.Context, inst *Instance, step Step, att int, err error, d time.Duration) {
	// Only successful attempts count toward the average duration.
	if err == nil {
		m.stepsCompleted.Add(1)
		m.totalStepDuration.Add(d.Nanoseconds())
	}
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.workflowsStarted.Load()
	completed := m.workflowsCompleted.Load()
	failed := m.workflowsFailed.Load()
	steps := m.stepsCompleted.Load()
	totalNs := m.totalStepDuration.Load()

	var avg time.Duration
	if steps > 0 {
		avg = time.Duration(totalNs / steps)
	}

	return BasicMetricsSnapshot{
		WorkflowsStarted:   started,
		WorkflowsCompleted: completed,
		WorkflowsFailed:    failed,
		WorkflowsInFlight:  started - completed - failed,
		EventsApplied:      m.eventsApplied.Load(),
		StepsCompleted:     steps,
		AvgStepDuration:    avg,
	}
}
