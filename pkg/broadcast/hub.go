// Package broadcast fans workflow notifications out to dashboard
// subscribers. Delivery is best effort: a slow or gone subscriber is pruned
// and never blocks the engine or the other subscribers.
package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/AutonomosCdM/smartSalud-V2/pkg/api"
)

// DefaultBuffer is the per-subscriber channel buffer used by Subscribe.
const DefaultBuffer = 16

// Subscription is one subscriber's receive side. The channel is closed when
// the subscription is cancelled or the subscriber is pruned.
type Subscription struct {
	C <-chan api.Notification

	hub *Hub
	id  uint64
}

// Close removes the subscription from the hub. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s.id)
}

// Hub is an in-process notification sink. It also implements api.Observer so
// it can be attached straight to an engine, translating lifecycle callbacks
// into notifications.
type Hub struct {
	api.NoopObserver

	logger *slog.Logger

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]chan api.Notification
	closed bool
}

// NewHub creates an empty hub. A nil logger falls back to slog.Default().
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger.With("component", "broadcast-hub"),
		subs:   make(map[uint64]chan api.Notification),
	}
}

// Subscribe registers a new subscriber with the default buffer size.
func (h *Hub) Subscribe() *Subscription {
	return h.SubscribeBuffered(DefaultBuffer)
}

// SubscribeBuffered registers a new subscriber with the given channel buffer.
func (h *Hub) SubscribeBuffered(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan api.Notification, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	if h.closed {
		close(ch)
	} else {
		h.subs[id] = ch
	}
	return &Subscription{C: ch, hub: h, id: id}
}

// SubscriberCount returns the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish delivers n to every subscriber without blocking. A subscriber
// whose buffer is full has stopped draining; it is pruned, mirroring how a
// dead dashboard connection would be dropped.
func (h *Hub) Publish(n api.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subs {
		select {
		case ch <- n:
		default:
			delete(h.subs, id)
			close(ch)
			h.logger.Warn("subscriber pruned: buffer full",
				slog.Uint64("subscriber_id", id),
				slog.String("kind", string(n.Kind)),
			)
		}
	}
}

// Close drops all subscribers and closes their channels. Publish after Close
// is a no-op.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Observer bridge.

func (h *Hub) OnWorkflowStart(ctx context.Context, inst *api.Instance) {
	h.Publish(workflowUpdate(inst, "workflow started"))
}

func (h *Hub) OnWorkflowWaiting(ctx context.Context, inst *api.Instance, step api.Step) {
	h.Publish(workflowUpdate(inst, "waiting for response"))
}

func (h *Hub) OnWorkflowCompleted(ctx context.Context, inst *api.Instance) {
	h.Publish(workflowUpdate(inst, "workflow completed"))
	if inst.Outcome == api.OutcomeEscalatedToHuman {
		n := workflowUpdate(inst, inst.Metadata.EscalationReason)
		n.Kind = api.NotifyEscalationAlert
		h.Publish(n)
	}
}

func (h *Hub) OnWorkflowFailed(ctx context.Context, inst *api.Instance, err error) {
	n := workflowUpdate(inst, err.Error())
	n.Kind = api.NotifyEscalationAlert
	h.Publish(n)
}

func (h *Hub) OnEvent(ctx context.Context, inst *api.Instance, ev api.Event) {
	h.Publish(workflowUpdate(inst, "event "+string(ev.Type)))
}

func (h *Hub) OnStepCompleted(ctx context.Context, inst *api.Instance, step api.Step, att int, err error, d time.Duration) {
	if step == api.StepTriggerVoiceCall && err == nil {
		n := workflowUpdate(inst, "voice call "+inst.Metadata.VoiceCallID)
		n.Kind = api.NotifyVoiceCallStarted
		h.Publish(n)
	}
}

func workflowUpdate(inst *api.Instance, detail string) api.Notification {
	return api.Notification{
		Kind:       api.NotifyWorkflowUpdate,
		WorkflowID: inst.ID,
		SubjectID:  inst.SubjectID,
		Status:     inst.Status,
		Step:       inst.CurrentStep,
		Outcome:    inst.Outcome,
		At:         time.Now(),
		Detail:     detail,
	}
}
