package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"relay-ai/internal/domain"
	"relay-ai/internal/infra/tracer"
)

// Router resolves the target agent for one message.
type Router interface {
	Route(ctx context.Context, message, conversationKey string) (domain.RoutingDecision, error)
}

// Orchestrator is the per-message entry point: route, resolve session,
// invoke, persist the returned session id, and hand back a structured
// result. Every failure is folded into the result; nothing propagates
// past this boundary as an error.
type Orchestrator struct {
	router   Router
	sessions *SessionStore
	invoker  domain.Invoker
	bus      domain.EventBus
	logger   *slog.Logger
}

// NewOrchestrator wires the pipeline. bus may be nil.
func NewOrchestrator(router Router, sessions *SessionStore, invoker domain.Invoker, bus domain.EventBus, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		router:   router,
		sessions: sessions,
		invoker:  invoker,
		bus:      bus,
		logger:   logger,
	}
}

// Handle processes one inbound message end-to-end. Safe to call
// concurrently; two concurrent messages for the same conversation may
// race on which session id wins (last write wins), which is acceptable
// at chat cadence.
func (o *Orchestrator) Handle(ctx context.Context, msg domain.InboundMessage) domain.Result {
	ctx, span := tracer.StartSpan(ctx, "orchestrator.handle",
		trace.WithAttributes(tracer.StringAttr("conversation", msg.ConversationKey)))
	defer span.End()

	start := time.Now()
	publishEvent(o.bus, ctx, domain.EventMessageReceived, msg.ConversationKey, nil)

	decision, err := o.router.Route(ctx, msg.Content, msg.ConversationKey)
	if err != nil {
		o.logger.Warn("routing failed", "conversation", msg.ConversationKey, "error", err)
		tracer.RecordError(span, err)
		return o.failed(ctx, msg, decision, err, time.Since(start))
	}
	span.SetAttributes(
		tracer.StringAttr("agent", decision.Agent.String()),
		tracer.StringAttr("reason", decision.Reason),
	)
	publishEvent(o.bus, ctx, domain.EventAgentRouted, msg.ConversationKey,
		map[string]string{"agent": decision.Agent.String(), "reason": decision.Reason})

	sessionID := o.sessions.SessionIDFor(msg.ConversationKey, decision.Agent)

	res, err := o.invoker.Invoke(ctx, decision.Agent, sessionID, msg.UserID, msg.Content)
	if err != nil {
		o.logger.Warn("agent invocation failed",
			"conversation", msg.ConversationKey,
			"agent", decision.Agent.String(),
			"error", err,
		)
		tracer.RecordError(span, err)
		return o.failed(ctx, msg, decision, err, time.Since(start))
	}

	// The backend allocates a session on the first turn; whatever id it
	// returns is the one to reuse next time.
	o.sessions.SetSessionID(msg.ConversationKey, decision.Agent, res.SessionID)

	o.logger.Info("message handled",
		"conversation", msg.ConversationKey,
		"agent", decision.Agent.String(),
		"reason", decision.Reason,
		"elapsed", res.Elapsed,
	)
	publishEvent(o.bus, ctx, domain.EventMessageSent, msg.ConversationKey, domain.OutboundMessage{
		ConversationKey: msg.ConversationKey,
		Content:         res.Text,
	})
	tracer.SetOK(span)

	return domain.Result{Decision: decision, Invocation: res}
}

func (o *Orchestrator) failed(ctx context.Context, msg domain.InboundMessage, decision domain.RoutingDecision, err error, elapsed time.Duration) domain.Result {
	publishEvent(o.bus, ctx, domain.EventAgentError, msg.ConversationKey, domain.OutboundMessage{
		ConversationKey: msg.ConversationKey,
		Content:         err.Error(),
		IsError:         true,
	})
	return domain.Result{
		Decision: decision,
		Invocation: domain.InvocationResult{
			Elapsed:   elapsed,
			OK:        false,
			ErrCode:   domain.ErrorCodeOf(err),
			ErrDetail: err.Error(),
		},
	}
}

var _ domain.MessageHandler = (*Orchestrator)(nil)

// publishEvent is the shared event publishing helper for the usecase
// layer. If bus is nil, this is a no-op.
func publishEvent(bus domain.EventBus, ctx context.Context, eventType domain.EventType, conversationKey string, payload any) {
	if bus == nil {
		return
	}
	var raw json.RawMessage
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			raw = data
		}
	}
	bus.Publish(ctx, domain.Event{
		Type:            eventType,
		Timestamp:       time.Now(),
		ConversationKey: conversationKey,
		Payload:         raw,
	})
}
