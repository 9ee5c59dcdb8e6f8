package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventMessageReceived EventType = "message.received"
	EventMessageSent     EventType = "message.sent"
	EventAgentRouted     EventType = "agent.routed"
	EventAgentError      EventType = "agent.error"

	EventDiscoveryRefreshed EventType = "discovery.refreshed"
	EventDiscoveryFailed    EventType = "discovery.failed"

	EventSessionCreated  EventType = "session.created"
	EventSessionPinned   EventType = "session.pinned"
	EventSessionUnpinned EventType = "session.unpinned"
	EventSessionReaped   EventType = "session.reaped"
)

// Event is a single occurrence published on the bus.
type Event struct {
	Type            EventType       `json:"type"`
	Timestamp       time.Time       `json:"timestamp"`
	ConversationKey string          `json:"conversation_key,omitempty"`
	Payload         json.RawMessage `json:"payload,omitempty"`
}

// EventHandler processes a published event.
type EventHandler func(ctx context.Context, event Event)

// EventBus decouples publishers from subscribers.
type EventBus interface {
	Publish(ctx context.Context, event Event)
	Subscribe(eventType EventType, handler EventHandler) func()
	SubscribeAll(handler EventHandler) func()
}
