package domain

import "context"

// InboundMessage is one chat message handed in by the platform adapter.
// The adapter decides what counts as a conversation; ConversationKey is
// opaque to the core (e.g. "user:channel:thread").
type InboundMessage struct {
	ConversationKey string `json:"conversation_key"`
	Content         string `json:"content"`
	UserID          string `json:"user_id,omitempty"` // forwarded to the backend for attribution

	Metadata map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage is the plain response payload handed back to the
// adapter. Rendering into platform-specific rich formats is the
// adapter's job, not the core's.
type OutboundMessage struct {
	ConversationKey string `json:"conversation_key"`
	Content         string `json:"content"`
	IsError         bool   `json:"is_error"`
}

// MessageHandler is the narrow inbound interface the core exposes to
// platform adapters.
type MessageHandler interface {
	Handle(ctx context.Context, msg InboundMessage) Result
}

// Invoker performs one remote agent invocation. Implemented by the A2A
// client; the Orchestrator depends on this interface so resilience
// wrappers can be layered without the usecase layer knowing.
type Invoker interface {
	Invoke(ctx context.Context, agent AgentRef, sessionID, userID, message string) (InvocationResult, error)
}
