package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"relay-ai/internal/domain"
	"relay-ai/internal/usecase"
)

// HandlerDeps holds the dependencies the RPC handlers need.
type HandlerDeps struct {
	Handler  domain.MessageHandler
	Sessions *usecase.SessionStore
	Registry *usecase.Registry
	Logger   *slog.Logger
}

type chatSendParams struct {
	Conversation string `json:"conversation"`
	Text         string `json:"text"`
	UserID       string `json:"user_id,omitempty"`
}

type chatSendResult struct {
	Agent     string `json:"agent"`
	Reason    string `json:"reason"`
	Text      string `json:"text,omitempty"`
	OK        bool   `json:"ok"`
	ErrCode   string `json:"err_code,omitempty"`
	ErrDetail string `json:"err_detail,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

type pinParams struct {
	Conversation string `json:"conversation"`
	Agent        string `json:"agent"` // "namespace/name"
}

type resetParams struct {
	Conversation string `json:"conversation"`
}

type agentListEntry struct {
	Ref         string   `json:"ref"`
	Description string   `json:"description"`
	Ready       bool     `json:"ready"`
	Keywords    []string `json:"keywords,omitempty"`
}

// RegisterRPCHandlers wires the relay's RPC methods into the server.
func RegisterRPCHandlers(s *Server, deps HandlerDeps) {
	s.RegisterHandler("chat.send", handleChatSend(deps))
	s.RegisterHandler("agent.pin", handleAgentPin(deps))
	s.RegisterHandler("agent.reset", handleAgentReset(deps))
	s.RegisterHandler("agent.list", handleAgentList(deps))
	s.RegisterHandler("session.get", handleSessionGet(deps))
}

// handleChatSend routes and invokes one message. The outcome is always a
// structured result; failed invocations return ok=false with an error
// code rather than an RPC-level error.
func handleChatSend(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var params chatSendParams
		if err := json.Unmarshal(payload, &params); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		if params.Conversation == "" || params.Text == "" {
			return nil, fmt.Errorf("%w: conversation and text are required", domain.ErrInvalidInput)
		}

		userID := params.UserID
		if userID == "" {
			userID = client.Name
		}

		res := deps.Handler.Handle(ctx, domain.InboundMessage{
			ConversationKey: params.Conversation,
			Content:         params.Text,
			UserID:          userID,
		})

		return json.Marshal(chatSendResult{
			Agent:     res.Decision.Agent.String(),
			Reason:    res.Decision.Reason,
			Text:      res.Invocation.Text,
			OK:        res.Invocation.OK,
			ErrCode:   string(res.Invocation.ErrCode),
			ErrDetail: res.Invocation.ErrDetail,
			ElapsedMS: res.Invocation.Elapsed.Milliseconds(),
		})
	}
}

// handleAgentPin pins a conversation to an agent. The agent must exist
// in the current snapshot; readiness is not required since pins are
// advisory and the router falls back when the pin goes stale.
func handleAgentPin(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var params pinParams
		if err := json.Unmarshal(payload, &params); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		ref, err := domain.ParseAgentRef(params.Agent)
		if err != nil {
			return nil, err
		}
		if _, err := deps.Registry.Get(ref); err != nil {
			return nil, err
		}
		deps.Sessions.Pin(params.Conversation, ref)
		return json.Marshal(map[string]string{"pinned": ref.String()})
	}
}

func handleAgentReset(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var params resetParams
		if err := json.Unmarshal(payload, &params); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		if params.Conversation == "" {
			return nil, fmt.Errorf("%w: conversation is required", domain.ErrInvalidInput)
		}
		deps.Sessions.ClearPin(params.Conversation)
		return json.Marshal(map[string]bool{"cleared": true})
	}
}

func handleAgentList(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		agents := deps.Registry.List()
		entries := make([]agentListEntry, len(agents))
		for i, a := range agents {
			entries[i] = agentListEntry{
				Ref:         a.Ref.String(),
				Description: a.Description,
				Ready:       a.Ready,
				Keywords:    a.Keywords,
			}
		}
		return json.Marshal(entries)
	}
}

func handleSessionGet(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var params resetParams
		if err := json.Unmarshal(payload, &params); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		if params.Conversation == "" {
			return nil, fmt.Errorf("%w: conversation is required", domain.ErrInvalidInput)
		}
		return json.Marshal(deps.Sessions.Get(params.Conversation))
	}
}
