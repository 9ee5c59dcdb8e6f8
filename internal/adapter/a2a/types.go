// Package a2a implements the backend's agent-to-agent protocol: JSON-RPC
// 2.0 invocation plus the HTTP discovery endpoint.
package a2a

import (
	"encoding/json"
	"fmt"
	"strings"
)

// JSON-RPC 2.0 envelope for message/send.

type rpcRequest struct {
	JSONRPC string     `json:"jsonrpc"`
	ID      string     `json:"id"`
	Method  string     `json:"method"`
	Params  sendParams `json:"params"`
}

type sendParams struct {
	Message messagePayload `json:"message"`
}

type messagePayload struct {
	Kind      string        `json:"kind"`
	Role      string        `json:"role"`
	Parts     []messagePart `json:"parts"`
	ContextID string        `json:"context_id,omitempty"`
}

type messagePart struct {
	Kind string `json:"kind"`
	Text string `json:"text,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  *taskResult     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError is a JSON-RPC 2.0 error object: the backend's application
// logic speaking, never a transport fault.
type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("code %d: %s", e.Code, e.Message)
}

// taskResult is the A2A task returned by message/send.
type taskResult struct {
	ContextID string           `json:"context_id"`
	History   []messagePayload `json:"history"`
	Status    taskStatus       `json:"status"`
}

type taskStatus struct {
	State   string          `json:"state,omitempty"`
	Message *messagePayload `json:"message,omitempty"`
}

// replyText extracts the agent's reply: the text parts of the last
// agent-role message in the task history, falling back to the status
// message. User-role entries are the caller's own turns and are skipped.
func (t *taskResult) replyText() string {
	for i := len(t.History) - 1; i >= 0; i-- {
		msg := t.History[i]
		if msg.Role != "agent" && msg.Role != "" {
			continue
		}
		if text := joinTextParts(msg.Parts); text != "" {
			return text
		}
	}
	if t.Status.Message != nil {
		return joinTextParts(t.Status.Message.Parts)
	}
	return ""
}

func joinTextParts(parts []messagePart) string {
	var texts []string
	for _, p := range parts {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// Discovery payload: the backend lists agents as Kubernetes-style
// resources with metadata, spec, and status conditions.

type discoveryResponse struct {
	Data []agentEnvelope `json:"data"`
}

type agentEnvelope struct {
	Agent agentDescriptor `json:"agent"`
}

type agentDescriptor struct {
	Metadata objectMeta  `json:"metadata"`
	Spec     agentSpec   `json:"spec"`
	Status   agentStatus `json:"status"`
}

type objectMeta struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

type agentSpec struct {
	Description string           `json:"description"`
	Type        string           `json:"type,omitempty"`
	Declarative *declarativeSpec `json:"declarative,omitempty"`
}

type declarativeSpec struct {
	A2AConfig *a2aConfig `json:"a2aConfig,omitempty"`
}

type a2aConfig struct {
	Skills []agentSkill `json:"skills"`
}

type agentSkill struct {
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
}

type agentStatus struct {
	Conditions []statusCondition `json:"conditions"`
}

type statusCondition struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

// ready reports whether the descriptor carries a Ready=True condition.
func (d *agentDescriptor) ready() bool {
	for _, c := range d.Status.Conditions {
		if c.Type == "Ready" && c.Status == "True" {
			return true
		}
	}
	return false
}
