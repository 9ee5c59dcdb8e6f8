package domain

import (
	"fmt"
	"strings"
	"time"
)

// AgentRef identifies a backend agent by namespace and name.
// The pair is globally unique within one backend installation.
type AgentRef struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// String returns the canonical "namespace/name" form.
func (r AgentRef) String() string {
	return r.Namespace + "/" + r.Name
}

// IsZero reports whether the ref is empty.
func (r AgentRef) IsZero() bool {
	return r.Namespace == "" && r.Name == ""
}

// ParseAgentRef parses a "namespace/name" string.
func ParseAgentRef(s string) (AgentRef, error) {
	ns, name, ok := strings.Cut(s, "/")
	if !ok || ns == "" || name == "" {
		return AgentRef{}, fmt.Errorf("%w: agent ref %q (want namespace/name)", ErrInvalidInput, s)
	}
	return AgentRef{Namespace: ns, Name: name}, nil
}

// Agent is one entry in a discovery snapshot. Snapshots are built whole
// and never mutated after publication, so Agent values can be shared
// across goroutines freely.
type Agent struct {
	Ref         AgentRef `json:"ref"`
	Description string   `json:"description"`
	Ready       bool     `json:"ready"`
	Keywords    []string `json:"keywords"` // lower-cased routing tokens
}

// Routing reasons surfaced to the caller alongside a decision.
const (
	ReasonPinned          = "pinned by user"
	ReasonDefaultFallback = "default fallback"
	// ReasonPinUnavailable prefixes the fallback reason when an advisory
	// pin references an agent that is currently unknown or not ready.
	ReasonPinUnavailable = "pinned agent unavailable, falling back"
)

// RoutingDecision is the outcome of routing one message.
type RoutingDecision struct {
	Agent  AgentRef `json:"agent"`
	Reason string   `json:"reason"`
	Score  int      `json:"score"` // keyword match count, diagnostics only
}

// InvocationResult is the outcome of one agent invocation.
type InvocationResult struct {
	Text      string        `json:"text"`
	SessionID string        `json:"session_id"` // remote id to reuse on the next turn
	Elapsed   time.Duration `json:"elapsed"`
	OK        bool          `json:"ok"`
	ErrCode   ErrorCode     `json:"err_code,omitempty"`
	ErrDetail string        `json:"err_detail,omitempty"`
}

// Result is what the Orchestrator hands back to the platform adapter:
// the routing decision plus the invocation outcome. Failures are folded
// into Invocation; no error crosses this boundary.
type Result struct {
	Decision   RoutingDecision  `json:"decision"`
	Invocation InvocationResult `json:"invocation"`
}
