package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"relay-ai/internal/domain"
)

// PinReader is the slice of the session store the router needs: an
// advisory per-conversation agent override.
type PinReader interface {
	Pinned(conversationKey string) (domain.AgentRef, bool)
}

// KeywordRouter picks the target agent for a message. An explicit pin
// wins over keyword matching; otherwise the message is scored against
// each ready agent's keyword set, with a configured default agent as the
// zero-score fallback. Routing is a pure read over the registry snapshot
// and the session store, so it is safe to call concurrently.
type KeywordRouter struct {
	registry     *Registry
	pins         PinReader
	defaultAgent domain.AgentRef
	logger       *slog.Logger
}

// NewKeywordRouter creates a router over the given registry and pin source.
func NewKeywordRouter(registry *Registry, pins PinReader, defaultAgent domain.AgentRef, logger *slog.Logger) *KeywordRouter {
	return &KeywordRouter{
		registry:     registry,
		pins:         pins,
		defaultAgent: defaultAgent,
		logger:       logger,
	}
}

// Route resolves the agent for one message. Returns
// domain.ErrNoAgentAvailable when neither a keyword match nor a usable
// default exists. A pin referencing an unknown or not-ready agent is
// advisory only: it is skipped for this call (never auto-cleared) and the
// decision reason records the fallback.
func (r *KeywordRouter) Route(_ context.Context, message, conversationKey string) (domain.RoutingDecision, error) {
	reasonPrefix := ""
	if pinned, ok := r.pins.Pinned(conversationKey); ok {
		if agent, err := r.registry.Get(pinned); err == nil && agent.Ready {
			r.logger.Debug("routing via pin", "conversation", conversationKey, "agent", pinned.String())
			return domain.RoutingDecision{Agent: pinned, Reason: domain.ReasonPinned}, nil
		}
		reasonPrefix = domain.ReasonPinUnavailable + ": "
		r.logger.Debug("pinned agent unavailable", "conversation", conversationKey, "agent", pinned.String())
	}

	tokens := tokenize(message)
	lowered := strings.ToLower(message)

	var (
		best        domain.Agent
		bestScore   int
		bestKeyword string
		found       bool
	)
	// Snapshot order is canonical (namespace, then name); a tie keeps the
	// earlier agent, so identical inputs always route identically.
	for _, agent := range r.registry.List() {
		if !agent.Ready {
			continue
		}
		score, keyword := scoreAgent(agent, tokens, lowered)
		if score > bestScore {
			best, bestScore, bestKeyword, found = agent, score, keyword, true
		}
	}

	if found {
		return domain.RoutingDecision{
			Agent:  best.Ref,
			Reason: reasonPrefix + fmt.Sprintf("matched keyword %q", bestKeyword),
			Score:  bestScore,
		}, nil
	}

	if agent, err := r.registry.Get(r.defaultAgent); err == nil && agent.Ready {
		return domain.RoutingDecision{
			Agent:  r.defaultAgent,
			Reason: reasonPrefix + domain.ReasonDefaultFallback,
		}, nil
	}

	return domain.RoutingDecision{}, domain.NewDomainError("Router.Route", domain.ErrNoAgentAvailable,
		fmt.Sprintf("no keyword match and default agent %q is not ready", r.defaultAgent))
}

// scoreAgent counts how many of the agent's keywords appear in the
// message. Single-word keywords match whole tokens; multi-word keywords
// match as substrings of the lowered message.
func scoreAgent(agent domain.Agent, tokens map[string]struct{}, lowered string) (int, string) {
	score := 0
	first := ""
	for _, kw := range agent.Keywords {
		hit := false
		if strings.ContainsRune(kw, ' ') {
			hit = strings.Contains(lowered, kw)
		} else {
			_, hit = tokens[kw]
		}
		if hit {
			score++
			if first == "" {
				first = kw
			}
		}
	}
	return score, first
}

// tokenize lower-cases the message and splits it into words, trimming
// surrounding punctuation so "pods?" matches keyword "pods".
func tokenize(message string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(message))
	tokens := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()[]{}")
		if f != "" {
			tokens[f] = struct{}{}
		}
	}
	return tokens
}
