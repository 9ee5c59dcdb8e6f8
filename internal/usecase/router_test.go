package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"relay-ai/internal/domain"
	"relay-ai/internal/infra/logger"
)

type staticPins struct {
	pins map[string]domain.AgentRef
}

func (p *staticPins) Pinned(key string) (domain.AgentRef, bool) {
	ref, ok := p.pins[key]
	return ref, ok
}

func newTestRouter(t *testing.T, agents []domain.Agent, pins map[string]domain.AgentRef) *KeywordRouter {
	t.Helper()
	disc := &fakeDiscoverer{agents: agents}
	reg := NewRegistry(disc, logger.Discard())
	if err := reg.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	defaultRef := domain.AgentRef{Namespace: "kagent", Name: "k8s-agent"}
	return NewKeywordRouter(reg, &staticPins{pins: pins}, defaultRef, logger.Discard())
}

func TestRouteKeywordMatch(t *testing.T) {
	router := newTestRouter(t, []domain.Agent{
		agent("kagent", "k8s-agent", true, "pods", "kubernetes", "deployments"),
		agent("obs", "grafana-agent", true, "dashboards", "grafana"),
	}, nil)

	dec, err := router.Route(context.Background(), "why are my pods crashing?", "C1")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if dec.Agent.String() != "kagent/k8s-agent" {
		t.Errorf("agent = %s", dec.Agent)
	}
	if !strings.Contains(dec.Reason, `"pods"`) {
		t.Errorf("reason = %q, want keyword mention", dec.Reason)
	}
	if dec.Score != 1 {
		t.Errorf("score = %d, want 1", dec.Score)
	}
}

func TestRoutePunctuationDoesNotBlockMatch(t *testing.T) {
	router := newTestRouter(t, []domain.Agent{
		agent("obs", "grafana-agent", true, "grafana"),
		agent("kagent", "k8s-agent", true, "pods"),
	}, nil)

	dec, err := router.Route(context.Background(), "Check grafana!", "C1")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if dec.Agent.String() != "obs/grafana-agent" {
		t.Errorf("agent = %s", dec.Agent)
	}
}

func TestRoutePinWins(t *testing.T) {
	router := newTestRouter(t, []domain.Agent{
		agent("kagent", "k8s-agent", true, "pods"),
		agent("obs", "grafana-agent", true, "dashboards"),
	}, map[string]domain.AgentRef{
		"C1": {Namespace: "obs", Name: "grafana-agent"},
	})

	// Keywords point at k8s-agent; the pin overrides them.
	dec, err := router.Route(context.Background(), "pods are broken", "C1")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if dec.Agent.String() != "obs/grafana-agent" {
		t.Errorf("agent = %s", dec.Agent)
	}
	if dec.Reason != domain.ReasonPinned {
		t.Errorf("reason = %q", dec.Reason)
	}
}

func TestRoutePinUnavailableFallsBack(t *testing.T) {
	router := newTestRouter(t, []domain.Agent{
		agent("kagent", "k8s-agent", true, "pods"),
		agent("obs", "grafana-agent", false, "dashboards"),
	}, map[string]domain.AgentRef{
		"C1": {Namespace: "obs", Name: "grafana-agent"},
	})

	dec, err := router.Route(context.Background(), "pods are broken", "C1")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if dec.Agent.String() != "kagent/k8s-agent" {
		t.Errorf("agent = %s", dec.Agent)
	}
	if !strings.HasPrefix(dec.Reason, domain.ReasonPinUnavailable) {
		t.Errorf("reason = %q, want pin-unavailable prefix", dec.Reason)
	}
}

func TestRouteDefaultFallback(t *testing.T) {
	router := newTestRouter(t, []domain.Agent{
		agent("kagent", "k8s-agent", true, "pods"),
		agent("obs", "grafana-agent", true, "dashboards"),
	}, nil)

	dec, err := router.Route(context.Background(), "hello there", "C1")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if dec.Agent.String() != "kagent/k8s-agent" {
		t.Errorf("agent = %s", dec.Agent)
	}
	if dec.Reason != domain.ReasonDefaultFallback {
		t.Errorf("reason = %q", dec.Reason)
	}
}

func TestRouteNoAgentAvailable(t *testing.T) {
	router := newTestRouter(t, []domain.Agent{
		agent("kagent", "k8s-agent", false, "pods"),
	}, nil)

	_, err := router.Route(context.Background(), "hello there", "C1")
	if !errors.Is(err, domain.ErrNoAgentAvailable) {
		t.Errorf("err = %v, want ErrNoAgentAvailable", err)
	}
}

func TestRouteSkipsNotReadyAgents(t *testing.T) {
	router := newTestRouter(t, []domain.Agent{
		agent("kagent", "k8s-agent", true, "kubernetes"),
		agent("obs", "grafana-agent", false, "pods"),
	}, nil)

	// grafana-agent would win on keywords but is not ready.
	dec, err := router.Route(context.Background(), "pods and kubernetes", "C1")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if dec.Agent.String() != "kagent/k8s-agent" {
		t.Errorf("agent = %s", dec.Agent)
	}
}

func TestRouteHighestScoreWins(t *testing.T) {
	router := newTestRouter(t, []domain.Agent{
		agent("a", "one", true, "deploy"),
		agent("b", "two", true, "deploy", "rollback"),
	}, nil)

	dec, err := router.Route(context.Background(), "deploy then rollback", "C1")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if dec.Agent.String() != "b/two" {
		t.Errorf("agent = %s", dec.Agent)
	}
	if dec.Score != 2 {
		t.Errorf("score = %d, want 2", dec.Score)
	}
}

func TestRouteTieIsDeterministic(t *testing.T) {
	agents := []domain.Agent{
		agent("b", "late", true, "deploy"),
		agent("a", "early", true, "deploy"),
	}
	router := newTestRouter(t, agents, nil)

	// Both score 1; canonical snapshot order breaks the tie the same way
	// every time.
	for i := 0; i < 5; i++ {
		dec, err := router.Route(context.Background(), "deploy it", "C1")
		if err != nil {
			t.Fatalf("Route: %v", err)
		}
		if dec.Agent.String() != "a/early" {
			t.Fatalf("agent = %s, want a/early", dec.Agent)
		}
	}
}

func TestRouteMultiWordKeyword(t *testing.T) {
	router := newTestRouter(t, []domain.Agent{
		agent("kagent", "k8s-agent", true, "pods"),
		agent("ci", "pipeline-agent", true, "continuous integration"),
	}, nil)

	dec, err := router.Route(context.Background(), "our Continuous Integration setup fails", "C1")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if dec.Agent.String() != "ci/pipeline-agent" {
		t.Errorf("agent = %s", dec.Agent)
	}
}
