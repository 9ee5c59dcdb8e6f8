package a2a

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"relay-ai/internal/domain"
	"relay-ai/internal/infra/config"
	"relay-ai/internal/usecase"
)

// Discovery fetches the agent catalog from the backend's HTTP listing
// endpoint and maps it into domain agents with routing keywords.
type Discovery struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewDiscovery creates a discovery client from config.
func NewDiscovery(cfg config.DiscoveryConfig, logger *slog.Logger) *Discovery {
	return &Discovery{
		baseURL: trimSlash(cfg.BaseURL),
		http: &http.Client{
			Transport: newPooledTransport(),
		},
		logger: logger,
	}
}

// Discover lists all agents known to the backend. Readiness comes from
// status conditions; keywords come from the description, skills, and
// tags. The caller (registry) decides what to do on failure.
func (d *Discovery) Discover(ctx context.Context) ([]domain.Agent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/api/agents", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: agent listing returned HTTP %d", domain.ErrTransport, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrTransport, err)
	}

	var listing discoveryResponse
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("malformed agent listing: %w", err)
	}

	agents := make([]domain.Agent, 0, len(listing.Data))
	for _, env := range listing.Data {
		desc := env.Agent
		if desc.Metadata.Name == "" {
			d.logger.Warn("skipping agent entry without a name")
			continue
		}
		agents = append(agents, domain.Agent{
			Ref: domain.AgentRef{
				Namespace: desc.Metadata.Namespace,
				Name:      desc.Metadata.Name,
			},
			Description: desc.Spec.Description,
			Ready:       desc.ready(),
			Keywords:    extractKeywords(&desc),
		})
	}

	d.logger.Debug("agent discovery complete", "count", len(agents))
	return agents, nil
}

// extractKeywords derives routing keywords from an agent descriptor:
// words of the description, words of each skill description, and skill
// tags verbatim. Everything is lowercased and deduplicated; order
// follows first appearance.
func extractKeywords(desc *agentDescriptor) []string {
	seen := make(map[string]struct{})
	var keywords []string
	add := func(kw string) {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			return
		}
		if _, ok := seen[kw]; ok {
			return
		}
		seen[kw] = struct{}{}
		keywords = append(keywords, kw)
	}

	for _, word := range strings.Fields(desc.Spec.Description) {
		add(strings.Trim(word, keywordCutset))
	}
	if decl := desc.Spec.Declarative; decl != nil && decl.A2AConfig != nil {
		for _, skill := range decl.A2AConfig.Skills {
			for _, word := range strings.Fields(skill.Description) {
				add(strings.Trim(word, keywordCutset))
			}
			for _, tag := range skill.Tags {
				add(tag)
			}
		}
	}
	return keywords
}

const keywordCutset = ".,!?;:\"'()[]{}"

var _ usecase.Discoverer = (*Discovery)(nil)
