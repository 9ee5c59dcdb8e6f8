package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"relay-ai/internal/domain"
)

// Discoverer fetches the current agent list from the backend.
// Implemented by the A2A discovery client.
type Discoverer interface {
	Discover(ctx context.Context) ([]domain.Agent, error)
}

// snapshot is one immutable view of the agent set. Replaced wholesale on
// refresh, never mutated, so readers need no locking.
type snapshot struct {
	agents []domain.Agent            // canonical order: namespace, then name
	byRef  map[domain.AgentRef]int   // index into agents
}

func buildSnapshot(agents []domain.Agent) *snapshot {
	sorted := make([]domain.Agent, len(agents))
	copy(sorted, agents)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Ref.Namespace != sorted[j].Ref.Namespace {
			return sorted[i].Ref.Namespace < sorted[j].Ref.Namespace
		}
		return sorted[i].Ref.Name < sorted[j].Ref.Name
	})
	byRef := make(map[domain.AgentRef]int, len(sorted))
	for i, a := range sorted {
		byRef[a.Ref] = i
	}
	return &snapshot{agents: sorted, byRef: byRef}
}

// Registry keeps the live agent snapshot, refreshed periodically in the
// background. Reads never block on network I/O; a failed refresh keeps
// the previous snapshot (stale-but-available).
type Registry struct {
	discoverer Discoverer
	interval   time.Duration
	timeout    time.Duration
	extra      map[string][]string // config-supplied keywords by "namespace/name"

	snap      atomic.Pointer[snapshot]
	refreshMu sync.Mutex // single-flight guard; TryLock skips concurrent refreshes

	cron    *cron.Cron
	entryID cron.EntryID
	bus     domain.EventBus
	logger  *slog.Logger
}

// RegistryOption customises a Registry.
type RegistryOption func(*Registry)

// WithRefreshInterval sets the background refresh cadence.
func WithRefreshInterval(d time.Duration) RegistryOption {
	return func(r *Registry) { r.interval = d }
}

// WithDiscoveryTimeout bounds each discovery fetch.
func WithDiscoveryTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) { r.timeout = d }
}

// WithExtraKeywords merges config-supplied routing keywords into each
// refreshed snapshot, keyed by "namespace/name".
func WithExtraKeywords(kw map[string][]string) RegistryOption {
	return func(r *Registry) { r.extra = kw }
}

// WithRegistryBus publishes discovery lifecycle events on the given bus.
func WithRegistryBus(bus domain.EventBus) RegistryOption {
	return func(r *Registry) { r.bus = bus }
}

// NewRegistry creates a Registry with an empty initial snapshot.
func NewRegistry(d Discoverer, logger *slog.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		discoverer: d,
		interval:   5 * time.Minute,
		timeout:    10 * time.Second,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.snap.Store(buildSnapshot(nil))
	return r
}

// Refresh fetches the full agent list and atomically swaps in a new
// snapshot. On failure the previous snapshot is retained and a wrapped
// domain.ErrDiscovery is returned for the caller to log; discovery
// failures are never fatal. Only one refresh runs at a time; a refresh
// requested while another is in flight is skipped.
func (r *Registry) Refresh(ctx context.Context) error {
	if !r.refreshMu.TryLock() {
		r.logger.Debug("registry refresh already in flight, skipping")
		return nil
	}
	defer r.refreshMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	agents, err := r.discoverer.Discover(ctx)
	if err != nil {
		r.publish(ctx, domain.EventDiscoveryFailed, map[string]string{"error": err.Error()})
		return domain.NewDomainError("Registry.Refresh", domain.ErrDiscovery, err.Error())
	}

	for i := range agents {
		if extra, ok := r.extra[agents[i].Ref.String()]; ok {
			agents[i].Keywords = mergeKeywords(agents[i].Keywords, extra)
		}
	}

	r.snap.Store(buildSnapshot(agents))
	r.logger.Info("agent registry refreshed", "count", len(agents))
	r.publish(ctx, domain.EventDiscoveryRefreshed, map[string]int{"count": len(agents)})
	return nil
}

// List returns a defensive copy of the current snapshot in canonical
// order. Never blocks on network I/O.
func (r *Registry) List() []domain.Agent {
	snap := r.snap.Load()
	out := make([]domain.Agent, len(snap.agents))
	copy(out, snap.agents)
	return out
}

// Get returns the agent for the given ref, or domain.ErrNotFound.
func (r *Registry) Get(ref domain.AgentRef) (domain.Agent, error) {
	snap := r.snap.Load()
	if i, ok := snap.byRef[ref]; ok {
		return snap.agents[i], nil
	}
	return domain.Agent{}, domain.NewDomainError("Registry.Get", domain.ErrNotFound, ref.String())
}

// Start launches the periodic background refresh. An immediate refresh
// runs first so routing has a snapshot as soon as possible; its failure
// is logged, not returned, because the process must come up even when
// the backend is unreachable.
func (r *Registry) Start(ctx context.Context) error {
	if err := r.Refresh(ctx); err != nil {
		r.logger.Warn("initial agent discovery failed, starting with empty snapshot", "error", err)
	}

	r.cron = cron.New()
	id, err := r.cron.AddFunc(fmt.Sprintf("@every %s", r.interval), func() {
		if err := r.Refresh(context.Background()); err != nil {
			r.logger.Warn("agent discovery refresh failed, keeping stale snapshot", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule registry refresh: %w", err)
	}
	r.entryID = id
	r.cron.Start()
	return nil
}

// Stop halts the background refresh and waits for a running one to finish.
func (r *Registry) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

func (r *Registry) publish(ctx context.Context, t domain.EventType, payload any) {
	publishEvent(r.bus, ctx, t, "", payload)
}

func mergeKeywords(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, kw := range append(append([]string{}, base...), extra...) {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if _, dup := seen[kw]; dup || kw == "" {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}
