package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"relay-ai/internal/domain"
)

// StatusResponse is the JSON body returned by GET /api/v1/status.
type StatusResponse struct {
	Relay    RelayStatus    `json:"relay"`
	Agents   AgentsStatus   `json:"agents"`
	Sessions SessionsStatus `json:"sessions"`
	Traffic  TrafficStatus  `json:"traffic"`
}

// RelayStatus holds process overview info.
type RelayStatus struct {
	Name          string `json:"name"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// AgentsStatus summarises the current registry snapshot.
type AgentsStatus struct {
	Known int `json:"known"`
	Ready int `json:"ready"`
}

// SessionsStatus holds session counts.
type SessionsStatus struct {
	Active int `json:"active"`
}

// TrafficStatus holds message counters since start.
type TrafficStatus struct {
	MessagesReceived int64 `json:"messages_received"`
	MessagesSent     int64 `json:"messages_sent"`
	RoutingErrors    int64 `json:"routing_errors"`
	Refreshes        int64 `json:"refreshes"`
}

// Metrics tracks counters for the status API.
type Metrics struct {
	MessagesRecv  atomic.Int64
	MessagesSent  atomic.Int64
	AgentErrors   atomic.Int64
	Refreshes     atomic.Int64
	SessionsTotal atomic.Int64
}

// RegisterRESTHandlers registers the status and health endpoints and
// returns the metrics collector fed from bus events.
func RegisterRESTHandlers(s *Server, deps HandlerDeps, bus domain.EventBus) *Metrics {
	startTime := time.Now()
	metrics := &Metrics{}

	if bus != nil {
		bus.Subscribe(domain.EventMessageReceived, func(_ context.Context, _ domain.Event) {
			metrics.MessagesRecv.Add(1)
		})
		bus.Subscribe(domain.EventMessageSent, func(_ context.Context, _ domain.Event) {
			metrics.MessagesSent.Add(1)
		})
		bus.Subscribe(domain.EventAgentError, func(_ context.Context, _ domain.Event) {
			metrics.AgentErrors.Add(1)
		})
		bus.Subscribe(domain.EventDiscoveryRefreshed, func(_ context.Context, _ domain.Event) {
			metrics.Refreshes.Add(1)
		})
		bus.Subscribe(domain.EventSessionCreated, func(_ context.Context, _ domain.Event) {
			metrics.SessionsTotal.Add(1)
		})
	}

	authMiddleware := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			token := r.URL.Query().Get("token")
			if token == "" {
				token = r.Header.Get("Authorization")
				if len(token) > 7 && token[:7] == "Bearer " {
					token = token[7:]
				}
			}
			if _, err := s.auth.Authenticate(token); err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}

	s.RegisterHTTPRoute("/api/v1/status", authMiddleware(statusHandler(deps, startTime, metrics)))
	s.RegisterHTTPRoute("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return metrics
}

func statusHandler(deps HandlerDeps, startTime time.Time, metrics *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		agents := deps.Registry.List()
		ready := 0
		for _, a := range agents {
			if a.Ready {
				ready++
			}
		}

		resp := StatusResponse{
			Relay: RelayStatus{
				Name:          "relay-ai",
				UptimeSeconds: int64(time.Since(startTime).Seconds()),
			},
			Agents: AgentsStatus{
				Known: len(agents),
				Ready: ready,
			},
			Sessions: SessionsStatus{
				Active: deps.Sessions.Len(),
			},
			Traffic: TrafficStatus{
				MessagesReceived: metrics.MessagesRecv.Load(),
				MessagesSent:     metrics.MessagesSent.Load(),
				RoutingErrors:    metrics.AgentErrors.Load(),
				Refreshes:        metrics.Refreshes.Load(),
			},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}
