package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"relay-ai/internal/domain"
)

// session is one conversation's state. The store hands out value
// snapshots (SessionView), never pointers, so callers cannot race on the
// record; each session carries its own mutex so conversations never
// contend with each other.
type session struct {
	mu           sync.Mutex
	remoteID     string          // opaque id issued by the backend, empty until first success
	agent        domain.AgentRef // agent remoteID belongs to
	pinned       domain.AgentRef
	hasPin       bool
	createdAt    time.Time
	lastActivity time.Time
}

// SessionView is a point-in-time copy of a session record.
type SessionView struct {
	Key          string          `json:"key"`
	RemoteID     string          `json:"remote_id"`
	Agent        domain.AgentRef `json:"agent"`
	Pinned       domain.AgentRef `json:"pinned"`
	HasPin       bool            `json:"has_pin"`
	CreatedAt    time.Time       `json:"created_at"`
	LastActivity time.Time       `json:"last_activity"`
}

// SessionStore maps conversation keys to session state. All state is
// in-memory and rebuilt from scratch on restart. The outer lock guards
// only the map; mutation happens under the per-session lock.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*session
	bus      domain.EventBus
	logger   *slog.Logger
}

// NewSessionStore creates an empty store. bus may be nil.
func NewSessionStore(bus domain.EventBus, logger *slog.Logger) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*session),
		bus:      bus,
		logger:   logger,
	}
}

// getOrCreate returns the live record, creating it on first access.
func (st *SessionStore) getOrCreate(key string) *session {
	st.mu.RLock()
	s, ok := st.sessions[key]
	st.mu.RUnlock()
	if ok {
		return s
	}

	st.mu.Lock()
	if s, ok = st.sessions[key]; !ok {
		now := time.Now()
		s = &session{createdAt: now, lastActivity: now}
		st.sessions[key] = s
		st.mu.Unlock()
		st.logger.Debug("session created", "conversation", key)
		publishEvent(st.bus, context.Background(), domain.EventSessionCreated, key, nil)
		return s
	}
	st.mu.Unlock()
	return s
}

// Get returns a snapshot of the session for key, creating an empty one
// on first access. Never fails.
func (st *SessionStore) Get(key string) SessionView {
	s := st.getOrCreate(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionView{
		Key:          key,
		RemoteID:     s.remoteID,
		Agent:        s.agent,
		Pinned:       s.pinned,
		HasPin:       s.hasPin,
		CreatedAt:    s.createdAt,
		LastActivity: s.lastActivity,
	}
}

// SessionIDFor returns the stored remote session id if it belongs to
// agent, otherwise "". A session id minted by one agent is never sent to
// another.
func (st *SessionStore) SessionIDFor(key string, agent domain.AgentRef) string {
	s := st.getOrCreate(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.agent == agent {
		return s.remoteID
	}
	return ""
}

// SetSessionID records the remote session id returned by an invocation.
// If the stored id belongs to a different agent it is discarded first: a
// new agent cannot continue another agent's session.
func (st *SessionStore) SetSessionID(key string, agent domain.AgentRef, sessionID string) {
	s := st.getOrCreate(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.agent != agent {
		s.remoteID = ""
		s.agent = agent
	}
	s.remoteID = sessionID
	s.lastActivity = time.Now()
}

// Pin sets an explicit agent override for the conversation. The session
// id is left untouched; it resets on the next invocation if the target
// agent actually changes.
func (st *SessionStore) Pin(key string, agent domain.AgentRef) {
	s := st.getOrCreate(key)
	s.mu.Lock()
	s.pinned = agent
	s.hasPin = true
	s.lastActivity = time.Now()
	s.mu.Unlock()
	st.logger.Info("conversation pinned", "conversation", key, "agent", agent.String())
	publishEvent(st.bus, context.Background(), domain.EventSessionPinned, key,
		map[string]string{"agent": agent.String()})
}

// ClearPin removes the override. No-op if none is set.
func (st *SessionStore) ClearPin(key string) {
	s := st.getOrCreate(key)
	s.mu.Lock()
	had := s.hasPin
	s.pinned = domain.AgentRef{}
	s.hasPin = false
	s.lastActivity = time.Now()
	s.mu.Unlock()
	if had {
		st.logger.Info("conversation pin cleared", "conversation", key)
		publishEvent(st.bus, context.Background(), domain.EventSessionUnpinned, key, nil)
	}
}

// Pinned returns the conversation's pin, if any. Implements PinReader.
func (st *SessionStore) Pinned(key string) (domain.AgentRef, bool) {
	st.mu.RLock()
	s, ok := st.sessions[key]
	st.mu.RUnlock()
	if !ok {
		return domain.AgentRef{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pinned, s.hasPin
}

// Len returns the number of tracked conversations.
func (st *SessionStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// ReapStale removes sessions idle for longer than maxAge and returns the
// count removed. Intended to run on a scheduler; sessions are otherwise
// never deleted.
func (st *SessionStore) ReapStale(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	st.mu.RLock()
	var stale []string
	for key, s := range st.sessions {
		s.mu.Lock()
		idle := s.lastActivity.Before(cutoff)
		s.mu.Unlock()
		if idle {
			stale = append(stale, key)
		}
	}
	st.mu.RUnlock()

	if len(stale) == 0 {
		return 0
	}

	st.mu.Lock()
	for _, key := range stale {
		delete(st.sessions, key)
	}
	st.mu.Unlock()

	st.logger.Info("stale sessions reaped", "count", len(stale))
	publishEvent(st.bus, context.Background(), domain.EventSessionReaped, "",
		map[string]int{"count": len(stale)})
	return len(stale)
}

var _ PinReader = (*SessionStore)(nil)
