package gateway

import (
	"crypto/subtle"

	"relay-ai/internal/domain"
	"relay-ai/internal/infra/config"
)

// ClientInfo holds metadata about an authenticated gateway client. The
// client name doubles as the user id forwarded to agents when the
// request does not carry one.
type ClientInfo struct {
	Name string
}

// Authenticator validates incoming gateway connections.
type Authenticator interface {
	Authenticate(token string) (*ClientInfo, error)
}

type authEntry struct {
	token []byte
	info  *ClientInfo
}

// StaticTokenAuth authenticates clients against a static token list
// using constant-time comparison.
type StaticTokenAuth struct {
	entries []authEntry
}

// NewStaticTokenAuth builds an authenticator from configured tokens.
func NewStaticTokenAuth(tokens []config.GatewayToken) *StaticTokenAuth {
	a := &StaticTokenAuth{entries: make([]authEntry, len(tokens))}
	for i, t := range tokens {
		a.entries[i] = authEntry{
			token: []byte(t.Token),
			info:  &ClientInfo{Name: t.Name},
		}
	}
	return a
}

// Authenticate returns client info if the token matches a configured
// entry. Every entry is compared so timing does not reveal which one.
func (s *StaticTokenAuth) Authenticate(token string) (*ClientInfo, error) {
	tokenBytes := []byte(token)
	var matched *ClientInfo
	for _, e := range s.entries {
		if subtle.ConstantTimeCompare(tokenBytes, e.token) == 1 {
			matched = e.info
		}
	}
	if matched == nil {
		return nil, domain.ErrGatewayAuth
	}
	return matched, nil
}
