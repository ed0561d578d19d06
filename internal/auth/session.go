// SPDX-License-Identifier: MIT

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ManuGH/minios/internal/cache"
)

const sessionKeyPrefix = "session:"

// ErrNoSession is returned for unknown, expired or missing tokens.
var ErrNoSession = errors.New("no valid session")

// Session is the cached record behind a session token.
type Session struct {
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Principal is the authenticated caller of a request.
type Principal struct {
	Email string
	// Static is true when the caller used the configured API token.
	Static bool
	Token  string `json:"-"`
}

// ID returns a stable identifier usable as a rate limit key.
func (p Principal) ID() string {
	if p.Static {
		return "static-token"
	}
	return p.Email
}

// Manager issues and resolves session tokens.
type Manager struct {
	cache       cache.Cache
	ttl         time.Duration
	staticToken string
	adminEmail  string
}

// NewManager returns a session manager. staticToken may be empty; when set
// it authenticates as adminEmail.
func NewManager(c cache.Cache, ttl time.Duration, staticToken, adminEmail string) *Manager {
	return &Manager{cache: c, ttl: ttl, staticToken: staticToken, adminEmail: adminEmail}
}

// TTL returns the session lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Create stores a new session for email and returns its token.
func (m *Manager) Create(email string) (string, Session) {
	token := uuid.NewString()
	s := Session{Email: email, CreatedAt: time.Now().UTC()}
	m.cache.Set(sessionKeyPrefix+token, s, m.ttl)
	return token, s
}

// Resolve maps a token to a principal.
func (m *Manager) Resolve(token string) (Principal, error) {
	if token == "" {
		return Principal{}, ErrNoSession
	}
	if AuthorizeToken(token, m.staticToken) {
		return Principal{Email: m.adminEmail, Static: true, Token: token}, nil
	}
	var s Session
	if err := cache.Decode(m.cache, sessionKeyPrefix+token, &s); err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return Principal{}, ErrNoSession
		}
		return Principal{}, fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	if s.Email == "" {
		return Principal{}, ErrNoSession
	}
	return Principal{Email: s.Email, Token: token}, nil
}

// Revoke deletes the session behind token. The static token cannot be revoked.
func (m *Manager) Revoke(token string) {
	if token == "" || AuthorizeToken(token, m.staticToken) {
		return
	}
	m.cache.Delete(sessionKeyPrefix + token)
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal stored by WithPrincipal.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
