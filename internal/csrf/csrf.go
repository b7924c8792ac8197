// internal/csrf/csrf.go
//
// One-time CSRF tokens bound to a session.
//
// Context
// -------
// Mutating requests from a logged-in browser must echo a token the server
// issued to that same session.  Tokens are random, recorded server-side
// with their session id and issue time, and burned on first inspection:
// Verify deletes a token it finds whether the check passes, fails on a
// session mismatch, or fails on age.  A leaked token is therefore good for
// at most one attempt.
//
// Cleanup drops tokens that were issued but never presented.  The
// scheduler runs it every 30 minutes.
//
// Notes
// -----
//   - One mutex guards the map; it is never held across I/O.
//   - Session ids are compared in constant time.
package csrf

import (
	"crypto/subtle"
	"sync"
	"time"

	"github.com/yanizio/cardeal/internal/auth"
	"github.com/yanizio/cardeal/internal/metrics"
)

// DefaultTTL is how long an unused token stays valid.
const DefaultTTL = time.Hour

type record struct {
	sessionID string
	createdAt time.Time
}

// Manager issues and verifies tokens.  Safe for concurrent use.
type Manager struct {
	mu     sync.Mutex
	tokens map[string]record
	ttl    time.Duration
	now    func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL overrides DefaultTTL.
func WithTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.ttl = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// New returns an empty Manager.
func New(opts ...Option) *Manager {
	m := &Manager{
		tokens: make(map[string]record),
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Issue records and returns a fresh token for sessionID.
func (m *Manager) Issue(sessionID string) (string, error) {
	tok, err := auth.NewToken()
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.tokens[tok] = record{sessionID: sessionID, createdAt: m.now()}
	m.mu.Unlock()
	return tok, nil
}

// Verify reports whether token was issued to sessionID and is still fresh.
// Any token found is consumed regardless of the outcome.
func (m *Manager) Verify(token, sessionID string) bool {
	m.mu.Lock()
	rec, ok := m.tokens[token]
	if ok {
		delete(m.tokens, token)
	}
	now := m.now()
	m.mu.Unlock()

	switch {
	case !ok:
		metrics.CSRFVerifications.WithLabelValues("unknown").Inc()
		return false
	case subtle.ConstantTimeCompare([]byte(rec.sessionID), []byte(sessionID)) != 1:
		metrics.CSRFVerifications.WithLabelValues("mismatch").Inc()
		return false
	case now.Sub(rec.createdAt) > m.ttl:
		metrics.CSRFVerifications.WithLabelValues("expired").Inc()
		return false
	}
	metrics.CSRFVerifications.WithLabelValues("ok").Inc()
	return true
}

// Cleanup removes expired tokens and returns how many went.
func (m *Manager) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for tok, rec := range m.tokens {
		if now.Sub(rec.createdAt) > m.ttl {
			delete(m.tokens, tok)
			n++
		}
	}
	return n
}

// Len reports outstanding tokens.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}
