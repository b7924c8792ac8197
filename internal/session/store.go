// internal/session/store.go
//
// In-memory session store.
//
// Context
// -------
// Login creates a Session keyed by an opaque 256-bit token and hands the
// token to the client (cookie or bearer header).  Every request resolves
// the token back to a Session through Get.  Sessions live only in process
// memory, so a restart logs everybody out.
//
// Expiry is absolute.  Get removes a session the moment it is read past
// its deadline, and Cleanup sweeps sessions nobody reads again (closed
// tabs, abandoned devices).  The scheduler runs Cleanup hourly.
//
// Notes
// -----
//   - One mutex guards the map.  Get may delete, so reads take the same
//     lock as writes.
//   - Returned Sessions are copies; mutating one never touches the store.
package session

import (
	"maps"
	"sync"
	"time"

	"github.com/yanizio/cardeal/internal/auth"
	"github.com/yanizio/cardeal/internal/metrics"
)

// DefaultTTL applies when Create is called with ttl <= 0.
const DefaultTTL = 24 * time.Hour

// Session binds a token to an authenticated identity and tenant.
type Session struct {
	Token     string         `json:"-"`
	UserID    int64          `json:"user_id"`
	TenantID  int64          `json:"tenant_id"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// Str returns Payload[key] as a string, or "".
func (s *Session) Str(key string) string {
	v, _ := s.Payload[key].(string)
	return v
}

func (s *Session) clone() *Session {
	cp := *s
	cp.Payload = maps.Clone(s.Payload)
	return &cp
}

// Store is safe for concurrent use.  Construct with NewStore.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
	newToken func() (string, error)
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// WithTokenSource overrides token generation.
func WithTokenSource(fn func() (string, error)) Option {
	return func(s *Store) { s.newToken = fn }
}

// NewStore returns an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions: make(map[string]*Session),
		now:      time.Now,
		newToken: auth.NewToken,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create stores a new session and returns its token.
func (s *Store) Create(userID int64, payload map[string]any, tenantID int64, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	tok, err := s.newToken()
	if err != nil {
		return "", err
	}

	now := s.now()
	sess := &Session{
		Token:     tok,
		UserID:    userID,
		TenantID:  tenantID,
		Payload:   maps.Clone(payload),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	s.mu.Lock()
	s.sessions[tok] = sess
	n := len(s.sessions)
	s.mu.Unlock()

	metrics.ActiveSessions.Set(float64(n))
	return tok, nil
}

// Get returns a copy of the live session for token.  An expired session is
// deleted and reported absent.
func (s *Store) Get(token string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return nil, false
	}
	if s.now().After(sess.ExpiresAt) {
		delete(s.sessions, token)
		metrics.ActiveSessions.Set(float64(len(s.sessions)))
		return nil, false
	}
	return sess.clone(), true
}

// Delete removes token and reports whether it existed.
func (s *Store) Delete(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[token]; !ok {
		return false
	}
	delete(s.sessions, token)
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	return true
}

// Extend moves a live session's deadline to now+ttl.  Expired or unknown
// tokens return false.
func (s *Store) Extend(token string, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return false
	}
	now := s.now()
	if now.After(sess.ExpiresAt) {
		delete(s.sessions, token)
		return false
	}
	sess.ExpiresAt = now.Add(ttl)
	return true
}

// Cleanup removes every expired session and returns how many went.
func (s *Store) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for tok, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			delete(s.sessions, tok)
			n++
		}
	}
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	return n
}

// DeleteUser removes every session belonging to userID within tenantID,
// used when a password changes or an account is disabled.
func (s *Store) DeleteUser(tenantID, userID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for tok, sess := range s.sessions {
		if sess.TenantID == tenantID && sess.UserID == userID {
			delete(s.sessions, tok)
			n++
		}
	}
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	return n
}

// Len reports stored sessions, including expired ones not yet swept.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
