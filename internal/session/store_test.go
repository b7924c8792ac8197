// internal/session/store_test.go
//
// Lifecycle tests for the in-memory session store.  A fake clock makes
// expiry deterministic.

package session

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newStore() (*Store, *clock) {
	c := &clock{t: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)}
	return NewStore(WithClock(c.now)), c
}

func TestCreateThenGet(t *testing.T) {
	s, _ := newStore()

	tok, err := s.Create(7, map[string]any{"role": "admin"}, 3, time.Hour)
	require.NoError(t, err)
	assert.Len(t, tok, 64)

	sess, ok := s.Get(tok)
	require.True(t, ok)
	assert.Equal(t, int64(7), sess.UserID)
	assert.Equal(t, int64(3), sess.TenantID)
	assert.Equal(t, "admin", sess.Str("role"))
	assert.True(t, sess.ExpiresAt.After(sess.CreatedAt))
}

func TestGetExpiresLazily(t *testing.T) {
	for _, ttl := range []time.Duration{time.Minute, time.Hour, 24 * time.Hour} {
		s, c := newStore()
		tok, err := s.Create(1, nil, 1, ttl)
		require.NoError(t, err)

		c.t = c.t.Add(ttl)
		_, ok := s.Get(tok)
		assert.True(t, ok, "still valid exactly at the deadline")

		c.t = c.t.Add(time.Second)
		_, ok = s.Get(tok)
		assert.False(t, ok)
		assert.Equal(t, 0, s.Len(), "expired session removed on read")
	}
}

func TestZeroTTLUsesDefault(t *testing.T) {
	s, c := newStore()
	tok, _ := s.Create(1, nil, 1, 0)
	sess, _ := s.Get(tok)
	assert.Equal(t, c.t.Add(DefaultTTL), sess.ExpiresAt)
}

func TestReturnedSessionIsACopy(t *testing.T) {
	s, _ := newStore()
	tok, _ := s.Create(1, map[string]any{"k": "v"}, 1, time.Hour)

	a, _ := s.Get(tok)
	a.Payload["k"] = "changed"
	a.UserID = 99

	b, _ := s.Get(tok)
	assert.Equal(t, "v", b.Str("k"))
	assert.Equal(t, int64(1), b.UserID)
}

func TestDelete(t *testing.T) {
	s, _ := newStore()
	tok, _ := s.Create(1, nil, 1, time.Hour)

	assert.True(t, s.Delete(tok))
	assert.False(t, s.Delete(tok))
	_, ok := s.Get(tok)
	assert.False(t, ok)
}

func TestExtend(t *testing.T) {
	s, c := newStore()
	tok, _ := s.Create(1, nil, 1, time.Hour)

	c.t = c.t.Add(50 * time.Minute)
	require.True(t, s.Extend(tok, time.Hour))

	c.t = c.t.Add(50 * time.Minute)
	_, ok := s.Get(tok)
	assert.True(t, ok, "extended past the original deadline")

	c.t = c.t.Add(2 * time.Hour)
	assert.False(t, s.Extend(tok, time.Hour), "cannot revive an expired session")
	assert.False(t, s.Extend("missing", time.Hour))
}

func TestCleanupSweepsUnreadSessions(t *testing.T) {
	s, c := newStore()
	for i := 0; i < 5; i++ {
		_, _ = s.Create(int64(i), nil, 1, time.Minute)
	}
	keep, _ := s.Create(100, nil, 1, time.Hour)

	c.t = c.t.Add(2 * time.Minute)
	assert.Equal(t, 5, s.Cleanup())
	assert.Equal(t, 1, s.Len())
	_, ok := s.Get(keep)
	assert.True(t, ok)
}

func TestDeleteUser(t *testing.T) {
	s, _ := newStore()
	_, _ = s.Create(1, nil, 1, time.Hour)
	_, _ = s.Create(1, nil, 1, time.Hour)
	_, _ = s.Create(1, nil, 2, time.Hour)

	assert.Equal(t, 2, s.DeleteUser(1, 1))
	assert.Equal(t, 1, s.Len())
}

func TestTokenSourceError(t *testing.T) {
	s := NewStore(WithTokenSource(func() (string, error) { return "", fmt.Errorf("entropy") }))
	_, err := s.Create(1, nil, 1, time.Hour)
	assert.Error(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestConcurrentAccess(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := s.Create(int64(i), nil, 1, time.Hour)
			if err != nil {
				return
			}
			s.Get(tok)
			s.Extend(tok, time.Hour)
			s.Cleanup()
			s.Delete(tok)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, s.Len())
}

func TestCookieTransport(t *testing.T) {
	c := Cookie{Name: "cardeal_session"}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c.Set(rec, req, "abc", time.Now().Add(time.Hour))
	require.Len(t, rec.Result().Cookies(), 1)
	ck := rec.Result().Cookies()[0]
	assert.True(t, ck.HttpOnly)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(ck)
	tok, ok := c.TokenFromRequest(req)
	require.True(t, ok)
	assert.Equal(t, "abc", tok)

	req.Header.Set("Authorization", "Bearer xyz")
	tok, _ = c.TokenFromRequest(req)
	assert.Equal(t, "xyz", tok, "header wins over cookie")

	_, ok = c.TokenFromRequest(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, ok)
}
