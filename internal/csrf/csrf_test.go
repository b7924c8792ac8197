package csrf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestSingleUse(t *testing.T) {
	m := New()
	tok, err := m.Issue("S")
	require.NoError(t, err)

	assert.True(t, m.Verify(tok, "S"))
	assert.False(t, m.Verify(tok, "S"), "second use must fail")
}

func TestMismatchConsumesToken(t *testing.T) {
	m := New()
	tok, _ := m.Issue("S")

	assert.False(t, m.Verify(tok, "S2"))
	assert.False(t, m.Verify(tok, "S"), "token burned by the mismatched attempt")
	assert.Equal(t, 0, m.Len())
}

func TestUnknownToken(t *testing.T) {
	assert.False(t, New().Verify("nope", "S"))
}

func TestExpiredTokenRejected(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	m := New(WithClock(c.now), WithTTL(time.Hour))
	tok, _ := m.Issue("S")

	c.t = c.t.Add(time.Hour + time.Second)
	assert.False(t, m.Verify(tok, "S"))
	assert.Equal(t, 0, m.Len())
}

func TestCleanup(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	m := New(WithClock(c.now))
	_, _ = m.Issue("a")
	_, _ = m.Issue("b")

	c.t = c.t.Add(30 * time.Minute)
	fresh, _ := m.Issue("c")

	c.t = c.t.Add(31 * time.Minute)
	assert.Equal(t, 2, m.Cleanup())
	assert.Equal(t, 1, m.Len())
	assert.True(t, m.Verify(fresh, "c"))
}
