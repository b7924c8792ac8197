// internal/ratelimit/limiter_test.go
//
// Sliding-window behaviour under a fake clock.

package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newLimiter() (*Limiter, *clock) {
	c := &clock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	return New(WithClock(c.now)), c
}

func TestLoginScenario(t *testing.T) {
	l, _ := newLimiter()

	for want := 4; want >= 0; want-- {
		d := l.Check("ip:1.2.3.4", Login)
		require.True(t, d.Allowed)
		assert.Equal(t, want, d.Remaining)
		assert.Equal(t, 5, d.Limit)
	}

	d := l.Check("ip:1.2.3.4", Login)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 60, d.ResetSeconds())
}

func TestWindowSlides(t *testing.T) {
	l, c := newLimiter()

	for i := 0; i < 5; i++ {
		require.True(t, l.Check("k", Login).Allowed)
		c.advance(time.Second)
	}
	// t = 5s; window full.
	d := l.Check("k", Login)
	require.False(t, d.Allowed)
	assert.Equal(t, 55, d.ResetSeconds())

	c.advance(55 * time.Second) // t = 60s: the first request leaves.
	assert.True(t, l.Check("k", Login).Allowed)
	assert.False(t, l.Check("k", Login).Allowed, "only one slot freed")
}

func TestKeysAndRulesAreIndependent(t *testing.T) {
	l, _ := newLimiter()
	for i := 0; i < 3; i++ {
		require.True(t, l.Check("a", Register).Allowed)
	}
	assert.False(t, l.Check("a", Register).Allowed)
	assert.True(t, l.Check("b", Register).Allowed)
	assert.True(t, l.Check("a", Login).Allowed)
}

func TestUnknownRuleFallsBackToAPI(t *testing.T) {
	l, _ := newLimiter()
	assert.Equal(t, l.Rule(API), l.Rule("mystery"))
	assert.Equal(t, 99, l.Check("k", "mystery").Remaining)
}

func TestDefaultRules(t *testing.T) {
	rules := DefaultRules()
	assert.Equal(t, Rule{Max: 5, Window: time.Minute}, rules[Login])
	assert.Equal(t, Rule{Max: 3, Window: 5 * time.Minute}, rules[Register])
	assert.Equal(t, Rule{Max: 5, Window: time.Minute}, rules[Export])
	assert.Equal(t, Rule{Max: 30, Window: time.Minute}, rules[AI])
	assert.Equal(t, Rule{Max: 20, Window: time.Minute}, rules[Report])
}

func TestWithRulesOverrides(t *testing.T) {
	l := New(WithRules(map[string]Rule{
		Login:   {Max: 1, Window: time.Minute},
		"bogus": {Max: 0, Window: time.Minute},
	}))
	assert.True(t, l.Check("k", Login).Allowed)
	assert.False(t, l.Check("k", Login).Allowed)
	assert.Equal(t, l.Rule(API), l.Rule("bogus"))
}

func TestReset(t *testing.T) {
	l, _ := newLimiter()
	for i := 0; i < 5; i++ {
		l.Check("k", Login)
	}
	l.Reset("k", Login)
	assert.True(t, l.Check("k", Login).Allowed)
}

func TestSweepRemovesIdleKeys(t *testing.T) {
	l, c := newLimiter()
	l.Check("old", Login)
	c.advance(30 * time.Second)
	l.Check("new", Login)
	l.Check("upload", Upload)
	assert.Equal(t, 3, l.Keys())

	c.advance(31 * time.Second)
	assert.Equal(t, 1, l.Sweep(), "only login:old has aged out")
	assert.Equal(t, 2, l.Keys())

	c.advance(time.Minute)
	assert.Equal(t, 2, l.Sweep())
	assert.Equal(t, 0, l.Keys())
}

func TestConcurrentChecksNeverExceedMax(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Check("shared", Login).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 5, allowed)
}

func TestMemoryStats(t *testing.T) {
	s := NewMemoryStats()
	ctx := context.Background()
	_ = s.Record(ctx, Event{Rule: Login, Allowed: true})
	_ = s.Record(ctx, Event{Rule: Login, Allowed: false})
	_ = s.Record(ctx, Event{Rule: API, Allowed: true})

	assert.Equal(t, Counters{Allowed: 2, Denied: 1}, s.Total())
	assert.Equal(t, Counters{Allowed: 1, Denied: 1}, s.ByRule()[Login])
}
