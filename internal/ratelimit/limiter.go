// internal/ratelimit/limiter.go
//
// Sliding-window request limiter.
//
// Context
// -------
// Each (rule type, key) pair owns an ascending list of the instants at
// which requests were accepted.  A check drops instants that have left the
// window, accepts when fewer than Max remain, and otherwise reports how
// long until the oldest instant leaves.  Memory per key is bounded by Max.
//
// Keys are never dropped by Check itself.  Sweep removes keys whose
// windows have emptied so scanning traffic with many distinct keys does not
// grow the map forever; the scheduler runs it every ten minutes.
//
// Notes
// -----
//   - One mutex guards the map.  Checks are O(Max) at worst.
//   - A denial is an ordinary Decision, never an error.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"github.com/yanizio/cardeal/internal/metrics"
)

// Decision is the outcome of one Check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAfter is zero when allowed, otherwise the whole seconds until a
	// slot frees up.
	ResetAfter time.Duration
}

// ResetSeconds returns ResetAfter as an integer for headers and JSON.
func (d Decision) ResetSeconds() int { return int(d.ResetAfter / time.Second) }

// Limiter is safe for concurrent use.  Construct with New.
type Limiter struct {
	mu      sync.Mutex
	rules   map[string]Rule
	windows map[string][]time.Time
	now     func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(l *Limiter) { l.now = now } }

// WithRules merges rules over DefaultRules.  Rules with Max or Window <= 0
// are ignored.
func WithRules(rules map[string]Rule) Option {
	return func(l *Limiter) {
		for name, r := range rules {
			if r.Max > 0 && r.Window > 0 {
				l.rules[name] = r
			}
		}
	}
}

// New returns a Limiter seeded with DefaultRules.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		rules:   DefaultRules(),
		windows: make(map[string][]time.Time),
		now:     time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Rule returns the rule for ruleType, falling back to API.
func (l *Limiter) Rule(ruleType string) Rule {
	if r, ok := l.rules[ruleType]; ok {
		return r
	}
	return l.rules[API]
}

// Check records one request for key under ruleType if the window has room.
func (l *Limiter) Check(key, ruleType string) Decision {
	rule := l.Rule(ruleType)
	wk := windowKey(ruleType, key)

	l.mu.Lock()
	now := l.now()
	ts := prune(l.windows[wk], now, rule.Window)

	var d Decision
	if len(ts) < rule.Max {
		ts = append(ts, now)
		d = Decision{Allowed: true, Limit: rule.Max, Remaining: rule.Max - len(ts)}
	} else {
		wait := ts[0].Add(rule.Window).Sub(now)
		d = Decision{
			Limit:      rule.Max,
			ResetAfter: time.Duration(math.Ceil(wait.Seconds())) * time.Second,
		}
	}
	l.windows[wk] = ts
	l.mu.Unlock()

	outcome := "denied"
	if d.Allowed {
		outcome = "allowed"
	}
	metrics.RateLimitDecisions.WithLabelValues(ruleType, outcome).Inc()
	return d
}

// Reset forgets key under ruleType, e.g. after a successful login.
func (l *Limiter) Reset(key, ruleType string) {
	l.mu.Lock()
	delete(l.windows, windowKey(ruleType, key))
	l.mu.Unlock()
}

// Sweep prunes every window and removes keys left empty.  It returns the
// number of keys removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	n := 0
	for wk, ts := range l.windows {
		ruleType, _ := splitWindowKey(wk)
		ts = prune(ts, now, l.Rule(ruleType).Window)
		if len(ts) == 0 {
			delete(l.windows, wk)
			n++
			continue
		}
		l.windows[wk] = ts
	}
	return n
}

// Keys reports how many (rule type, key) windows are tracked.
func (l *Limiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// prune drops instants at or before now-window.  ts is ascending, so the
// survivors are a suffix.
func prune(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	i := 0
	for i < len(ts) && now.Sub(ts[i]) >= window {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0:0], ts[i:]...)
}

func windowKey(ruleType, key string) string { return ruleType + ":" + key }

func splitWindowKey(wk string) (ruleType, key string) {
	for i := 0; i < len(wk); i++ {
		if wk[i] == ':' {
			return wk[:i], wk[i+1:]
		}
	}
	return wk, ""
}
