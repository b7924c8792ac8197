package ratelimit

import (
	"context"
	"maps"
	"sync"
	"time"
)

// Event describes one rate-limit decision for statistics.
type Event struct {
	Rule    string
	Key     string
	Allowed bool
	Method  string
	Path    string
	At      time.Time
}

// StatsRecorder persists decision counts.  Recording is best-effort: an
// error is logged by the caller and never changes the decision.
type StatsRecorder interface {
	Record(ctx context.Context, ev Event) error
}

// Counters is an allowed/denied pair.
type Counters struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

func (c *Counters) add(allowed bool) {
	if allowed {
		c.Allowed++
	} else {
		c.Denied++
	}
}

// MemoryStats keeps counters per rule in process memory.  It is the
// default recorder when Redis is not configured.
type MemoryStats struct {
	mu     sync.Mutex
	total  Counters
	byRule map[string]Counters
}

// NewMemoryStats returns an empty recorder.
func NewMemoryStats() *MemoryStats {
	return &MemoryStats{byRule: make(map[string]Counters)}
}

// Record implements StatsRecorder.
func (s *MemoryStats) Record(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev.Allowed)
	c := s.byRule[ev.Rule]
	c.add(ev.Allowed)
	s.byRule[ev.Rule] = c
	return nil
}

// Total returns the overall counters.
func (s *MemoryStats) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// ByRule returns a copy of the per-rule counters.
func (s *MemoryStats) ByRule() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.byRule)
}
