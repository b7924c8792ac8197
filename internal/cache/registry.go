// internal/cache/registry.go
//
// Named pool registry.
//
// Context
// -------
// Different data wants different bounds: dashboard stats go stale in a
// minute, price lookups stay useful for half an hour.  The Registry maps a
// pool name to an independently sized LRU and falls back to the "default"
// pool for unknown names so callers never get a nil pool.
//
// Notes
// -----
//   - Pools are created once at startup from config and never removed, so
//     the map itself needs no lock after New returns.
//   - Values are `any`; typed access goes through Memoize.
package cache

import (
	"sort"
	"time"
)

// DefaultPool is the name of the fallback pool.
const DefaultPool = "default"

// PoolConfig sizes one named pool.
type PoolConfig struct {
	Name       string
	MaxSize    int
	DefaultTTL time.Duration
}

// DefaultPools mirrors the production sizing.
var DefaultPools = []PoolConfig{
	{Name: DefaultPool, MaxSize: 1000, DefaultTTL: 5 * time.Minute},
	{Name: "session", MaxSize: 500, DefaultTTL: time.Hour},
	{Name: "stats", MaxSize: 100, DefaultTTL: time.Minute},
	{Name: "price", MaxSize: 200, DefaultTTL: 30 * time.Minute},
}

// Registry holds the named pools.
type Registry struct {
	pools map[string]*LRU[string, any]
}

// NewRegistry builds one pool per config entry.  A default pool is added
// when the list does not name one.
func NewRegistry(cfgs []PoolConfig, opts ...Option) *Registry {
	r := &Registry{pools: make(map[string]*LRU[string, any], len(cfgs)+1)}
	for _, pc := range cfgs {
		r.pools[pc.Name] = New[string, any](pc.Name, pc.MaxSize, pc.DefaultTTL, opts...)
	}
	if _, ok := r.pools[DefaultPool]; !ok {
		d := DefaultPools[0]
		r.pools[DefaultPool] = New[string, any](d.Name, d.MaxSize, d.DefaultTTL, opts...)
	}
	return r
}

// Pool returns the named pool or the default pool.
func (r *Registry) Pool(name string) *LRU[string, any] {
	if p, ok := r.pools[name]; ok {
		return p
	}
	return r.pools[DefaultPool]
}

// Get reads key from the named pool.
func (r *Registry) Get(pool, key string) (any, bool) {
	return r.Pool(pool).Get(key)
}

// Set writes key into the named pool.  ttl <= 0 stores without expiry.
func (r *Registry) Set(pool, key string, val any, ttl time.Duration) {
	r.Pool(pool).SetWithTTL(key, val, ttl)
}

// Delete removes key from the named pool.
func (r *Registry) Delete(pool, key string) bool {
	return r.Pool(pool).Delete(key)
}

// CleanupAll sweeps every pool and returns the total removed.
func (r *Registry) CleanupAll() int {
	n := 0
	for _, p := range r.pools {
		n += p.Cleanup()
	}
	return n
}

// ClearAll empties every pool.
func (r *Registry) ClearAll() {
	for _, p := range r.pools {
		p.Clear()
	}
}

// StatsAll returns one snapshot per pool, sorted by name.
func (r *Registry) StatsAll() []Stats {
	out := make([]Stats, 0, len(r.pools))
	for _, p := range r.pools {
		out = append(out, p.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
