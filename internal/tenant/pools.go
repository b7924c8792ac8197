// internal/tenant/pools.go
//
// Per-tenant connection pools.
//
// Context
// -------
// The first request for a tenant opens a small sqlx pool on its SQLite
// file; later requests reuse it.  Opens are collapsed with singleflight so
// a burst of first requests opens one pool, and the map lock is never held
// while the file is opened.
//
// CloseIdle closes pools unused for longer than the idle TTL, and when more
// than maxOpen remain it closes the least recently used.  The scheduler
// runs it every few minutes.
package tenant

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/cardeal/internal/metrics"
)

type pool struct {
	db       *sqlx.DB
	lastSeen atomic.Int64 // UnixNano
}

type poolSet struct {
	mu      sync.Mutex
	m       map[string]*pool
	sfg     singleflight.Group
	open    func(ctx context.Context, path string) (*sqlx.DB, error)
	now     func() time.Time
	maxOpen int
}

func newPoolSet(open func(context.Context, string) (*sqlx.DB, error), maxOpen int) *poolSet {
	return &poolSet{
		m:       make(map[string]*pool),
		open:    open,
		now:     time.Now,
		maxOpen: maxOpen,
	}
}

func (ps *poolSet) get(ctx context.Context, code, path string) (*sqlx.DB, error) {
	ps.mu.Lock()
	p, ok := ps.m[code]
	ps.mu.Unlock()
	if ok {
		p.lastSeen.Store(ps.now().UnixNano())
		return p.db, nil
	}

	v, err, _ := ps.sfg.Do(code, func() (any, error) {
		ps.mu.Lock()
		if p, ok := ps.m[code]; ok {
			ps.mu.Unlock()
			return p.db, nil
		}
		ps.mu.Unlock()

		db, err := ps.open(ctx, path)
		if err != nil {
			return nil, err
		}
		p := &pool{db: db}
		p.lastSeen.Store(ps.now().UnixNano())

		ps.mu.Lock()
		ps.m[code] = p
		n := len(ps.m)
		ps.mu.Unlock()
		metrics.TenantPoolsOpen.Set(float64(n))
		return db, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*sqlx.DB), nil
}

// drop closes and forgets code's pool, if open.
func (ps *poolSet) drop(code string) {
	ps.mu.Lock()
	p, ok := ps.m[code]
	delete(ps.m, code)
	n := len(ps.m)
	ps.mu.Unlock()
	if ok {
		_ = p.db.Close()
		metrics.TenantPoolsOpen.Set(float64(n))
	}
}

// closeIdle closes pools idle longer than idle, then trims LRU pools past
// maxOpen.  It returns the number closed.
func (ps *poolSet) closeIdle(idle time.Duration) int {
	now := ps.now().UnixNano()

	ps.mu.Lock()
	var victims []*pool
	type kv struct {
		code string
		at   int64
	}
	var live []kv
	for code, p := range ps.m {
		at := p.lastSeen.Load()
		if time.Duration(now-at) > idle {
			victims = append(victims, p)
			delete(ps.m, code)
			continue
		}
		live = append(live, kv{code, at})
	}
	if ps.maxOpen > 0 && len(live) > ps.maxOpen {
		sort.Slice(live, func(i, j int) bool { return live[i].at < live[j].at })
		for _, e := range live[:len(live)-ps.maxOpen] {
			victims = append(victims, ps.m[e.code])
			delete(ps.m, e.code)
		}
	}
	n := len(ps.m)
	ps.mu.Unlock()

	for _, p := range victims {
		_ = p.db.Close()
	}
	metrics.TenantPoolsOpen.Set(float64(n))
	return len(victims)
}

func (ps *poolSet) closeAll() {
	ps.mu.Lock()
	m := ps.m
	ps.m = make(map[string]*pool)
	ps.mu.Unlock()
	for _, p := range m {
		_ = p.db.Close()
	}
	metrics.TenantPoolsOpen.Set(0)
}

func (ps *poolSet) len() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return len(ps.m)
}
