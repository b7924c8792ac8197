// internal/component/registry.go
//
// Component registry (cycle-free).
//
// Each concrete component lives under components/<name> and calls
// component.Register() in an init() function.  cmd/web blank-imports the
// components it ships, builds a Runtime, and calls Mount, which runs every
// component's Init and then lets it add routes to the shared router.
//
// Notes
// -----
//   - Mount visits components in name order so route registration and
//     startup logs are deterministic.
//   - Oxford commas, two spaces after periods.

package component

import (
	"fmt"
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Component contract.
//
// Routes adds endpoints to r, which is already wrapped with the global
// middleware chain, e.g:
//
//	r.Route("/api/widgets", func(api chi.Router) {
//	    api.Use(middleware.RequireSession)
//	    api.Get("/", c.list)
//	})
type Component interface {
	Name() string
	Init(rt *Runtime) error
	Routes(r chi.Router)
}

var (
	mu       sync.RWMutex
	registry = map[string]Component{}
)

// Register is invoked from component init() functions.  Registering the
// same name twice replaces the earlier component.
func Register(c Component) {
	mu.Lock()
	registry[c.Name()] = c
	mu.Unlock()
}

// All returns every registered component ordered by name.
func All() []Component {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Component, 0, len(registry))
	for _, c := range registry {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Mount initialises every component with rt and adds its routes to r.
func Mount(r chi.Router, rt *Runtime) error {
	for _, c := range All() {
		if err := c.Init(rt); err != nil {
			return fmt.Errorf("component %s: init: %w", c.Name(), err)
		}
		c.Routes(r)
		rt.logger().Infow("component mounted", "component", c.Name())
	}
	return nil
}
