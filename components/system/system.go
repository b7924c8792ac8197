// components/system/system.go
//
// Operator endpoints.
//
// Context
// -------
// Lets an operator inspect and nudge the runtime without a shell: list
// maintenance tasks and run, enable, or disable them; read cache and job
// queue counters; list tenants and deactivate one; list backups and
// trigger one out of band.  Every route requires the X-Admin-Token header
// to match the configured admin token.  With no token configured the
// component mounts nothing.
//
// Notes
// -----
//   - Backup requests are queued on the job queue and answer 202 at once.
//   - Oxford commas, two spaces after periods.
package system

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/yanizio/cardeal/internal/component"
	"github.com/yanizio/cardeal/internal/logger"
	"github.com/yanizio/cardeal/internal/respond"
	"github.com/yanizio/cardeal/internal/scheduler"
	"github.com/yanizio/cardeal/internal/tenant"
)

// TokenHeader carries the operator token.
const TokenHeader = "X-Admin-Token"

var _ component.Component = (*Component)(nil)

// Component serves /api/system.
type Component struct {
	rt  *component.Runtime
	log *zap.SugaredLogger
}

func init() { component.Register(&Component{}) }

// Name returns the canonical component key.
func (c *Component) Name() string { return "system" }

// Init keeps the runtime.
func (c *Component) Init(rt *component.Runtime) error {
	if rt == nil || rt.Scheduler == nil || rt.Jobs == nil || rt.Cache == nil || rt.Tenants == nil || rt.Sessions == nil {
		return errors.New("system: runtime incomplete")
	}
	c.rt = rt
	c.log = logger.OrNop(rt.Log)
	return nil
}

// Routes adds /api/system when an admin token is configured.
func (c *Component) Routes(r chi.Router) {
	if c.rt.AdminToken == "" {
		c.log.Warnw("admin token not configured; /api/system disabled")
		return
	}
	r.Route("/api/system", func(api chi.Router) {
		api.Use(c.requireToken)

		api.Get("/health", c.health)

		api.Get("/tasks", c.tasks)
		api.Post("/tasks/{name}/run", c.runTask)
		api.Post("/tasks/{name}/enable", c.toggleTask(true))
		api.Post("/tasks/{name}/disable", c.toggleTask(false))

		api.Get("/cache", c.cacheStats)
		api.Post("/cache/clear", c.cacheClear)
		api.Get("/jobs", c.jobs)

		api.Get("/tenants", c.tenants)
		api.Post("/tenants/{code}/deactivate", c.deactivate)

		api.Get("/backups", c.backups)
		api.Post("/backups/run", c.runBackup)
	})
}

func (c *Component) requireToken(next http.Handler) http.Handler {
	want := []byte(c.rt.AdminToken)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := []byte(r.Header.Get(TokenHeader))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			respond.Error(w, http.StatusUnauthorized, "admin token required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

/*──────────────────────────── Handlers ─────────────────────────────────────*/

func (c *Component) health(w http.ResponseWriter, _ *http.Request) {
	respond.OK(w, map[string]any{
		"sessions":     c.rt.Sessions.Len(),
		"tenant_pools": c.rt.Tenants.OpenPools(),
		"jobs":         c.rt.Jobs.Stats(),
	})
}

func (c *Component) tasks(w http.ResponseWriter, _ *http.Request) {
	respond.OK(w, map[string]any{"tasks": c.rt.Scheduler.Status()})
}

func (c *Component) runTask(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	switch err := c.rt.Scheduler.RunNow(r.Context(), name); {
	case errors.Is(err, scheduler.ErrUnknownTask):
		respond.Error(w, http.StatusNotFound, "unknown task")
		return
	case errors.Is(err, scheduler.ErrTaskRunning):
		respond.Error(w, http.StatusConflict, "task already running")
		return
	}
	c.log.Infow("task run by operator", "task", name)
	respond.OK(w, map[string]any{"task": name})
}

func (c *Component) toggleTask(on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		var found bool
		if on {
			found = c.rt.Scheduler.Enable(name)
		} else {
			found = c.rt.Scheduler.Disable(name)
		}
		if !found {
			respond.Error(w, http.StatusNotFound, "unknown task")
			return
		}
		respond.OK(w, map[string]any{"task": name, "enabled": on})
	}
}

func (c *Component) cacheStats(w http.ResponseWriter, _ *http.Request) {
	respond.OK(w, map[string]any{"pools": c.rt.Cache.StatsAll()})
}

func (c *Component) cacheClear(w http.ResponseWriter, _ *http.Request) {
	c.rt.Cache.ClearAll()
	c.log.Infow("cache cleared by operator")
	respond.OK(w, nil)
}

func (c *Component) jobs(w http.ResponseWriter, _ *http.Request) {
	respond.OK(w, map[string]any{"jobs": c.rt.Jobs.Stats()})
}

func (c *Component) tenants(w http.ResponseWriter, r *http.Request) {
	list, err := c.rt.Tenants.Active(r.Context())
	if err != nil {
		c.log.Errorw("list tenants", "err", err)
		respond.Error(w, http.StatusInternalServerError, "list failed")
		return
	}
	respond.OK(w, map[string]any{"tenants": list, "open_pools": c.rt.Tenants.OpenPools()})
}

func (c *Component) deactivate(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	err := c.rt.Tenants.Deactivate(r.Context(), code)
	switch {
	case errors.Is(err, tenant.ErrNotFound):
		respond.Error(w, http.StatusNotFound, "unknown tenant")
		return
	case err != nil:
		c.log.Errorw("deactivate tenant", "tenant", code, "err", err)
		respond.Error(w, http.StatusInternalServerError, "deactivate failed")
		return
	}
	respond.OK(w, map[string]any{"tenant": code, "status": tenant.StatusInactive})
}

func (c *Component) backups(w http.ResponseWriter, _ *http.Request) {
	if c.rt.Backup == nil {
		respond.Error(w, http.StatusNotFound, "backups disabled")
		return
	}
	files, err := c.rt.Backup.List()
	if err != nil {
		respond.Error(w, http.StatusInternalServerError, "list failed")
		return
	}
	respond.OK(w, map[string]any{"backups": files})
}

func (c *Component) runBackup(w http.ResponseWriter, _ *http.Request) {
	if c.rt.Backup == nil {
		respond.Error(w, http.StatusNotFound, "backups disabled")
		return
	}
	id, err := c.rt.Jobs.Enqueue("backup_manual", func(ctx context.Context) error {
		_, err := c.rt.Backup.Run(ctx)
		return err
	})
	if err != nil {
		respond.Error(w, http.StatusServiceUnavailable, "job queue stopped")
		return
	}
	respond.JSON(w, http.StatusAccepted, map[string]any{"ok": true, "job_id": id})
}
