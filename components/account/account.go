// components/account/account.go
//
// Tenant-scoped account endpoints.
//
// Context
// -------
// Everything here runs against the caller's own tenant database, reached
// through the session's tenant code and the registry's pool set.  The
// overview counters are memoized in the "stats" cache pool for a minute
// because dashboards poll them.
//
// Routes
// ------
//
//	GET /api/account                  session + tenant
//	GET /api/account/users            session + tenant + admin role
//	GET /api/account/settings         session + tenant
//	PUT /api/account/settings/{key}   session + tenant + CSRF + settings.edit
package account

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yanizio/cardeal/internal/acl"
	"github.com/yanizio/cardeal/internal/cache"
	"github.com/yanizio/cardeal/internal/component"
	"github.com/yanizio/cardeal/internal/logger"
	"github.com/yanizio/cardeal/internal/middleware"
	"github.com/yanizio/cardeal/internal/respond"
	"github.com/yanizio/cardeal/internal/tenant"
)

// StatsPool is the cache pool holding overview counters.
const StatsPool = "stats"

// PermEditSettings allows PUT /api/account/settings/{key}.
const PermEditSettings = "settings.edit"

var settingKey = regexp.MustCompile(`^[a-z][a-z0-9_.]{0,63}$`)

var _ component.Component = (*Component)(nil)

// Component serves /api/account.
type Component struct {
	rt       *component.Runtime
	log      *zap.SugaredLogger
	overview func(context.Context, *tenant.Tenant) (Overview, error)
}

func init() { component.Register(&Component{}) }

// Overview is the dashboard summary for one tenant.
type Overview struct {
	Users       int       `json:"users"`
	ActiveUsers int       `json:"active_users"`
	Settings    int       `json:"settings"`
	ComputedAt  time.Time `json:"computed_at"`
}

// User is one row of the tenant users list.
type User struct {
	ID        int64      `db:"id"         json:"id"`
	Name      string     `db:"name"       json:"name"`
	Phone     string     `db:"phone"      json:"phone"`
	Role      string     `db:"role"       json:"role"`
	Status    string     `db:"status"     json:"status"`
	LastLogin *time.Time `db:"last_login" json:"last_login,omitempty"`
}

// Setting is one key/value pair.
type Setting struct {
	Key       string         `db:"key"        json:"key"`
	Value     sql.NullString `db:"value"      json:"-"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}

// Name returns the canonical component key.
func (c *Component) Name() string { return "account" }

// Init keeps the runtime and builds the memoized overview loader.
func (c *Component) Init(rt *component.Runtime) error {
	if rt == nil || rt.Tenants == nil || rt.Cache == nil || rt.CSRF == nil {
		return errors.New("account: runtime incomplete")
	}
	c.rt = rt
	c.log = logger.OrNop(rt.Log)
	c.overview = cache.Memoize(rt.Cache.Pool(StatsPool), time.Minute,
		func(t *tenant.Tenant) string { return cache.MakeKey("overview", t.Code) },
		c.loadOverview)
	return nil
}

// Routes adds /api/account.
func (c *Component) Routes(r chi.Router) {
	r.Route("/api/account", func(api chi.Router) {
		api.Use(middleware.RequireSession)
		api.Use(middleware.RequireTenant(c.rt.Tenants))

		api.Get("/", c.get)
		api.With(acl.RequireRole("admin")).Get("/users", c.users)
		api.Get("/settings", c.settings)
		api.With(middleware.RequireCSRF(c.rt.CSRF), acl.RequirePermission(PermEditSettings)).
			Put("/settings/{key}", c.putSetting)
	})
}

/*──────────────────────────── Handlers ─────────────────────────────────────*/

func (c *Component) db(w http.ResponseWriter, r *http.Request) (*tenant.Tenant, *sqlx.DB, bool) {
	t, _ := tenant.FromContext(r.Context())
	db, err := c.rt.Tenants.Open(r.Context(), t)
	if err != nil {
		c.log.Errorw("open tenant db", "tenant", t.Code, "err", err)
		respond.Error(w, http.StatusInternalServerError, "tenant database unavailable")
		return nil, nil, false
	}
	return t, db, true
}

func (c *Component) get(w http.ResponseWriter, r *http.Request) {
	t, _ := tenant.FromContext(r.Context())
	ov, err := c.overview(r.Context(), t)
	if err != nil {
		c.log.Errorw("account overview", "tenant", t.Code, "err", err)
		respond.Error(w, http.StatusInternalServerError, "overview unavailable")
		return
	}
	respond.OK(w, map[string]any{"tenant": t, "overview": ov})
}

func (c *Component) loadOverview(ctx context.Context, t *tenant.Tenant) (Overview, error) {
	db, err := c.rt.Tenants.Open(ctx, t)
	if err != nil {
		return Overview{}, err
	}
	var ov Overview
	err = db.GetContext(ctx, &ov.Users, `SELECT COUNT(*) FROM users`)
	if err == nil {
		err = db.GetContext(ctx, &ov.ActiveUsers, `SELECT COUNT(*) FROM users WHERE status = 'active'`)
	}
	if err == nil {
		err = db.GetContext(ctx, &ov.Settings, `SELECT COUNT(*) FROM settings`)
	}
	ov.ComputedAt = time.Now().UTC()
	return ov, err
}

func (c *Component) users(w http.ResponseWriter, r *http.Request) {
	_, db, ok := c.db(w, r)
	if !ok {
		return
	}
	var out []User
	err := db.SelectContext(r.Context(), &out,
		`SELECT id, name, phone, role, status, last_login FROM users ORDER BY id`)
	if err != nil {
		c.log.Errorw("list users", "err", err)
		respond.Error(w, http.StatusInternalServerError, "list failed")
		return
	}
	respond.OK(w, map[string]any{"users": out})
}

func (c *Component) settings(w http.ResponseWriter, r *http.Request) {
	_, db, ok := c.db(w, r)
	if !ok {
		return
	}
	var rows []Setting
	if err := db.SelectContext(r.Context(), &rows,
		`SELECT key, value, updated_at FROM settings ORDER BY key`); err != nil {
		c.log.Errorw("list settings", "err", err)
		respond.Error(w, http.StatusInternalServerError, "list failed")
		return
	}
	out := make(map[string]string, len(rows))
	for _, s := range rows {
		out[s.Key] = s.Value.String
	}
	respond.OK(w, map[string]any{"settings": out})
}

func (c *Component) putSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !settingKey.MatchString(key) {
		respond.Error(w, http.StatusBadRequest, "invalid setting key")
		return
	}
	var body struct {
		Value string `json:"value"`
	}
	if err := respond.Decode(w, r, &body); err != nil {
		respond.Error(w, http.StatusBadRequest, "malformed request")
		return
	}
	t, db, ok := c.db(w, r)
	if !ok {
		return
	}
	_, err := db.ExecContext(r.Context(),
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, body.Value, time.Now().UTC())
	if err != nil {
		c.log.Errorw("put setting", "tenant", t.Code, "key", key, "err", err)
		respond.Error(w, http.StatusInternalServerError, "save failed")
		return
	}
	c.rt.Cache.Delete(StatsPool, cache.MakeKey("overview", t.Code))
	respond.OK(w, map[string]any{"key": key, "value": body.Value})
}
