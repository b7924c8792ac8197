// components/auth/auth.go
//
// Authentication component.
//
// Context
// -------
// Tenants sign up through /api/register, which provisions the tenant
// database and its first administrator.  Users then log in with the
// tenant code, phone number, and password.  A successful login rotates
// any existing session, records client details in the new session's
// payload, and clears the caller's login rate-limit window so a user who
// finally gets their password right starts from a clean slate.
//
// Routes
// ------
//
//	POST /api/register          rate limited (register)
//	POST /api/login             rate limited (login)
//	POST /api/logout            session + CSRF
//	GET  /api/session           session
//	POST /api/session/extend    session + CSRF
//	GET  /api/csrf              session
//
// Notes
// -----
//   - Unknown tenant, unknown phone, and wrong password all answer the
//     same 401 so the endpoint cannot be used to enumerate tenants.
//   - Oxford commas, two spaces after periods.
package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/yanizio/cardeal/internal/acl"
	"github.com/yanizio/cardeal/internal/component"
	"github.com/yanizio/cardeal/internal/logger"
	"github.com/yanizio/cardeal/internal/middleware"
	"github.com/yanizio/cardeal/internal/ratelimit"
	"github.com/yanizio/cardeal/internal/requestinfo"
	"github.com/yanizio/cardeal/internal/respond"
	"github.com/yanizio/cardeal/internal/session"
	"github.com/yanizio/cardeal/internal/tenant"
)

// Compile-time assertion: *Component satisfies component.Component.
var _ component.Component = (*Component)(nil)

// Component encapsulates signup, login, and session endpoints.
type Component struct {
	rt  *component.Runtime
	log *zap.SugaredLogger
}

// Name returns the canonical component key.
func (c *Component) Name() string { return "auth" }

// Init keeps the runtime.
func (c *Component) Init(rt *component.Runtime) error {
	if rt == nil || rt.Tenants == nil || rt.Sessions == nil || rt.CSRF == nil || rt.RateLimit == nil {
		return errors.New("auth: runtime incomplete")
	}
	c.rt = rt
	c.log = logger.OrNop(rt.Log)
	return nil
}

// Routes adds the auth endpoints.
func (c *Component) Routes(r chi.Router) {
	rl := c.rt.RateLimit
	r.Route("/api", func(api chi.Router) {
		api.With(rl.Limit(ratelimit.Register, middleware.ByIP)).Post("/register", c.register)
		api.With(rl.Limit(ratelimit.Login, middleware.ByIP)).Post("/login", c.login)

		api.Group(func(g chi.Router) {
			g.Use(middleware.RequireSession)
			g.Get("/session", c.current)
			g.Get("/csrf", c.csrfToken)

			g.Group(func(m chi.Router) {
				m.Use(middleware.RequireCSRF(c.rt.CSRF))
				m.Post("/logout", c.logout)
				m.Post("/session/extend", c.extend)
			})
		})
	})
}

// Register component at program start.
func init() { component.Register(&Component{}) }

/*──────────────────────────── Handlers ─────────────────────────────────────*/

type registerRequest struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	AdminName string `json:"admin_name"`
	Phone     string `json:"phone"`
	Password  string `json:"password"`
	Plan      string `json:"plan"`
}

func (c *Component) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := respond.Decode(w, r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, "malformed request")
		return
	}

	t, err := c.rt.Tenants.Register(r.Context(), tenant.RegisterInput{
		Code:          strings.ToLower(strings.TrimSpace(req.Code)),
		Name:          strings.TrimSpace(req.Name),
		AdminName:     strings.TrimSpace(req.AdminName),
		AdminPhone:    strings.TrimSpace(req.Phone),
		AdminPassword: req.Password,
		Plan:          req.Plan,
	})
	switch {
	case errors.Is(err, tenant.ErrAlreadyExists):
		respond.Error(w, http.StatusConflict, "tenant code already in use")
		return
	case errors.Is(err, tenant.ErrInvalidCode):
		respond.Error(w, http.StatusBadRequest, "tenant code must be 3-20 lowercase letters or digits")
		return
	case errors.Is(err, tenant.ErrInvalidInput):
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		respond.Error(w, http.StatusInternalServerError, "registration failed")
		return
	}

	respond.JSON(w, http.StatusCreated, map[string]any{"ok": true, "tenant": t})
}

type loginRequest struct {
	Code     string `json:"code"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

func (c *Component) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := respond.Decode(w, r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, "malformed request")
		return
	}
	code := strings.ToLower(strings.TrimSpace(req.Code))
	phone := strings.TrimSpace(req.Phone)
	if code == "" || phone == "" || req.Password == "" {
		respond.Error(w, http.StatusBadRequest, "code, phone, and password are required")
		return
	}

	login, err := c.rt.Tenants.VerifyLogin(r.Context(), code, phone, req.Password)
	switch {
	case errors.Is(err, tenant.ErrNotFound), errors.Is(err, tenant.ErrInvalidCredentials):
		respond.Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	case err != nil:
		c.log.Errorw("login failed", "tenant", code, "err", err)
		respond.Error(w, http.StatusInternalServerError, "login failed")
		return
	}

	if old, ok := session.FromContext(r.Context()); ok {
		c.rt.Sessions.Delete(old.Token)
	}

	payload := map[string]any{
		middleware.TenantCodeKey: login.Tenant.Code,
		"tenant_name":            login.Tenant.Name,
		"plan":                   login.Tenant.Plan,
		"user_name":              login.UserName,
		acl.RoleKey:              login.Role,
		acl.PermissionsKey:       login.Permissions,
	}
	if info := requestinfo.FromContext(r.Context()); info != nil {
		payload["ip"] = info.IP
		payload["ua"] = info.UA.Short()
		if info.Country != "" {
			payload["country"] = info.Country
		}
	}

	token, err := c.rt.Sessions.Create(login.UserID, payload, login.Tenant.ID, c.rt.SessionTTL)
	if err != nil {
		c.log.Errorw("create session", "tenant", code, "err", err)
		respond.Error(w, http.StatusInternalServerError, "login failed")
		return
	}
	sess, _ := c.rt.Sessions.Get(token)
	c.rt.Cookie.Set(w, r, token, sess.ExpiresAt)
	c.rt.Limiter.Reset(middleware.ByIP(r), ratelimit.Login)

	c.log.Infow("login", "tenant", code, "user", login.UserID)
	respond.OK(w, map[string]any{
		"token":      token,
		"expires_at": sess.ExpiresAt,
		"user": map[string]any{
			"id":          login.UserID,
			"name":        login.UserName,
			"role":        login.Role,
			"permissions": login.Permissions,
		},
		"tenant": login.Tenant,
	})
}

func (c *Component) logout(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	c.rt.Sessions.Delete(sess.Token)
	c.rt.Cookie.Clear(w)
	respond.OK(w, nil)
}

func (c *Component) current(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	respond.OK(w, map[string]any{"session": sess})
}

func (c *Component) extend(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	if !c.rt.Sessions.Extend(sess.Token, c.rt.SessionTTL) {
		respond.Error(w, http.StatusUnauthorized, "session expired")
		return
	}
	fresh, ok := c.rt.Sessions.Get(sess.Token)
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "session expired")
		return
	}
	c.rt.Cookie.Set(w, r, fresh.Token, fresh.ExpiresAt)
	respond.OK(w, map[string]any{"expires_at": fresh.ExpiresAt})
}

func (c *Component) csrfToken(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	tok, err := c.rt.CSRF.Issue(sess.Token)
	if err != nil {
		respond.Error(w, http.StatusInternalServerError, "csrf unavailable")
		return
	}
	respond.OK(w, map[string]any{"csrf_token": tok})
}
