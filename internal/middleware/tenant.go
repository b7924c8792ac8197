// internal/middleware/tenant.go
//
// Tenant resolution for authenticated routes.  The session payload names
// the tenant code chosen at login; the registry turns it into a *Tenant.
// A tenant deactivated after login stops resolving, which ends the
// session's access without touching the session store.

package middleware

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/yanizio/cardeal/internal/respond"
	"github.com/yanizio/cardeal/internal/session"
	"github.com/yanizio/cardeal/internal/tenant"
)

// TenantCodeKey is the session payload key holding the tenant code.
const TenantCodeKey = "tenant_code"

// TenantResolver is the part of tenant.Registry the gate needs.
type TenantResolver interface {
	Resolve(ctx context.Context, code string) (*tenant.Tenant, error)
}

// RequireTenant attaches the session's tenant or answers 401/403.  It
// must run after LoadSession.
func RequireTenant(reg TenantResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := session.FromContext(r.Context())
			if !ok {
				respond.Error(w, http.StatusUnauthorized, "login required")
				return
			}
			t, err := reg.Resolve(r.Context(), sess.Str(TenantCodeKey))
			switch {
			case errors.Is(err, tenant.ErrNotFound):
				respond.Error(w, http.StatusForbidden, "tenant unavailable")
				return
			case err != nil:
				zap.S().Errorw("resolve tenant", "tenant", sess.Str(TenantCodeKey), "err", err)
				respond.Error(w, http.StatusInternalServerError, "internal error")
				return
			}
			next.ServeHTTP(w, r.WithContext(tenant.WithTenant(r.Context(), t)))
		})
	}
}
