// internal/acl/acl.go
//
// Role and permission checks.
//
// Context
// -------
// Each tenant user row carries a role ("admin", "staff", ...) and a JSON
// list of permission strings.  Login copies both into the session payload,
// so checks here are map reads with no database round trip.  The
// permission "all" grants everything.
//
// Notes
// -----
//   - A role or permission revoked in the tenant database takes effect at
//     the user's next login.
//   - Oxford commas, two spaces after periods.
package acl

import (
	"net/http"
	"slices"

	"github.com/yanizio/cardeal/internal/respond"
	"github.com/yanizio/cardeal/internal/session"
)

// Payload keys written at login.
const (
	RoleKey        = "role"
	PermissionsKey = "permissions"
)

// PermAll grants every permission.
const PermAll = "all"

// Role returns the session's role.
func Role(s *session.Session) string { return s.Str(RoleKey) }

// Permissions returns the session's permission list.  Payloads decoded
// from JSON hold []any, in-process ones []string; both are accepted.
func Permissions(s *session.Session) []string {
	switch v := s.Payload[PermissionsKey].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, p := range v {
			if str, ok := p.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

// Allowed reports whether s holds perm or PermAll.
func Allowed(s *session.Session, perm string) bool {
	perms := Permissions(s)
	return slices.Contains(perms, PermAll) || slices.Contains(perms, perm)
}

// RequireRole ensures the session holds ANY of the supplied roles.
func RequireRole(names ...string) func(http.Handler) http.Handler {
	if len(names) == 0 {
		panic("acl.RequireRole: at least one role name must be supplied")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := session.FromContext(r.Context())
			if !ok {
				respond.Error(w, http.StatusUnauthorized, "login required")
				return
			}
			if !slices.Contains(names, Role(s)) {
				respond.Error(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission ensures the session holds perm.
func RequirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := session.FromContext(r.Context())
			if !ok {
				respond.Error(w, http.StatusUnauthorized, "login required")
				return
			}
			if !Allowed(s, perm) {
				respond.Error(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
