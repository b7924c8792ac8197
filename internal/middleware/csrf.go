// internal/middleware/csrf.go
//
// CSRF gate for state-changing requests.
//
// Safe methods (GET, HEAD, OPTIONS) pass.  Anything else must carry a
// token from GET /api/csrf in the X-CSRF-Token header or the csrf_token
// form field.  Tokens are bound to the session token and are single-use,
// so a client fetches a fresh one per mutation.

package middleware

import (
	"net/http"

	"github.com/yanizio/cardeal/internal/csrf"
	"github.com/yanizio/cardeal/internal/respond"
	"github.com/yanizio/cardeal/internal/session"
)

// CSRFHeader carries the token on API calls.
const CSRFHeader = "X-CSRF-Token"

// CSRFField carries the token in form posts.
const CSRFField = "csrf_token"

// RequireCSRF answers 403 for unsafe requests without a valid token.  It
// must run after LoadSession.
func RequireCSRF(m *csrf.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			sess, ok := session.FromContext(r.Context())
			if !ok {
				respond.Error(w, http.StatusUnauthorized, "login required")
				return
			}
			tok := r.Header.Get(CSRFHeader)
			if tok == "" {
				tok = r.PostFormValue(CSRFField)
			}
			if tok == "" || !m.Verify(tok, sess.Token) {
				respond.Error(w, http.StatusForbidden, "invalid csrf token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
