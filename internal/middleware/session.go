// internal/middleware/session.go
//
// Session resolution.
//
// LoadSession looks up the request's token (bearer header or cookie) and,
// when it names a live session, attaches it to the context.  It never
// rejects: anonymous requests continue without a session.  RequireSession
// is the gate for routes that need one.

package middleware

import (
	"net/http"

	"github.com/yanizio/cardeal/internal/respond"
	"github.com/yanizio/cardeal/internal/session"
)

// LoadSession attaches the caller's Session, if any.
func LoadSession(store *session.Store, ck session.Cookie) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tok, ok := ck.TokenFromRequest(r); ok {
				if sess, ok := store.Get(tok); ok {
					r = r.WithContext(session.WithSession(r.Context(), sess))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSession answers 401 unless LoadSession attached a session.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := session.FromContext(r.Context()); !ok {
			respond.Error(w, http.StatusUnauthorized, "login required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
