// internal/session/cookie.go
//
// Cookie and header transport for session tokens.
//
// Browsers carry the token in an HttpOnly cookie; API clients send
// `Authorization: Bearer <token>`.  TokenFromRequest checks the header
// first so a script never picks up a stale browser cookie by accident.

package session

import (
	"net/http"
	"strings"
	"time"
)

// Cookie describes how the session cookie is written.
type Cookie struct {
	Name   string
	Secure bool
}

// Set writes the token cookie expiring at exp.
func (c Cookie) Set(w http.ResponseWriter, r *http.Request, token string, exp time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure || r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		Expires:  exp,
	})
}

// Clear expires the token cookie.
func (c Cookie) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// TokenFromRequest returns the bearer token or the cookie value.
func (c Cookie) TokenFromRequest(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok && tok != "" {
			return strings.TrimSpace(tok), true
		}
	}
	ck, err := r.Cookie(c.Name)
	if err != nil || ck.Value == "" {
		return "", false
	}
	return ck.Value, true
}
