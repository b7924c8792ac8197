// internal/requestinfo/requestinfo.go
//
// Per-request client metadata.
//
// Context
// -------
// Login records where a session came from (client IP, country, and a
// short user-agent fingerprint) in the session payload, and the rate
// limiter keys anonymous traffic by client IP.  Both read the same *Info,
// parsed once by the Enrich middleware and stored in the request context.
//
// Notes
// -----
//   - Info is inert: plain strings and a timestamp, safe to log or
//     JSON-encode.
//   - Geo lookups are best-effort.  No database configured, a private
//     address, or no match all leave Country empty.
package requestinfo

import (
	"context"
	"time"
)

// Info is attached to every request by Enrich.
type Info struct {
	IP        string    `json:"ip"`
	Country   string    `json:"country,omitempty"`
	UA        UA        `json:"ua"`
	Lang      string    `json:"lang,omitempty"`
	Timestamp time.Time `json:"ts"`
}

type ctxKey struct{}

// WithInfo returns a copy of ctx carrying info.
func WithInfo(ctx context.Context, info *Info) context.Context {
	return context.WithValue(ctx, ctxKey{}, info)
}

// FromContext returns the Info stored by Enrich, or nil if the middleware
// has not run.
func FromContext(ctx context.Context) *Info {
	v, _ := ctx.Value(ctxKey{}).(*Info)
	return v
}

// ClientIP returns the enriched client IP, or "" when unknown.
func ClientIP(ctx context.Context) string {
	if info := FromContext(ctx); info != nil {
		return info.IP
	}
	return ""
}
