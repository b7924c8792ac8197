// internal/requestinfo/middleware.go
//
// Enrich middleware.
//
// Context
// -------
// This handler sits first in the chain so everything downstream (rate
// limiting, login, and logging) sees the same client address.  It parses
// the User-Agent and Accept-Language headers, picks the client IP, looks
// up the country, and stores the result in the request context.
//
// Forwarding headers are only trusted when the server sits behind a proxy
// that sets them.  Otherwise any client could pick its own rate-limit key
// by sending X-Forwarded-For.
//
// Notes
// -----
//   - Lookups are read-only, so the middleware is safe under concurrency.
//   - Oxford commas, two spaces after periods.
package requestinfo

import (
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/cardeal/internal/logger"
)

// Enricher builds *Info for each request.
type Enricher struct {
	geo        *Geo
	trustProxy bool
	now        func() time.Time
	log        *zap.SugaredLogger
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithGeo enables country lookups.
func WithGeo(g *Geo) Option { return func(e *Enricher) { e.geo = g } }

// TrustProxy makes X-Forwarded-For and X-Real-IP authoritative.
func TrustProxy(on bool) Option { return func(e *Enricher) { e.trustProxy = on } }

// WithLogger sets the debug logger.
func WithLogger(l *zap.SugaredLogger) Option { return func(e *Enricher) { e.log = logger.OrNop(l) } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(e *Enricher) { e.now = now } }

// New returns an Enricher.
func New(opts ...Option) *Enricher {
	e := &Enricher{now: time.Now, log: zap.NewNop().Sugar()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Enrich wraps next, attaching *Info to the request context.
func (e *Enricher) Enrich(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := e.Build(r)
		e.log.Debugw("request info",
			"ip", info.IP,
			"country", info.Country,
			"browser", info.UA.Browser,
			"device", info.UA.Device,
			"bot", info.UA.IsBot,
			"path", r.URL.Path,
		)
		next.ServeHTTP(w, r.WithContext(WithInfo(r.Context(), info)))
	})
}

// Build parses r without touching its context.
func (e *Enricher) Build(r *http.Request) *Info {
	ip := e.clientIP(r)
	info := &Info{
		UA:        ParseUA(r.UserAgent()),
		Lang:      primaryLang(r.Header.Get("Accept-Language")),
		Country:   e.geo.Country(ip),
		Timestamp: e.now().UTC(),
	}
	if ip != nil {
		info.IP = ip.String()
	}
	return info
}

// clientIP returns the left-most parseable forwarded address when proxies
// are trusted, else the peer address.
func (e *Enricher) clientIP(r *http.Request) net.IP {
	if e.trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			for _, part := range strings.Split(xff, ",") {
				if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
					return ip
				}
			}
		}
		if xrip := r.Header.Get("X-Real-Ip"); xrip != "" {
			if ip := net.ParseIP(strings.TrimSpace(xrip)); ip != nil {
				return ip
			}
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return net.ParseIP(host)
	}
	return net.ParseIP(r.RemoteAddr)
}
