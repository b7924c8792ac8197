// internal/middleware/ratelimit.go
//
// Rate-limit middleware.
//
// Context
// -------
// Each wrapped route names a rule type (login, register, api, or upload)
// and a key function.  The limiter decides; this wrapper turns the
// Decision into headers and, on denial, a 429 JSON reply carrying
// `retry_after` in whole seconds.
//
// Every decision is offered to an optional StatsRecorder (in memory or
// Redis).  Recording is best-effort.  Its errors are logged at most once
// a minute so a Redis outage cannot flood the log.
//
// Notes
// -----
//   - Keys are prefixed by the limiter with the rule type, so one client
//     IP may be limited independently per rule.
//   - Oxford commas, two spaces after periods.
package middleware

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/yanizio/cardeal/internal/logger"
	"github.com/yanizio/cardeal/internal/ratelimit"
	"github.com/yanizio/cardeal/internal/requestinfo"
	"github.com/yanizio/cardeal/internal/respond"
	"github.com/yanizio/cardeal/internal/session"
)

// KeyFunc picks the identity a request is limited by.
type KeyFunc func(r *http.Request) string

// ByIP keys on the enriched client IP, falling back to the peer address.
func ByIP(r *http.Request) string {
	if ip := requestinfo.ClientIP(r.Context()); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// BySessionOrIP keys authenticated traffic on tenant and user, anonymous
// traffic on IP.
func BySessionOrIP(r *http.Request) string {
	if s, ok := session.FromContext(r.Context()); ok {
		return "u:" + strconv.FormatInt(s.TenantID, 10) + ":" + strconv.FormatInt(s.UserID, 10)
	}
	return ByIP(r)
}

// RateLimiter builds per-route wrappers over one Limiter.
type RateLimiter struct {
	limiter  *ratelimit.Limiter
	recorder ratelimit.StatsRecorder
	log      *zap.SugaredLogger
	errLog   rate.Sometimes
	now      func() time.Time
}

// NewRateLimiter returns a RateLimiter.  recorder and log may be nil.
func NewRateLimiter(l *ratelimit.Limiter, recorder ratelimit.StatsRecorder, log *zap.SugaredLogger) *RateLimiter {
	return &RateLimiter{
		limiter:  l,
		recorder: recorder,
		log:      logger.OrNop(log),
		errLog:   rate.Sometimes{Interval: time.Minute},
		now:      time.Now,
	}
}

// Limit wraps next with rule, keyed by key.
func (rl *RateLimiter) Limit(rule string, key KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			d := rl.limiter.Check(k, rule)
			rl.record(r, rule, k, d.Allowed)

			// Reset is seconds until a slot frees when denied, and the full
			// window when allowed.
			reset := d.ResetSeconds()
			if d.Allowed {
				reset = int(rl.limiter.Rule(rule).Window / time.Second)
			}
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.Itoa(reset))
			if !d.Allowed {
				h.Set("Retry-After", strconv.Itoa(d.ResetSeconds()))
				respond.JSON(w, http.StatusTooManyRequests, map[string]any{
					"ok":          false,
					"error":       "too many requests",
					"retry_after": d.ResetSeconds(),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) record(r *http.Request, rule, key string, allowed bool) {
	if rl.recorder == nil {
		return
	}
	err := rl.recorder.Record(r.Context(), ratelimit.Event{
		Rule:    rule,
		Key:     key,
		Allowed: allowed,
		Method:  r.Method,
		Path:    r.URL.Path,
		At:      rl.now(),
	})
	if err != nil {
		rl.errLog.Do(func() { rl.log.Warnw("rate-limit stats unavailable", "err", err) })
	}
}
