// internal/middleware/accesslog.go
//
// One structured log line per request.

package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/yanizio/cardeal/internal/logger"
	"github.com/yanizio/cardeal/internal/requestinfo"
)

// AccessLog logs method, path, status, size, duration, and client IP.
// 5xx replies log at warn.
func AccessLog(log *zap.SugaredLogger) func(http.Handler) http.Handler {
	log = logger.OrNop(log)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			kv := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"dur", time.Since(start),
				"ip", requestinfo.ClientIP(r.Context()),
				"req_id", chimw.GetReqID(r.Context()),
			}
			if status >= 500 {
				log.Warnw("http", kv...)
				return
			}
			log.Infow("http", kv...)
		})
	}
}
