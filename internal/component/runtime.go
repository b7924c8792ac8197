// internal/component/runtime.go
//
// Runtime is the set of shared stores handed to every component.  It is
// built once in cmd/web; components keep the pointer and read fields at
// request time.

package component

import (
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/cardeal/internal/backup"
	"github.com/yanizio/cardeal/internal/cache"
	"github.com/yanizio/cardeal/internal/csrf"
	"github.com/yanizio/cardeal/internal/jobqueue"
	"github.com/yanizio/cardeal/internal/middleware"
	"github.com/yanizio/cardeal/internal/ratelimit"
	"github.com/yanizio/cardeal/internal/scheduler"
	"github.com/yanizio/cardeal/internal/session"
	"github.com/yanizio/cardeal/internal/tenant"
)

// Runtime exposes the core stores.  Backup may be nil when disabled.
type Runtime struct {
	Tenants    *tenant.Registry
	Sessions   *session.Store
	Cookie     session.Cookie
	SessionTTL time.Duration
	CSRF       *csrf.Manager
	Limiter    *ratelimit.Limiter
	RateLimit  *middleware.RateLimiter
	Cache      *cache.Registry
	Scheduler  *scheduler.Scheduler
	Jobs       *jobqueue.Queue
	Backup     *backup.Service
	// AdminToken guards operator endpoints.  Empty disables them.
	AdminToken string
	Log        *zap.SugaredLogger
}

func (rt *Runtime) logger() *zap.SugaredLogger {
	if rt == nil || rt.Log == nil {
		return zap.NewNop().Sugar()
	}
	return rt.Log
}
