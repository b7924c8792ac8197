// cmd/web/wire.go
//
// Runtime assembly.  build turns a validated Config into the shared
// component.Runtime plus the background workers that keep it tidy.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/yanizio/cardeal/internal/backup"
	"github.com/yanizio/cardeal/internal/cache"
	"github.com/yanizio/cardeal/internal/component"
	"github.com/yanizio/cardeal/internal/config"
	"github.com/yanizio/cardeal/internal/csrf"
	"github.com/yanizio/cardeal/internal/database"
	"github.com/yanizio/cardeal/internal/jobqueue"
	"github.com/yanizio/cardeal/internal/middleware"
	"github.com/yanizio/cardeal/internal/ratelimit"
	"github.com/yanizio/cardeal/internal/requestinfo"
	"github.com/yanizio/cardeal/internal/scheduler"
	"github.com/yanizio/cardeal/internal/session"
	"github.com/yanizio/cardeal/internal/tenant"
)

// Maintenance cadence.
const (
	sessionCleanupEvery = time.Hour
	csrfCleanupEvery    = 30 * time.Minute
	cacheCleanupEvery   = 5 * time.Minute
	rateSweepEvery      = 10 * time.Minute
	poolEvictEvery      = 5 * time.Minute
	backupCheckEvery    = time.Hour

	stopTimeout = 30 * time.Second
)

type app struct {
	rt       *component.Runtime
	sched    *scheduler.Scheduler
	jobs     *jobqueue.Queue
	enricher *requestinfo.Enricher
	log      *zap.SugaredLogger

	closers []func() error
}

func build(ctx context.Context, cfg *config.Config, lg *zap.SugaredLogger) (*app, error) {
	a := &app{log: lg}

	master, masterPath, err := openMaster(cfg.Database, cfg.Paths.Root)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, master.Close)
	if err := tenant.MigrateMaster(ctx, master, cfg.Database.Driver); err != nil {
		a.close()
		return nil, err
	}

	reg, err := tenant.New(master, tenant.Options{DataDir: cfg.Database.DataDir, Logger: lg})
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, reg.Close)
	if active, err := reg.Active(ctx); err == nil {
		lg.Infow("tenant registry online", "active", len(active))
	}

	limiter := ratelimit.New(ratelimit.WithRules(rateRules(cfg.RateLimit)))
	var recorder ratelimit.StatsRecorder = ratelimit.NewMemoryStats()
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, rdb.Close)
		recorder = ratelimit.NewRedisStats(rdb)
		lg.Infow("rate-limit stats in redis", "addr", cfg.Redis.Addr)
	}

	a.jobs = jobqueue.New(jobqueue.Config{Workers: cfg.Jobs.Workers, Idle: cfg.Jobs.Idle, Logger: lg})
	a.sched = scheduler.New(scheduler.WithTick(cfg.Scheduler.Tick), scheduler.WithLogger(lg))

	bk, err := buildBackup(ctx, cfg.Backup, reg, masterPath, a.jobs, lg)
	if err != nil {
		a.close()
		return nil, err
	}

	geo, err := openGeo(cfg.GeoIP, lg)
	if err != nil {
		a.close()
		return nil, err
	}
	if geo != nil {
		a.closers = append(a.closers, geo.Close)
	}
	a.enricher = requestinfo.New(
		requestinfo.WithGeo(geo),
		requestinfo.TrustProxy(cfg.HTTP.TrustProxy),
		requestinfo.WithLogger(lg),
	)

	a.rt = &component.Runtime{
		Tenants:    reg,
		Sessions:   session.NewStore(),
		Cookie:     session.Cookie{Name: cfg.Session.CookieName, Secure: cfg.Session.CookieSecure},
		SessionTTL: cfg.Session.TTL,
		CSRF:       csrf.New(csrf.WithTTL(cfg.CSRF.TTL)),
		Limiter:    limiter,
		RateLimit:  middleware.NewRateLimiter(limiter, recorder, lg),
		Cache:      cache.NewRegistry(cachePools(cfg.Cache)),
		Scheduler:  a.sched,
		Jobs:       a.jobs,
		Backup:     bk,
		AdminToken: cfg.HTTP.AdminToken,
		Log:        lg,
	}

	if err := a.addTasks(bk, cfg.Backup.Enabled); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// addTasks registers the maintenance loop.  Every task is cheap and
// idempotent, so a missed tick only delays the sweep.
func (a *app) addTasks(bk *backup.Service, backupEnabled bool) error {
	rt := a.rt
	tasks := []struct {
		task    scheduler.Task
		every   time.Duration
		enabled bool
	}{
		{scheduler.TaskFunc("session_cleanup", func(context.Context) error {
			if n := rt.Sessions.Cleanup(); n > 0 {
				a.log.Infow("expired sessions removed", "count", n)
			}
			return nil
		}), sessionCleanupEvery, true},
		{scheduler.TaskFunc("csrf_cleanup", func(context.Context) error {
			rt.CSRF.Cleanup()
			return nil
		}), csrfCleanupEvery, true},
		{scheduler.TaskFunc("cache_cleanup", func(context.Context) error {
			rt.Cache.CleanupAll()
			return nil
		}), cacheCleanupEvery, true},
		{scheduler.TaskFunc("ratelimit_sweep", func(context.Context) error {
			rt.Limiter.Sweep()
			return nil
		}), rateSweepEvery, true},
		{scheduler.TaskFunc("tenant_pool_evict", func(context.Context) error {
			if n := rt.Tenants.CloseIdlePools(tenant.DefaultPoolIdle); n > 0 {
				a.log.Infow("idle tenant pools closed", "count", n)
			}
			return nil
		}), poolEvictEvery, true},
	}
	for _, t := range tasks {
		if err := a.sched.AddTask(t.task, t.every, t.enabled); err != nil {
			return err
		}
	}
	if bk != nil {
		return a.sched.AddTask(bk.Task(), backupCheckEvery, backupEnabled)
	}
	return nil
}

// close stops workers and releases resources in reverse order.
func (a *app) close() {
	if a.sched != nil {
		if err := a.sched.Stop(stopTimeout); err != nil {
			a.log.Warnw("scheduler stop", "err", err)
		}
	}
	if a.jobs != nil {
		if err := a.jobs.Stop(stopTimeout); err != nil {
			a.log.Warnw("job queue stop", "err", err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warnw("close", "err", err)
		}
	}
	a.closers = nil
}

// openMaster opens the registry database.  For SQLite it also returns the
// file path so the backup service can copy it.  Relative paths are taken
// from root.
func openMaster(cfg config.Database, root string) (*sqlx.DB, string, error) {
	if cfg.Driver != database.DriverSQLite {
		db, err := database.Open(cfg.Driver, cfg.MasterDSN)
		if err != nil {
			return nil, "", fmt.Errorf("open master: %w", err)
		}
		return db, "", nil
	}

	path := strings.TrimPrefix(cfg.MasterDSN, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, "", err
	}
	db, err := database.OpenSQLiteFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("open master %s: %w", path, err)
	}
	return db, path, nil
}

func buildBackup(ctx context.Context, cfg config.Backup, reg *tenant.Registry, masterPath string, q *jobqueue.Queue, lg *zap.SugaredLogger) (*backup.Service, error) {
	if cfg.Dir == "" {
		return nil, nil
	}
	sources := func(ctx context.Context) ([]backup.Source, error) {
		var out []backup.Source
		if masterPath != "" {
			out = append(out, backup.Source{Name: "_master", Path: masterPath})
		}
		active, err := reg.Active(ctx)
		if err != nil {
			return out, err
		}
		for _, t := range active {
			out = append(out, backup.Source{Name: t.Code, Path: t.DBPath})
		}
		return out, nil
	}

	opts := []backup.Option{backup.WithLogger(lg)}
	if cfg.S3.Bucket != "" {
		up, err := backup.NewS3Uploader(ctx, backup.S3Config{
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, backup.WithUploader(up, q))
	}
	return backup.New(backup.Config{
		Dir:           cfg.Dir,
		RetentionDays: cfg.RetentionDays,
		WindowStart:   cfg.WindowStart,
		WindowEnd:     cfg.WindowEnd,
	}, sources, opts...)
}

func openGeo(cfg config.GeoIP, lg *zap.SugaredLogger) (*requestinfo.Geo, error) {
	if cfg.DBPath == "" {
		return nil, nil
	}
	g, err := requestinfo.OpenGeo(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("geoip: %w", err)
	}
	lg.Infow("geoip database loaded", "path", cfg.DBPath)
	return g, nil
}

func rateRules(cfg config.RateLimit) map[string]ratelimit.Rule {
	rules := make(map[string]ratelimit.Rule, len(cfg.Rules))
	for name, r := range cfg.Rules {
		rules[name] = ratelimit.Rule{Max: r.Max, Window: r.Window}
	}
	return rules
}

func cachePools(cfg config.Cache) []cache.PoolConfig {
	if len(cfg.Pools) == 0 {
		return cache.DefaultPools
	}
	out := make([]cache.PoolConfig, 0, len(cfg.Pools))
	for _, p := range cfg.Pools {
		out = append(out, cache.PoolConfig{Name: p.Name, MaxSize: p.MaxSize, DefaultTTL: p.TTL})
	}
	return out
}
