// cmd/web/main.go
//
// cardeal – HTTP entry point.
//
// Boot sequence
// -------------
//
//  1. Connect Vault when VAULT_ADDR is set, then load configuration
//     (YAML → env overrides → vault: references).
//
//  2. Start the rotating JSON logger (tees to console in a TTY).
//
//  3. Open and migrate the master registry, then build the tenant
//     registry on top of it.
//
//  4. Build the shared runtime: cache pools, session store, CSRF tokens,
//     rate limiter, job queue, and backup service.
//
//  5. Register maintenance tasks with the scheduler.
//
//  6. Mount every registered component behind the common middleware
//     chain, expose /metrics and /healthz, and serve until SIGINT or
//     SIGTERM.
//
// Shutdown drains HTTP first, then the scheduler, then queued jobs, and
// finally closes every tenant pool.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yanizio/cardeal/internal/component"
	"github.com/yanizio/cardeal/internal/config"
	"github.com/yanizio/cardeal/internal/logger"
	"github.com/yanizio/cardeal/internal/middleware"
	"github.com/yanizio/cardeal/internal/server"
	"github.com/yanizio/cardeal/internal/vault"

	_ "github.com/yanizio/cardeal/components/account"
	_ "github.com/yanizio/cardeal/components/auth"
	_ "github.com/yanizio/cardeal/components/system"
)

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//
	// ── 1.  Secrets + configuration ─────────────────────────────────────
	//
	var secrets config.SecretResolver
	if os.Getenv("VAULT_ADDR") != "" {
		vc, err := vault.New(ctx, nil)
		if err != nil {
			log.Fatalf("vault: %v", err)
		}
		secrets = vc
	}
	cfg, err := config.Load(ctx, secrets)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	//
	// ── 2.  Logger ──────────────────────────────────────────────────────
	//
	lg, err := logger.New(cfg.Paths.Root, cfg.Log.Level, runningInTTY())
	if err != nil {
		log.Fatalf("start logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	//
	// ── 3-5.  Runtime + maintenance tasks ───────────────────────────────
	//
	app, err := build(ctx, cfg, lg)
	if err != nil {
		lg.Fatalw("boot failed", "err", err)
	}
	defer app.close()

	//
	// ── 6.  Router ──────────────────────────────────────────────────────
	//
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(app.enricher.Enrich)
	r.Use(middleware.AccessLog(lg))
	r.Use(middleware.Security)
	r.Use(middleware.ForceHTTPS(cfg.HTTP.ForceHTTPS))
	r.Use(middleware.LoadSession(app.rt.Sessions, app.rt.Cookie))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Handle("/metrics", promhttp.Handler())
	if err := component.Mount(r, app.rt); err != nil {
		lg.Fatalw("mount components", "err", err)
	}

	app.sched.Start(ctx)
	app.jobs.Start(ctx)

	srv := server.New(cfg.HTTP.ListenAddr, r)
	if err := server.Run(ctx, srv, cfg.HTTP.ShutdownTimeout, lg); err != nil {
		lg.Errorw("http server", "err", err)
	}
}
