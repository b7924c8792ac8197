// Package metrics holds Prometheus instruments that are used across the
// runtime core.  All collectors are registered with the global registry, so
// importing this package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	TenantResolveTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_resolve_total",
			Help: "Tenant lookups by outcome (hit, load, not_found, error).",
		}, []string{"outcome"})

	TenantRegisterTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_register_total",
			Help: "Tenant registrations by outcome (ok, conflict, invalid, error).",
		}, []string{"outcome"})

	TenantPoolsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tenant_db_pools_open",
			Help: "Number of per-tenant database pools currently open.",
		})

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Cache hits per pool.",
		}, []string{"pool"})

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Cache misses per pool, including expired entries.",
		}, []string{"pool"})

	CacheEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_evictions_total",
			Help: "Entries evicted under capacity pressure per pool.",
		}, []string{"pool"})

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_sessions",
			Help: "Sessions currently held in memory (including not yet swept).",
		})

	RateLimitDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_decisions_total",
			Help: "Rate-limit checks by rule and outcome.",
		}, []string{"rule", "outcome"})

	CSRFVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csrf_verifications_total",
			Help: "CSRF token verifications by outcome.",
		}, []string{"outcome"})

	TaskRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_task_runs_total",
			Help: "Scheduled task executions by task and outcome.",
		}, []string{"task", "outcome"})

	TaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_task_duration_seconds",
			Help:    "Scheduled task wall time.",
			Buckets: prometheus.DefBuckets,
		}, []string{"task"})

	JobsPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobqueue_pending",
			Help: "Jobs waiting for a worker.",
		})

	JobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobqueue_processed_total",
			Help: "Jobs executed by outcome.",
		}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		TenantResolveTotal,
		TenantRegisterTotal,
		TenantPoolsOpen,
		CacheHits,
		CacheMisses,
		CacheEvictions,
		ActiveSessions,
		RateLimitDecisions,
		CSRFVerifications,
		TaskRuns,
		TaskDuration,
		JobsPending,
		JobsProcessed,
	)
}
