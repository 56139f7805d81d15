// Package telemetry provides application-level observability for the tenant API.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// served by the side-channel HTTP server started by cmd/server:
//
//	GET http://<host>:<TGW_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is not served by the Gin router, so tenant
// credentials and quotas never gate scraping.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Auth gate and rate limit gate decisions, by outcome
//   - Counter store latency, by backend
//   - Credential cache hit ratio
//   - Rate limit window retention
//   - Database connection pool gauge
//
// # Label Cardinality
//
// No metric carries a tenant id or public id label. Per-tenant usage belongs in the
// rate_limit_windows table, not in Prometheus series.
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/smallbiz-platform/tenant-api/internal/safego"
)

// HTTP metrics, labelled by method, route template and status code.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - 429 share:                         sum(rate(http_requests_total{status="429"}[5m])) / sum(rate(http_requests_total[5m]))
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)
)

// Gate decision metrics.
//
// AuthDecisionsTotal outcomes: "allowed", "unauthenticated", "forbidden", "store_unavailable".
// RateLimitDecisionsTotal outcomes: "allowed", "rejected", "store_unavailable".
//
// A sustained rise in unauthenticated decisions without matching traffic growth usually
// means a client is guessing public ids; the pre-auth client throttle should be absorbing it.
var (
	AuthDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_decisions_total",
			Help: "Total number of auth gate decisions, by outcome.",
		},
		[]string{"outcome"},
	)

	RateLimitDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_decisions_total",
			Help: "Total number of rate limit gate decisions, by outcome.",
		},
		[]string{"outcome"},
	)
)

// RateLimitStoreDuration observes the latency of a single IncrementAndGet round trip,
// labelled by backend ("sql", "redis", "memory"). This is the only store call on the
// hot path besides the credential lookup.
var RateLimitStoreDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "ratelimit_store_duration_seconds",
		Help:    "Latency of rate limit counter increments, by backend.",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
	},
	[]string{"backend"},
)

// CredentialCacheLookupsTotal counts credential cache lookups by result
// ("hit", "miss"). Only populated when auth.credential_cache_ttl > 0.
var CredentialCacheLookupsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "credential_cache_lookups_total",
		Help: "Total number of credential cache lookups, by result.",
	},
	[]string{"result"},
)

// RetentionWindowsDeletedTotal counts rate limit window rows removed by the retention job.
var RetentionWindowsDeletedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "retention_windows_deleted_total",
		Help: "Total number of expired rate limit windows deleted by the retention job.",
	},
)

// DBOpenConnections tracks the number of open connections held by the sql.DB pool.
// It is sampled periodically by StartDBStatsCollector rather than per request.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// DBStatsInterval is how often StartDBStatsCollector samples the pool.
const DBStatsInterval = 30 * time.Second

// StartDBStatsCollector samples sql.DB pool statistics every interval and updates the
// DBOpenConnections gauge until ctx is cancelled. It also stops when the database
// becomes unreachable, which happens when the application closes the pool on shutdown.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	safego.Go("db-stats-collector", func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.PingContext(ctx); err != nil {
					slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
					return
				}
				DBOpenConnections.Set(float64(db.Stats().OpenConnections))
			}
		}
	})
}
