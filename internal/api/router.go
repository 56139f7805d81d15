// Package api wires the HTTP surface of the tenant API.
//
// Route groups:
//   - /health, /ready and /version are unauthenticated probes.
//   - /api/v1 is the tenant surface. Every route runs the client throttle, then the
//     auth gate with the route's required scopes, then the tenant quota.
//   - /admin/v1 is the operator surface, mounted only when auth.admin_token_hash is set.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/smallbiz-platform/tenant-api/internal/api/admin"
	"github.com/smallbiz-platform/tenant-api/internal/api/tenant"
	"github.com/smallbiz-platform/tenant-api/internal/auth"
	"github.com/smallbiz-platform/tenant-api/internal/config"
	"github.com/smallbiz-platform/tenant-api/internal/db"
	"github.com/smallbiz-platform/tenant-api/internal/db/repositories"
	"github.com/smallbiz-platform/tenant-api/internal/jobs"
	"github.com/smallbiz-platform/tenant-api/internal/middleware"
	"github.com/smallbiz-platform/tenant-api/internal/ratelimit"
	"github.com/smallbiz-platform/tenant-api/internal/services"
)

// Version is reported by /version and the version subcommand.
const Version = "0.1.0"

// BackgroundServices holds the goroutines and connections started by NewRouter. The
// caller (cmd/server) calls Shutdown after the HTTP server has drained.
type BackgroundServices struct {
	cancel    context.CancelFunc
	retention *jobs.WindowRetentionJob
	redis     *redis.Client
}

// Shutdown stops background goroutines and closes the Redis client
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.retention != nil {
		bg.retention.Stop()
	}
	if bg.cancel != nil {
		bg.cancel()
	}
	if bg.redis != nil {
		if err := bg.redis.Close(); err != nil {
			slog.Warn("closing redis client", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, database *sql.DB) (*gin.Engine, *BackgroundServices, error) {
	ctx, cancel := context.WithCancel(context.Background())
	bg := &BackgroundServices{cancel: cancel}

	x := db.Wrap(database, cfg.Database.Driver)
	tenantRepo := repositories.NewTenantRepository(x)
	credRepo := repositories.NewCredentialRepository(x)
	windowRepo := repositories.NewRateLimitRepository(x)

	var (
		keyStore auth.KeyStore = credRepo
		cache    *auth.CachedKeyStore
	)
	if cfg.Auth.CredentialCacheTTL > 0 {
		cache = auth.NewCachedKeyStore(credRepo, cfg.Auth.CredentialCacheSize, cfg.Auth.CredentialCacheTTL)
		keyStore = cache
		slog.Info("credential cache enabled", "ttl", cfg.Auth.CredentialCacheTTL, "size", cfg.Auth.CredentialCacheSize)
	}
	gate := auth.NewGate(keyStore, cfg.Auth.GlobalSalt, auth.WithLookupTimeout(cfg.Auth.LookupTimeout))

	if cfg.RateLimiting.Backend == ratelimit.BackendRedis {
		bg.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	gates := middleware.TenantGates{Gate: gate}
	if cfg.RateLimiting.Enabled {
		store, err := newCounterStore(ctx, cfg, windowRepo, bg.redis)
		if err != nil {
			bg.Shutdown()
			return nil, nil, err
		}
		gates.Limiter = ratelimit.NewLimiter(store,
			ratelimit.WithBackendName(cfg.RateLimiting.Backend),
			ratelimit.WithStoreTimeout(cfg.RateLimiting.StoreTimeout),
		)
		gates.Policy = middleware.DefaultPolicy(cfg.RateLimiting.Window(), int64(cfg.RateLimiting.RequestsPerWindow))
		slog.Info("tenant rate limiting enabled",
			"backend", cfg.RateLimiting.Backend,
			"window_seconds", cfg.RateLimiting.WindowSeconds,
			"requests_per_window", cfg.RateLimiting.RequestsPerWindow)

		// Redis keys expire on their own and the memory store has its janitor.
		if cfg.Retention.Enabled && cfg.RateLimiting.Backend == ratelimit.BackendSQL {
			bg.retention = jobs.NewWindowRetentionJob(windowRepo, cfg.Retention.KeepWindows)
			bg.retention.Start(ctx, cfg.Retention.Interval)
		}
	} else {
		slog.Warn("tenant rate limiting is disabled")
	}

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		bg.Shutdown()
		return nil, nil, fmt.Errorf("invalid server.trusted_proxies: %w", err)
	}

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	router.GET("/health", healthCheckHandler(database))
	router.GET("/ready", readinessHandler(database, bg.redis))
	router.GET("/version", versionHandler())

	var throttled []gin.HandlerFunc
	if th := newClientThrottle(ctx, cfg, bg.redis); th != nil {
		throttled = append(throttled, middleware.ClientThrottleMiddleware(th))
	}

	tenant.Register(router.Group("/api/v1", throttled...), gates)

	if cfg.Auth.AdminTokenHash != "" {
		var invalidator services.Invalidator
		if cache != nil {
			invalidator = cache
		}
		svc := services.NewTenantService(tenantRepo, credRepo, invalidator, cfg.Auth.KeyPrefix, cfg.Auth.GlobalSalt)

		adminGroup := router.Group("/admin/v1", throttled...)
		adminGroup.Use(middleware.AdminAuthMiddleware(cfg.Auth.AdminTokenHash))
		adminGroup.Use(middleware.AdminAuditMiddleware(slog.Default().With("log", "audit")))
		admin.NewHandlers(svc).Register(adminGroup)
	} else {
		slog.Info("admin API disabled (auth.admin_token_hash not set)")
	}

	router.NoRoute(func(c *gin.Context) {
		middleware.AbortWithCode(c, http.StatusNotFound, middleware.CodeNotFound, "route not found")
	})

	return router, bg, nil
}

func newCounterStore(ctx context.Context, cfg *config.Config, repo *repositories.RateLimitRepository, rdb *redis.Client) (ratelimit.Store, error) {
	switch cfg.RateLimiting.Backend {
	case ratelimit.BackendSQL:
		return ratelimit.NewSQLStore(repo), nil
	case ratelimit.BackendRedis:
		return ratelimit.NewRedisStore(rdb), nil
	case ratelimit.BackendMemory:
		slog.Warn("memory rate limit backend counts per process; do not run more than one instance")
		store := ratelimit.NewMemoryStore(nil)
		store.StartJanitor(ctx)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown rate limiting backend %q", cfg.RateLimiting.Backend)
	}
}

func newClientThrottle(ctx context.Context, cfg *config.Config, rdb *redis.Client) ratelimit.Throttle {
	tc := cfg.RateLimiting.ClientThrottle
	if !tc.Enabled {
		return nil
	}
	if rdb != nil {
		return ratelimit.NewRedisThrottle(rdb, tc.RequestsPerMinute, tc.Burst)
	}
	th := ratelimit.NewLocalThrottle(tc.RequestsPerMinute, tc.Burst)
	th.StartJanitor(ctx)
	return th
}

// healthCheckHandler is the liveness probe
func healthCheckHandler(database *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// readinessHandler also probes Redis when the redis backend is configured, since every
// gated request would fail with store_unavailable without it.
func readinessHandler(database *sql.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := database.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		if rdb != nil {
			if err := rdb.Ping(c.Request.Context()).Err(); err != nil {
				checks["redis"] = "unhealthy"
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"ready":  false,
					"checks": checks,
					"error":  "redis not ready",
				})
				return
			}
			checks["redis"] = "healthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}
