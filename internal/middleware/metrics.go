package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiz-platform/tenant-api/internal/telemetry"
)

// routeLabel returns the matched route template, or "<no-route>" for 404/405 so unmatched
// paths do not inflate label cardinality.
func routeLabel(c *gin.Context) string {
	if path := c.FullPath(); path != "" {
		return path
	}
	return "<no-route>"
}

// MetricsMiddleware records http_requests_total and http_request_duration_seconds for
// every request. Register it after RequestIDMiddleware so aborted responses from the
// gates are counted with their final status.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := routeLabel(c)
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// RequestLogMiddleware writes one structured log line per request. Tenant id is included
// once the auth gate has run; the Authorization header is never logged.
func RequestLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		attrs := []any{
			"request_id", GetRequestID(c),
			"method", c.Request.Method,
			"path", routeLabel(c),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if ac, ok := GetAuthContext(c); ok {
			attrs = append(attrs, "tenant_id", ac.TenantID, "public_id", ac.PublicID)
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			slog.Error("request completed", attrs...)
		case status >= 400:
			slog.Warn("request completed", attrs...)
		default:
			slog.Info("request completed", attrs...)
		}
	}
}
