package middleware

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiz-platform/tenant-api/internal/ratelimit"
)

// ClientThrottleMiddleware applies a per-IP token bucket before authentication. It
// protects the key store from public-id guessing and is independent of tenant quotas.
// A throttle backend failure refuses the request like any other store failure.
func ClientThrottleMiddleware(th ratelimit.Throttle) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = c.Request.RemoteAddr
		}

		allowed, retryAfter, err := th.Allow(c.Request.Context(), ip)
		if err != nil {
			slog.Error("client throttle unavailable", "request_id", GetRequestID(c), "error", err)
			AbortWithCode(c, http.StatusServiceUnavailable, CodeStoreUnavailable, "service temporarily unavailable")
			return
		}
		if !allowed {
			secs := int64(retryAfter.Seconds() + 0.999)
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.FormatInt(secs, 10))
			AbortWithCode(c, http.StatusTooManyRequests, CodeRateLimited, "too many requests from this client")
			return
		}

		c.Next()
	}
}
