// ratelimit.go provides Gin middleware that enforces the authenticated tenant's
// fixed-window quota and reports it in X-RateLimit-* headers.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiz-platform/tenant-api/internal/auth"
	"github.com/smallbiz-platform/tenant-api/internal/ratelimit"
)

// DecisionKey is the gin.Context key holding the request's ratelimit.Decision.
const DecisionKey = "ratelimit_decision"

// Allower is implemented by *ratelimit.Limiter.
type Allower interface {
	Allow(ctx context.Context, tenantID int64, policy ratelimit.Policy) (ratelimit.Decision, error)
}

// PolicyFunc picks the quota for an authenticated request.
type PolicyFunc func(ac *auth.AuthContext) ratelimit.Policy

// DefaultPolicy applies limit requests per window, or the tenant's own override when set.
func DefaultPolicy(window time.Duration, limit int64) PolicyFunc {
	return func(ac *auth.AuthContext) ratelimit.Policy {
		p := ratelimit.Policy{Window: window, Limit: limit}
		if ac != nil && ac.QuotaOverride != nil && *ac.QuotaOverride > 0 {
			p.Limit = int64(*ac.QuotaOverride)
		}
		return p
	}
}

// RateLimitMiddleware counts the request against the tenant's current window. It must run
// after AuthMiddleware. Every response it lets through or rejects carries
// X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset; rejections add Retry-After.
func RateLimitMiddleware(limiter Allower, policy PolicyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		ac, ok := GetAuthContext(c)
		if !ok {
			abortWithError(c, errors.New("rate limit middleware mounted without auth"))
			return
		}

		d, err := limiter.Allow(c.Request.Context(), ac.TenantID, policy(ac))
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
		c.Set(DecisionKey, d)

		if !d.Allowed {
			c.Header("Retry-After", strconv.FormatInt(d.RetryAfterSeconds(), 10))
			abortWithError(c, fmt.Errorf("%w: tenant %d at %d of %d", auth.ErrRateLimited, ac.TenantID, d.Count, d.Limit))
			return
		}

		c.Next()
	}
}

// GetDecision returns the Decision recorded by RateLimitMiddleware.
func GetDecision(c *gin.Context) (ratelimit.Decision, bool) {
	v, exists := c.Get(DecisionKey)
	if !exists {
		return ratelimit.Decision{}, false
	}
	d, ok := v.(ratelimit.Decision)
	return d, ok
}

var _ Allower = (*ratelimit.Limiter)(nil)
