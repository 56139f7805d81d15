// Package middleware provides the Gin middleware in front of every tenant-scoped route.
//
// Ordering is fixed in internal/api/router.go:
//
//	RequestID → Metrics → RequestLog → Security → ClientThrottle → Auth → RateLimit → Handler
//
// The client throttle runs before auth to blunt public-id guessing before any store work.
// Auth runs before the tenant rate limit so that unauthenticated or forbidden requests
// never consume a tenant's quota.
package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/smallbiz-platform/tenant-api/internal/auth"
)

// Context keys set by AuthMiddleware.
const (
	AuthContextKey = "auth_context"
	TenantIDKey    = "tenant_id"
	ScopesKey      = "scopes"
)

// Authenticator is implemented by *auth.Gate.
type Authenticator interface {
	Authenticate(ctx context.Context, header string, required ...auth.Scope) (*auth.AuthContext, error)
}

// AuthMiddleware authenticates the bearer credential and requires every scope in required.
// On success the AuthContext is available through GetAuthContext and auth.FromContext.
func AuthMiddleware(gate Authenticator, required ...auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		ac, err := gate.Authenticate(c.Request.Context(), c.GetHeader("Authorization"), required...)
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.Set(AuthContextKey, ac)
		c.Set(TenantIDKey, ac.TenantID)
		c.Set(ScopesKey, ac.Scopes)
		c.Request = c.Request.WithContext(auth.NewContext(c.Request.Context(), ac))

		c.Next()
	}
}

// GetAuthContext returns the AuthContext set by AuthMiddleware.
func GetAuthContext(c *gin.Context) (*auth.AuthContext, bool) {
	v, exists := c.Get(AuthContextKey)
	if !exists {
		return nil, false
	}
	ac, ok := v.(*auth.AuthContext)
	return ac, ok && ac != nil
}

// TenantGates builds the per-route gate chain. Scopes are route specific, so the chain
// is mounted per route rather than per group.
type TenantGates struct {
	Gate Authenticator
	// Limiter is nil when rate limiting is disabled.
	Limiter Allower
	Policy  PolicyFunc
}

// Chain returns auth (with required scopes) followed by the tenant rate limit.
func (g TenantGates) Chain(required ...auth.Scope) []gin.HandlerFunc {
	chain := []gin.HandlerFunc{AuthMiddleware(g.Gate, required...)}
	if g.Limiter != nil {
		chain = append(chain, RateLimitMiddleware(g.Limiter, g.Policy))
	}
	return chain
}

// Handle appends handlers to the gate chain for a route registration:
//
//	r.GET("/api/v1/quota", gates.Handle([]auth.Scope{auth.ScopeUsageRead}, h.GetQuota)...)
func (g TenantGates) Handle(required []auth.Scope, handlers ...gin.HandlerFunc) []gin.HandlerFunc {
	return append(g.Chain(required...), handlers...)
}

var _ Authenticator = (*auth.Gate)(nil)
