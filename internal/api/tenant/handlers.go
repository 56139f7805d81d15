// Package tenant implements the tenant-facing introspection routes. They sit behind the
// full gate chain and exist mostly so integrators can check a key and its quota.
package tenant

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiz-platform/tenant-api/internal/auth"
	"github.com/smallbiz-platform/tenant-api/internal/middleware"
)

// MeResponse describes the authenticated credential
type MeResponse struct {
	TenantID     int64    `json:"tenant_id"`
	TenantSlug   string   `json:"tenant_slug"`
	CredentialID int64    `json:"credential_id"`
	PublicID     string   `json:"public_id"`
	Scopes       []string `json:"scopes"`
}

// QuotaResponse reports the tenant's window after counting this request
type QuotaResponse struct {
	Limit     int64     `json:"limit"`
	Used      int64     `json:"used"`
	Remaining int64     `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// Register mounts the tenant routes on g behind gates
func Register(g *gin.RouterGroup, gates middleware.TenantGates) {
	g.GET("/me", gates.Handle(nil, MeHandler())...)
	g.GET("/quota", gates.Handle([]auth.Scope{auth.ScopeUsageRead}, QuotaHandler())...)
}

// MeHandler returns the identity of the calling credential
// GET /api/v1/me
func MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ac, ok := middleware.GetAuthContext(c)
		if !ok {
			middleware.AbortWithCode(c, http.StatusInternalServerError, middleware.CodeInternal, "internal server error")
			return
		}
		scopes := ac.Scopes
		if scopes == nil {
			scopes = []string{}
		}
		c.JSON(http.StatusOK, MeResponse{
			TenantID:     ac.TenantID,
			TenantSlug:   ac.TenantSlug,
			CredentialID: ac.CredentialID,
			PublicID:     ac.PublicID,
			Scopes:       scopes,
		})
	}
}

// QuotaHandler returns the decision the rate limiter made for this request.
// GET /api/v1/quota
func QuotaHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		d, ok := middleware.GetDecision(c)
		if !ok {
			// Rate limiting disabled.
			c.JSON(http.StatusOK, gin.H{"limit": nil})
			return
		}
		c.JSON(http.StatusOK, QuotaResponse{
			Limit:     d.Limit,
			Used:      d.Count,
			Remaining: d.Remaining,
			ResetAt:   d.ResetAt.UTC(),
		})
	}
}
