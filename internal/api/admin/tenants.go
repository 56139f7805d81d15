// Package admin implements the operator HTTP handlers that manage tenants and their
// credentials. Every route in this package sits behind middleware.AdminAuthMiddleware;
// tenant credentials are never accepted here.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiz-platform/tenant-api/internal/db/models"
	"github.com/smallbiz-platform/tenant-api/internal/db/repositories"
	"github.com/smallbiz-platform/tenant-api/internal/middleware"
	"github.com/smallbiz-platform/tenant-api/internal/services"
)

// TenantService is implemented by *services.TenantService.
type TenantService interface {
	CreateTenant(ctx context.Context, slug, name string, quota *int) (*models.Tenant, error)
	ListTenants(ctx context.Context) ([]*models.Tenant, error)
	SetTenantStatus(ctx context.Context, tenantID int64, status models.TenantStatus) error
	IssueCredential(ctx context.Context, tenantID int64, name string, scopes []string) (*services.IssuedCredential, error)
	ListCredentials(ctx context.Context, tenantID int64) ([]*models.APICredential, error)
	RevokeCredential(ctx context.Context, publicID string) error
}

// Handlers serves the /admin/v1 routes
type Handlers struct {
	svc TenantService
}

// NewHandlers creates admin handlers over svc
func NewHandlers(svc TenantService) *Handlers {
	return &Handlers{svc: svc}
}

// Register mounts the admin routes on g
func (h *Handlers) Register(g *gin.RouterGroup) {
	g.POST("/tenants", h.CreateTenantHandler())
	g.GET("/tenants", h.ListTenantsHandler())
	g.PATCH("/tenants/:id/status", h.UpdateTenantStatusHandler())
	g.POST("/tenants/:id/credentials", h.IssueCredentialHandler())
	g.GET("/tenants/:id/credentials", h.ListCredentialsHandler())
	g.POST("/credentials/:public_id/revoke", h.RevokeCredentialHandler())
}

// CreateTenantRequest is the body of POST /admin/v1/tenants
type CreateTenantRequest struct {
	Slug              string `json:"slug" binding:"required"`
	Name              string `json:"name" binding:"required"`
	RequestsPerWindow *int   `json:"requests_per_window"`
}

// UpdateTenantStatusRequest is the body of PATCH /admin/v1/tenants/:id/status
type UpdateTenantStatusRequest struct {
	Status models.TenantStatus `json:"status" binding:"required"`
}

// CreateTenantHandler creates a tenant
// POST /admin/v1/tenants
func (h *Handlers) CreateTenantHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateTenantRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.AbortWithCode(c, http.StatusBadRequest, middleware.CodeBadRequest, "invalid request body: "+err.Error())
			return
		}

		tenant, err := h.svc.CreateTenant(c.Request.Context(), req.Slug, req.Name, req.RequestsPerWindow)
		if err != nil {
			respondError(c, err)
			return
		}

		c.Set(middleware.AuditTargetKey, "tenant:"+strconv.FormatInt(tenant.ID, 10))
		c.JSON(http.StatusCreated, tenant)
	}
}

// ListTenantsHandler lists every tenant
// GET /admin/v1/tenants
func (h *Handlers) ListTenantsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenants, err := h.svc.ListTenants(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"tenants": tenants})
	}
}

// UpdateTenantStatusHandler activates or suspends a tenant
// PATCH /admin/v1/tenants/:id/status
func (h *Handlers) UpdateTenantStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := tenantIDParam(c)
		if !ok {
			return
		}
		var req UpdateTenantStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.AbortWithCode(c, http.StatusBadRequest, middleware.CodeBadRequest, "invalid request body: "+err.Error())
			return
		}

		if err := h.svc.SetTenantStatus(c.Request.Context(), id, req.Status); err != nil {
			respondError(c, err)
			return
		}

		c.Set(middleware.AuditTargetKey, "tenant:"+strconv.FormatInt(id, 10))
		c.JSON(http.StatusOK, gin.H{"id": id, "status": req.Status})
	}
}

func tenantIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		middleware.AbortWithCode(c, http.StatusBadRequest, middleware.CodeBadRequest, "tenant id must be a positive integer")
		return 0, false
	}
	return id, true
}

// respondError maps service and repository errors to admin responses
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		middleware.AbortWithCode(c, http.StatusBadRequest, middleware.CodeBadRequest, err.Error())
	case errors.Is(err, services.ErrTenantNotFound), errors.Is(err, repositories.ErrNotFound):
		middleware.AbortWithCode(c, http.StatusNotFound, middleware.CodeNotFound, err.Error())
	case errors.Is(err, services.ErrSlugTaken), errors.Is(err, repositories.ErrAlreadyRevoked):
		middleware.AbortWithCode(c, http.StatusConflict, middleware.CodeConflict, err.Error())
	default:
		slog.Error("admin request failed", "request_id", middleware.GetRequestID(c), "path", c.FullPath(), "error", err)
		middleware.AbortWithCode(c, http.StatusInternalServerError, middleware.CodeInternal, "internal server error")
	}
}
