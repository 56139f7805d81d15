package admin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiz-platform/tenant-api/internal/middleware"
)

// IssueCredentialRequest is the body of POST /admin/v1/tenants/:id/credentials
type IssueCredentialRequest struct {
	Name   string   `json:"name" binding:"required"`
	Scopes []string `json:"scopes"`
}

// IssueCredentialHandler issues a credential. The api_key in the response is shown once.
// POST /admin/v1/tenants/:id/credentials
func (h *Handlers) IssueCredentialHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := tenantIDParam(c)
		if !ok {
			return
		}
		var req IssueCredentialRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.AbortWithCode(c, http.StatusBadRequest, middleware.CodeBadRequest, "invalid request body: "+err.Error())
			return
		}

		issued, err := h.svc.IssueCredential(c.Request.Context(), id, req.Name, req.Scopes)
		if err != nil {
			respondError(c, err)
			return
		}

		c.Set(middleware.AuditTargetKey, "credential:"+issued.PublicID)
		c.Header("Cache-Control", "no-store")
		c.JSON(http.StatusCreated, issued)
	}
}

// ListCredentialsHandler lists a tenant's credentials
// GET /admin/v1/tenants/:id/credentials
func (h *Handlers) ListCredentialsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := tenantIDParam(c)
		if !ok {
			return
		}
		creds, err := h.svc.ListCredentials(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"credentials": creds})
	}
}

// RevokeCredentialHandler revokes a credential; revocation cannot be undone
// POST /admin/v1/credentials/:public_id/revoke
func (h *Handlers) RevokeCredentialHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		publicID := strings.TrimSpace(c.Param("public_id"))
		c.Set(middleware.AuditTargetKey, "credential:"+publicID)

		if err := h.svc.RevokeCredential(c.Request.Context(), publicID); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
