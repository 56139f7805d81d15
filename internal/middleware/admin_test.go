package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func adminRouter(t *testing.T, token string, logger AuditLogger) *gin.Engine {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.MinCost)
	require.NoError(t, err)

	r := gin.New()
	g := r.Group("/admin", AdminAuthMiddleware(string(hash)), AdminAuditMiddleware(logger))
	g.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	g.POST("/tenants/:id/status", func(c *gin.Context) {
		c.Set(AuditTargetKey, "tenant:"+c.Param("id"))
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestAdminAuthMiddleware(t *testing.T) {
	r := adminRouter(t, "operator-token", slog.Default())

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer operator-token", http.StatusOK},
		{"lowercase scheme", "bearer operator-token", http.StatusOK},
		{"wrong token", "Bearer other", http.StatusUnauthorized},
		{"missing", "", http.StatusUnauthorized},
		{"basic", "Basic operator-token", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestAdminAuditMiddleware_LogsWritesOnly(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	r := adminRouter(t, "tok", logger)

	req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	req.Header.Set("Authorization", "Bearer tok")
	r.ServeHTTP(httptest.NewRecorder(), req)
	assert.Empty(t, buf.String(), "reads are not audited")

	req = httptest.NewRequest(http.MethodPost, "/admin/tenants/9/status", nil)
	req.Header.Set("Authorization", "Bearer tok")
	r.ServeHTTP(httptest.NewRecorder(), req)

	line := buf.String()
	assert.True(t, strings.Contains(line, "admin action"), line)
	assert.Contains(t, line, "param_id=9")
	assert.Contains(t, line, "target=tenant:9")
	assert.Contains(t, line, "status=204")
}
