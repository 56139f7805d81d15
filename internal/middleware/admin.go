package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// AdminAuthMiddleware guards the admin API with a single operator token compared against
// a bcrypt hash from configuration (see cmd/hash). Tenant credentials are never accepted.
func AdminAuthMiddleware(tokenHash string) gin.HandlerFunc {
	hash := []byte(tokenHash)
	return func(c *gin.Context) {
		scheme, token, ok := strings.Cut(strings.TrimSpace(c.GetHeader("Authorization")), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			AbortWithCode(c, http.StatusUnauthorized, CodeUnauthenticated, "missing or invalid admin token")
			return
		}
		if err := bcrypt.CompareHashAndPassword(hash, []byte(strings.TrimSpace(token))); err != nil {
			AbortWithCode(c, http.StatusUnauthorized, CodeUnauthenticated, "missing or invalid admin token")
			return
		}
		c.Set("admin", true)
		c.Next()
	}
}
