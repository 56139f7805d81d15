// audit.go provides Gin middleware that records admin mutations (tenant and credential
// lifecycle changes) as structured audit log lines.
package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AuditLogger receives admin audit records. *slog.Logger satisfies it.
type AuditLogger interface {
	Info(msg string, args ...any)
}

// AdminAuditMiddleware logs every admin write once the handler has run, successful or not.
// Reads are not audited.
func AdminAuditMiddleware(logger AuditLogger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default().With("log", "audit")
	}
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodOptions {
			return
		}

		args := []any{
			"request_id", GetRequestID(c),
			"action", c.Request.Method + " " + routeLabel(c),
			"status", c.Writer.Status(),
			"client_ip", c.ClientIP(),
		}
		for _, p := range c.Params {
			args = append(args, "param_"+p.Key, p.Value)
		}
		if target, ok := c.Get(AuditTargetKey); ok {
			args = append(args, "target", target)
		}
		logger.Info("admin action", args...)
	}
}

// AuditTargetKey lets admin handlers name the resource they changed (for example the
// public id of a credential they just issued).
const AuditTargetKey = "audit_target"
