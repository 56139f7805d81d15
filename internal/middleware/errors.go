package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiz-platform/tenant-api/internal/auth"
)

// Stable error codes returned in response bodies.
const (
	CodeUnauthenticated  = "unauthenticated"
	CodeForbidden        = "forbidden"
	CodeRateLimited      = "rate_limited"
	CodeStoreUnavailable = "store_unavailable"
	CodeInternal         = "internal_error"
	CodeBadRequest       = "bad_request"
	CodeNotFound         = "not_found"
	CodeConflict         = "conflict"
)

// ErrorDetail is the inner object of every error response.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the JSON body of every error response:
//
//	{"error": {"code": "rate_limited", "message": "rate limit exceeded"}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// AbortWithCode aborts the request with a status and a stable error body.
func AbortWithCode(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

// abortWithError maps gate errors to HTTP responses. The wrapped detail goes to the log
// with the request id and never into the body.
func abortWithError(c *gin.Context, err error) {
	log := slog.With("request_id", GetRequestID(c), "path", c.FullPath(), "client_ip", c.ClientIP())

	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		log.Info("request unauthenticated", "reason", err.Error())
		c.Header("WWW-Authenticate", `Bearer realm="tenant-api"`)
		AbortWithCode(c, http.StatusUnauthorized, CodeUnauthenticated, "missing or invalid credentials")
	case errors.Is(err, auth.ErrForbidden):
		log.Info("request forbidden", "reason", err.Error())
		AbortWithCode(c, http.StatusForbidden, CodeForbidden, "credential is not permitted to access this resource")
	case errors.Is(err, auth.ErrRateLimited):
		log.Info("request rate limited", "reason", err.Error())
		AbortWithCode(c, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded")
	case errors.Is(err, auth.ErrStoreUnavailable):
		log.Error("backing store unavailable", "error", err)
		AbortWithCode(c, http.StatusServiceUnavailable, CodeStoreUnavailable, "service temporarily unavailable")
	default:
		log.Error("unexpected gate error", "error", err)
		AbortWithCode(c, http.StatusInternalServerError, CodeInternal, "internal server error")
	}
}
