package auth

import "context"

// AuthContext is the request-scoped result of a successful authentication.
// It is never persisted.
type AuthContext struct {
	TenantID     int64
	TenantSlug   string
	CredentialID int64
	PublicID     string
	Scopes       []string
	// QuotaOverride is the tenant's requests_per_window, nil for the configured default.
	QuotaOverride *int
}

type contextKey struct{}

// NewContext returns a copy of ctx carrying ac.
func NewContext(ctx context.Context, ac *AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

// FromContext returns the AuthContext stored by NewContext, if any.
func FromContext(ctx context.Context) (*AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(*AuthContext)
	return ac, ok && ac != nil
}
