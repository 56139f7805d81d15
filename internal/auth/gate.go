package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/smallbiz-platform/tenant-api/internal/db/models"
	"github.com/smallbiz-platform/tenant-api/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// KeyStore looks up a credential together with its tenant's status and quota.
// Implementations return nil, nil when no credential has the public id.
type KeyStore interface {
	FindCredentialByPublicID(ctx context.Context, publicID string) (*models.CredentialRecord, error)
}

// dummySalt is hashed against when the public id is unknown so that the unknown-id
// path does the same hashing work as the wrong-secret path.
const dummySalt = "00000000000000000000000000000000"

// Gate authenticates bearer credentials and checks route scopes.
// It is safe for concurrent use.
type Gate struct {
	store         KeyStore
	globalSalt    string
	lookupTimeout time.Duration
	tracer        trace.Tracer
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithLookupTimeout bounds each key store lookup. Zero means only the caller's
// context applies.
func WithLookupTimeout(d time.Duration) GateOption {
	return func(g *Gate) { g.lookupTimeout = d }
}

// NewGate creates a Gate over store. globalSalt must match the value credentials were
// issued with.
func NewGate(store KeyStore, globalSalt string, opts ...GateOption) *Gate {
	g := &Gate{
		store:      store,
		globalSalt: globalSalt,
		tracer:     otel.Tracer("github.com/smallbiz-platform/tenant-api/internal/auth"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authenticate verifies the Authorization header and checks that the credential holds
// every required scope.
//
// Failures wrap one of ErrUnauthenticated, ErrForbidden or ErrStoreUnavailable. The order
// of checks is: header shape, lookup (unknown and revoked are the same failure), tenant
// status, secret hash, scopes. Nothing is retried.
func (g *Gate) Authenticate(ctx context.Context, header string, required ...Scope) (*AuthContext, error) {
	ctx, span := g.tracer.Start(ctx, "auth.Authenticate")
	defer span.End()

	ac, err := g.authenticate(ctx, header, required)
	outcome := outcomeOf(err)
	telemetry.AuthDecisionsTotal.WithLabelValues(outcome).Inc()
	span.SetAttributes(attribute.String("auth.outcome", outcome))
	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		return nil, err
	}
	span.SetAttributes(attribute.Int64("tenant.id", ac.TenantID))
	return ac, nil
}

func (g *Gate) authenticate(ctx context.Context, header string, required []Scope) (*AuthContext, error) {
	publicID, secret, err := ParseBearer(header)
	if err != nil {
		return nil, err
	}

	rec, err := g.lookup(ctx, publicID)
	if err != nil {
		return nil, fmt.Errorf("%w: credential lookup: %w", ErrStoreUnavailable, err)
	}
	if rec == nil {
		VerifySecret(secret, dummySalt, g.globalSalt, "")
		return nil, fmt.Errorf("%w: unknown public id", ErrUnauthenticated)
	}
	if rec.RevokedAt != nil {
		VerifySecret(secret, rec.Salt, g.globalSalt, rec.KeyHash)
		return nil, fmt.Errorf("%w: credential revoked", ErrUnauthenticated)
	}
	if rec.TenantStatus != models.TenantStatusActive {
		return nil, fmt.Errorf("%w: tenant %s is %s", ErrForbidden, rec.TenantSlug, rec.TenantStatus)
	}
	if !VerifySecret(secret, rec.Salt, g.globalSalt, rec.KeyHash) {
		return nil, fmt.Errorf("%w: secret mismatch", ErrUnauthenticated)
	}
	if !HasAllScopes(rec.Scopes, required) {
		return nil, fmt.Errorf("%w: missing required scope", ErrForbidden)
	}

	slog.Debug("credential authenticated", "tenant_id", rec.TenantID, "public_id", rec.PublicID)
	return &AuthContext{
		TenantID:      rec.TenantID,
		TenantSlug:    rec.TenantSlug,
		CredentialID:  rec.CredentialID,
		PublicID:      rec.PublicID,
		Scopes:        slices.Clone(rec.Scopes),
		QuotaOverride: quotaCopy(rec.TenantQuota),
	}, nil
}

func quotaCopy(q *int) *int {
	if q == nil {
		return nil
	}
	v := *q
	return &v
}

func (g *Gate) lookup(ctx context.Context, publicID string) (*models.CredentialRecord, error) {
	if g.lookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.lookupTimeout)
		defer cancel()
	}
	return g.store.FindCredentialByPublicID(ctx, publicID)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "allowed"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "error"
	}
}
