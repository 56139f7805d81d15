// Package services coordinates tenant and credential lifecycle operations across the
// repositories and the credential cache. The admin API and the CLI both go through it, so
// issuance and revocation behave the same regardless of entry point.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/smallbiz-platform/tenant-api/internal/auth"
	"github.com/smallbiz-platform/tenant-api/internal/db/models"
	"github.com/smallbiz-platform/tenant-api/internal/db/repositories"
	"github.com/smallbiz-platform/tenant-api/internal/validation"
)

var (
	// ErrTenantNotFound is returned when the referenced tenant does not exist.
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrSlugTaken is returned when creating a tenant whose slug is already in use.
	ErrSlugTaken = errors.New("tenant slug already in use")
	// ErrInvalidInput wraps validation failures on operator input.
	ErrInvalidInput = errors.New("invalid input")
)

// TenantStore is implemented by *repositories.TenantRepository.
type TenantStore interface {
	CreateTenant(ctx context.Context, tenant *models.Tenant) error
	GetTenantByID(ctx context.Context, id int64) (*models.Tenant, error)
	GetTenantBySlug(ctx context.Context, slug string) (*models.Tenant, error)
	ListTenants(ctx context.Context) ([]*models.Tenant, error)
	UpdateTenantStatus(ctx context.Context, id int64, status models.TenantStatus) error
}

// CredentialStore is implemented by *repositories.CredentialRepository.
type CredentialStore interface {
	CreateCredential(ctx context.Context, cred *models.APICredential) error
	ListCredentialsByTenant(ctx context.Context, tenantID int64) ([]*models.APICredential, error)
	RevokeCredential(ctx context.Context, publicID string, at time.Time) error
}

// Invalidator drops cached credential lookups. *auth.CachedKeyStore implements it.
type Invalidator interface {
	Invalidate(publicID string)
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(string) {}

// IssuedCredential is returned once, at issuance. APIKey is never retrievable again.
type IssuedCredential struct {
	*models.APICredential
	APIKey string `json:"api_key"`
}

// TenantService manages tenants and their credentials
type TenantService struct {
	tenants    TenantStore
	creds      CredentialStore
	cache      Invalidator
	keyPrefix  string
	globalSalt string
	now        func() time.Time
}

// NewTenantService creates a TenantService. cache may be nil when no credential cache is configured.
func NewTenantService(tenants TenantStore, creds CredentialStore, cache Invalidator, keyPrefix, globalSalt string) *TenantService {
	if cache == nil {
		cache = noopInvalidator{}
	}
	return &TenantService{
		tenants:    tenants,
		creds:      creds,
		cache:      cache,
		keyPrefix:  keyPrefix,
		globalSalt: globalSalt,
		now:        time.Now,
	}
}

// CreateTenant validates and stores a new active tenant
func (s *TenantService) CreateTenant(ctx context.Context, slug, name string, quota *int) (*models.Tenant, error) {
	slug = strings.TrimSpace(slug)
	if err := validation.ValidateSlug(slug); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if err := validation.ValidateName(name); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if err := validation.ValidateQuota(quota); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	existing, err := s.tenants.GetTenantBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("check slug: %w", err)
	}
	if existing != nil {
		return nil, ErrSlugTaken
	}

	tenant := &models.Tenant{
		Slug:              slug,
		Name:              strings.TrimSpace(name),
		Status:            models.TenantStatusActive,
		RequestsPerWindow: quota,
	}
	if err := s.tenants.CreateTenant(ctx, tenant); err != nil {
		return nil, fmt.Errorf("create tenant: %w", err)
	}
	slog.Info("tenant created", "tenant_id", tenant.ID, "slug", tenant.Slug)
	return tenant, nil
}

// ListTenants returns every tenant
func (s *TenantService) ListTenants(ctx context.Context) ([]*models.Tenant, error) {
	return s.tenants.ListTenants(ctx)
}

// SetTenantStatus activates or suspends a tenant. Cached lookups for the tenant's
// credentials are dropped so the change applies on the next request in this process.
func (s *TenantService) SetTenantStatus(ctx context.Context, tenantID int64, status models.TenantStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	if err := s.tenants.UpdateTenantStatus(ctx, tenantID, status); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrTenantNotFound
		}
		return fmt.Errorf("update tenant status: %w", err)
	}

	creds, err := s.creds.ListCredentialsByTenant(ctx, tenantID)
	if err != nil {
		slog.Warn("status changed but credential cache not refreshed", "tenant_id", tenantID, "error", err)
		return nil
	}
	for _, c := range creds {
		s.cache.Invalidate(c.PublicID)
	}
	slog.Info("tenant status changed", "tenant_id", tenantID, "status", status)
	return nil
}

// IssueCredential generates a credential for the tenant with the given scopes.
// Only the salted hash is stored; the returned APIKey is the sole copy of the secret.
func (s *TenantService) IssueCredential(ctx context.Context, tenantID int64, name string, scopes []string) (*IssuedCredential, error) {
	if err := validation.ValidateName(name); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if err := auth.ValidateScopes(scopes); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	tenant, err := s.tenants.GetTenantByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant: %w", err)
	}
	if tenant == nil {
		return nil, ErrTenantNotFound
	}

	gen, err := auth.GenerateCredential(s.keyPrefix, s.globalSalt)
	if err != nil {
		return nil, err
	}

	cred := &models.APICredential{
		TenantID: tenant.ID,
		PublicID: gen.PublicID,
		Name:     strings.TrimSpace(name),
		Salt:     gen.Salt,
		KeyHash:  gen.Hash,
		Scopes:   dedupe(scopes),
	}
	if err := s.creds.CreateCredential(ctx, cred); err != nil {
		return nil, fmt.Errorf("store credential: %w", err)
	}
	// A not-found lookup for this public id may be cached.
	s.cache.Invalidate(cred.PublicID)

	slog.Info("credential issued", "tenant_id", tenant.ID, "public_id", cred.PublicID, "scopes", cred.Scopes)
	return &IssuedCredential{APICredential: cred, APIKey: gen.APIKey}, nil
}

// IssueCredentialForSlug is IssueCredential addressed by tenant slug
func (s *TenantService) IssueCredentialForSlug(ctx context.Context, slug, name string, scopes []string) (*IssuedCredential, error) {
	tenant, err := s.tenants.GetTenantBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("load tenant: %w", err)
	}
	if tenant == nil {
		return nil, ErrTenantNotFound
	}
	return s.IssueCredential(ctx, tenant.ID, name, scopes)
}

// ListCredentials returns a tenant's credentials without secrets
func (s *TenantService) ListCredentials(ctx context.Context, tenantID int64) ([]*models.APICredential, error) {
	tenant, err := s.tenants.GetTenantByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant: %w", err)
	}
	if tenant == nil {
		return nil, ErrTenantNotFound
	}
	return s.creds.ListCredentialsByTenant(ctx, tenantID)
}

// RevokeCredential permanently revokes a credential. It returns repositories.ErrNotFound
// or repositories.ErrAlreadyRevoked when there is nothing to revoke.
func (s *TenantService) RevokeCredential(ctx context.Context, publicID string) error {
	if err := s.creds.RevokeCredential(ctx, publicID, s.now()); err != nil {
		return err
	}
	s.cache.Invalidate(publicID)
	slog.Info("credential revoked", "public_id", publicID)
	return nil
}

func dedupe(scopes []string) []string {
	seen := make(map[string]bool, len(scopes))
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

var _ Invalidator = (*auth.CachedKeyStore)(nil)
