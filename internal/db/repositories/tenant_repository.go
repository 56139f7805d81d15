// Package repositories implements the SQL data access layer for tenants, their API
// credentials and their rate limit windows. Queries are written with ? placeholders and
// rebound by sqlx so the same statements run on PostgreSQL and SQLite.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/smallbiz-platform/tenant-api/internal/db/models"
)

var (
	// ErrNotFound is returned by mutations whose target row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyRevoked is returned when revoking a credential that is already revoked.
	ErrAlreadyRevoked = errors.New("credential already revoked")
)

const tenantColumns = `id, slug, name, status, requests_per_window, created_at, updated_at`

// TenantRepository handles tenant database operations
type TenantRepository struct {
	db *sqlx.DB
}

// NewTenantRepository creates a new TenantRepository
func NewTenantRepository(db *sqlx.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// CreateTenant inserts a tenant and fills in its generated id and timestamps
func (r *TenantRepository) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	now := time.Now().UTC()
	tenant.CreatedAt = now
	tenant.UpdatedAt = now
	if tenant.Status == "" {
		tenant.Status = models.TenantStatusActive
	}

	query := r.db.Rebind(`
		INSERT INTO tenants (slug, name, status, requests_per_window, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`)

	return r.db.QueryRowContext(ctx, query,
		tenant.Slug,
		tenant.Name,
		tenant.Status,
		tenant.RequestsPerWindow,
		tenant.CreatedAt,
		tenant.UpdatedAt,
	).Scan(&tenant.ID)
}

// GetTenantByID retrieves a tenant by id; returns nil, nil when it does not exist
func (r *TenantRepository) GetTenantByID(ctx context.Context, id int64) (*models.Tenant, error) {
	return r.getTenant(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, id)
}

// GetTenantBySlug retrieves a tenant by slug; returns nil, nil when it does not exist
func (r *TenantRepository) GetTenantBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	return r.getTenant(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE slug = ?`, slug)
}

func (r *TenantRepository) getTenant(ctx context.Context, query string, arg any) (*models.Tenant, error) {
	tenant := &models.Tenant{}
	err := r.db.GetContext(ctx, tenant, r.db.Rebind(query), arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return tenant, nil
}

// ListTenants returns every tenant ordered by id
func (r *TenantRepository) ListTenants(ctx context.Context) ([]*models.Tenant, error) {
	tenants := make([]*models.Tenant, 0)
	err := r.db.SelectContext(ctx, &tenants, `SELECT `+tenantColumns+` FROM tenants ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return tenants, nil
}

// UpdateTenantStatus changes a tenant's lifecycle status.
// Returns ErrNotFound when no tenant has the given id.
func (r *TenantRepository) UpdateTenantStatus(ctx context.Context, id int64, status models.TenantStatus) error {
	query := r.db.Rebind(`UPDATE tenants SET status = ?, updated_at = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
