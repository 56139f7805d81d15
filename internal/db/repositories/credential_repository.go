// credential_repository.go implements CredentialRepository: issuance, listing and terminal
// revocation of tenant API credentials, plus the single-read lookup used by the auth gate.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/smallbiz-platform/tenant-api/internal/db/models"
)

// CredentialRepository handles API credential database operations
type CredentialRepository struct {
	db *sqlx.DB
}

// NewCredentialRepository creates a new CredentialRepository
func NewCredentialRepository(db *sqlx.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// CreateCredential stores a newly issued credential (hash and salt only, never the secret)
func (r *CredentialRepository) CreateCredential(ctx context.Context, cred *models.APICredential) error {
	if cred.Scopes == nil {
		cred.Scopes = []string{}
	}
	scopesJSON, err := json.Marshal(cred.Scopes)
	if err != nil {
		return err
	}
	cred.CreatedAt = time.Now().UTC()

	query := r.db.Rebind(`
		INSERT INTO api_credentials (tenant_id, public_id, name, salt, key_hash, scopes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)

	return r.db.QueryRowContext(ctx, query,
		cred.TenantID,
		cred.PublicID,
		cred.Name,
		cred.Salt,
		cred.KeyHash,
		string(scopesJSON),
		cred.CreatedAt,
	).Scan(&cred.ID)
}

// FindCredentialByPublicID returns the credential joined with its tenant's status and quota.
// Returns nil, nil when no credential has the given public id.
func (r *CredentialRepository) FindCredentialByPublicID(ctx context.Context, publicID string) (*models.CredentialRecord, error) {
	query := r.db.Rebind(`
		SELECT c.id, c.public_id, c.tenant_id, t.slug, t.status, t.requests_per_window,
		       c.salt, c.key_hash, c.scopes, c.revoked_at
		FROM api_credentials c
		JOIN tenants t ON t.id = c.tenant_id
		WHERE c.public_id = ?
	`)

	rec := &models.CredentialRecord{}
	var (
		scopesJSON []byte
		quota      sql.NullInt64
		revokedAt  sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, query, publicID).Scan(
		&rec.CredentialID,
		&rec.PublicID,
		&rec.TenantID,
		&rec.TenantSlug,
		&rec.TenantStatus,
		&quota,
		&rec.Salt,
		&rec.KeyHash,
		&scopesJSON,
		&revokedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(scopesJSON, &rec.Scopes); err != nil {
		return nil, fmt.Errorf("decode scopes for %s: %w", publicID, err)
	}
	if quota.Valid {
		q := int(quota.Int64)
		rec.TenantQuota = &q
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		rec.RevokedAt = &t
	}

	return rec, nil
}

// ListCredentialsByTenant returns a tenant's credentials, newest first
func (r *CredentialRepository) ListCredentialsByTenant(ctx context.Context, tenantID int64) ([]*models.APICredential, error) {
	query := r.db.Rebind(`
		SELECT id, tenant_id, public_id, name, salt, key_hash, scopes, created_at, revoked_at
		FROM api_credentials
		WHERE tenant_id = ?
		ORDER BY created_at DESC, id DESC
	`)

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	creds := make([]*models.APICredential, 0)
	for rows.Next() {
		cred := &models.APICredential{}
		var (
			scopesJSON []byte
			revokedAt  sql.NullTime
		)
		if err := rows.Scan(
			&cred.ID,
			&cred.TenantID,
			&cred.PublicID,
			&cred.Name,
			&cred.Salt,
			&cred.KeyHash,
			&scopesJSON,
			&cred.CreatedAt,
			&revokedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(scopesJSON, &cred.Scopes); err != nil {
			return nil, err
		}
		if revokedAt.Valid {
			t := revokedAt.Time
			cred.RevokedAt = &t
		}
		creds = append(creds, cred)
	}

	return creds, rows.Err()
}

// RevokeCredential sets revoked_at on a live credential. Revocation is terminal:
// a revoked credential is never updated again. Returns ErrNotFound for unknown ids
// and ErrAlreadyRevoked when revoked_at is already set.
func (r *CredentialRepository) RevokeCredential(ctx context.Context, publicID string, at time.Time) error {
	query := r.db.Rebind(`
		UPDATE api_credentials
		SET revoked_at = ?
		WHERE public_id = ? AND revoked_at IS NULL
	`)

	res, err := r.db.ExecContext(ctx, query, at.UTC(), publicID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = r.db.GetContext(ctx, &exists, r.db.Rebind(`SELECT 1 FROM api_credentials WHERE public_id = ?`), publicID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrAlreadyRevoked
}
