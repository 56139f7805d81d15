package models

import "time"

// APICredential is one issued tenant key. The secret half of the key is never
// stored; only its salted hash is.
type APICredential struct {
	ID        int64      `json:"id"`
	TenantID  int64      `json:"tenant_id"`
	PublicID  string     `json:"public_id"` // unique, immutable, used for the indexed lookup
	Name      string     `json:"name"`
	Salt      string     `json:"-"`
	KeyHash   string     `json:"-"` // hex SHA-256 of salt || secret || global salt
	Scopes    []string   `json:"scopes"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"` // terminal once set
}

// Revoked reports whether the credential has been revoked
func (c *APICredential) Revoked() bool {
	return c.RevokedAt != nil
}

// CredentialRecord is the Key Store view of a credential joined with its
// owning tenant: everything the auth gate needs in a single read.
type CredentialRecord struct {
	CredentialID int64
	PublicID     string
	TenantID     int64
	TenantSlug   string
	TenantStatus TenantStatus
	TenantQuota  *int
	Salt         string
	KeyHash      string
	Scopes       []string
	RevokedAt    *time.Time
}
