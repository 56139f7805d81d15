// Package models defines the database model types for the tenant API.
// Each type corresponds to a database table (or a join used by the auth gate) and
// carries db tags for sqlx scanning and json tags for the admin API.
// Models are pure data types; query logic belongs in the repositories layer.
package models

import "time"

// TenantStatus is the lifecycle state of a tenant account
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
)

// Valid reports whether s is a known lifecycle status
func (s TenantStatus) Valid() bool {
	return s == TenantStatusActive || s == TenantStatusSuspended
}

// Tenant is one customer business on the platform
type Tenant struct {
	ID     int64        `db:"id" json:"id"`
	Slug   string       `db:"slug" json:"slug"`
	Name   string       `db:"name" json:"name"`
	Status TenantStatus `db:"status" json:"status"`
	// RequestsPerWindow overrides the platform default quota when set
	RequestsPerWindow *int      `db:"requests_per_window" json:"requests_per_window,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}
