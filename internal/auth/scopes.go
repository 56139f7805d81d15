// Package auth - scopes.go defines the capability scope catalog granted to tenant
// credentials and the subset check the gate applies to each route.
package auth

import "fmt"

// Scope is a capability a credential may be granted.
type Scope string

const (
	// Chatbot scopes
	ScopeBotRead  Scope = "bot:read"
	ScopeBotWrite Scope = "bot:write"

	// Booking scopes
	ScopeBookingsRead  Scope = "bookings:read"
	ScopeBookingsWrite Scope = "bookings:write"

	// Billing scopes
	ScopeBillingRead Scope = "billing:read"

	// Usage/quota introspection
	ScopeUsageRead Scope = "usage:read"
)

// AllScopes returns every scope in the catalog.
func AllScopes() []Scope {
	return []Scope{
		ScopeBotRead,
		ScopeBotWrite,
		ScopeBookingsRead,
		ScopeBookingsWrite,
		ScopeBillingRead,
		ScopeUsageRead,
	}
}

// ValidScopes returns a set of valid scope strings.
func ValidScopes() map[string]bool {
	valid := make(map[string]bool)
	for _, scope := range AllScopes() {
		valid[string(scope)] = true
	}
	return valid
}

// ValidateScopes checks that every provided scope is in the catalog.
func ValidateScopes(scopes []string) error {
	valid := ValidScopes()
	for _, scope := range scopes {
		if !valid[scope] {
			return fmt.Errorf("invalid scope: %s", scope)
		}
	}
	return nil
}

// HasScope reports whether granted contains required exactly.
// There is no wildcard and a write scope does not imply the matching read scope.
func HasScope(granted []string, required Scope) bool {
	for _, scope := range granted {
		if scope == string(required) {
			return true
		}
	}
	return false
}

// HasAllScopes reports whether required is a subset of granted.
// An empty required set is always satisfied.
func HasAllScopes(granted []string, required []Scope) bool {
	for _, r := range required {
		if !HasScope(granted, r) {
			return false
		}
	}
	return true
}
