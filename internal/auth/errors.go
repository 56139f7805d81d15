package auth

import "errors"

// Gate failures. Callers match them with errors.Is; the wrapped detail is for logs only
// and never reaches a response body.
var (
	// ErrUnauthenticated covers a missing or malformed header, an unknown public id,
	// a revoked credential and a wrong secret. These cases are deliberately not
	// distinguished to the caller.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden means the credential is valid but its tenant is not active or it
	// lacks a required scope.
	ErrForbidden = errors.New("forbidden")

	// ErrRateLimited means the tenant's quota for the current window is exhausted.
	ErrRateLimited = errors.New("rate limited")

	// ErrStoreUnavailable means the key store or counter store failed or timed out.
	// The request must be refused, never admitted.
	ErrStoreUnavailable = errors.New("store unavailable")
)
