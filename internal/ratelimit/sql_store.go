package ratelimit

import (
	"context"

	"github.com/smallbiz-platform/tenant-api/internal/db/repositories"
)

// SQLStore keeps counters in the rate_limit_windows table of the shared database.
// Each increment is a single INSERT ... ON CONFLICT DO UPDATE ... RETURNING statement.
type SQLStore struct {
	repo *repositories.RateLimitRepository
}

// NewSQLStore creates a SQLStore over repo.
func NewSQLStore(repo *repositories.RateLimitRepository) *SQLStore {
	return &SQLStore{repo: repo}
}

// IncrementAndGet implements Store.
func (s *SQLStore) IncrementAndGet(ctx context.Context, tenantID, windowStart, windowSeconds int64) (int64, error) {
	return s.repo.IncrementAndGet(ctx, tenantID, windowStart, windowSeconds)
}
