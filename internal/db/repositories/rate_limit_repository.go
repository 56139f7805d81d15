// rate_limit_repository.go implements RateLimitRepository, the SQL backing for per-tenant
// fixed-window request counters.
package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// RateLimitRepository handles rate limit window counters.
// The only write path is IncrementAndGet; it never reads and then writes.
type RateLimitRepository struct {
	db *sqlx.DB
}

// NewRateLimitRepository creates a new RateLimitRepository
func NewRateLimitRepository(db *sqlx.DB) *RateLimitRepository {
	return &RateLimitRepository{db: db}
}

// IncrementAndGet records one request in the tenant's window and returns the new count.
//
// The insert-or-increment happens in a single statement. Concurrent callers serialise on
// the window row's conflict target inside the database, so no two callers can observe the
// same count and no increment is lost.
func (r *RateLimitRepository) IncrementAndGet(ctx context.Context, tenantID, windowStart, windowSeconds int64) (int64, error) {
	query := r.db.Rebind(`
		INSERT INTO rate_limit_windows (tenant_id, window_start, window_seconds, request_count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT (tenant_id, window_start, window_seconds)
		DO UPDATE SET request_count = rate_limit_windows.request_count + 1
		RETURNING request_count
	`)

	var count int64
	if err := r.db.QueryRowContext(ctx, query, tenantID, windowStart, windowSeconds).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteExpiredWindows removes windows that ended more than keepWindows of their own
// length before now (epoch seconds). Each row is aged by its own window_seconds, so rows
// left behind by an earlier window configuration are pruned on their own schedule.
// This is housekeeping only; the gate itself never deletes windows.
func (r *RateLimitRepository) DeleteExpiredWindows(ctx context.Context, now, keepWindows int64) (int64, error) {
	query := r.db.Rebind(`DELETE FROM rate_limit_windows WHERE window_start + window_seconds * ? < ?`)
	res, err := r.db.ExecContext(ctx, query, keepWindows, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
