// Package ratelimit enforces per-tenant fixed-window request quotas.
//
// Time is divided into windows of Policy.Window aligned to the Unix epoch. Every request
// increments its tenant's counter for the current window through one atomic store
// operation; the request is admitted while the returned count is at most Policy.Limit.
// Rejected requests still count, so a tenant hammering a closed window stays closed
// until the window rolls over.
//
// Atomicity lives in the Store: a SQL upsert with RETURNING, a Redis INCR, or a mutex
// for the in-memory store. The Limiter never reads a counter and writes it back.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Backend names, used for metrics labels and configuration.
const (
	BackendSQL    = "sql"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// ErrInvalidPolicy is returned for a window shorter than one second or a limit below one.
var ErrInvalidPolicy = errors.New("invalid rate limit policy")

// Store atomically increments a tenant's counter for one window and returns the new count.
// Concurrent calls for the same window must observe distinct, consecutive counts.
type Store interface {
	IncrementAndGet(ctx context.Context, tenantID, windowStart, windowSeconds int64) (int64, error)
}

// Policy is the quota applied to one tenant.
type Policy struct {
	Window time.Duration
	Limit  int64
}

// WindowSeconds returns the window length in whole seconds.
func (p Policy) WindowSeconds() int64 {
	return int64(p.Window / time.Second)
}

// Validate rejects policies the limiter cannot enforce.
func (p Policy) Validate() error {
	if p.WindowSeconds() < 1 || p.Limit < 1 {
		return ErrInvalidPolicy
	}
	return nil
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed bool
	Limit   int64
	// Count is the tenant's request count in this window including this request.
	Count     int64
	Remaining int64
	ResetAt   time.Time
	// RetryAfter is the time until ResetAt, at least one second.
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds for the Retry-After header.
func (d Decision) RetryAfterSeconds() int64 {
	secs := int64((d.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// WindowStart returns floor(unix / windowSeconds) * windowSeconds.
func WindowStart(now time.Time, windowSeconds int64) int64 {
	unix := now.Unix()
	start := unix / windowSeconds * windowSeconds
	if unix < 0 && unix%windowSeconds != 0 {
		start -= windowSeconds
	}
	return start
}
