package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiz-platform/tenant-api/internal/auth"
	"github.com/smallbiz-platform/tenant-api/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Limiter applies fixed-window policies on top of a Store. It is safe for concurrent use
// and holds no per-tenant state of its own.
type Limiter struct {
	store        Store
	backend      string
	now          func() time.Time
	storeTimeout time.Duration
	tracer       trace.Tracer
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithBackendName sets the backend label used in metrics.
func WithBackendName(name string) Option {
	return func(l *Limiter) { l.backend = name }
}

// WithStoreTimeout bounds each store call. Zero means only the caller's context applies.
func WithStoreTimeout(d time.Duration) Option {
	return func(l *Limiter) { l.storeTimeout = d }
}

// NewLimiter creates a Limiter over store.
func NewLimiter(store Store, opts ...Option) *Limiter {
	l := &Limiter{
		store:   store,
		backend: "unknown",
		now:     time.Now,
		tracer:  otel.Tracer("github.com/smallbiz-platform/tenant-api/internal/ratelimit"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow records one request for tenantID and reports whether it fits in the current window.
//
// A store failure returns an error wrapping auth.ErrStoreUnavailable and a zero Decision;
// the caller must refuse the request.
func (l *Limiter) Allow(ctx context.Context, tenantID int64, policy Policy) (Decision, error) {
	if err := policy.Validate(); err != nil {
		return Decision{}, fmt.Errorf("%w: window=%s limit=%d", err, policy.Window, policy.Limit)
	}

	ctx, span := l.tracer.Start(ctx, "ratelimit.Allow", trace.WithAttributes(
		attribute.Int64("tenant.id", tenantID),
		attribute.String("ratelimit.backend", l.backend),
	))
	defer span.End()

	now := l.now()
	windowSeconds := policy.WindowSeconds()
	windowStart := WindowStart(now, windowSeconds)

	count, err := l.increment(ctx, tenantID, windowStart, windowSeconds)
	if err != nil {
		telemetry.RateLimitDecisionsTotal.WithLabelValues("store_unavailable").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "store unavailable")
		return Decision{}, fmt.Errorf("%w: %s counter: %w", auth.ErrStoreUnavailable, l.backend, err)
	}

	resetAt := time.Unix(windowStart+windowSeconds, 0)
	retryAfter := resetAt.Sub(now)
	if retryAfter < time.Second {
		retryAfter = time.Second
	}

	d := Decision{
		Allowed:    count <= policy.Limit,
		Limit:      policy.Limit,
		Count:      count,
		Remaining:  max(policy.Limit-count, 0),
		ResetAt:    resetAt,
		RetryAfter: retryAfter,
	}

	outcome := "allowed"
	if !d.Allowed {
		outcome = "rejected"
	}
	telemetry.RateLimitDecisionsTotal.WithLabelValues(outcome).Inc()
	span.SetAttributes(attribute.String("ratelimit.outcome", outcome), attribute.Int64("ratelimit.count", count))

	return d, nil
}

func (l *Limiter) increment(ctx context.Context, tenantID, windowStart, windowSeconds int64) (int64, error) {
	if l.storeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.storeTimeout)
		defer cancel()
	}

	start := time.Now()
	count, err := l.store.IncrementAndGet(ctx, tenantID, windowStart, windowSeconds)
	telemetry.RateLimitStoreDuration.WithLabelValues(l.backend).Observe(time.Since(start).Seconds())
	return count, err
}
