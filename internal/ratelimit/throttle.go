package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"github.com/smallbiz-platform/tenant-api/internal/safego"
	"golang.org/x/time/rate"
)

// Throttle is a per-client token bucket applied before authentication. It has nothing to
// do with tenant quotas and never touches tenant counters.
type Throttle interface {
	// Allow consumes one token for key. When it returns false, retryAfter is the time
	// until a token is expected to be available.
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// LocalThrottle keeps one x/time/rate limiter per key in process memory.
type LocalThrottle struct {
	mu           sync.Mutex
	entries      map[string]*throttleEntry
	limit        rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type throttleEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewLocalThrottle allows requestsPerMinute per key on average with bursts up to burst.
func NewLocalThrottle(requestsPerMinute, burst int) *LocalThrottle {
	return &LocalThrottle{
		entries:      make(map[string]*throttleEntry),
		limit:        rate.Limit(float64(requestsPerMinute) / 60),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
}

func (t *LocalThrottle) limiter(key string, now time.Time) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ent, ok := t.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}
	lim := rate.NewLimiter(t.limit, t.burst)
	t.entries[key] = &throttleEntry{lim: lim, lastSeen: now}
	return lim
}

// Allow implements Throttle.
func (t *LocalThrottle) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	now := time.Now()
	lim := t.limiter(key, now)

	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Minute, nil
	}
	delay := r.DelayFrom(now)
	if delay == 0 {
		return true, 0, nil
	}
	// Give the token back; the caller is refused rather than delayed.
	r.CancelAt(now)
	return false, delay, nil
}

// Cleanup removes limiters idle for longer than the idle TTL.
func (t *LocalThrottle) Cleanup() {
	cutoff := time.Now().Add(-t.idleTTL)

	t.mu.Lock()
	defer t.mu.Unlock()
	for k, ent := range t.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(t.entries, k)
		}
	}
}

// StartJanitor runs Cleanup periodically until ctx is cancelled.
func (t *LocalThrottle) StartJanitor(ctx context.Context) {
	safego.Go("client-throttle-janitor", func() {
		tk := time.NewTicker(t.cleanupEvery)
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				t.Cleanup()
			}
		}
	})
}

// RedisThrottle shares the per-client budget across nodes with redis_rate's GCRA script.
type RedisThrottle struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
	prefix  string
}

// NewRedisThrottle allows requestsPerMinute per key with bursts up to burst.
func NewRedisThrottle(rdb *redis.Client, requestsPerMinute, burst int) *RedisThrottle {
	return &RedisThrottle{
		limiter: redis_rate.NewLimiter(rdb),
		limit: redis_rate.Limit{
			Rate:   requestsPerMinute,
			Burst:  burst,
			Period: time.Minute,
		},
		prefix: "tgw:throttle:",
	}
}

// Allow implements Throttle.
func (t *RedisThrottle) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	res, err := t.limiter.Allow(ctx, t.prefix+key, t.limit)
	if err != nil {
		return false, 0, err
	}
	return res.Allowed > 0, res.RetryAfter, nil
}
