package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces counter keys.
const DefaultRedisPrefix = "tgw:rl"

// RedisStore keeps counters in Redis. INCR and EXPIREAT run in one MULTI/EXEC so a
// counter key never outlives its window by more than the grace period.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	grace  time.Duration
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithRedisPrefix overrides DefaultRedisPrefix.
func WithRedisPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// WithExpiryGrace keeps keys for d past the end of their window.
func WithExpiryGrace(d time.Duration) RedisStoreOption {
	return func(s *RedisStore) { s.grace = d }
}

// NewRedisStore creates a RedisStore on rdb.
func NewRedisStore(rdb redis.UniversalClient, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		rdb:    rdb,
		prefix: DefaultRedisPrefix,
		grace:  time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the Redis key holding a window's counter.
func (s *RedisStore) Key(tenantID, windowStart, windowSeconds int64) string {
	return fmt.Sprintf("%s:%d:%d:%d", s.prefix, tenantID, windowSeconds, windowStart)
}

// IncrementAndGet implements Store.
func (s *RedisStore) IncrementAndGet(ctx context.Context, tenantID, windowStart, windowSeconds int64) (int64, error) {
	key := s.Key(tenantID, windowStart, windowSeconds)
	expireAt := time.Unix(windowStart+windowSeconds, 0).Add(s.grace)

	var incr *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireAt(ctx, key, expireAt)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
