package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/smallbiz-platform/tenant-api/internal/db"
	"github.com/smallbiz-platform/tenant-api/internal/db/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

// ---------------------------------------------------------------------------
// MemoryStore
// ---------------------------------------------------------------------------

func TestMemoryStore_CleanupDropsEndedWindows(t *testing.T) {
	clock := newFakeClock(time.Unix(1000, 0))
	s := NewMemoryStore(clock.Now)
	ctx := context.Background()

	_, _ = s.IncrementAndGet(ctx, 1, 900, 60)  // ended at 960
	_, _ = s.IncrementAndGet(ctx, 1, 960, 60)  // live until 1020
	_, _ = s.IncrementAndGet(ctx, 2, 600, 600) // live until 1200

	assert.Equal(t, 1, s.Cleanup())
	assert.Equal(t, 2, s.Len())

	n, _ := s.IncrementAndGet(ctx, 1, 960, 60)
	assert.Equal(t, int64(2), n)
}

func TestMemoryStore_HonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemoryStore(nil).IncrementAndGet(ctx, 1, 0, 60)
	assert.ErrorIs(t, err, context.Canceled)
}

// ---------------------------------------------------------------------------
// RedisStore
// ---------------------------------------------------------------------------

func TestRedisStore_IncrementSetsExpiry(t *testing.T) {
	mr, rdb := newRedisClient(t)
	mr.SetTime(time.Unix(1704067210, 0))
	s := NewRedisStore(rdb, WithExpiryGrace(30*time.Second))
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := s.IncrementAndGet(ctx, 5, 1704067200, 60)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	key := s.Key(5, 1704067200, 60)
	assert.Equal(t, "tgw:rl:5:60:1704067200", key)
	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "3", got)
	// Window ends at +50s, plus 30s grace.
	assert.Equal(t, 80*time.Second, mr.TTL(key))
}

func TestRedisStore_Unavailable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
	t.Cleanup(func() { rdb.Close() })

	_, err := NewRedisStore(rdb).IncrementAndGet(context.Background(), 1, 0, 60)
	assert.Error(t, err)
}

func TestLimiter_ConcurrentRedisAdmitsExactlyLimit(t *testing.T) {
	_, rdb := newRedisClient(t)
	l := NewLimiter(NewRedisStore(rdb), WithBackendName(BackendRedis))
	assertExactlyLimitAdmitted(t, l, 60, 25)
}

// ---------------------------------------------------------------------------
// SQLStore on SQLite
// ---------------------------------------------------------------------------

func TestLimiter_ConcurrentSQLAdmitsExactlyLimit(t *testing.T) {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := db.Connect(db.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name), 1, 1)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.RunMigrations(conn, db.DriverSQLite, "up"))

	// Counters reference tenants.
	_, err = conn.Exec(`INSERT INTO tenants (id, slug, name) VALUES (99, 'load', 'Load Test')`)
	require.NoError(t, err)

	repo := repositories.NewRateLimitRepository(db.Wrap(conn, db.DriverSQLite))
	l := NewLimiter(NewSQLStore(repo), WithBackendName(BackendSQL))
	assertExactlyLimitAdmitted(t, l, 40, 15)
}
