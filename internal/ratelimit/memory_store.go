package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiz-platform/tenant-api/internal/safego"
)

type windowKey struct {
	tenantID      int64
	windowStart   int64
	windowSeconds int64
}

// MemoryStore keeps counters in process memory. The mutex is the atomic unit, so it is
// only a shared counter for requests served by this process: use it for tests and
// single-node development.
type MemoryStore struct {
	mu       sync.Mutex
	counts   map[windowKey]int64
	now      func() time.Time
	interval time.Duration
}

// NewMemoryStore creates an empty MemoryStore. now drives expiry in Cleanup; nil means time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		counts:   make(map[windowKey]int64),
		now:      now,
		interval: time.Minute,
	}
}

// IncrementAndGet implements Store.
func (s *MemoryStore) IncrementAndGet(ctx context.Context, tenantID, windowStart, windowSeconds int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	k := windowKey{tenantID: tenantID, windowStart: windowStart, windowSeconds: windowSeconds}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[k]++
	return s.counts[k], nil
}

// Cleanup drops windows that ended before now and returns how many were removed.
func (s *MemoryStore) Cleanup() int {
	now := s.now().Unix()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k := range s.counts {
		if k.windowStart+k.windowSeconds <= now {
			delete(s.counts, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of live windows.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counts)
}

// StartJanitor runs Cleanup every minute until ctx is cancelled.
func (s *MemoryStore) StartJanitor(ctx context.Context) {
	safego.Go("memory-store-janitor", func() {
		t := time.NewTicker(s.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	})
}
