package auth

import (
	"context"
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/smallbiz-platform/tenant-api/internal/db/models"
	"github.com/smallbiz-platform/tenant-api/internal/telemetry"
)

// CachedKeyStore decorates a KeyStore with a size-bounded, TTL-bounded cache.
//
// Found and not-found results are cached; errors never are. A revocation or suspension
// therefore takes effect within one TTL on every node, and immediately on the node that
// called Invalidate.
type CachedKeyStore struct {
	next  KeyStore
	cache *expirable.LRU[string, *models.CredentialRecord]
}

// NewCachedKeyStore wraps next with a cache of at most size entries living ttl each.
func NewCachedKeyStore(next KeyStore, size int, ttl time.Duration) *CachedKeyStore {
	return &CachedKeyStore{
		next:  next,
		cache: expirable.NewLRU[string, *models.CredentialRecord](size, nil, ttl),
	}
}

// FindCredentialByPublicID implements KeyStore. Callers get their own copy of the record;
// the cached entry is never handed out.
func (s *CachedKeyStore) FindCredentialByPublicID(ctx context.Context, publicID string) (*models.CredentialRecord, error) {
	if rec, ok := s.cache.Get(publicID); ok {
		telemetry.CredentialCacheLookupsTotal.WithLabelValues("hit").Inc()
		return cloneRecord(rec), nil
	}
	telemetry.CredentialCacheLookupsTotal.WithLabelValues("miss").Inc()

	rec, err := s.next.FindCredentialByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}
	// rec may be nil: a negative entry.
	s.cache.Add(publicID, cloneRecord(rec))
	return rec, nil
}

func cloneRecord(rec *models.CredentialRecord) *models.CredentialRecord {
	if rec == nil {
		return nil
	}
	c := *rec
	c.Scopes = slices.Clone(rec.Scopes)
	if rec.TenantQuota != nil {
		q := *rec.TenantQuota
		c.TenantQuota = &q
	}
	if rec.RevokedAt != nil {
		at := *rec.RevokedAt
		c.RevokedAt = &at
	}
	return &c
}

// Invalidate drops any cached entry for publicID.
func (s *CachedKeyStore) Invalidate(publicID string) {
	s.cache.Remove(publicID)
}

// Len returns the number of cached entries, expired ones included until they are evicted.
func (s *CachedKeyStore) Len() int {
	return s.cache.Len()
}
