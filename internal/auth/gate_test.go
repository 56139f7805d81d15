package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smallbiz-platform/tenant-api/internal/db/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGlobalSalt = "test-pepper"

// fakeKeyStore is an in-memory KeyStore keyed by public id.
type fakeKeyStore struct {
	mu      sync.Mutex
	records map[string]*models.CredentialRecord
	err     error
	delay   time.Duration
	calls   int
}

func newFakeKeyStore() *fakeKeyStore {
	return &fakeKeyStore{records: make(map[string]*models.CredentialRecord)}
}

func (f *fakeKeyStore) FindCredentialByPublicID(ctx context.Context, publicID string) (*models.CredentialRecord, error) {
	f.mu.Lock()
	f.calls++
	err, delay, rec := f.err, f.delay, f.records[publicID]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// issue generates a credential for tenant 42 and stores its record.
func (f *fakeKeyStore) issue(t *testing.T, scopes ...string) (*Credential, *models.CredentialRecord) {
	t.Helper()
	cred, err := GenerateCredential("tk_", testGlobalSalt)
	require.NoError(t, err)
	rec := &models.CredentialRecord{
		CredentialID: 7,
		PublicID:     cred.PublicID,
		TenantID:     42,
		TenantSlug:   "acme",
		TenantStatus: models.TenantStatusActive,
		Salt:         cred.Salt,
		KeyHash:      cred.Hash,
		Scopes:       scopes,
	}
	f.mu.Lock()
	f.records[cred.PublicID] = rec
	f.mu.Unlock()
	return cred, rec
}

func bearer(key string) string { return "Bearer " + key }

func TestGate_RoundTrip(t *testing.T) {
	store := newFakeKeyStore()
	cred, _ := store.issue(t, "bot:read", "usage:read")
	gate := NewGate(store, testGlobalSalt)

	ac, err := gate.Authenticate(context.Background(), bearer(cred.APIKey), ScopeBotRead)
	require.NoError(t, err)
	assert.Equal(t, int64(42), ac.TenantID)
	assert.Equal(t, int64(7), ac.CredentialID)
	assert.Equal(t, cred.PublicID, ac.PublicID)
	assert.Equal(t, "acme", ac.TenantSlug)
	assert.ElementsMatch(t, []string{"bot:read", "usage:read"}, ac.Scopes)
}

func TestGate_TamperedSecret(t *testing.T) {
	store := newFakeKeyStore()
	cred, _ := store.issue(t)
	gate := NewGate(store, testGlobalSalt)

	b := []byte(cred.APIKey)
	last := len(b) - 1
	if b[last] == '0' {
		b[last] = '1'
	} else {
		b[last] = '0'
	}

	_, err := gate.Authenticate(context.Background(), bearer(string(b)))
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestGate_WrongGlobalSalt(t *testing.T) {
	store := newFakeKeyStore()
	cred, _ := store.issue(t)

	_, err := NewGate(store, "another-pepper").Authenticate(context.Background(), bearer(cred.APIKey))
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestGate_UnknownAndRevokedAreIndistinguishable(t *testing.T) {
	store := newFakeKeyStore()
	cred, rec := store.issue(t)
	revokedAt := time.Now().Add(-time.Minute)
	rec.RevokedAt = &revokedAt
	gate := NewGate(store, testGlobalSalt)

	_, errRevoked := gate.Authenticate(context.Background(), bearer(cred.APIKey))
	_, errUnknown := gate.Authenticate(context.Background(), bearer("tk_000000000000."+cred.Secret))

	assert.ErrorIs(t, errRevoked, ErrUnauthenticated)
	assert.ErrorIs(t, errUnknown, ErrUnauthenticated)
	assert.False(t, errors.Is(errRevoked, ErrForbidden))
}

func TestGate_MalformedHeader(t *testing.T) {
	store := newFakeKeyStore()
	gate := NewGate(store, testGlobalSalt)

	for _, h := range []string{"", "Basic abc", "Bearer nodot", "Bearer .x"} {
		_, err := gate.Authenticate(context.Background(), h)
		assert.ErrorIs(t, err, ErrUnauthenticated, "header %q", h)
	}
	assert.Zero(t, store.calls, "malformed headers must not reach the store")
}

func TestGate_SuspendedTenantForbidden(t *testing.T) {
	store := newFakeKeyStore()
	cred, rec := store.issue(t, "bot:read")
	rec.TenantStatus = models.TenantStatusSuspended

	_, err := NewGate(store, testGlobalSalt).Authenticate(context.Background(), bearer(cred.APIKey))
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestGate_Scopes(t *testing.T) {
	store := newFakeKeyStore()
	cred, _ := store.issue(t, "bookings:write", "bot:read")
	gate := NewGate(store, testGlobalSalt)
	ctx := context.Background()

	_, err := gate.Authenticate(ctx, bearer(cred.APIKey))
	assert.NoError(t, err, "no required scopes")

	_, err = gate.Authenticate(ctx, bearer(cred.APIKey), ScopeBookingsWrite, ScopeBotRead)
	assert.NoError(t, err, "exact subset")

	_, err = gate.Authenticate(ctx, bearer(cred.APIKey), ScopeBookingsRead)
	assert.ErrorIs(t, err, ErrForbidden, "write must not imply read")

	_, err = gate.Authenticate(ctx, bearer(cred.APIKey), ScopeBotRead, ScopeBillingRead)
	assert.ErrorIs(t, err, ErrForbidden, "one missing scope")
}

func TestGate_StoreError(t *testing.T) {
	store := newFakeKeyStore()
	cred, _ := store.issue(t)
	dbErr := errors.New("connection reset")
	store.err = dbErr

	_, err := NewGate(store, testGlobalSalt).Authenticate(context.Background(), bearer(cred.APIKey))
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, dbErr)
	assert.False(t, errors.Is(err, ErrUnauthenticated))
}

func TestGate_LookupTimeout(t *testing.T) {
	store := newFakeKeyStore()
	cred, _ := store.issue(t)
	store.delay = time.Second

	gate := NewGate(store, testGlobalSalt, WithLookupTimeout(20*time.Millisecond))
	start := time.Now()
	_, err := gate.Authenticate(context.Background(), bearer(cred.APIKey))

	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestContextRoundTrip(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ac := &AuthContext{TenantID: 1, Scopes: []string{"bot:read"}}
	got, ok := FromContext(NewContext(context.Background(), ac))
	require.True(t, ok)
	assert.Same(t, ac, got)
}
