package repositories

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/smallbiz-platform/tenant-api/internal/db"
	"github.com/smallbiz-platform/tenant-api/internal/db/models"
)

// newSQLiteDB opens a migrated in-memory SQLite database private to the test.
func newSQLiteDB(t *testing.T) *sqlx.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name)

	conn, err := db.Connect(db.DriverSQLite, dsn, 1, 1)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := db.RunMigrations(conn, db.DriverSQLite, "up"); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	return db.Wrap(conn, db.DriverSQLite)
}

func seedTenant(t *testing.T, x *sqlx.DB, slug string) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{Slug: slug, Name: strings.ToUpper(slug)}
	if err := NewTenantRepository(x).CreateTenant(context.Background(), tenant); err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}
	return tenant
}

func TestSQLite_CredentialLifecycle(t *testing.T) {
	x := newSQLiteDB(t)
	ctx := context.Background()
	tenant := seedTenant(t, x, "acme")
	creds := NewCredentialRepository(x)

	cred := &models.APICredential{
		TenantID: tenant.ID, PublicID: "tk_0123456789ab", Name: "pos",
		Salt: "salt", KeyHash: "hash", Scopes: []string{"bot:read", "usage:read"},
	}
	if err := creds.CreateCredential(ctx, cred); err != nil {
		t.Fatalf("CreateCredential: %v", err)
	}

	rec, err := creds.FindCredentialByPublicID(ctx, cred.PublicID)
	if err != nil || rec == nil {
		t.Fatalf("FindCredentialByPublicID = %v, %v", rec, err)
	}
	if rec.TenantSlug != "acme" || rec.TenantStatus != models.TenantStatusActive || rec.RevokedAt != nil {
		t.Errorf("unexpected record: %+v", rec)
	}
	if len(rec.Scopes) != 2 {
		t.Errorf("Scopes = %v", rec.Scopes)
	}

	if err := creds.RevokeCredential(ctx, cred.PublicID, time.Now()); err != nil {
		t.Fatalf("RevokeCredential: %v", err)
	}
	if err := creds.RevokeCredential(ctx, cred.PublicID, time.Now()); !errors.Is(err, ErrAlreadyRevoked) {
		t.Errorf("second RevokeCredential err = %v, want ErrAlreadyRevoked", err)
	}
	if err := creds.RevokeCredential(ctx, "tk_missing", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Errorf("RevokeCredential(missing) err = %v, want ErrNotFound", err)
	}

	rec, err = creds.FindCredentialByPublicID(ctx, cred.PublicID)
	if err != nil {
		t.Fatalf("FindCredentialByPublicID: %v", err)
	}
	if rec.RevokedAt == nil {
		t.Error("expected RevokedAt after revocation")
	}

	list, err := creds.ListCredentialsByTenant(ctx, tenant.ID)
	if err != nil {
		t.Fatalf("ListCredentialsByTenant: %v", err)
	}
	if len(list) != 1 || !list[0].Revoked() {
		t.Errorf("list = %+v, want one revoked credential", list)
	}
}

func TestSQLite_SuspendTenantVisibleThroughLookup(t *testing.T) {
	x := newSQLiteDB(t)
	ctx := context.Background()
	tenant := seedTenant(t, x, "bistro")
	creds := NewCredentialRepository(x)

	cred := &models.APICredential{TenantID: tenant.ID, PublicID: "tk_aaaaaaaaaaaa", Salt: "s", KeyHash: "h"}
	if err := creds.CreateCredential(ctx, cred); err != nil {
		t.Fatalf("CreateCredential: %v", err)
	}
	if err := NewTenantRepository(x).UpdateTenantStatus(ctx, tenant.ID, models.TenantStatusSuspended); err != nil {
		t.Fatalf("UpdateTenantStatus: %v", err)
	}

	rec, err := creds.FindCredentialByPublicID(ctx, cred.PublicID)
	if err != nil {
		t.Fatalf("FindCredentialByPublicID: %v", err)
	}
	if rec.TenantStatus != models.TenantStatusSuspended {
		t.Errorf("TenantStatus = %q, want suspended", rec.TenantStatus)
	}
}

func TestSQLite_IncrementAndGetConcurrent(t *testing.T) {
	x := newSQLiteDB(t)
	tenant := seedTenant(t, x, "cafe")
	repo := NewRateLimitRepository(x)

	const callers = 50
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		counts []int64
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := repo.IncrementAndGet(context.Background(), tenant.ID, 6000, 60)
			if err != nil {
				t.Errorf("IncrementAndGet: %v", err)
				return
			}
			mu.Lock()
			counts = append(counts, n)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(counts) != callers {
		t.Fatalf("got %d counts, want %d", len(counts), callers)
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i] < counts[j] })
	for i, n := range counts {
		if n != int64(i+1) {
			t.Fatalf("counts[%d] = %d, want %d (every caller sees a distinct count)", i, n, i+1)
		}
	}
}

func TestSQLite_WindowsAreIndependent(t *testing.T) {
	x := newSQLiteDB(t)
	ctx := context.Background()
	a := seedTenant(t, x, "a")
	b := seedTenant(t, x, "b")
	repo := NewRateLimitRepository(x)

	for i := 0; i < 3; i++ {
		if _, err := repo.IncrementAndGet(ctx, a.ID, 60, 60); err != nil {
			t.Fatal(err)
		}
	}
	if n, _ := repo.IncrementAndGet(ctx, b.ID, 60, 60); n != 1 {
		t.Errorf("other tenant count = %d, want 1", n)
	}
	if n, _ := repo.IncrementAndGet(ctx, a.ID, 120, 60); n != 1 {
		t.Errorf("next window count = %d, want 1", n)
	}
	if n, _ := repo.IncrementAndGet(ctx, a.ID, 60, 30); n != 1 {
		t.Errorf("different window size count = %d, want 1", n)
	}

	// An hour-long window from an earlier configuration is still live at 121.
	if _, err := repo.IncrementAndGet(ctx, a.ID, 0, 3600); err != nil {
		t.Fatal(err)
	}

	deleted, err := repo.DeleteExpiredWindows(ctx, 121, 1)
	if err != nil {
		t.Fatalf("DeleteExpiredWindows: %v", err)
	}
	if deleted != 3 {
		t.Errorf("deleted = %d, want 3", deleted)
	}
	if n, _ := repo.IncrementAndGet(ctx, a.ID, 120, 60); n != 2 {
		t.Errorf("surviving window count = %d, want 2", n)
	}
	if n, _ := repo.IncrementAndGet(ctx, a.ID, 0, 3600); n != 2 {
		t.Errorf("longer window count = %d, want 2 (row must survive)", n)
	}
}
