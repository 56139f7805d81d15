package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/smallbiz-platform/tenant-api/internal/db/models"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var errTenantDB = errors.New("tenant db error")

var tenantCols = []string{"id", "slug", "name", "status", "requests_per_window", "created_at", "updated_at"}

func newTenantRepo(t *testing.T) (*TenantRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewTenantRepository(sqlx.NewDb(db, "sqlmock")), mock
}

// ---------------------------------------------------------------------------
// CreateTenant
// ---------------------------------------------------------------------------

func TestCreateTenant_Success(t *testing.T) {
	repo, mock := newTenantRepo(t)
	mock.ExpectQuery("INSERT INTO tenants").
		WithArgs("acme", "Acme Bakery", models.TenantStatusActive, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	tenant := &models.Tenant{Slug: "acme", Name: "Acme Bakery"}
	if err := repo.CreateTenant(context.Background(), tenant); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tenant.ID != 7 {
		t.Errorf("ID = %d, want 7", tenant.ID)
	}
	if tenant.Status != models.TenantStatusActive {
		t.Errorf("Status = %q, want active default", tenant.Status)
	}
	if tenant.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestCreateTenant_Error(t *testing.T) {
	repo, mock := newTenantRepo(t)
	mock.ExpectQuery("INSERT INTO tenants").WillReturnError(errTenantDB)

	if err := repo.CreateTenant(context.Background(), &models.Tenant{Slug: "x", Name: "X"}); !errors.Is(err, errTenantDB) {
		t.Errorf("err = %v, want errTenantDB", err)
	}
}

// ---------------------------------------------------------------------------
// GetTenantByID / GetTenantBySlug
// ---------------------------------------------------------------------------

func TestGetTenantByID_Found(t *testing.T) {
	repo, mock := newTenantRepo(t)
	now := time.Now()
	mock.ExpectQuery("SELECT .+ FROM tenants WHERE id").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(tenantCols).AddRow(3, "acme", "Acme", "suspended", 50, now, now))

	tenant, err := repo.GetTenantByID(context.Background(), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tenant == nil {
		t.Fatal("expected tenant, got nil")
	}
	if tenant.Status != models.TenantStatusSuspended {
		t.Errorf("Status = %q, want suspended", tenant.Status)
	}
	if tenant.RequestsPerWindow == nil || *tenant.RequestsPerWindow != 50 {
		t.Errorf("RequestsPerWindow = %v, want 50", tenant.RequestsPerWindow)
	}
}

func TestGetTenantByID_NotFound(t *testing.T) {
	repo, mock := newTenantRepo(t)
	mock.ExpectQuery("SELECT .+ FROM tenants WHERE id").
		WillReturnRows(sqlmock.NewRows(tenantCols))

	tenant, err := repo.GetTenantByID(context.Background(), 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tenant != nil {
		t.Errorf("expected nil tenant, got %+v", tenant)
	}
}

func TestGetTenantBySlug_Error(t *testing.T) {
	repo, mock := newTenantRepo(t)
	mock.ExpectQuery("SELECT .+ FROM tenants WHERE slug").WillReturnError(errTenantDB)

	if _, err := repo.GetTenantBySlug(context.Background(), "acme"); !errors.Is(err, errTenantDB) {
		t.Errorf("err = %v, want errTenantDB", err)
	}
}

// ---------------------------------------------------------------------------
// ListTenants
// ---------------------------------------------------------------------------

func TestListTenants(t *testing.T) {
	repo, mock := newTenantRepo(t)
	now := time.Now()
	mock.ExpectQuery("SELECT .+ FROM tenants ORDER BY id").
		WillReturnRows(sqlmock.NewRows(tenantCols).
			AddRow(1, "a", "A", "active", nil, now, now).
			AddRow(2, "b", "B", "active", nil, now, now))

	tenants, err := repo.ListTenants(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tenants) != 2 {
		t.Fatalf("len = %d, want 2", len(tenants))
	}
	if tenants[0].RequestsPerWindow != nil {
		t.Error("expected nil quota override for first tenant")
	}
}

// ---------------------------------------------------------------------------
// UpdateTenantStatus
// ---------------------------------------------------------------------------

func TestUpdateTenantStatus_Success(t *testing.T) {
	repo, mock := newTenantRepo(t)
	mock.ExpectExec("UPDATE tenants SET status").
		WithArgs(models.TenantStatusSuspended, sqlmock.AnyArg(), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateTenantStatus(context.Background(), 4, models.TenantStatusSuspended); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpdateTenantStatus_NotFound(t *testing.T) {
	repo, mock := newTenantRepo(t)
	mock.ExpectExec("UPDATE tenants SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateTenantStatus(context.Background(), 4, models.TenantStatusActive)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
