package db

import (
	"fmt"
	"strings"
	"testing"
)

func memoryDSN(t *testing.T) string {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	return fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name)
}

func TestConnect_UnsupportedDriver(t *testing.T) {
	if _, err := Connect("mysql", "whatever", 1, 1); err == nil {
		t.Fatal("Connect() expected error for unsupported driver")
	}
}

func TestRunMigrations_SQLiteUpAndDown(t *testing.T) {
	database, err := Connect(DriverSQLite, memoryDSN(t), 1, 1)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := RunMigrations(database, DriverSQLite, "up"); err != nil {
		t.Fatalf("RunMigrations(up): %v", err)
	}
	// Second run is a no-op rather than an error.
	if err := RunMigrations(database, DriverSQLite, "up"); err != nil {
		t.Fatalf("RunMigrations(up) again: %v", err)
	}

	version, dirty, err := GetMigrationVersion(database, DriverSQLite)
	if err != nil {
		t.Fatalf("GetMigrationVersion: %v", err)
	}
	if version != 2 || dirty {
		t.Errorf("version = %d dirty = %v, want 2 clean", version, dirty)
	}

	for _, table := range []string{"tenants", "api_credentials", "rate_limit_windows"} {
		var n int
		if err := database.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			t.Errorf("table %s not queryable after migration: %v", table, err)
		}
	}

	if err := RunMigrations(database, DriverSQLite, "down"); err != nil {
		t.Fatalf("RunMigrations(down): %v", err)
	}
	var n int
	if err := database.QueryRow("SELECT COUNT(*) FROM tenants").Scan(&n); err == nil {
		t.Error("tenants table still present after down migration")
	}
}

func TestRunMigrations_InvalidDirection(t *testing.T) {
	database, err := Connect(DriverSQLite, memoryDSN(t), 1, 1)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := RunMigrations(database, DriverSQLite, "sideways"); err == nil {
		t.Error("RunMigrations() expected error for invalid direction")
	}
}

func TestRevocationIsTerminal_SQLiteTrigger(t *testing.T) {
	database, err := Connect(DriverSQLite, memoryDSN(t), 1, 1)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := RunMigrations(database, DriverSQLite, "up"); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}

	mustExec := func(q string, args ...any) {
		t.Helper()
		if _, err := database.Exec(q, args...); err != nil {
			t.Fatalf("exec %q: %v", q, err)
		}
	}
	mustExec(`INSERT INTO tenants (slug, name) VALUES ('acme', 'Acme')`)
	mustExec(`INSERT INTO api_credentials (tenant_id, public_id, salt, key_hash) VALUES (1, 'tk_abc', 's', 'h')`)
	mustExec(`UPDATE api_credentials SET revoked_at = CURRENT_TIMESTAMP WHERE public_id = 'tk_abc'`)

	if _, err := database.Exec(`UPDATE api_credentials SET revoked_at = NULL WHERE public_id = 'tk_abc'`); err == nil {
		t.Error("clearing revoked_at succeeded, want trigger to abort")
	}
}
