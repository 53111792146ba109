package database

import (
	"context"
	"embed"
	"testing"
	"time"
)

//go:embed testdata/*.sql
var testMigrationsFS embed.FS

func useTestMigrations(t *testing.T) {
	t.Helper()

	origFS, origDir := MigrationsFS, MigrationsDir
	t.Cleanup(func() {
		MigrationsFS, MigrationsDir = origFS, origDir
	})
	MigrationsFS = testMigrationsFS
	MigrationsDir = "testdata"
}

func TestMigrate(t *testing.T) {
	useTestMigrations(t)
	db := openTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	var tableName string
	if err := db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name='test_devices'",
	).Scan(&tableName); err != nil {
		t.Fatalf("table test_devices not created: %v", err)
	}

	pending, err := db.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected 0 pending migrations, got %d", len(pending))
	}

	// Running again is a no-op.
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrate_SkipsAppliedVersions(t *testing.T) {
	useTestMigrations(t)
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`); err != nil {
		t.Fatalf("creating schema_migrations: %v", err)
	}
	if _, err := db.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES ('20260102_000000', '2026-01-02T00:00:00Z')",
	); err != nil {
		t.Fatalf("marking migration applied: %v", err)
	}

	pending, err := db.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(pending) != 1 || pending[0].Version != "20260101_000000" {
		t.Fatalf("Pending() = %+v, want only 20260101_000000", pending)
	}

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name='idx_test_devices_name'",
	).Scan(&count); err != nil {
		t.Fatalf("querying index: %v", err)
	}
	if count != 0 {
		t.Error("Migrate() re-applied a version already recorded as applied")
	}
}

func TestLoadMigrations_Order(t *testing.T) {
	useTestMigrations(t)

	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != "20260101_000000" || migrations[1].Version != "20260102_000000" {
		t.Errorf("unexpected order: %s, %s", migrations[0].Version, migrations[1].Version)
	}
	if migrations[0].DownSQL == "" {
		t.Error("first migration should carry its down SQL")
	}
	if migrations[0].Name != "test_table" {
		t.Errorf("Name = %q, want test_table", migrations[0].Name)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantName    string
		wantUp      bool
		wantOK      bool
	}{
		{"20260119_120000_devices.up.sql", "20260119_120000", "devices", true, true},
		{"20260119_120000_devices.down.sql", "20260119_120000", "devices", false, true},
		{"20260119_120000.up.sql", "20260119_120000", "", true, true},
		{"20260119_120000_devices.sql", "", "", false, false},
		{"README.md", "", "", false, false},
		{"nounderscore.up.sql", "", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, up, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOK || version != tt.wantVersion || name != tt.wantName || up != tt.wantUp {
				t.Errorf("parseMigrationFilename(%q) = (%q, %q, %v, %v), want (%q, %q, %v, %v)",
					tt.filename, version, name, up, ok, tt.wantVersion, tt.wantName, tt.wantUp, tt.wantOK)
			}
		})
	}
}

func TestLoadMigrations_NoFS(t *testing.T) {
	origFS := MigrationsFS
	t.Cleanup(func() { MigrationsFS = origFS })
	MigrationsFS = embed.FS{}

	migrations, err := loadMigrations()
	if err != nil || migrations != nil {
		t.Errorf("loadMigrations() = %v, %v; want nil, nil", migrations, err)
	}
}
