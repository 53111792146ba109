package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/iotagent-ngsi/internal/infrastructure/config"
	"github.com/nerrad567/iotagent-ngsi/internal/infrastructure/database"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("IOTA_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("IOTA_CONFIG", "/etc/iotagent/config.yaml")
	if got := getConfigPath(); got != "/etc/iotagent/config.yaml" {
		t.Errorf("getConfigPath() = %q", got)
	}
}

func TestRun_MissingConfig(t *testing.T) {
	t.Setenv("IOTA_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with a missing config file")
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("IOTA_CONFIG", writeTestConfig(t, `
context_broker:
  host: "orion"
provider_url: ""
`))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if !errors.Is(err, config.ErrBadConfiguration) {
		t.Errorf("run() error = %v, want ErrBadConfiguration", err)
	}
}

// TestRun_SQLiteRegistry starts the agent with only the SQLite registry and
// stops it through the context.
func TestRun_SQLiteRegistry(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "data", "iotagent.db")
	t.Setenv("IOTA_CONFIG", writeTestConfig(t, `
context_broker:
  host: "127.0.0.1"
  port: 1026
provider_url: "http://127.0.0.1:4041"
device_registry:
  type: "sqlite"
database:
  path: "`+dbPath+`"
  wal_mode: true
  busy_timeout: 5
api:
  enabled: false
mqtt:
  enabled: false
influxdb:
  enabled: false
logging:
  level: "error"
`))

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("database file not created: %v", err)
	}

	db, err := database.Open(database.Config{Path: dbPath})
	if err != nil {
		t.Fatalf("reopening database: %v", err)
	}
	defer db.Close()

	for _, table := range []string{"devices", "provisioning_log"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not migrated: %v", table, err)
		}
	}
}
