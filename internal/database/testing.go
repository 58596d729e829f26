package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/config"
)

// SetupTestDB connects to the test database and applies the schema. Tests
// calling it are skipped unless RACING_TEST_DB_HOST is set.
func SetupTestDB(t *testing.T) *DB {
	t.Helper()

	host := os.Getenv("RACING_TEST_DB_HOST")
	if host == "" {
		t.Skip("RACING_TEST_DB_HOST not set; skipping database test")
	}

	cfg := &config.DatabaseConfig{
		Host:           host,
		Port:           5432,
		Name:           envOr("RACING_TEST_DB_NAME", "racing_test"),
		User:           envOr("RACING_TEST_DB_USER", "racing"),
		Password:       os.Getenv("RACING_TEST_DB_PASSWORD"),
		SSLMode:        "disable",
		MaxConnections: 4,
		MinConnections: 1,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := NewDB(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		t.Fatalf("failed to apply test schema: %v", err)
	}

	return db
}

// TeardownTestDB truncates the pipeline tables and closes the pool.
func TeardownTestDB(t *testing.T, db *DB) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, table := range []string{"predictions", "backtest_results", "observations"} {
		if _, err := db.pool.Exec(ctx, "TRUNCATE TABLE "+table); err != nil {
			t.Logf("warning: failed to truncate %s: %v", table, err)
		}
	}
	db.Close()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
