// Package dbtest opens throwaway databases for repository tests.
package dbtest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/library-backend/pkg/config"
	"github.com/angelmondragon/library-backend/pkg/db"
	"github.com/angelmondragon/library-backend/pkg/logger"
	"github.com/angelmondragon/library-backend/pkg/migrate"
)

// EnvPostgresDSN points the concurrency tests at a real Postgres database.
const EnvPostgresDSN = "LIBRARY_TEST_POSTGRES_DSN"

const concurrentConns = 8

// NewClient returns a migrated sqlite client private to the calling test.
// It holds a single connection, so transactions never overlap.
func NewClient(t testing.TB) *db.Client {
	t.Helper()
	return open(t, config.DBConfig{
		Driver: config.DriverSQLite,
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	})
}

// NewConcurrentClient returns a client whose pool lets transactions run at
// the same time. It targets Postgres when LIBRARY_TEST_POSTGRES_DSN is set
// and otherwise a file-backed sqlite database in WAL mode, where writers
// queue on the database lock for up to the busy timeout.
func NewConcurrentClient(t testing.TB) *db.Client {
	t.Helper()
	if dsn := os.Getenv(EnvPostgresDSN); dsn != "" {
		return NewPostgresClient(t)
	}
	path := filepath.Join(t.TempDir(), "library.db")
	return open(t, config.DBConfig{
		Driver:       config.DriverSQLite,
		DSN:          fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=10000&_txlock=immediate", path),
		MaxOpenConns: concurrentConns,
	})
}

// NewPostgresClient runs the goose migrations against LIBRARY_TEST_POSTGRES_DSN
// and skips the test when it is unset. Rows are left behind; tests must key
// their assertions on the ids they create.
func NewPostgresClient(t testing.TB) *db.Client {
	t.Helper()
	dsn := os.Getenv(EnvPostgresDSN)
	if dsn == "" {
		t.Skipf("%s not set", EnvPostgresDSN)
	}
	ctx := context.Background()
	client, err := db.New(ctx, config.DBConfig{
		Driver:       config.DriverPostgres,
		DSN:          dsn,
		MaxOpenConns: concurrentConns,
	}, logger.Nop())
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	sqlDB, err := client.SQL()
	if err != nil {
		t.Fatalf("postgres handle: %v", err)
	}
	if err := migrate.Run(ctx, sqlDB, migrate.DefaultDir, "up"); err != nil {
		t.Fatalf("migrate postgres: %v", err)
	}
	return client
}

func open(t testing.TB, cfg config.DBConfig) *db.Client {
	t.Helper()
	client, err := db.New(context.Background(), cfg, logger.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	if err := migrate.AutoMigrateModels(client.DB()); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return client
}
