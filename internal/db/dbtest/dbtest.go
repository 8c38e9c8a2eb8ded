// Package dbtest opens the integration-test database. Tests using it are
// skipped unless TEST_DATABASE_DSN is set.
package dbtest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

const dsnEnv = "TEST_DATABASE_DSN"

// Open returns a pool against TEST_DATABASE_DSN with all migrations applied
// and the given tables truncated before and after the test.
func Open(t *testing.T, tables ...string) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skipf("%s not set, skipping integration test", dsnEnv)
	}

	migrateDSN := "pgx5://" + strings.TrimPrefix(strings.TrimPrefix(dsn, "postgres://"), "postgresql://")
	m, err := migrate.New("file://"+migrationsDir(), migrateDSN)
	require.NoError(t, err, "failed to init migrations")
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("failed to apply migrations: %v", err)
	}
	m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err, "failed to connect to test database")
	require.NoError(t, pool.Ping(ctx), "failed to ping test database")

	truncate(t, pool, tables)
	t.Cleanup(func() {
		truncate(t, pool, tables)
		pool.Close()
	})

	return pool
}

func truncate(t *testing.T, pool *pgxpool.Pool, tables []string) {
	t.Helper()
	if len(tables) == 0 {
		return
	}
	_, err := pool.Exec(context.Background(), "TRUNCATE TABLE "+strings.Join(tables, ", ")+" CASCADE")
	require.NoError(t, err, "failed to truncate tables")
}

func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "..", "migrations")
}
