// Package testutil prepares a PostgreSQL database for integration tests.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"github.com/johndosdos/livechat/internal/store"
)

func ProjectRoot() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "../../")
}

// DBInit connects to TEST_DB_URL and resets the schema to the latest
// migration. The test is skipped when TEST_DB_URL is not set. The pool is
// closed and the schema torn down when the test finishes.
func DBInit(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if err := godotenv.Load(filepath.Join(ProjectRoot(), ".env")); err != nil {
		t.Logf("failed to load .env file: %+v", err)
	}

	testURL := os.Getenv("TEST_DB_URL")
	if testURL == "" {
		t.Skip("TEST_DB_URL environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, testURL)
	if err != nil {
		t.Fatalf("could not connect to the postgresql database: %v", err)
	}

	dbGooseReset(t, pool)
	if err := store.Migrate(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("store.Migrate() error = %+v", err)
	}

	t.Cleanup(func() {
		dbGooseReset(t, pool)
		pool.Close()
	})

	return pool
}

func dbGooseReset(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	goose.SetBaseFS(store.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		t.Fatalf("goose.SetDialect() error = %+v", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	if err := goose.Reset(db, store.MigrationsDir); err != nil {
		t.Fatalf("goose.Reset() error = %+v", err)
	}
}
