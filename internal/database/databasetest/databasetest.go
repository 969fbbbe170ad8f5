// Package databasetest opens throwaway databases for tests.
package databasetest

import (
	"testing"

	"todo-api/backend/internal/database"

	"gorm.io/gorm/logger"
)

// NewPool opens a migrated in-memory sqlite database. The pool is pinned
// to one connection because every sqlite :memory: connection is its own
// database.
func NewPool(t testing.TB) *database.DatabasePool {
	t.Helper()

	pool, err := database.NewDatabasePool(&database.PoolConfig{
		Driver:       "sqlite",
		DSN:          "file::memory:?_foreign_keys=on",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		LogLevel:     logger.Silent,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = pool.Close() })

	if err := pool.Migrate(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return pool
}
