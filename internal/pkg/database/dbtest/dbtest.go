// Package dbtest opens throwaway SQLite databases with the service schema
// for package tests.
package dbtest

import (
	"testing"

	"github.com/postflow-ai/postflow/internal/domain/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// contentsDDL replaces the Postgres text[] column with plain text; pq
// arrays round-trip through their "{a,b}" literal form.
const contentsDDL = `CREATE TABLE contents (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	caption TEXT,
	media_type TEXT DEFAULT 'text',
	media_keys TEXT,
	created_at DATETIME,
	updated_at DATETIME
)`

// Open returns an in-memory database migrated with every service table.
// The pool is pinned to one connection since each SQLite :memory:
// connection is its own database.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Exec(contentsDDL).Error)
	require.NoError(t, db.AutoMigrate(
		&models.SocialAccount{},
		&models.Schedule{},
		&models.ExecutionAttempt{},
	))

	return db
}
