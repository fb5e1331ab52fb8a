package testutil

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/journeys-backend/internal/data/db"
	"github.com/yungbote/journeys-backend/internal/platform/logger"
)

var (
	logOnce sync.Once
	logg    *logger.Logger
	logErr  error
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

// DB opens a private in-memory SQLite database with the schema migrated.
// The pool holds one connection, so every statement, inside or outside a
// transaction, runs on the same session.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	return open(tb, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), 1)
}

// FileDB opens a migrated SQLite file in WAL mode with several connections.
// A read transaction keeps its snapshot while writers on other connections
// commit, which is what tests of interleaved reads and writes need.
func FileDB(tb testing.TB) *gorm.DB {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), "journeys.db")
	return open(tb, "file:"+path+"?_journal_mode=WAL&_busy_timeout=5000", 4)
}

func open(tb testing.TB, dsn string, maxConns int) *gorm.DB {
	tb.Helper()
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		tb.Fatalf("sqlite pool: %v", err)
	}
	sqlDB.SetMaxOpenConns(maxConns)
	tb.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrateAll(gdb); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	if err := db.EnsureJourneyIndexes(gdb); err != nil {
		tb.Fatalf("indexes: %v", err)
	}
	return gdb
}

func Tx(tb testing.TB, gdb *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := gdb.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback().Error
	})
	return tx
}
