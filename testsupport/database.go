package testsupport

import (
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/karloscodes/scopedb/database"
)

// TestDBOptions configures test database creation.
type TestDBOptions struct {
	// Models to auto-migrate
	Models []any

	// Enable SQL logging (default: silent)
	Verbose bool
}

// SetupTestDB creates an in-memory SQLite database for testing.
// The pool is pinned to one connection so every session sees the same
// in-memory database.
func SetupTestDB(t *testing.T, opts ...TestDBOptions) *gorm.DB {
	t.Helper()

	var options TestDBOptions
	if len(opts) > 0 {
		options = opts[0]
	}

	logMode := logger.Silent
	if options.Verbose {
		logMode = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                 logger.Default.LogMode(logMode),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("testsupport: failed to access sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		t.Fatalf("testsupport: failed to enable foreign keys: %v", err)
	}

	if len(options.Models) > 0 {
		if err := db.AutoMigrate(options.Models...); err != nil {
			t.Fatalf("testsupport: failed to migrate models: %v", err)
		}
	}

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

// TestDBManager implements scopedb.DBManager for testing.
type TestDBManager struct {
	db *gorm.DB
}

// NewTestDBManager creates a DBManager that wraps a test database.
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{db: db}
}

// GetConnection returns the test database connection.
func (m *TestDBManager) GetConnection() *gorm.DB {
	return m.db
}

// WriteConfig returns a retry policy with millisecond delays so failing
// commits do not slow tests down.
func (m *TestDBManager) WriteConfig() database.TransactionConfig {
	return database.TransactionConfig{
		UseNativeSQLiteQueuing: true,
		MaxRetries:             2,
		BaseDelay:              time.Millisecond,
		MaxDelay:               time.Millisecond,
	}
}
