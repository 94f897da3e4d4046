package database_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/karloscodes/scopedb/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type TestModel struct {
	ID   uint `gorm:"primarykey"`
	Name string
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&TestModel{}))
	return db
}

func TestPerformWrite_Success(t *testing.T) {
	db := setupTestDB(t)
	log := slog.Default()

	err := database.PerformWrite(context.Background(), log, db, func(tx *gorm.DB) error {
		return tx.Create(&TestModel{Name: "test"}).Error
	})
	require.NoError(t, err)

	var count int64
	db.Model(&TestModel{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestPerformWrite_Rollback(t *testing.T) {
	db := setupTestDB(t)
	log := slog.Default()

	err := database.PerformWrite(context.Background(), log, db, func(tx *gorm.DB) error {
		if err := tx.Create(&TestModel{Name: "test"}).Error; err != nil {
			return err
		}
		return errors.New("intentional error")
	})
	require.Error(t, err)
	assert.Equal(t, "intentional error", err.Error())

	var count int64
	db.Model(&TestModel{}).Count(&count)
	assert.Equal(t, int64(0), count, "Transaction should have been rolled back")
}

func TestPerformWriteWithConfig_MutexMode(t *testing.T) {
	db := setupTestDB(t)
	log := slog.Default()

	cfg := database.TransactionConfig{
		UseNativeSQLiteQueuing: false,
		MaxRetries:             3,
	}

	err := database.PerformWriteWithConfig(context.Background(), log, db, func(tx *gorm.DB) error {
		return tx.Create(&TestModel{Name: "mutex-test"}).Error
	}, cfg)
	require.NoError(t, err)

	var count int64
	db.Model(&TestModel{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestDefaultTransactionConfig(t *testing.T) {
	cfg := database.DefaultTransactionConfig()

	assert.True(t, cfg.UseNativeSQLiteQueuing, "Default should use native SQLite queuing")
	assert.Equal(t, 10, cfg.MaxRetries)
	assert.Greater(t, cfg.BaseDelay.Milliseconds(), int64(0))
	assert.Greater(t, cfg.MaxDelay.Seconds(), float64(0))
}

func TestPerformWriteWithConfig_RetriesBusyErrors(t *testing.T) {
	db := setupTestDB(t)
	log := slog.Default()

	cfg := database.TransactionConfig{
		UseNativeSQLiteQueuing: true,
		MaxRetries:             3,
		BaseDelay:              time.Millisecond,
		MaxDelay:               5 * time.Millisecond,
	}

	attempts := 0
	err := database.PerformWriteWithConfig(context.Background(), log, db, func(tx *gorm.DB) error {
		attempts++
		if attempts < 3 {
			return errors.New("database is locked")
		}
		return tx.Create(&TestModel{Name: "third-time"}).Error
	}, cfg)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	var count int64
	db.Model(&TestModel{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestPerformWriteWithConfig_ZeroRetriesRunsOnce(t *testing.T) {
	db := setupTestDB(t)

	attempts := 0
	err := database.PerformWriteWithConfig(context.Background(), nil, db, func(tx *gorm.DB) error {
		attempts++
		return tx.Create(&TestModel{Name: "once"}).Error
	}, database.TransactionConfig{UseNativeSQLiteQueuing: true})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestPerformWriteWithConfig_CanceledDuringBackoff(t *testing.T) {
	db := setupTestDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	cfg := database.TransactionConfig{
		UseNativeSQLiteQueuing: true,
		MaxRetries:             5,
		BaseDelay:              time.Second,
		MaxDelay:               time.Second,
	}

	err := database.PerformWriteWithConfig(ctx, slog.Default(), db, func(tx *gorm.DB) error {
		cancel()
		return errors.New("database is busy")
	}, cfg)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPerformWriteWithConfig_ExhaustedRetries(t *testing.T) {
	db := setupTestDB(t)
	busy := errors.New("database is locked")

	attempts := 0
	err := database.PerformWriteWithConfig(context.Background(), nil, db, func(tx *gorm.DB) error {
		attempts++
		return busy
	}, database.TransactionConfig{
		UseNativeSQLiteQueuing: false,
		MaxRetries:             2,
		BaseDelay:              time.Millisecond,
		MaxDelay:               time.Millisecond,
	})

	assert.Equal(t, 2, attempts)
	assert.ErrorIs(t, err, database.ErrRetriesExhausted)
	assert.ErrorIs(t, err, busy)
}

func TestIsBusy(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("database is locked"), true},
		{errors.New("SQLITE_BUSY: database is busy"), true},
		{errors.New("cannot commit transaction - SQL statements in progress"), true},
		{errors.New("UNIQUE constraint failed: notes.title"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, database.IsBusy(tt.err), "%v", tt.err)
	}
}
