package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"
)

// ErrClosed is returned by Ping when no connection is open.
var ErrClosed = errors.New("database: connection closed")

// Manager owns one GORM connection pool for a Driver. The pool is opened on
// first use; after Close the next Connect opens a new one. Sessions draw
// their handle, logger and write policy from it.
type Manager struct {
	driver Driver
	cfg    *Config
	logger *slog.Logger

	mu     sync.Mutex
	handle *gorm.DB
}

// NewManager creates a manager. A nil cfg means DefaultConfig("").
func NewManager(driver Driver, cfg *Config, logger *slog.Logger) *Manager {
	if cfg == nil {
		cfg = DefaultConfig("")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{driver: driver, cfg: cfg, logger: logger}
}

// Connect returns a fresh GORM session on the pool, opening the pool if
// needed. A failed open leaves the manager closed, so the next call tries
// again.
func (m *Manager) Connect() (*gorm.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle == nil {
		db, err := m.dial()
		if err != nil {
			return nil, err
		}
		m.handle = db
	}
	return m.handle.Session(&gorm.Session{}), nil
}

// GetConnection is Connect for callers that only check for nil. The error
// is logged.
func (m *Manager) GetConnection() *gorm.DB {
	db, err := m.Connect()
	if err != nil {
		m.logger.Error("database unavailable",
			slog.String("driver", m.driver.Name()),
			slog.Any("error", err),
		)
		return nil
	}
	return db
}

// Ping checks the open pool without opening one.
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.Lock()
	db := m.handle
	m.mu.Unlock()
	if db == nil {
		return ErrClosed
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close runs the driver's cleanup and closes the pool. Closing a closed
// manager is a no-op.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	db := m.handle
	if db == nil {
		return nil
	}
	m.handle = nil

	if err := m.driver.Close(db, m.logger); err != nil {
		m.logger.Warn("driver cleanup failed", slog.Any("error", err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("database: close: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("database: close: %w", err)
	}
	m.logger.Info("database closed", slog.String("driver", m.driver.Name()))
	return nil
}

// CheckpointWAL flushes the write-ahead log on drivers that have one.
func (m *Manager) CheckpointWAL(mode string) error {
	if !m.driver.SupportsCheckpoint() {
		return nil
	}
	db, err := m.Connect()
	if err != nil {
		return err
	}
	return m.driver.Checkpoint(db, mode)
}

// Config returns the configuration the pool is opened with.
func (m *Manager) Config() *Config { return m.cfg }

// WriteConfig returns the retry policy for session commits on this manager.
func (m *Manager) WriteConfig() TransactionConfig { return m.cfg.Write }

// Logger returns the logger sessions on this manager should use.
func (m *Manager) Logger() *slog.Logger { return m.logger }

// Driver returns the engine driver.
func (m *Manager) Driver() Driver { return m.driver }

func (m *Manager) dial() (*gorm.DB, error) {
	dsn := m.driver.ConfigureDSN(m.cfg.DSN, m.cfg)

	db, err := gorm.Open(m.driver.Open(dsn), &gorm.Config{
		Logger:                 NewGormLogger(m.logger.With(slog.String("component", "gorm")), m.cfg.SlowQueryThreshold),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("database: open %s: %w", m.driver.Name(), err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database: open %s: %w", m.driver.Name(), err)
	}
	if err := m.driver.AfterConnect(db, m.cfg, m.logger); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	sqlDB.SetMaxOpenConns(m.cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(m.cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(m.cfg.ConnMaxLifetime)

	m.logger.Info("database opened",
		slog.String("driver", m.driver.Name()),
		slog.Int("max_open", m.cfg.MaxOpenConns),
		slog.Int("max_idle", m.cfg.MaxIdleConns),
	)
	return db, nil
}
