package sqlite

import (
	"log/slog"

	"github.com/karloscodes/scopedb/database"
)

// NewManager creates a database.Manager for the SQLite file at path using the
// default SQLite tuning (WAL, busy_timeout, immediate transactions).
func NewManager(path string, logger *slog.Logger) *database.Manager {
	return NewManagerWithConfig(database.DefaultConfig(path), logger)
}

// NewManagerWithConfig creates a database.Manager for SQLite with cfg.
// Zero-valued SQLite options fall back to the defaults.
func NewManagerWithConfig(cfg *database.Config, logger *slog.Logger) *database.Manager {
	defaults := database.DefaultConfig(cfg.DSN)
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = defaults.MaxOpenConns
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = defaults.MaxIdleConns
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = defaults.ConnMaxLifetime
	}
	if cfg.SQLite.BusyTimeout <= 0 {
		cfg.SQLite.BusyTimeout = defaults.SQLite.BusyTimeout
	}
	return database.NewManager(NewDriver(), cfg, logger)
}
