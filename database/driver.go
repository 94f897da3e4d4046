package database

import (
	"log/slog"

	"gorm.io/gorm"
)

// Driver is the engine-specific half of a Manager. The sqlite and postgres
// packages provide implementations.
type Driver interface {
	Name() string

	// Open returns the GORM dialector for dsn.
	Open(dsn string) gorm.Dialector

	// ConfigureDSN adds connection parameters the engine needs for the
	// configured write policy. Parameters already present in dsn win.
	ConfigureDSN(dsn string, cfg *Config) string

	// AfterConnect runs once on a freshly opened pool.
	AfterConnect(db *gorm.DB, cfg *Config, logger *slog.Logger) error

	// Close runs before the pool is closed.
	Close(db *gorm.DB, logger *slog.Logger) error

	SupportsCheckpoint() bool

	// Checkpoint flushes the write-ahead log. Engines without one return nil.
	Checkpoint(db *gorm.DB, mode string) error
}
