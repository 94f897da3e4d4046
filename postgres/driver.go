package postgres

import (
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/karloscodes/scopedb/database"
)

// Driver implements database.Driver for PostgreSQL.
type Driver struct{}

// NewDriver creates a new PostgreSQL driver.
func NewDriver() *Driver {
	return &Driver{}
}

func (d *Driver) Name() string { return "postgres" }

// Open returns a GORM PostgreSQL dialector.
func (d *Driver) Open(dsn string) gorm.Dialector {
	return postgres.Open(dsn)
}

// ConfigureDSN adds sslmode and TimeZone unless the DSN already sets them.
// Both URL ("postgres://...") and keyword ("host=... user=...") forms are
// supported.
func (d *Driver) ConfigureDSN(dsn string, cfg *database.Config) string {
	type param struct{ key, value string }
	var params []param
	if cfg.Postgres.SSLMode != "" {
		params = append(params, param{"sslmode", cfg.Postgres.SSLMode})
	}
	if cfg.Postgres.Timezone != "" {
		params = append(params, param{"TimeZone", cfg.Postgres.Timezone})
	}

	isURL := strings.Contains(dsn, "://")
	var extra []string
	for _, p := range params {
		if strings.Contains(dsn, p.key+"=") {
			continue
		}
		extra = append(extra, p.key+"="+p.value)
	}
	if len(extra) == 0 {
		return dsn
	}

	if !isURL {
		return strings.TrimSpace(dsn + " " + strings.Join(extra, " "))
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(extra, "&")
}

// AfterConnect sets the schema search path if configured.
func (d *Driver) AfterConnect(db *gorm.DB, cfg *database.Config, logger *slog.Logger) error {
	if cfg.Postgres.SearchPath == "" {
		return nil
	}
	if err := db.Exec("SELECT set_config('search_path', ?, false)", cfg.Postgres.SearchPath).Error; err != nil {
		logger.Error("failed to set search_path", slog.String("search_path", cfg.Postgres.SearchPath), slog.Any("error", err))
		return fmt.Errorf("postgres: set search_path: %w", err)
	}
	return nil
}

// Close is a no-op for PostgreSQL.
func (d *Driver) Close(db *gorm.DB, logger *slog.Logger) error { return nil }

func (d *Driver) SupportsCheckpoint() bool { return false }

// Checkpoint is a no-op for PostgreSQL.
func (d *Driver) Checkpoint(db *gorm.DB, mode string) error { return nil }

var _ database.Driver = (*Driver)(nil)
