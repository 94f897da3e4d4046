package postgres

import (
	"log/slog"

	"github.com/karloscodes/scopedb/database"
)

// NewManager creates a database.Manager for PostgreSQL. Pool sizes default to
// 25 open and 5 idle connections.
func NewManager(cfg *database.Config, logger *slog.Logger) *database.Manager {
	if cfg.MaxOpenConns <= 1 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns <= 1 {
		cfg.MaxIdleConns = 5
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = "prefer"
	}
	return database.NewManager(NewDriver(), cfg, logger)
}
