package sqlite

import (
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/karloscodes/scopedb/database"
)

// Driver implements database.Driver for SQLite.
type Driver struct{}

// NewDriver creates a new SQLite driver.
func NewDriver() *Driver {
	return &Driver{}
}

func (d *Driver) Name() string { return "sqlite" }

// Open returns a GORM SQLite dialector.
func (d *Driver) Open(dsn string) gorm.Dialector {
	return sqlite.Open(dsn)
}

// ConfigureDSN adds connection options to the DSN. Options set on the DSN
// apply to every pooled connection, unlike pragmas run after connecting.
func (d *Driver) ConfigureDSN(dsn string, cfg *database.Config) string {
	var params []string
	if cfg.SQLite.TxImmediate {
		params = append(params, "_txlock=immediate")
	}
	if cfg.SQLite.BusyTimeout > 0 {
		params = append(params, fmt.Sprintf("_busy_timeout=%d", cfg.SQLite.BusyTimeout))
	}
	return appendParams(dsn, params)
}

func appendParams(dsn string, params []string) string {
	var missing []string
	for _, p := range params {
		key := p[:strings.IndexByte(p, '=')+1]
		if !strings.Contains(dsn, key) {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(missing, "&")
}

// AfterConnect applies database-wide pragmas.
func (d *Driver) AfterConnect(db *gorm.DB, cfg *database.Config, logger *slog.Logger) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.SQLite.BusyTimeout),
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	if cfg.SQLite.EnableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}

	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			logger.Error("failed to apply pragma", slog.String("pragma", pragma), slog.Any("error", err))
			return fmt.Errorf("sqlite: apply pragma %s: %w", pragma, err)
		}
	}
	return nil
}

// Close performs a passive WAL checkpoint before closing.
func (d *Driver) Close(db *gorm.DB, logger *slog.Logger) error {
	logger.Debug("performing WAL checkpoint before close")
	return d.Checkpoint(db, "PASSIVE")
}

func (d *Driver) SupportsCheckpoint() bool { return true }

// Checkpoint performs a WAL checkpoint.
// Modes: PASSIVE, FULL, RESTART, TRUNCATE.
func (d *Driver) Checkpoint(db *gorm.DB, mode string) error {
	mode = strings.ToUpper(mode)
	switch mode {
	case "PASSIVE", "FULL", "RESTART", "TRUNCATE":
	default:
		return fmt.Errorf("sqlite: invalid checkpoint mode %q", mode)
	}
	return db.Exec("PRAGMA wal_checkpoint(" + mode + ")").Error
}

var _ database.Driver = (*Driver)(nil)
