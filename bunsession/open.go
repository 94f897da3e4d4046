package bunsession

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/schema"
)

// Supported database types.
const (
	SQLite   = "sqlite"
	Postgres = "postgres"
	MySQL    = "mysql"
)

// OpenConfig configures a bun database connection.
type OpenConfig struct {
	// Type is one of SQLite, Postgres or MySQL.
	Type string

	// DSN is passed to the database/sql driver unchanged.
	DSN string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// Debug logs every query through bundebug. BUNDEBUG in the environment
	// overrides it.
	Debug bool
}

// Open opens a bun database for cfg.
func Open(cfg OpenConfig) (*bun.DB, error) {
	var (
		driverName string
		dialect    schema.Dialect
	)

	switch cfg.Type {
	case SQLite, "sqlite3":
		driverName, dialect = sqliteshim.ShimName, sqlitedialect.New()
		if cfg.MaxOpenConns <= 0 {
			cfg.MaxOpenConns = 1
		}
	case Postgres, "postgresql":
		driverName, dialect = "postgres", pgdialect.New()
	case MySQL:
		driverName, dialect = "mysql", mysqldialect.New()
	default:
		return nil, fmt.Errorf("bunsession: unsupported database type %q", cfg.Type)
	}

	sqlDB, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("bunsession: open %s: %w", cfg.Type, err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	db := bun.NewDB(sqlDB, dialect)
	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}
	return db, nil
}
