package scopedb

import (
	"errors"
	"log/slog"

	"github.com/karloscodes/scopedb/database"
	"github.com/karloscodes/scopedb/gormsession"
)

// ErrNoConnection is returned when the DBManager has no connection to hand
// out.
var ErrNoConnection = errors.New("scopedb: database connection unavailable")

// sessionFactory opens GORM sessions against a DBManager with a shared
// logger and write policy.
type sessionFactory struct {
	dbManager DBManager
	logger    *slog.Logger
	write     database.TransactionConfig
}

func newSessionFactory(dbManager DBManager, logger *slog.Logger, sources ...any) sessionFactory {
	return sessionFactory{
		dbManager: dbManager,
		logger:    logger,
		write:     resolveWriteConfig(append(sources, dbManager)...),
	}
}

func (f sessionFactory) open() (*gormsession.Session, error) {
	if f.dbManager == nil {
		return nil, ErrNoConnection
	}
	db := f.dbManager.GetConnection()
	if db == nil {
		return nil, ErrNoConnection
	}
	return gormsession.New(db,
		gormsession.WithLogger(f.logger),
		gormsession.WithTransactionConfig(f.write),
	), nil
}

// resolveWriteConfig returns the first policy found among sources.
func resolveWriteConfig(sources ...any) database.TransactionConfig {
	for _, src := range sources {
		switch v := src.(type) {
		case *database.TransactionConfig:
			if v != nil {
				return *v
			}
		case WriteConfigProvider:
			return v.WriteConfig()
		}
	}
	return database.DefaultTransactionConfig()
}
