package scopedb

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/scopedb/config"
	"github.com/karloscodes/scopedb/database"
	"github.com/karloscodes/scopedb/postgres"
	"github.com/karloscodes/scopedb/sqlite"
)

// Option customizes New.
type Option func(*factoryOptions)

type factoryOptions struct {
	routes       func(*Server)
	serverConfig *ServerConfig
	processors   []Processor
	jobInterval  time.Duration
	models       []any
	catchAll     string
}

// WithRoutes sets the route mounting function.
func WithRoutes(fn func(*Server)) Option {
	return func(o *factoryOptions) { o.routes = fn }
}

// WithServerConfig replaces DefaultServerConfig.
func WithServerConfig(cfg *ServerConfig) Option {
	return func(o *factoryOptions) { o.serverConfig = cfg }
}

// WithJobs runs processors every interval, each batch in its own scope.
func WithJobs(interval time.Duration, processors ...Processor) Option {
	return func(o *factoryOptions) {
		o.jobInterval = interval
		o.processors = append(o.processors, processors...)
	}
}

// WithMigrations auto-migrates models once the database is connected.
func WithMigrations(models ...any) Option {
	return func(o *factoryOptions) { o.models = append(o.models, models...) }
}

// WithCatchAllRedirect redirects unmatched routes to path.
func WithCatchAllRedirect(path string) Option {
	return func(o *factoryOptions) { o.catchAll = path }
}

// New builds an application from environment configuration:
// config.Load(appName), NewLogger and NewDBManager.
//
//	app, err := scopedb.New("ledger",
//	    scopedb.WithMigrations(&Account{}, &Entry{}),
//	    scopedb.WithRoutes(mountRoutes),
//	)
func New(appName string, opts ...Option) (*Application, error) {
	var o factoryOptions
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := config.Load(appName)
	if err != nil {
		return nil, err
	}
	logger := NewLogger(cfg, nil)

	dbManager, err := NewDBManager(cfg, logger)
	if err != nil {
		return nil, err
	}

	if len(o.models) > 0 {
		db, err := dbManager.Connect()
		if err != nil {
			return nil, err
		}
		if err := db.AutoMigrate(o.models...); err != nil {
			return nil, fmt.Errorf("scopedb: migrate: %w", err)
		}
	}

	return NewApplication(ApplicationOptions{
		Config:           cfg,
		Logger:           logger,
		DBManager:        dbManager,
		ServerConfig:     o.serverConfig,
		Routes:           o.routes,
		CatchAllRedirect: o.catchAll,
		Processors:       o.processors,
		JobInterval:      o.jobInterval,
	})
}

// NewDBManager creates the database manager for the configured driver.
func NewDBManager(cfg *config.Config, logger *slog.Logger) (*database.Manager, error) {
	switch cfg.DatabaseDriver {
	case config.DriverSQLite:
		return sqlite.NewManagerWithConfig(cfg.DatabaseConfig(), logger), nil
	case config.DriverPostgres:
		return postgres.NewManager(cfg.DatabaseConfig(), logger), nil
	default:
		return nil, fmt.Errorf("scopedb: unsupported database driver %q", cfg.DatabaseDriver)
	}
}
