package scopedb

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Application wires together configuration, logging, database, the HTTP
// server and the optional job dispatcher, and manages their lifecycle.
type Application struct {
	Config    Config
	Logger    *slog.Logger
	DBManager DBManager
	Server    *Server
	Jobs      *JobDispatcher
}

// ApplicationOptions configure application bootstrapping.
type ApplicationOptions struct {
	// Core dependencies (required)
	Config    Config
	Logger    *slog.Logger
	DBManager DBManager

	ServerConfig *ServerConfig

	// Routes mounts the application's routes.
	Routes func(*Server)

	// CatchAllRedirect is the fallback redirect for unmatched routes.
	CatchAllRedirect string

	// Background processors run every JobInterval. Ignored when empty.
	Processors  []Processor
	JobInterval time.Duration
}

// NewApplication constructs an application.
func NewApplication(opts ApplicationOptions) (*Application, error) {
	serverCfg := opts.ServerConfig
	if serverCfg == nil {
		serverCfg = DefaultServerConfig()
	}
	serverCfg.Config = opts.Config
	serverCfg.Logger = opts.Logger
	serverCfg.DBManager = opts.DBManager

	server, err := NewServer(serverCfg)
	if err != nil {
		return nil, err
	}
	if opts.CatchAllRedirect != "" {
		server.SetCatchAllRedirect(opts.CatchAllRedirect)
	}
	if opts.Routes != nil {
		opts.Routes(server)
	}

	app := &Application{
		Config:    opts.Config,
		Logger:    opts.Logger,
		DBManager: opts.DBManager,
		Server:    server,
	}

	if len(opts.Processors) > 0 {
		if opts.JobInterval <= 0 {
			return nil, errors.New("scopedb: job interval is required when processors are set")
		}
		app.Jobs = NewJobDispatcher(opts.Logger, opts.DBManager, opts.JobInterval, opts.Processors...)
	}

	return app, nil
}

// Start launches the job dispatcher and the HTTP server in the background.
func (a *Application) Start() error {
	if a.Jobs != nil {
		if err := a.Jobs.Start(); err != nil {
			return err
		}
	}
	a.Server.StartAsync()
	return nil
}

// Shutdown stops the HTTP server, waiting for in-flight requests, then the
// job dispatcher, then closes the database if the manager supports it.
func (a *Application) Shutdown(ctx context.Context) error {
	err := a.Server.Shutdown(ctx)
	if a.Jobs != nil {
		a.Jobs.Stop()
	}
	if closer, ok := a.DBManager.(interface{ Close() error }); ok {
		if cerr := closer.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	return err
}

// Run starts the application and waits for termination signals.
// Shutdown has a default timeout of 10 seconds.
func (a *Application) Run() error {
	return a.RunWithTimeout(10 * time.Second)
}

// RunWithTimeout starts the application, waits for SIGINT or SIGTERM and
// shuts down within timeout.
func (a *Application) RunWithTimeout(timeout time.Duration) error {
	if err := a.Start(); err != nil {
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	a.Logger.Info("shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := a.Shutdown(ctx); err != nil {
		a.Logger.Error("graceful shutdown failed", slog.Any("error", err))
		return err
	}

	a.Logger.Info("shutdown complete")
	return nil
}
