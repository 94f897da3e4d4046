package scopedb

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/karloscodes/scopedb/database"
	"github.com/karloscodes/scopedb/middleware"
)

// ServerConfig configures a Server. Zero values fall back to
// DefaultServerConfig where noted.
type ServerConfig struct {
	// Core dependencies (required)
	Config    Config
	Logger    *slog.Logger
	DBManager DBManager

	ErrorHandler   fiber.ErrorHandler
	Concurrency    int
	ProxyHeader    string
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration

	EnableRequestID     bool
	EnableRecover       bool
	EnableHelmet        bool
	EnableCompress      bool
	EnableRequestLogger bool
	EnableRateLimit     bool
	RateLimitOptions    []middleware.RateLimiterOption

	// CommitOnSuccess commits each request's session pool when the handler
	// succeeds. nil defers to Config when it implements CommitPolicyProvider,
	// otherwise true.
	CommitOnSuccess *bool

	// Write overrides the retry policy used when sessions are committed.
	// nil defers to Config, then DBManager, then database defaults.
	Write *database.TransactionConfig

	// Concurrency limits, sized for SQLite WAL mode.
	MaxConcurrentReads  int
	MaxConcurrentWrites int
	ConcurrencyTimeout  time.Duration
}

// DefaultServerConfig returns a configuration with sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Concurrency:  256 * 1024,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,

		EnableRequestID:     true,
		EnableRecover:       true,
		EnableHelmet:        true,
		EnableCompress:      true,
		EnableRequestLogger: true,

		MaxConcurrentReads:  128,
		MaxConcurrentWrites: 8,
		ConcurrencyTimeout:  5 * time.Second,
	}
}

// RouteConfig allows per-route middleware customization.
type RouteConfig struct {
	// EnableCORS enables CORS for this route.
	EnableCORS bool
	CORSConfig *cors.Config

	// WriteConcurrency limits concurrent writers on this route. The limit
	// covers the end-of-request commit.
	WriteConcurrency bool

	// ReadConcurrency limits concurrent readers on this route.
	ReadConcurrency bool

	// CommitOnSuccess overrides the server-wide commit policy for this route.
	CommitOnSuccess *bool

	// CustomMiddleware runs before the session pool is created.
	CustomMiddleware []fiber.Handler
}

// Bool returns a pointer to a bool value. Useful for optional config fields.
func Bool(v bool) *bool { return &v }

// Server is a Fiber application whose routes each run inside their own
// session pool.
type Server struct {
	app      *fiber.App
	cfg      *ServerConfig
	limiter  *middleware.ConcurrencyLimiter
	sessions sessionFactory
	commit   bool
	catchAll string
}

// NewServer creates a server with the provided configuration.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("scopedb: config is required")
	}
	if cfg.Config == nil {
		return nil, errors.New("scopedb: runtime config is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("scopedb: logger is required")
	}
	if cfg.DBManager == nil {
		return nil, errors.New("scopedb: database manager is required")
	}

	fiberCfg := fiber.Config{
		DisableDefaultDate:    true,
		DisableStartupMessage: true,
		Concurrency:           cfg.Concurrency,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		ProxyHeader:           cfg.ProxyHeader,
		TrustedProxies:        cfg.TrustedProxies,
		ErrorHandler:          cfg.ErrorHandler,
	}
	if len(cfg.TrustedProxies) > 0 {
		fiberCfg.EnableTrustedProxyCheck = true
	}
	if fiberCfg.ErrorHandler == nil {
		fiberCfg.ErrorHandler = DefaultErrorHandler(cfg.Logger, cfg.Config.IsDevelopment())
	}

	s := &Server{
		app: fiber.New(fiberCfg),
		cfg: cfg,
		limiter: middleware.NewConcurrencyLimiter(
			int64(cfg.MaxConcurrentReads),
			int64(cfg.MaxConcurrentWrites),
			cfg.ConcurrencyTimeout,
			cfg.Logger,
		),
		sessions: newSessionFactory(cfg.DBManager, cfg.Logger, cfg.Write, cfg.Config),
		commit:   resolveCommitPolicy(cfg.CommitOnSuccess, cfg.Config),
	}

	s.setupGlobalMiddleware()
	return s, nil
}

func resolveCommitPolicy(override *bool, cfg Config) bool {
	if override != nil {
		return *override
	}
	if p, ok := cfg.(CommitPolicyProvider); ok {
		return p.ShouldCommitOnSuccess()
	}
	return true
}

func (s *Server) setupGlobalMiddleware() {
	if s.cfg.EnableRequestID {
		s.app.Use(requestid.New())
	}
	if s.cfg.EnableRequestLogger {
		s.app.Use(middleware.RequestLogger(s.cfg.Logger))
	}
	if s.cfg.EnableRecover {
		s.app.Use(middleware.Recover(s.cfg.Logger))
	}
	if s.cfg.EnableHelmet {
		s.app.Use(middleware.Helmet())
	}
	if s.cfg.EnableCompress {
		s.app.Use(compress.New(compress.Config{
			Level: compress.LevelDefault,
		}))
	}
	if s.cfg.EnableRateLimit {
		s.app.Use(middleware.RateLimiter(s.cfg.RateLimitOptions...))
	}

	// Liveness probe; never touches the database.
	s.app.Get("/_health", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
}

// SetCatchAllRedirect configures a fallback redirect for unmatched routes.
func (s *Server) SetCatchAllRedirect(path string) {
	s.catchAll = path
}

// Get registers a GET route.
func (s *Server) Get(path string, handler HandlerFunc, cfg ...*RouteConfig) {
	s.registerRoute(fiber.MethodGet, path, handler, cfg...)
}

// Post registers a POST route.
func (s *Server) Post(path string, handler HandlerFunc, cfg ...*RouteConfig) {
	s.registerRoute(fiber.MethodPost, path, handler, cfg...)
}

// Put registers a PUT route.
func (s *Server) Put(path string, handler HandlerFunc, cfg ...*RouteConfig) {
	s.registerRoute(fiber.MethodPut, path, handler, cfg...)
}

// Patch registers a PATCH route.
func (s *Server) Patch(path string, handler HandlerFunc, cfg ...*RouteConfig) {
	s.registerRoute(fiber.MethodPatch, path, handler, cfg...)
}

// Delete registers a DELETE route.
func (s *Server) Delete(path string, handler HandlerFunc, cfg ...*RouteConfig) {
	s.registerRoute(fiber.MethodDelete, path, handler, cfg...)
}

// registerRoute builds the route chain:
// cors, limiters, custom middleware, session pool, handler.
func (s *Server) registerRoute(method, path string, handler HandlerFunc, cfgs ...*RouteConfig) {
	routeCfg := &RouteConfig{}
	if len(cfgs) > 0 && cfgs[0] != nil {
		routeCfg = cfgs[0]
	}

	handlers := make([]fiber.Handler, 0, len(routeCfg.CustomMiddleware)+5)

	// CORS must come first for preflight handling
	if routeCfg.EnableCORS {
		corsCfg := routeCfg.CORSConfig
		if corsCfg == nil {
			corsCfg = &cors.Config{
				AllowOrigins: "*",
				AllowMethods: "GET,POST,PUT,DELETE,PATCH,OPTIONS",
				AllowHeaders: "Origin, Content-Type, Accept, Authorization",
			}
		}
		handlers = append(handlers, cors.New(*corsCfg))
	}
	if routeCfg.ReadConcurrency {
		handlers = append(handlers, middleware.ReadConcurrencyLimitMiddleware(s.limiter))
	}
	if routeCfg.WriteConcurrency {
		handlers = append(handlers, middleware.WriteConcurrencyLimitMiddleware(s.limiter))
	}
	handlers = append(handlers, routeCfg.CustomMiddleware...)

	commit := s.commit
	if routeCfg.CommitOnSuccess != nil {
		commit = *routeCfg.CommitOnSuccess
	}
	poolCfg := middleware.SessionPoolConfig{Logger: s.cfg.Logger}
	if !commit {
		poolCfg.ShouldCommit = func(*fiber.Ctx, error) bool { return false }
	}
	handlers = append(handlers, middleware.SessionPool(poolCfg), s.wrapHandler(handler))

	s.app.Add(method, path, handlers...)
}

// wrapHandler converts a HandlerFunc to a Fiber handler.
func (s *Server) wrapHandler(handler HandlerFunc) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := &Context{
			Ctx:       c,
			Logger:    s.cfg.Logger,
			Config:    s.cfg.Config,
			DBManager: s.cfg.DBManager,
			sessions:  s.sessions,
		}
		c.Locals(contextLocalsKey, ctx)
		return handler(ctx)
	}
}

// App returns the underlying Fiber application for advanced usage.
func (s *Server) App() *fiber.App {
	return s.app
}

// Limiter returns the concurrency limiter shared by all routes.
func (s *Server) Limiter() *middleware.ConcurrencyLimiter {
	return s.limiter
}

// Logger returns the server logger.
func (s *Server) Logger() *slog.Logger {
	return s.cfg.Logger
}

// Start starts the HTTP server on the configured port. It blocks until the
// server stops.
func (s *Server) Start() error {
	if s.catchAll != "" {
		s.app.All("*", func(c *fiber.Ctx) error {
			return c.Redirect(s.catchAll, fiber.StatusTemporaryRedirect)
		})
	}

	port := s.cfg.Config.GetPort()
	s.cfg.Logger.Info("server started and ready to accept requests", slog.String("port", port))
	return s.app.Listen(":" + port)
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.cfg.Logger.Error("server error", slog.Any("error", err))
		}
	}()
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// (and their commits) until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
