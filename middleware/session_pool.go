package middleware

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/karloscodes/scopedb/pool"
)

const (
	poolLocalsKey      = "scopedb_pool"
	committedLocalsKey = "scopedb_committed"
)

// SessionPoolConfig configures the SessionPool middleware.
type SessionPoolConfig struct {
	// Logger receives commit diagnostics. Default: slog.Default().
	Logger *slog.Logger

	// ShouldCommit decides whether the pool is committed after the handler
	// returns. Default: commit when the handler returned nil and the response
	// status is below 400.
	ShouldCommit func(c *fiber.Ctx, err error) bool
}

// SessionPool gives every request its own session pool. The pool is
// available through PoolFromCtx and through the request's user context, and
// is committed once the rest of the chain has returned. A commit failure is
// returned to Fiber's error handler. The pool is released in every case, so
// uncommitted work is discarded.
func SessionPool(config ...SessionPoolConfig) fiber.Handler {
	var cfg SessionPoolConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ShouldCommit == nil {
		cfg.ShouldCommit = commitOnSuccess
	}

	return func(c *fiber.Ctx) error {
		p := pool.New(pool.WithLogger(cfg.Logger))
		defer p.Release()

		c.Locals(poolLocalsKey, p)
		c.SetUserContext(pool.NewContext(c.UserContext(), p))

		err := c.Next()
		if !cfg.ShouldCommit(c, err) {
			if p.Len() > 0 {
				cfg.Logger.Debug("session pool discarded",
					slog.String("path", c.Path()),
					slog.Int("sessions", p.Len()),
				)
			}
			return err
		}

		n, cerr := p.CommitAllContext(c.UserContext())
		if cerr != nil {
			cfg.Logger.Error("session pool commit failed",
				slog.String("path", c.Path()),
				slog.String("method", c.Method()),
				slog.Int("committed", n),
				slog.Any("error", cerr),
			)
			return cerr
		}
		c.Locals(committedLocalsKey, n)
		if n > 0 {
			cfg.Logger.Debug("session pool committed",
				slog.String("path", c.Path()),
				slog.Int("sessions", n),
			)
		}
		return nil
	}
}

// PoolFromCtx returns the request's session pool, if the SessionPool
// middleware ran for this request.
func PoolFromCtx(c *fiber.Ctx) (*pool.Pool, bool) {
	p, ok := c.Locals(poolLocalsKey).(*pool.Pool)
	return p, ok && p != nil
}

// CommittedSessions returns how many sessions the request's pool committed.
// It is zero until the SessionPool middleware has finished.
func CommittedSessions(c *fiber.Ctx) int {
	n, _ := c.Locals(committedLocalsKey).(int)
	return n
}

func commitOnSuccess(c *fiber.Ctx, err error) bool {
	return err == nil && c.Response().StatusCode() < fiber.StatusBadRequest
}
