package scopedb

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/karloscodes/scopedb/gormsession"
	"github.com/karloscodes/scopedb/middleware"
	"github.com/karloscodes/scopedb/pool"
)

const contextLocalsKey = "scopedb_ctx"

// Context provides request-scoped access to application dependencies.
// It embeds fiber.Ctx for all HTTP request/response methods and adds the
// request's session pool. Sessions obtained through DB and NewSession are
// registered in the pool and committed together when the request succeeds.
type Context struct {
	*fiber.Ctx
	Logger    *slog.Logger
	Config    Config
	DBManager DBManager

	sessions sessionFactory
	primary  *gormsession.Session
}

// Pool returns the request's session pool.
// Panics if the route was not registered through a Server.
func (ctx *Context) Pool() *pool.Pool {
	p, ok := middleware.PoolFromCtx(ctx.Ctx)
	if !ok {
		panic("scopedb: request has no session pool")
	}
	return p
}

// DB returns the request's primary session, creating and registering it on
// first use. Panics if the database connection fails (caught by the recover
// middleware).
func (ctx *Context) DB() *gormsession.Session {
	if ctx.primary != nil {
		return ctx.primary
	}
	s := ctx.mustOpen()
	ctx.primary = s
	return s
}

// NewSession returns an additional session registered in the request's pool.
// Its changes are committed after the primary session's, in the order the
// sessions were first used.
func (ctx *Context) NewSession() *gormsession.Session {
	return ctx.mustOpen()
}

// ReadDB returns a read handle on the primary session bound to the request
// context.
func (ctx *Context) ReadDB() *gorm.DB {
	return ctx.DB().DB(ctx.UserContext())
}

// Register adds an externally created session (for example a
// bunsession.Session) to the request's pool.
func (ctx *Context) Register(s pool.Session) error {
	return ctx.Pool().RegisterContext(ctx.UserContext(), s)
}

func (ctx *Context) mustOpen() *gormsession.Session {
	s, err := ctx.sessions.open()
	if err != nil {
		ctx.Logger.Error("failed to open session", slog.Any("error", err))
		panic(err)
	}
	if err := ctx.Register(s); err != nil {
		ctx.Logger.Error("failed to register session", slog.Any("error", err))
		panic(err)
	}
	return s
}

// HandlerFunc is the signature for scopedb request handlers.
type HandlerFunc func(*Context) error

// ContextFromFiber returns the scopedb Context stored by a wrapped handler,
// for use in middleware that runs after the handler chain was entered.
func ContextFromFiber(c *fiber.Ctx) (*Context, bool) {
	ctx, ok := c.Locals(contextLocalsKey).(*Context)
	return ctx, ok
}
