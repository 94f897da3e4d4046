package middleware

import (
	"runtime/debug"

	"github.com/gofiber/fiber/v2"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
)

// Recover turns handler panics into errors for the error handler and logs
// them with their stack. The request's session pool is released by the
// time the panic reaches this middleware, so nothing is committed.
func Recover(logger Logger) fiber.Handler {
	return fiberrecover.New(fiberrecover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e any) {
			logger.Error("panic recovered",
				"path", c.Path(),
				"method", c.Method(),
				"panic", e,
				"stack", string(debug.Stack()),
			)
		},
	})
}
