package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/karloscodes/scopedb/oops"
)

// RequestLogger emits one structured log line per request, including the
// number of sessions committed by the request's pool.
// Health check endpoints (/_health) are not logged.
func RequestLogger(logger Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := c.Path()
		if strings.HasPrefix(path, "/_health") {
			return err
		}

		status := c.Response().StatusCode()
		if err != nil {
			status = errorStatus(err)
		}

		fields := []any{
			"method", c.Method(),
			"path", path,
			"status", status,
			"duration", time.Since(start),
			"ip", c.IP(),
			"committed", CommittedSessions(c),
		}
		if id, ok := c.Locals("requestid").(string); ok && id != "" {
			fields = append(fields, "request_id", id)
		}

		if status >= fiber.StatusInternalServerError {
			logger.Warn("http request", fields...)
		} else {
			logger.Info("http request", fields...)
		}
		return err
	}
}

// errorStatus is the status the error handler will answer with.
func errorStatus(err error) int {
	if oe, ok := oops.As(err); ok {
		return oe.Status
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}
