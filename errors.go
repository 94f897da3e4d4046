package scopedb

import (
	"errors"
	"fmt"
	"html"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/karloscodes/scopedb/oops"
)

// DefaultErrorHandler returns a production-ready error handler.
//
// oops errors keep their status and client message; fiber errors keep their
// status. Anything else is a 500 whose message is only shown in development.
// API requests get {"code", "error", "message"} JSON, browsers a small HTML
// page.
func DefaultErrorHandler(logger *slog.Logger, isDev bool) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var errCode oops.Code
		message := ErrorCodeName(code)

		var fe *fiber.Error
		if oe, ok := oops.As(err); ok {
			code = oe.Status
			errCode = oe.Code
			message = oe.Message
		} else if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		} else if isDev {
			message = err.Error()
		}

		level := slog.LevelWarn
		if code >= fiber.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.UserContext(), level, "request failed",
			slog.Any("error", err),
			slog.String("path", c.Path()),
			slog.String("method", c.Method()),
			slog.Int("status", code),
		)

		if c.Accepts(fiber.MIMETextHTML, fiber.MIMEApplicationJSON) == fiber.MIMEApplicationJSON {
			body := fiber.Map{
				"error":   ErrorCodeName(code),
				"message": message,
			}
			if errCode != "" {
				body["code"] = errCode
			}
			return c.Status(code).JSON(body)
		}

		return c.Status(code).Type("html").SendString(errorHTML(code, ErrorCodeName(code), message))
	}
}

// ErrorCodeName returns a human-readable name for common HTTP status codes.
func ErrorCodeName(code int) string {
	switch code {
	case fiber.StatusBadRequest:
		return "Bad Request"
	case fiber.StatusUnauthorized:
		return "Unauthorized"
	case fiber.StatusForbidden:
		return "Forbidden"
	case fiber.StatusNotFound:
		return "Not Found"
	case fiber.StatusMethodNotAllowed:
		return "Method Not Allowed"
	case fiber.StatusConflict:
		return "Conflict"
	case fiber.StatusUnprocessableEntity:
		return "Unprocessable Entity"
	case fiber.StatusTooManyRequests:
		return "Too Many Requests"
	case fiber.StatusInternalServerError:
		return "Internal Server Error"
	case fiber.StatusServiceUnavailable:
		return "Service Unavailable"
	default:
		return "Error"
	}
}

func errorHTML(code int, title, message string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>%d - %s</title></head>
<body style="font-family:sans-serif;text-align:center;padding:40px">
<h1>%d</h1>
<h2>%s</h2>
<p>%s</p>
</body>
</html>`, code, html.EscapeString(title), code, html.EscapeString(title), html.EscapeString(message))
}
