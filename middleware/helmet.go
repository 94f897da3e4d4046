package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/helmet"
)

// Helmet sets security headers. API responses are not framed or sniffed.
func Helmet() fiber.Handler {
	return helmet.New(helmet.Config{
		ReferrerPolicy:     "same-origin",
		XFrameOptions:      "DENY",
		ContentTypeNosniff: "nosniff",
	})
}
