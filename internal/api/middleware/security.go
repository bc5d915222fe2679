package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// DefaultBodyLimit bounds request bodies; execution requests are tiny.
const DefaultBodyLimit = "64K"

// NewSecureHeaders sets the usual response hardening headers.
func NewSecureHeaders() echo.MiddlewareFunc {
	return middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
	})
}

// NewBodyLimit creates a middleware that limits the request body size.
func NewBodyLimit(limit string) echo.MiddlewareFunc {
	if limit == "" {
		limit = DefaultBodyLimit
	}
	return middleware.BodyLimit(limit)
}
