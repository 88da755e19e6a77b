package middleware

import (
	"github.com/labstack/echo/v4"
)

// APIVersion stamps every response of a route group with its API version.
func APIVersion(version string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set("X-API-Version", version)
			return next(c)
		}
	}
}

// VersionRoute creates the route group for version with the header applied.
func VersionRoute(e *echo.Echo, version string, m ...echo.MiddlewareFunc) *echo.Group {
	return e.Group("/"+version, append([]echo.MiddlewareFunc{APIVersion(version)}, m...)...)
}
