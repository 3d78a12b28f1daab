// Package middleware provides the HTTP middleware shared by the API
// routes. Authentication and session issuance happen upstream; these
// middlewares consume the identity the gateway forwards.
package middleware

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	// OwnerHeader carries the authenticated user id set by the upstream
	// auth gateway.
	OwnerHeader = "X-Owner-ID"

	ownerContextKey = "owner-id"
)

// Owner requires a forwarded owner identity on every request and stores
// it in the echo context.
func Owner() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := c.Request().Header.Get(OwnerHeader)
			if raw == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing owner identity")
			}
			ownerID, err := strconv.ParseInt(raw, 10, 32)
			if err != nil || ownerID <= 0 {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid owner identity")
			}
			c.Set(ownerContextKey, int32(ownerID))
			return next(c)
		}
	}
}

// OwnerID returns the authenticated owner id stored by Owner.
func OwnerID(c echo.Context) (int32, bool) {
	ownerID, ok := c.Get(ownerContextKey).(int32)
	return ownerID, ok
}
