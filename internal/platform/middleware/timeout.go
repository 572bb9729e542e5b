package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

var errRequestDeadline = errors.New("request deadline elapsed")

// RequestTimeout puts a deadline on each request context. Every slow path in
// this server (provider calls, pgx queries) watches its context, so the
// handler returns shortly after the deadline fires; the middleware then
// presents the failure as a 504 instead of whatever error the aborted handler
// surfaced. The deadline cause distinguishes this middleware's timeout from a
// client disconnect, which keeps its own status.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeoutCause(c.Request().Context(), timeout, errRequestDeadline)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if err == nil {
				return nil
			}
			if context.Cause(ctx) == errRequestDeadline && !c.Response().Committed {
				return c.JSON(http.StatusGatewayTimeout, map[string]string{
					"error": "request processing exceeded the allowed time limit",
				})
			}
			return err
		}
	}
}
