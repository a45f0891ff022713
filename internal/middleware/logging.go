// Package middleware provides the HTTP middleware shared by every Parlor
// route: request logging, panic recovery, security headers, CSRF, rate
// limiting and proxy-aware client IPs. Registration order lives in
// internal/app/routes.go.
package middleware

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
)

// ContextKeyUserID is the Echo context key under which the session gate
// stores the authenticated user's id. The request logger reads it so log
// lines carry the user without this package importing the auth plugin.
const ContextKeyUserID = "auth_user_id"

// RequestLogger returns middleware that logs one structured line per
// request after the handler has run.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				// Let the error handler write the response so the logged
				// status is the one the client sees.
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()

			attrs := []slog.Attr{
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int("status", res.Status),
				slog.Duration("latency", time.Since(start)),
				slog.String("remote_ip", c.RealIP()),
			}
			if userID, ok := c.Get(ContextKeyUserID).(string); ok && userID != "" {
				attrs = append(attrs, slog.String("user_id", userID))
			}

			level := slog.LevelInfo
			switch {
			case res.Status >= 500:
				level = slog.LevelError
			case res.Status >= 400:
				level = slog.LevelWarn
			}

			slog.LogAttrs(req.Context(), level, "request", attrs...)
			return nil
		}
	}
}
