package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// CORS returns middleware that lets the listed origins read the JSON API
// (/api/*) with credentials. Page routes and the websocket are same-origin
// and get no CORS headers. A "*" entry is ignored: a wildcard cannot be
// combined with cookies.
func CORS(allowedOrigins []string) echo.MiddlewareFunc {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" && o != "*" {
			origins[o] = true
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			origin := req.Header.Get(echo.HeaderOrigin)
			if origin == "" || !strings.HasPrefix(req.URL.Path, "/api/") || !origins[origin] {
				return next(c)
			}

			h := c.Response().Header()
			h.Set(echo.HeaderAccessControlAllowOrigin, origin)
			h.Set(echo.HeaderAccessControlAllowCredentials, "true")
			h.Add(echo.HeaderVary, echo.HeaderOrigin)

			if req.Method == http.MethodOptions {
				h.Set(echo.HeaderAccessControlAllowMethods, "GET, OPTIONS")
				h.Set(echo.HeaderAccessControlAllowHeaders, "Content-Type")
				h.Set(echo.HeaderAccessControlMaxAge, "3600")
				return c.NoContent(http.StatusNoContent)
			}
			return next(c)
		}
	}
}
