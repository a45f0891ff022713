package middleware

import (
	"context"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
)

// LayoutInjector copies layout data (user name, CSRF token) from the Echo
// context into the Go context read by templ components. It is registered
// once in app/routes.go so this package never imports plugin types.
var LayoutInjector func(echo.Context, context.Context) context.Context

// Render writes a templ component to the response with the given status code.
func Render(c echo.Context, statusCode int, component templ.Component) error {
	ctx := c.Request().Context()
	if LayoutInjector != nil {
		ctx = LayoutInjector(c, ctx)
	}

	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(statusCode)
	return component.Render(ctx, c.Response().Writer)
}

// IsSecureRequest reports whether the client reached us over TLS, either
// directly or through a proxy that set X-Forwarded-Proto.
func IsSecureRequest(c echo.Context) bool {
	req := c.Request()
	return req.TLS != nil || req.Header.Get(echo.HeaderXForwardedProto) == "https"
}
