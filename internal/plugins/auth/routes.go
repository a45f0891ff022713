package auth

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/parlor/internal/middleware"
)

// RegisterRoutes sets up the auth routes on the given Echo instance. The
// gate's middleware is exposed separately for other plugins to use.
//
// Form posts are rate-limited per IP: 10 login attempts and 5
// registrations per minute.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.GET("/", h.Landing, h.gate.OptionalAuth())
	e.POST("/login", h.Login, middleware.RateLimit(10, time.Minute))
	e.POST("/register", h.Register, middleware.RateLimit(5, time.Minute))
	e.GET("/logout", h.Logout)

	e.GET("/profile", h.Profile, h.gate.RequireAuth())

	e.GET("/auth/:provider", h.ProviderLogin)
	e.GET("/auth/:provider/callback", h.ProviderCallback)
}
