package app

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/parlor/internal/middleware"
	"github.com/keyxmakerx/parlor/internal/plugins/auth"
	"github.com/keyxmakerx/parlor/internal/plugins/presence"
	"github.com/keyxmakerx/parlor/internal/templates/layouts"
)

// healthTimeout bounds the store pings made by /healthz.
const healthTimeout = 2 * time.Second

// RegisterRoutes wires the plugins onto the shared infrastructure and
// registers their routes. This is the single place where routes are
// aggregated.
func (a *App) RegisterRoutes() {
	e := a.Echo

	// Copy the user and CSRF token into the templ context for layouts.
	middleware.LayoutInjector = func(c echo.Context, ctx context.Context) context.Context {
		if user := auth.GetUser(c); user != nil {
			ctx = layouts.SetUserName(ctx, user.Name())
		}
		return layouts.SetCSRFToken(ctx, middleware.GetCSRFToken(c))
	}

	// --- Auth plugin ---
	users := auth.NewUserRepository(a.DB, a.Config.Database.Driver)
	sessions := auth.NewRedisSessionStore(a.Redis, a.Config.Auth.SessionTTL)
	hasher := auth.NewPasswordHasher(a.Config.Auth.HashAlgorithm, a.Config.Auth.BcryptCost)
	authService := auth.NewAuthService(users, sessions, hasher)
	gate := auth.NewGate(authService, a.Config.Auth.CookieName, a.Config.Auth.SessionTTL)

	authHandler := auth.NewHandler(authService, gate, auth.NewStateSigner(a.Config.Auth.SessionSecret), a.Providers...)
	auth.RegisterRoutes(e, authHandler)

	// --- Presence plugin ---
	presence.RegisterRoutes(e, presence.NewHandler(a.hub, gate))

	// Health check for container orchestration: both stores must answer.
	e.GET("/healthz", a.healthz)
}

func (a *App) healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	status := map[string]string{"status": "ok", "database": "ok", "redis": "ok"}
	code := http.StatusOK
	if err := a.DB.PingContext(ctx); err != nil {
		status["database"] = "unreachable"
		status["status"] = "degraded"
		code = http.StatusServiceUnavailable
	}
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		status["redis"] = "unreachable"
		status["status"] = "degraded"
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}
