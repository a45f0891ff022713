// Package app is the application bootstrap and dependency injection root.
// It holds the shared infrastructure (user store, Redis client, Echo
// instance) and wires the plugins together.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/parlor/internal/apperror"
	"github.com/keyxmakerx/parlor/internal/config"
	"github.com/keyxmakerx/parlor/internal/middleware"
	"github.com/keyxmakerx/parlor/internal/plugins/auth"
	"github.com/keyxmakerx/parlor/internal/plugins/presence"
	"github.com/keyxmakerx/parlor/internal/templates/pages"
)

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go and used to register all routes.
type App struct {
	// Config holds the loaded application configuration.
	Config *config.Config

	// DB is the user store connection pool (MariaDB or SQLite).
	DB *sql.DB

	// Redis backs the session store.
	Redis *redis.Client

	// Echo is the HTTP server instance.
	Echo *echo.Echo

	// Providers are the external identity providers offered on the start page.
	Providers []auth.ProfileExchanger

	hub *presence.Hub
}

// New creates an App with the given dependencies and configures the Echo
// server with global middleware and error handling. Call RegisterRoutes
// before Start.
func New(cfg *config.Config, db *sql.DB, rdb *redis.Client, providers ...auth.ProfileExchanger) *App {
	app := &App{
		Config:    cfg,
		DB:        db,
		Redis:     rdb,
		Echo:      newEcho(),
		Providers: providers,
		hub:       presence.NewHub(),
	}

	app.setupMiddleware()
	app.Echo.HTTPErrorHandler = app.errorHandler
	app.Echo.Static("/static", "static")
	return app
}

// NewDegraded creates an App for when a backing store could not be
// reached at startup. Every route answers 503 with the "Unable to login"
// page naming cause; the process stays up so the failure is visible.
func NewDegraded(cfg *config.Config, cause error) *App {
	app := &App{Config: cfg, Echo: newEcho()}

	app.Echo.Use(middleware.Recovery())
	app.Echo.Use(middleware.RequestLogger())
	app.Echo.Use(middleware.SecurityHeaders(isHTTPS(cfg.BaseURL)))
	app.Echo.HTTPErrorHandler = app.errorHandler
	app.Echo.Static("/static", "static")

	message := cause.Error()
	app.Echo.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
	})
	unavailable := func(c echo.Context) error {
		return middleware.Render(c, http.StatusServiceUnavailable, pages.Unavailable(message))
	}
	app.Echo.Any("/", unavailable)
	app.Echo.Any("/*", unavailable)
	return app
}

func newEcho() *echo.Echo {
	e := echo.New()

	// We log our own startup line.
	e.HideBanner = true
	e.HidePort = true

	// c.RealIP() must see the client behind the reverse proxy; rate
	// limiting keys on it.
	middleware.TrustedProxies(e, middleware.DefaultTrustedProxies)
	return e
}

// setupMiddleware registers global middleware on the Echo instance.
// Order matters: outermost (recovery) runs first, innermost (CSRF) runs last.
func (a *App) setupMiddleware() {
	a.Echo.Use(middleware.Recovery())
	a.Echo.Use(middleware.RequestLogger())
	a.Echo.Use(middleware.SecurityHeaders(isHTTPS(a.Config.BaseURL)))

	// Only the JSON API is readable cross-origin, and only from BASE_URL.
	a.Echo.Use(middleware.CORS([]string{a.Config.BaseURL}))

	a.Echo.Use(middleware.CSRF())
}

// errorHandler maps domain errors (AppError) and Echo errors to responses:
// JSON for API requests, a redirect to the start page for a browser 401,
// and the error page for everything else.
func (a *App) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := defaultErrorMessage(code)

	var appErr *apperror.AppError
	var echoErr *echo.HTTPError
	switch {
	case errors.As(err, &appErr):
		code = appErr.Code
		message = appErr.Message
		if appErr.Internal != nil {
			slog.Error("internal error",
				slog.String("type", appErr.Type),
				slog.String("message", appErr.Message),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
			)
		}
	case errors.As(err, &echoErr):
		code = echoErr.Code
		if msg, ok := echoErr.Message.(string); ok {
			message = msg
		} else {
			message = defaultErrorMessage(code)
		}
	default:
		slog.Error("unhandled error",
			slog.Any("error", err),
			slog.String("path", c.Request().URL.Path),
		)
	}

	if strings.HasPrefix(c.Request().URL.Path, "/api/") {
		_ = c.JSON(code, map[string]string{
			"error":   http.StatusText(code),
			"message": message,
		})
		return
	}

	if code == http.StatusUnauthorized {
		_ = c.Redirect(http.StatusSeeOther, "/")
		return
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = middleware.Render(c, code, pages.ErrorPage(code, message))
}

// defaultErrorMessage returns a user-friendly message for common HTTP
// status codes when no specific message was provided by the error.
func defaultErrorMessage(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "The request was invalid or cannot be processed."
	case http.StatusForbidden:
		return "You don't have permission to access this resource."
	case http.StatusNotFound:
		return "The page you're looking for doesn't exist."
	case http.StatusMethodNotAllowed:
		return "This action is not allowed."
	case http.StatusTooManyRequests:
		return "You're making too many requests. Please slow down."
	case http.StatusServiceUnavailable:
		return "The service is temporarily unavailable. Please try again later."
	default:
		return "Something went wrong on our end. Please try again."
	}
}

func isHTTPS(baseURL string) bool {
	return strings.HasPrefix(baseURL, "https://")
}

// Start begins listening for HTTP requests on the configured port.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting Parlor server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
	)
	return a.Echo.Start(addr)
}

// Shutdown disconnects presence sockets and drains in-flight requests.
func (a *App) Shutdown(ctx context.Context) error {
	if a.hub != nil {
		a.hub.Close()
	}
	return a.Echo.Shutdown(ctx)
}
