package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/parlor/internal/middleware"
)

// Context keys for the authenticated user in the Echo context. Other
// plugins read them through GetUser and GetUserID.
const (
	contextKeyUser   = "auth_user"
	contextKeyUserID = middleware.ContextKeyUserID
)

// Gate decides whether a request carries a live session. The same check
// guards page routes, the JSON API and the websocket handshake.
type Gate struct {
	service    AuthService
	cookieName string
	ttl        time.Duration
}

// NewGate creates a gate reading the named session cookie.
func NewGate(service AuthService, cookieName string, ttl time.Duration) *Gate {
	return &Gate{service: service, cookieName: cookieName, ttl: ttl}
}

// Token returns the session token presented by r, or "".
func (g *Gate) Token(r *http.Request) string {
	cookie, err := r.Cookie(g.cookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// Authorize resolves the session behind r. A missing, expired or stale
// session yields ErrUnauthorized; a store outage is passed through so
// callers can answer 503 instead of pretending the user logged out.
func (g *Gate) Authorize(ctx context.Context, r *http.Request) (*User, error) {
	token := g.Token(r)
	if token == "" {
		return nil, ErrUnauthorized
	}

	user, err := g.service.ResolveSession(ctx, token)
	if err != nil {
		if errors.Is(err, ErrSessionInvalid) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return user, nil
}

// RequireAuth returns middleware that lets only authenticated requests
// through. Browsers are redirected to the start page and API clients get
// a JSON 401. A stale cookie is cleared on the way out.
func (g *Gate) RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, err := g.Authorize(c.Request().Context(), c.Request())
			if err != nil {
				if !errors.Is(err, ErrUnauthorized) {
					return err
				}
				if g.Token(c.Request()) != "" {
					g.ClearCookie(c)
				}
				return handleUnauthenticated(c)
			}

			setUser(c, user)
			return next(c)
		}
	}
}

// OptionalAuth returns middleware that attaches the user when a session is
// present and never denies. A store outage is logged and the request
// continues anonymously.
func (g *Gate) OptionalAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if g.Token(c.Request()) == "" {
				return next(c)
			}

			user, err := g.Authorize(c.Request().Context(), c.Request())
			switch {
			case err == nil:
				setUser(c, user)
			case errors.Is(err, ErrUnauthorized):
				g.ClearCookie(c)
			default:
				slog.Warn("session lookup failed, continuing anonymously", slog.Any("error", err))
			}
			return next(c)
		}
	}
}

// handleUnauthenticated answers a denied request: 401 JSON for the API,
// a 303 redirect to the start page for browsers.
func handleUnauthenticated(c echo.Context) error {
	if strings.HasPrefix(c.Request().URL.Path, "/api/") {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error":   ErrUnauthorized.Type,
			"message": ErrUnauthorized.Message,
		})
	}
	return c.Redirect(http.StatusSeeOther, "/")
}

// --- Cookie helpers ---

// SetCookie issues the session cookie. HttpOnly and SameSite=Lax; Secure
// when the request arrived over TLS.
func (g *Gate) SetCookie(c echo.Context, token string) {
	c.SetCookie(&http.Cookie{
		Name:     g.cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   middleware.IsSecureRequest(c),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(g.ttl.Seconds()),
	})
}

// ClearCookie expires the session cookie.
func (g *Gate) ClearCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     g.cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// --- Exported getters for other plugins ---

func setUser(c echo.Context, user *User) {
	c.Set(contextKeyUser, user)
	c.Set(contextKeyUserID, user.ID)
}

// GetUser returns the authenticated user, or nil when the request is anonymous.
func GetUser(c echo.Context) *User {
	user, ok := c.Get(contextKeyUser).(*User)
	if !ok {
		return nil
	}
	return user
}

// GetUserID returns the authenticated user's id, or "".
func GetUserID(c echo.Context) string {
	id, ok := c.Get(contextKeyUserID).(string)
	if !ok {
		return ""
	}
	return id
}
