package auth

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/parlor/internal/apperror"
	"github.com/keyxmakerx/parlor/internal/middleware"
)

// stateCookieName holds the OAuth state between redirect and callback.
const stateCookieName = "parlor_oauth_state"

// landingErrors maps the ?error= codes used in redirects to messages.
var landingErrors = map[string]string{
	"invalid": "Invalid username or password.",
	"taken":   "That username is already taken.",
	"oauth":   "Signing in with the provider failed. Please try again.",
	"state":   "That login attempt expired. Please try again.",
}

// Handler handles HTTP requests for authentication (login, register,
// logout, provider sign-in). Handlers are thin: they bind the request,
// call the service, and render or redirect.
type Handler struct {
	service   AuthService
	gate      *Gate
	providers map[string]ProfileExchanger
	states    *StateSigner
}

// NewHandler creates a new auth handler. providers may be empty.
func NewHandler(service AuthService, gate *Gate, states *StateSigner, providers ...ProfileExchanger) *Handler {
	h := &Handler{
		service:   service,
		gate:      gate,
		providers: make(map[string]ProfileExchanger, len(providers)),
		states:    states,
	}
	for _, p := range providers {
		h.providers[p.Name()] = p
	}
	return h
}

// providerNames returns the configured provider keys in a stable order.
func (h *Handler) providerNames() []string {
	names := make([]string, 0, len(h.providers))
	for name := range h.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Landing renders the start page (GET /).
func (h *Handler) Landing(c echo.Context) error {
	return middleware.Render(c, http.StatusOK, LandingPage(LandingData{
		User:      GetUser(c),
		Error:     landingErrors[c.QueryParam("error")],
		Providers: h.providerNames(),
	}))
}

// Login processes the login form (POST /login).
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	token, _, err := h.service.Login(c.Request().Context(), LocalCredentials{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return c.Redirect(http.StatusSeeOther, "/?error=invalid")
		}
		return err
	}

	h.gate.SetCookie(c, token)
	return c.Redirect(http.StatusSeeOther, "/profile")
}

// Register processes the registration form (POST /register) and logs the
// new user in.
func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	ctx := c.Request().Context()
	_, err := h.service.Register(ctx, RegisterInput{
		Username: req.Username,
		Password: req.Password,
		Confirm:  req.Confirm,
	})
	if err != nil {
		var appErr *apperror.AppError
		switch {
		case errors.Is(err, ErrDuplicateUser):
			return c.Redirect(http.StatusSeeOther, "/?error=taken")
		case errors.As(err, &appErr) && appErr.Code == http.StatusUnprocessableEntity:
			return middleware.Render(c, http.StatusUnprocessableEntity, LandingPage(LandingData{
				Error:     appErr.Message,
				Providers: h.providerNames(),
			}))
		}
		return err
	}

	token, _, err := h.service.Login(ctx, LocalCredentials{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		// Registered but could not open a session; the user can log in manually.
		slog.Warn("auto-login after registration failed", slog.Any("error", err))
		return c.Redirect(http.StatusSeeOther, "/")
	}

	h.gate.SetCookie(c, token)
	return c.Redirect(http.StatusSeeOther, "/profile")
}

// Profile renders the authenticated user's profile (GET /profile).
func (h *Handler) Profile(c echo.Context) error {
	return middleware.Render(c, http.StatusOK, ProfilePage(GetUser(c)))
}

// Logout destroys the session and clears the cookie (GET /logout).
func (h *Handler) Logout(c echo.Context) error {
	if token := h.gate.Token(c.Request()); token != "" {
		if err := h.service.Logout(c.Request().Context(), token); err != nil {
			slog.Warn("failed to destroy session on logout", slog.Any("error", err))
		}
	}
	h.gate.ClearCookie(c)
	return c.Redirect(http.StatusSeeOther, "/")
}

// --- Provider sign-in ---

// ProviderLogin starts the authorization code flow (GET /auth/:provider).
func (h *Handler) ProviderLogin(c echo.Context) error {
	provider, ok := h.providers[c.Param("provider")]
	if !ok {
		return apperror.NewNotFound("unknown login provider")
	}

	state, err := h.states.Issue(provider.Name())
	if err != nil {
		return apperror.NewInternal(err)
	}

	c.SetCookie(&http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/auth/",
		HttpOnly: true,
		Secure:   middleware.IsSecureRequest(c),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(stateTTL.Seconds()),
	})
	return c.Redirect(http.StatusFound, provider.AuthCodeURL(state))
}

// ProviderCallback finishes the flow (GET /auth/:provider/callback): it
// checks state, exchanges the code for a profile and logs the user in.
func (h *Handler) ProviderCallback(c echo.Context) error {
	provider, ok := h.providers[c.Param("provider")]
	if !ok {
		return apperror.NewNotFound("unknown login provider")
	}

	state := c.QueryParam("state")
	cookie, cookieErr := c.Cookie(stateCookieName)
	c.SetCookie(&http.Cookie{Name: stateCookieName, Value: "", Path: "/auth/", HttpOnly: true, MaxAge: -1})

	if cookieErr != nil || state == "" ||
		subtle.ConstantTimeCompare([]byte(state), []byte(cookie.Value)) != 1 ||
		h.states.Verify(state, provider.Name()) != nil {
		slog.Info("rejected oauth callback with bad state", slog.String("provider", provider.Name()))
		return c.Redirect(http.StatusSeeOther, "/?error=state")
	}

	if denied := c.QueryParam("error"); denied != "" {
		slog.Info("provider login denied",
			slog.String("provider", provider.Name()),
			slog.String("reason", denied),
		)
		return c.Redirect(http.StatusSeeOther, "/?error=oauth")
	}

	ctx := c.Request().Context()
	profile, err := provider.Exchange(ctx, c.QueryParam("code"))
	if err != nil {
		slog.Warn("provider code exchange failed",
			slog.String("provider", provider.Name()),
			slog.Any("error", err),
		)
		return c.Redirect(http.StatusSeeOther, "/?error=oauth")
	}

	token, _, err := h.service.Login(ctx, *profile)
	if err != nil {
		return err
	}

	h.gate.SetCookie(c, token)
	return c.Redirect(http.StatusSeeOther, "/chat")
}
