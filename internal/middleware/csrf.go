package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	// csrfTokenLength is the number of random bytes in a CSRF token.
	csrfTokenLength = 32

	csrfCookieName = "parlor_csrf"
	csrfHeaderName = "X-CSRF-Token"

	// CSRFFormField is the hidden input rendered into every form.
	CSRFFormField = "csrf_token"

	contextKeyCSRF = "csrf_token"
)

// CSRF returns middleware implementing the double-submit cookie pattern.
// Every response carries a token cookie; unsafe methods must echo it in
// the X-CSRF-Token header or the csrf_token form field. JSON API routes
// are exempt because they never act on form posts.
func CSRF() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if strings.HasPrefix(req.URL.Path, "/api/") {
				return next(c)
			}

			var cookieToken string
			if cookie, err := req.Cookie(csrfCookieName); err == nil && cookie.Value != "" {
				cookieToken = cookie.Value
			} else {
				token, genErr := generateCSRFToken()
				if genErr != nil {
					return echo.NewHTTPError(http.StatusInternalServerError, "failed to generate CSRF token")
				}
				c.SetCookie(&http.Cookie{
					Name:     csrfCookieName,
					Value:    token,
					Path:     "/",
					HttpOnly: false,
					Secure:   IsSecureRequest(c),
					SameSite: http.SameSiteLaxMode,
				})
				cookieToken = token
			}
			c.Set(contextKeyCSRF, cookieToken)

			if isSafeMethod(req.Method) {
				return next(c)
			}

			// A freshly minted cookie cannot match anything the client sent.
			submitted := req.Header.Get(csrfHeaderName)
			if submitted == "" {
				submitted = req.FormValue(CSRFFormField)
			}
			if submitted == "" || subtle.ConstantTimeCompare([]byte(submitted), []byte(cookieToken)) != 1 {
				return echo.NewHTTPError(http.StatusForbidden, "invalid or missing CSRF token")
			}

			return next(c)
		}
	}
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet ||
		method == http.MethodHead ||
		method == http.MethodOptions
}

func generateCSRFToken() (string, error) {
	b := make([]byte, csrfTokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GetCSRFToken returns the token to embed in forms rendered for this request.
func GetCSRFToken(c echo.Context) string {
	if token, ok := c.Get(contextKeyCSRF).(string); ok {
		return token
	}
	return ""
}
