package auth

import (
	"net/http"

	"github.com/keyxmakerx/parlor/internal/apperror"
)

// Sentinel errors returned by the auth service. Compare with errors.Is;
// each has its own Type so they never match one another.
var (
	// ErrInvalidCredentials covers both an unknown username and a wrong
	// password so the response never reveals which usernames exist.
	ErrInvalidCredentials = &apperror.AppError{
		Code:    http.StatusUnauthorized,
		Type:    "invalid_credentials",
		Message: "invalid username or password",
	}

	// ErrDuplicateUser is returned when registering a taken username.
	ErrDuplicateUser = &apperror.AppError{
		Code:    http.StatusConflict,
		Type:    "duplicate_user",
		Message: "that username is already taken",
	}

	// ErrSessionInvalid means the session token is unknown, expired,
	// malformed, or points at a user that no longer exists. Callers treat
	// it as "no user"; it is never rendered as an error page.
	ErrSessionInvalid = &apperror.AppError{
		Code:    http.StatusUnauthorized,
		Type:    "session_invalid",
		Message: "session expired or invalid",
	}

	// ErrUnauthorized is the Gate's deny result when no session is presented.
	ErrUnauthorized = &apperror.AppError{
		Code:    http.StatusUnauthorized,
		Type:    "unauthorized",
		Message: "authentication required",
	}

	// ErrProviderLogin is returned when a provider rejects the code or the
	// returned profile cannot be read.
	ErrProviderLogin = &apperror.AppError{
		Code:    http.StatusUnauthorized,
		Type:    "provider_login_failed",
		Message: "signing in with the provider failed",
	}

	// ErrInvalidState is returned when an OAuth callback's state does not verify.
	ErrInvalidState = &apperror.AppError{
		Code:    http.StatusBadRequest,
		Type:    "invalid_oauth_state",
		Message: "login attempt is invalid or has expired",
	}
)
