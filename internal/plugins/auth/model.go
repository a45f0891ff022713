// Package auth handles user authentication and session management for
// Parlor. It verifies local username/password credentials, reconciles
// accounts from external OAuth/OIDC providers, and keeps a server-side
// session identity in Redis that both HTTP routes and the presence
// websocket resolve through the same Gate.
//
// This is a CORE plugin -- always enabled, cannot be disabled.
package auth

import (
	"time"
)

// User represents a Parlor account. Local accounts carry Username and
// PasswordHash; provider accounts carry Provider and ExternalID instead.
// Database scanning and JSON marshaling use this struct directly.
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username,omitempty"`
	PasswordHash string     `json:"-"` // Never expose in JSON responses.
	Provider     string     `json:"provider,omitempty"`
	ExternalID   string     `json:"external_id,omitempty"`
	DisplayName  string     `json:"display_name,omitempty"`
	PhotoURL     string     `json:"photo_url,omitempty"`
	Email        string     `json:"email,omitempty"`
	CreatedOn    time.Time  `json:"created_on"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	LoginCount   int        `json:"login_count"`
}

// Name returns the label shown in views and presence events: the local
// username if set, otherwise the provider display name.
func (u *User) Name() string {
	if u.Username != "" {
		return u.Username
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return "Unknown"
}

// IsLocal reports whether the account signs in with a password.
func (u *User) IsLocal() bool {
	return u.Username != "" && u.PasswordHash != ""
}

// --- Request DTOs (bound from HTTP requests) ---

// RegisterRequest holds the data submitted by the registration form.
type RegisterRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
	Confirm  string `json:"confirm" form:"confirm"`
}

// LoginRequest holds the data submitted by the login form.
type LoginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// --- Service Input DTOs (passed from handler to service) ---

// RegisterInput is the input for creating a new local user. Confirm is
// optional; when non-empty it must equal Password.
type RegisterInput struct {
	Username string
	Password string
	Confirm  string
}

// --- Store inputs ---

// ExternalUserDefaults are the fields written only when an external
// account is created for the first time.
type ExternalUserDefaults struct {
	Provider    string
	ExternalID  string
	DisplayName string
	PhotoURL    string
	Email       string
	CreatedOn   time.Time
}

// LoginStats are applied on every external login, insert or update.
type LoginStats struct {
	LastLogin      time.Time
	LoginIncrement int
}

// --- Session ---

// Principal is the minimal identity kept in the session store between
// requests. It holds the user id and nothing else that identifies or
// authenticates the user.
type Principal struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
