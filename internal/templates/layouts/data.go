// data.go provides typed context helpers for passing layout data from
// middleware to templ components. Only simple types are stored so this
// package never imports plugin types.
//
// Data flow: Middleware → Echo context → LayoutInjector → Go context → templ
package layouts

import "context"

// ctxKey is a private type for context keys to prevent collisions.
type ctxKey string

const (
	keyUserName  ctxKey = "layout_user_name"
	keyCSRFToken ctxKey = "layout_csrf_token"
)

// SetUserName stores the display name of the logged-in user.
func SetUserName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, keyUserName, name)
}

// GetUserName returns the logged-in user's name, or "" when anonymous.
func GetUserName(ctx context.Context) string {
	name, _ := ctx.Value(keyUserName).(string)
	return name
}

// IsAuthenticated reports whether a user name was injected.
func IsAuthenticated(ctx context.Context) bool {
	return GetUserName(ctx) != ""
}

// SetCSRFToken stores the CSRF token for forms.
func SetCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, keyCSRFToken, token)
}

// GetCSRFToken returns the CSRF token for hidden form fields.
func GetCSRFToken(ctx context.Context) string {
	token, _ := ctx.Value(keyCSRFToken).(string)
	return token
}
