package auth

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	"github.com/keyxmakerx/parlor/internal/middleware"
	"github.com/keyxmakerx/parlor/internal/templates/layouts"
)

// LandingData is what the start page needs to render.
type LandingData struct {
	User      *User
	Error     string
	Providers []string
}

// providerLabels maps provider keys to button captions.
var providerLabels = map[string]string{
	"github": "Login with GitHub",
	"oidc":   "Login with single sign-on",
}

// LandingPage renders the login and registration forms, or a greeting
// when a session is already active.
func LandingPage(data LandingData) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if data.Error != "" {
			if _, err := fmt.Fprintf(w, "<p class=\"alert\">%s</p>\n", templ.EscapeString(data.Error)); err != nil {
				return err
			}
		}

		if data.User != nil {
			_, err := fmt.Fprintf(w, `<section class="card">
<h1>Welcome back, %s</h1>
<p><a href="/profile">Go to your profile</a> or <a href="/chat">join the chat</a>.</p>
</section>
`, templ.EscapeString(data.User.Name()))
			return err
		}

		csrf := templ.EscapeString(layouts.GetCSRFToken(ctx))
		if _, err := fmt.Fprintf(w, `<section class="card">
<h1>Login</h1>
<form method="post" action="/login">
<input type="hidden" name="%[1]s" value="%[2]s">
<label>Username <input name="username" autocomplete="username" required></label>
<label>Password <input type="password" name="password" autocomplete="current-password" required></label>
<button type="submit">Login</button>
</form>
</section>
<section class="card">
<h1>Register</h1>
<form method="post" action="/register">
<input type="hidden" name="%[1]s" value="%[2]s">
<label>Username <input name="username" autocomplete="username" maxlength="%[3]d" required></label>
<label>Password <input type="password" name="password" autocomplete="new-password" required></label>
<label>Confirm <input type="password" name="confirm" autocomplete="new-password"></label>
<button type="submit">Register</button>
</form>
</section>
`, middleware.CSRFFormField, csrf, maxUsernameRunes); err != nil {
			return err
		}

		if len(data.Providers) == 0 {
			return nil
		}
		if _, err := io.WriteString(w, "<section class=\"card social\">\n"); err != nil {
			return err
		}
		for _, name := range data.Providers {
			label, ok := providerLabels[name]
			if !ok {
				label = "Login with " + name
			}
			if _, err := fmt.Fprintf(w, "<a class=\"button\" href=\"/auth/%s\">%s</a>\n",
				templ.EscapeString(name), templ.EscapeString(label)); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</section>\n")
		return err
	})
	return layouts.Base("Home", body)
}

// ProfilePage shows the stored account fields of user.
func ProfilePage(user *User) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, "<section class=\"card profile\">\n<h1>Profile of %s</h1>\n",
			templ.EscapeString(user.Name())); err != nil {
			return err
		}
		if user.PhotoURL != "" {
			if _, err := fmt.Fprintf(w, "<img class=\"avatar\" src=\"%s\" alt=\"\">\n",
				templ.EscapeString(user.PhotoURL)); err != nil {
				return err
			}
		}

		rows := [][2]string{{"Sign-in method", "Password"}}
		if !user.IsLocal() {
			rows = [][2]string{{"Sign-in method", user.Provider}, {"Email", user.Email}}
		}
		rows = append(rows, [2]string{"Member since", user.CreatedOn.Format("2006-01-02")})
		if user.LastLogin != nil {
			rows = append(rows, [2]string{"Last login", user.LastLogin.Format("2006-01-02 15:04 MST")})
		}
		if !user.IsLocal() {
			rows = append(rows, [2]string{"Logins", fmt.Sprint(user.LoginCount)})
		}

		if _, err := io.WriteString(w, "<dl>\n"); err != nil {
			return err
		}
		for _, row := range rows {
			if _, err := fmt.Fprintf(w, "<dt>%s</dt><dd>%s</dd>\n",
				templ.EscapeString(row[0]), templ.EscapeString(row[1])); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</dl>\n<p><a href=\"/chat\">Join the chat</a> · <a href=\"/logout\">Logout</a></p>\n</section>\n")
		return err
	})
	return layouts.Base("Profile", body)
}
