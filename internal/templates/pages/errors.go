// Package pages holds full-page templ components that belong to no plugin.
package pages

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/a-h/templ"

	"github.com/keyxmakerx/parlor/internal/templates/layouts"
)

// ErrorPage renders a status code with a client-safe message.
func ErrorPage(code int, message string) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<section class="card error">
<h1>%d %s</h1>
<p>%s</p>
<p><a href="/">Back to the start page</a></p>
</section>
`, code, templ.EscapeString(http.StatusText(code)), templ.EscapeString(message))
		return err
	})
	return layouts.Base(http.StatusText(code), body)
}

// Unavailable is served by the degraded app for every route when a backing
// store could not be reached at startup.
func Unavailable(cause string) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<section class="card error">
<h1>Unable to login</h1>
<p>The login service cannot reach its storage right now.</p>
<pre class="cause">%s</pre>
</section>
`, templ.EscapeString(cause))
		return err
	})
	return layouts.Base("Unable to login", body)
}
