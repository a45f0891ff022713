package presence

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	"github.com/keyxmakerx/parlor/internal/templates/layouts"
)

// ChatPage renders the presence panel. chat.js opens /ws and appends one
// line per event.
func ChatPage(name string, count int64) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<section class="card chat">
<h1>Chat</h1>
<p>Hello, %s. <span id="num-users">%d</span> user(s) online.</p>
<ul id="messages" aria-live="polite"></ul>
<p id="status" class="muted">Connecting…</p>
</section>
`, templ.EscapeString(name), count)
		return err
	})
	return layouts.Base("Chat", body, "/static/js/chat.js")
}
