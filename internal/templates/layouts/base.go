package layouts

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
)

// Base wraps a page body in the shared document shell and navigation.
// scripts are same-origin paths appended before </body>.
func Base(title string, body templ.Component, scripts ...string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s · Parlor</title>
<link rel="stylesheet" href="/static/css/style.css">
</head>
<body>
`, templ.EscapeString(title)); err != nil {
			return err
		}

		if err := nav(ctx, w); err != nil {
			return err
		}

		if _, err := io.WriteString(w, "<main class=\"container\">\n"); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "</main>\n"); err != nil {
			return err
		}

		for _, src := range scripts {
			if _, err := fmt.Fprintf(w, "<script src=\"%s\"></script>\n", templ.EscapeString(src)); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</body>\n</html>\n")
		return err
	})
}

func nav(ctx context.Context, w io.Writer) error {
	if !IsAuthenticated(ctx) {
		_, err := io.WriteString(w, `<nav class="nav"><a class="brand" href="/">Parlor</a></nav>
`)
		return err
	}
	_, err := fmt.Fprintf(w, `<nav class="nav"><a class="brand" href="/">Parlor</a>
<span class="who">Logged in as <strong>%s</strong></span>
<a href="/profile">Profile</a> <a href="/chat">Chat</a> <a href="/logout">Logout</a></nav>
`, templ.EscapeString(GetUserName(ctx)))
	return err
}
