// Package sanitize cleans text that arrives from outside Parlor (OAuth
// provider profiles, form fields) before it is stored. Uses bluemonday's
// strict policy so provider-controlled display names cannot smuggle markup
// into rendered pages or presence broadcasts.
package sanitize

import (
	"html"
	"net/url"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// policy is the singleton strict policy. bluemonday policies are safe for
// concurrent use once built.
var (
	policy     *bluemonday.Policy
	policyOnce sync.Once
)

func getPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return policy
}

// PlainText strips every HTML tag from input, collapses surrounding
// whitespace and truncates to maxRunes (0 means no limit). Entities that
// bluemonday escapes are decoded again because templates escape on output.
func PlainText(input string, maxRunes int) string {
	if input == "" {
		return ""
	}
	out := html.UnescapeString(getPolicy().Sanitize(input))
	out = strings.Join(strings.Fields(out), " ")

	if maxRunes > 0 && utf8.RuneCountInString(out) > maxRunes {
		runes := []rune(out)
		out = string(runes[:maxRunes])
	}
	return out
}

// URL returns raw if it is an absolute http(s) URL, or "" otherwise.
// Keeps javascript: and data: URLs out of <img src>.
func URL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}
