package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// --- CSRF ---

func TestCSRF_IssuesCookieOnSafeRequest(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var token string
	err := CSRF()(func(c echo.Context) error {
		token = GetCSRFToken(c)
		return okHandler(c)
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(token) != csrfTokenLength*2 {
		t.Errorf("expected 64-char token in context, got %q", token)
	}
	if !strings.Contains(rec.Header().Get("Set-Cookie"), csrfCookieName+"="+token) {
		t.Errorf("expected cookie with token, got %q", rec.Header().Get("Set-Cookie"))
	}
}

func TestCSRF_RejectsPostWithoutToken(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("username=a"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "abc"})
	c := e.NewContext(req, httptest.NewRecorder())

	err := CSRF()(okHandler)(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
}

func TestCSRF_AcceptsMatchingFormField(t *testing.T) {
	e := echo.New()
	form := url.Values{CSRFFormField: {"abc"}, "username": {"a"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "abc"})
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := CSRF()(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestCSRF_SkipsAPI(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/presence", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	if err := CSRF()(okHandler)(c); err != nil {
		t.Errorf("expected API route to bypass CSRF, got %v", err)
	}
}

// --- Rate limiting ---

func TestRateLimit_BlocksAfterBudgetAndResets(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newFixedWindowLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if !l.allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.allow("1.2.3.4") {
		t.Error("third request should be blocked")
	}
	if !l.allow("5.6.7.8") {
		t.Error("other clients have their own budget")
	}

	now = now.Add(time.Minute)
	if !l.allow("1.2.3.4") {
		t.Error("expected budget to reset after the window")
	}
}

func TestRateLimit_Middleware429(t *testing.T) {
	e := echo.New()
	mw := RateLimit(1, time.Minute)(okHandler)

	first := e.NewContext(httptest.NewRequest(http.MethodPost, "/login", nil), httptest.NewRecorder())
	if err := mw(first); err != nil {
		t.Fatalf("first request: %v", err)
	}

	second := e.NewContext(httptest.NewRequest(http.MethodPost, "/login", nil), httptest.NewRecorder())
	he, ok := mw(second).(*echo.HTTPError)
	if !ok || he.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", he)
	}
}

func TestRateLimit_RetryAfterFollowsWindow(t *testing.T) {
	cases := []struct {
		window time.Duration
		want   string
	}{
		{time.Minute, "60"},
		{5 * time.Minute, "300"},
		{1500 * time.Millisecond, "2"},
		{400 * time.Millisecond, "1"},
	}
	e := echo.New()
	for _, tc := range cases {
		mw := RateLimit(1, tc.window)(okHandler)
		_ = mw(e.NewContext(httptest.NewRequest(http.MethodPost, "/login", nil), httptest.NewRecorder()))

		rec := httptest.NewRecorder()
		if err := mw(e.NewContext(httptest.NewRequest(http.MethodPost, "/login", nil), rec)); err == nil {
			t.Fatalf("window %s: expected 429", tc.window)
		}
		if got := rec.Header().Get("Retry-After"); got != tc.want {
			t.Errorf("window %s: expected Retry-After %s, got %q", tc.window, tc.want, got)
		}
	}
}

// --- Proxy ---

func TestIPExtractor(t *testing.T) {
	extract := buildIPExtractor([]string{"10.0.0.0/8", "not-a-cidr"})

	cases := []struct {
		name   string
		remote string
		header map[string]string
		want   string
	}{
		{"untrusted peer ignores headers", "203.0.113.9:5555", map[string]string{"X-Real-IP": "1.1.1.1"}, "203.0.113.9"},
		{"trusted peer uses X-Real-IP", "10.1.2.3:5555", map[string]string{"X-Real-IP": "198.51.100.7"}, "198.51.100.7"},
		{"trusted peer uses leftmost XFF", "10.1.2.3:5555", map[string]string{"X-Forwarded-For": "198.51.100.8, 10.0.0.1"}, "198.51.100.8"},
		{"trusted peer without headers", "10.1.2.3:5555", nil, "10.1.2.3"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			if got := extract(req); got != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

// --- Headers and CORS ---

func TestSecurityHeaders(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	if err := SecurityHeaders(false)(okHandler)(c); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(rec.Header().Get("Content-Security-Policy"), "connect-src 'self' ws: wss:") {
		t.Error("expected CSP to allow the websocket")
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("expected no HSTS when disabled")
	}
}

func TestCORS_OnlyListedOriginsOnAPI(t *testing.T) {
	e := echo.New()
	mw := CORS([]string{"https://parlor.example/", "*"})(okHandler)

	run := func(path, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set(echo.HeaderOrigin, origin)
		rec := httptest.NewRecorder()
		if err := mw(e.NewContext(req, rec)); err != nil {
			t.Fatal(err)
		}
		return rec
	}

	if got := run("/api/v1/presence", "https://parlor.example").Header().Get(echo.HeaderAccessControlAllowOrigin); got != "https://parlor.example" {
		t.Errorf("expected listed origin to be allowed, got %q", got)
	}
	if got := run("/api/v1/presence", "https://evil.example").Header().Get(echo.HeaderAccessControlAllowOrigin); got != "" {
		t.Errorf("expected unlisted origin to be refused, got %q", got)
	}
	if got := run("/profile", "https://parlor.example").Header().Get(echo.HeaderAccessControlAllowOrigin); got != "" {
		t.Errorf("expected page routes to get no CORS headers, got %q", got)
	}
}
