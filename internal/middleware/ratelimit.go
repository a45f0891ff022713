package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// rateLimitEntry tracks request counts for a single IP within a window.
type rateLimitEntry struct {
	count       int
	windowStart time.Time
}

// fixedWindowLimiter counts requests per key in fixed windows.
type fixedWindowLimiter struct {
	mu          sync.Mutex
	entries     map[string]*rateLimitEntry
	maxRequests int
	window      time.Duration
	now         func() time.Time
}

func newFixedWindowLimiter(maxRequests int, window time.Duration) *fixedWindowLimiter {
	return &fixedWindowLimiter{
		entries:     make(map[string]*rateLimitEntry),
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
	}
}

// allow records one request for key and reports whether it is within budget.
// Expired entries are swept opportunistically so the map stays bounded by
// the number of clients seen in the last two windows.
func (l *fixedWindowLimiter) allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok || now.Sub(entry.windowStart) >= l.window {
		if len(l.entries) > 1024 {
			l.sweep(now)
		}
		l.entries[key] = &rateLimitEntry{count: 1, windowStart: now}
		return true
	}

	entry.count++
	return entry.count <= l.maxRequests
}

func (l *fixedWindowLimiter) sweep(now time.Time) {
	for key, entry := range l.entries {
		if now.Sub(entry.windowStart) > 2*l.window {
			delete(l.entries, key)
		}
	}
}

// RateLimit returns middleware that allows maxRequests per client IP per
// window and answers 429 beyond that.
func RateLimit(maxRequests int, window time.Duration) echo.MiddlewareFunc {
	return rateLimitWith(newFixedWindowLimiter(maxRequests, window))
}

// retryAfter is the window in whole seconds, at least 1.
func (l *fixedWindowLimiter) retryAfter() string {
	secs := int(math.Ceil(l.window.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

func rateLimitWith(l *fixedWindowLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.allow(c.RealIP()) {
				c.Response().Header().Set("Retry-After", l.retryAfter())
				return echo.NewHTTPError(http.StatusTooManyRequests, "Too many attempts. Please try again later.")
			}
			return next(c)
		}
	}
}
