package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/csrf"
)

// idleBucket is how long an address can stay quiet before its bucket is dropped.
const idleBucket = 5 * time.Minute

// WriteLimiter is a token bucket per client address. A bucket holds up to
// perSecond tokens and refills continuously.
type WriteLimiter struct {
	mu        sync.Mutex
	perSecond float64
	buckets   map[string]*bucket
	swept     time.Time
	now       func() time.Time
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// NewWriteLimiter allows perSecond writes per second from each address.
func NewWriteLimiter(perSecond int) *WriteLimiter {
	return &WriteLimiter{
		perSecond: float64(perSecond),
		buckets:   make(map[string]*bucket),
		now:       time.Now,
	}
}

// Allow spends one token from addr's bucket.
// PRE: perSecond > 0
// POST: false when the bucket is empty; idle buckets are swept as a side effect
func (l *WriteLimiter) Allow(addr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.swept) > idleBucket {
		for a, b := range l.buckets {
			if now.Sub(b.seen) > idleBucket {
				delete(l.buckets, a)
			}
		}
		l.swept = now
	}

	b, ok := l.buckets[addr]
	if !ok {
		b = &bucket{tokens: l.perSecond, seen: now}
		l.buckets[addr] = b
	}
	b.tokens = math.Min(l.perSecond, b.tokens+now.Sub(b.seen).Seconds()*l.perSecond)
	b.seen = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// retryAfter is the whole number of seconds until addr has a token again.
func (l *WriteLimiter) retryAfter(addr string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[addr]
	if !ok {
		return 0
	}
	return int(math.Ceil((1 - b.tokens) / l.perSecond))
}

// LimitWrites rejects item writes (anything but GET, HEAD and OPTIONS) once
// the caller's bucket is empty. Board reads and paging are never limited.
func LimitWrites(l *WriteLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			addr := clientAddr(r)
			if !l.Allow(addr) {
				slog.Warn("write_rate_limited", "addr", addr, "method", r.Method, "path", r.URL.Path)
				w.Header().Set("Retry-After", strconv.Itoa(l.retryAfter(addr)))
				http.Error(w, "too many writes, retry shortly", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientAddr is the remote host without its port, so one browser's
// connections share a bucket.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// boardCSP admits the board page's inline card styles and nothing external.
const boardCSP = "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self'; img-src 'self'; connect-src 'self'; form-action 'self'; frame-ancestors 'none'"

// SecurityHeaders sets the content policy on every response. Item and
// calendar responses under /api/ are marked uncacheable, and secure mode
// adds HSTS.
func SecurityHeaders(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Content-Security-Policy", boardCSP)
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "same-origin")
			if strings.HasPrefix(r.URL.Path, "/api/") {
				h.Set("Cache-Control", "no-store")
			}
			if secure {
				h.Set("Strict-Transport-Security", "max-age=31536000")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CSRFOptions configures the CSRF middleware.
type CSRFOptions struct {
	// Secure marks the cookie Secure and enforces strict Referer checks.
	// Leave false when serving plain HTTP in development.
	Secure bool
	// TrustedOrigins are extra hosts (host:port) allowed to submit forms.
	TrustedOrigins []string
}

// CSRF returns middleware that protects form submissions against CSRF.
// It assumes an encryption key is passed (32 bytes).
// JSON API requests (Content-Type: application/json) are exempted: browsers
// cannot send them cross-site without a CORS preflight.
func CSRF(authKey []byte, opts CSRFOptions) func(http.Handler) http.Handler {
	csrfProtect := csrf.Protect(
		authKey,
		csrf.Secure(opts.Secure),
		csrf.Path("/"),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.TrustedOrigins(opts.TrustedOrigins),
		csrf.ErrorHandler(http.HandlerFunc(csrfRejected)),
	)

	return func(next http.Handler) http.Handler {
		protected := csrfProtect(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
				next.ServeHTTP(w, r)
				return
			}
			if !opts.Secure {
				r = csrf.PlaintextHTTPRequest(r)
			}
			protected.ServeHTTP(w, r)
		})
	}
}

func csrfRejected(w http.ResponseWriter, r *http.Request) {
	slog.Warn("csrf_rejected", "method", r.Method, "path", r.URL.Path, "reason", csrf.FailureReason(r))
	http.Error(w, "Forbidden - CSRF token invalid", http.StatusForbidden)
}

// Stack wraps h in layers listed outermost first, so a request passes
// through them in the order written.
func Stack(h http.Handler, layers ...func(http.Handler) http.Handler) http.Handler {
	for i := len(layers) - 1; i >= 0; i-- {
		h = layers[i](h)
	}
	return h
}
