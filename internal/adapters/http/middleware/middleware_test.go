package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/csrf"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
}

// TestCSRF_ExemptsJSON verifies JSON API calls bypass the token check.
func TestCSRF_ExemptsJSON(t *testing.T) {
	h := CSRF(testKey, CSRFOptions{})(http.HandlerFunc(okHandler))

	req := httptest.NewRequest("DELETE", "/api/items/a", nil)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}

// TestCSRF_RejectsFormWithoutToken verifies form posts need a token.
func TestCSRF_RejectsFormWithoutToken(t *testing.T) {
	h := CSRF(testKey, CSRFOptions{})(http.HandlerFunc(okHandler))

	req := httptest.NewRequest("POST", "/clients/c1/board/items", strings.NewReader("title=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rr.Code)
	}
}

// TestCSRF_AcceptsTokenOverPlainHTTP verifies a token issued on GET is
// accepted on POST when the middleware is not in secure mode.
func TestCSRF_AcceptsTokenOverPlainHTTP(t *testing.T) {
	var token string
	h := CSRF(testKey, CSRFOptions{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token = csrf.Token(r)
		w.Write([]byte("ok"))
	}))

	get := httptest.NewRecorder()
	h.ServeHTTP(get, httptest.NewRequest("GET", "/clients/c1/board", nil))
	if token == "" {
		t.Fatal("no token issued on GET")
	}

	form := url.Values{"gorilla.csrf.Token": {token}, "title": {"x"}}
	req := httptest.NewRequest("POST", "/clients/c1/board/items", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range get.Result().Cookies() {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 (%s)", rr.Code, rr.Body.String())
	}
}

// TestSecurityHeaders verifies the content policy and the API cache and
// HSTS rules.
func TestSecurityHeaders(t *testing.T) {
	tests := []struct {
		name      string
		secure    bool
		path      string
		noStore   bool
		transport bool
	}{
		{"board page", false, "/clients/c1/board", false, false},
		{"item api", false, "/api/clients/c1/items", true, false},
		{"secure", true, "/clients/c1/board", false, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			SecurityHeaders(tc.secure)(http.HandlerFunc(okHandler)).ServeHTTP(rr, httptest.NewRequest("GET", tc.path, nil))

			if !strings.Contains(rr.Header().Get("Content-Security-Policy"), "frame-ancestors 'none'") {
				t.Errorf("CSP = %q", rr.Header().Get("Content-Security-Policy"))
			}
			if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
				t.Error("missing nosniff")
			}
			if got := rr.Header().Get("Cache-Control") == "no-store"; got != tc.noStore {
				t.Errorf("no-store = %v, want %v", got, tc.noStore)
			}
			if got := rr.Header().Get("Strict-Transport-Security") != ""; got != tc.transport {
				t.Errorf("HSTS = %v, want %v", got, tc.transport)
			}
		})
	}
}

// clock is a settable time source for the limiter.
type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestLimiter(perSecond int) (*WriteLimiter, *clock) {
	c := &clock{t: time.Date(2024, 6, 12, 9, 0, 0, 0, time.UTC)}
	l := NewWriteLimiter(perSecond)
	l.now = c.now
	return l, c
}

// TestWriteLimiter_Allow verifies the bucket empties, refills with time and
// stays per address.
func TestWriteLimiter_Allow(t *testing.T) {
	l, c := newTestLimiter(2)
	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("first two writes should pass")
	}
	if l.Allow("a") {
		t.Error("third write should be limited")
	}
	if !l.Allow("b") {
		t.Error("other addresses keep their own bucket")
	}

	c.t = c.t.Add(500 * time.Millisecond)
	if !l.Allow("a") {
		t.Error("half a second should refill one token")
	}
	if l.Allow("a") {
		t.Error("only one token should have refilled")
	}

	c.t = c.t.Add(time.Hour)
	for i := 0; i < 2; i++ {
		if !l.Allow("a") {
			t.Fatalf("write %d after a long pause should pass", i)
		}
	}
	if l.Allow("a") {
		t.Error("refill should cap at one second of writes")
	}
}

// TestWriteLimiter_SweepsIdle verifies quiet addresses are forgotten.
func TestWriteLimiter_SweepsIdle(t *testing.T) {
	l, c := newTestLimiter(1)
	l.Allow("a")
	l.Allow("b")
	c.t = c.t.Add(idleBucket + time.Second)
	l.Allow("c")

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.buckets) != 1 {
		t.Errorf("buckets = %d, want only the active address", len(l.buckets))
	}
}

// TestLimitWrites verifies reads pass, writes past the budget get 429 with
// Retry-After, and ports do not split a host's bucket.
func TestLimitWrites(t *testing.T) {
	l, _ := newTestLimiter(1)
	h := LimitWrites(l)(http.HandlerFunc(okHandler))

	serve := func(method, remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/api/items/a", nil)
		req.RemoteAddr = remote
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	if rr := serve("PATCH", "10.0.0.1:5000"); rr.Code != http.StatusOK {
		t.Fatalf("first write status = %d", rr.Code)
	}
	rr := serve("DELETE", "10.0.0.1:5001")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second write from a new port status = %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "1" {
		t.Errorf("Retry-After = %q", rr.Header().Get("Retry-After"))
	}
	for i := 0; i < 5; i++ {
		if rr := serve("GET", "10.0.0.1:5002"); rr.Code != http.StatusOK {
			t.Fatalf("read %d status = %d", i, rr.Code)
		}
	}
	if rr := serve("POST", "10.0.0.2:5000"); rr.Code != http.StatusOK {
		t.Errorf("other host status = %d", rr.Code)
	}
}

// TestStack_Order verifies the first layer sees the request first.
func TestStack_Order(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Stack(http.HandlerFunc(okHandler), mark("outer"), mark("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if strings.Join(order, ",") != "outer,inner" {
		t.Errorf("order = %v", order)
	}
}
