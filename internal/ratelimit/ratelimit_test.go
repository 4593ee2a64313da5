package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gabellehq/gabelle/internal/auth"
)

// fixedClock lets tests advance time deterministically.
type fixedClock struct {
	t time.Time
}

func (c *fixedClock) now() time.Time          { return c.t }
func (c *fixedClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(rate int, window time.Duration) (*Limiter, *fixedClock) {
	clock := &fixedClock{t: time.Date(2026, time.August, 29, 12, 0, 0, 0, time.UTC)}
	l := New(rate, window)
	l.now = clock.now
	return l, clock
}

func TestAllow_ConsumesTokens(t *testing.T) {
	l, _ := newTestLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !l.Allow("caller-a") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.Allow("caller-a") {
		t.Fatal("fourth request should be rejected")
	}
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)

	if !l.Allow("caller-a") {
		t.Fatal("caller-a first request should be allowed")
	}
	if !l.Allow("caller-b") {
		t.Fatal("caller-b must have its own bucket")
	}
	if l.Allow("caller-a") {
		t.Fatal("caller-a second request should be rejected")
	}
}

func TestAllow_RefillsOverTime(t *testing.T) {
	l, clock := newTestLimiter(60, time.Minute)

	for i := 0; i < 60; i++ {
		l.Allow("caller-a")
	}
	if l.Allow("caller-a") {
		t.Fatal("bucket should be empty")
	}

	// One second at 60/min refills one token.
	clock.advance(time.Second)
	if !l.Allow("caller-a") {
		t.Fatal("expected one token after refill")
	}
	if l.Allow("caller-a") {
		t.Fatal("only one token should have refilled")
	}
}

func TestStatus(t *testing.T) {
	l, _ := newTestLimiter(10, time.Minute)

	l.Allow("caller-a")
	l.Allow("caller-a")

	limit, remaining, resetAt := l.Status("caller-a")
	if limit != 10 {
		t.Errorf("limit = %d, want 10", limit)
	}
	if remaining != 8 {
		t.Errorf("remaining = %d, want 8", remaining)
	}
	if resetAt.Before(l.now()) {
		t.Errorf("resetAt %v is in the past", resetAt)
	}
}

func TestMiddleware_RejectsWithHeaders(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)
	rejected := 0
	handler := Middleware(l, func() { rejected++ })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(auth.ContextWithCaller(req.Context(), "gabelle_abcd"))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := do(); rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rec.Code)
	}

	rec := do()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	if rejected != 1 {
		t.Errorf("onReject called %d times, want 1", rejected)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "1" {
		t.Errorf("missing or wrong X-RateLimit-Limit header")
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("missing or wrong X-RateLimit-Remaining header")
	}
}

func TestMiddleware_FallsBackToRemoteAddr(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)
	handler := Middleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("same remote addr should share a bucket, got %d", rec.Code)
	}
}
