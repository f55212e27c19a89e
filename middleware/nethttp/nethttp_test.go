package nethttp

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/galemark/ratelimitgw/ratelimit"
)

func newTestPipeline(t *testing.T, rules ...*ratelimit.Rule) *ratelimit.Pipeline {
	t.Helper()
	store := ratelimit.NewMemoryStore(0)
	t.Cleanup(func() { store.Close() })

	p, err := ratelimit.NewPipeline(ratelimit.WithStore(store))
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	t.Cleanup(p.Close)
	p.RuleCache().Load(rules)
	return p
}

func TestMiddleware_AllowsUnregulatedRequest(t *testing.T) {
	p := newTestPipeline(t)
	called := false
	handler := Middleware(p)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	req.RemoteAddr = "10.0.0.1:1"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Fatal("expected downstream handler to be called for unregulated request")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestMiddleware_RejectsOverLimit(t *testing.T) {
	rule := &ratelimit.Rule{
		ID: "r1", Pattern: "/api/orders", Active: true,
		Limit: 1, Window: time.Minute,
		Identifiers: []ratelimit.IdentifierSource{{Kind: ratelimit.IdentifierIP}},
	}
	p := newTestPipeline(t, rule)
	handler := Middleware(p)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
		r.RemoteAddr = "10.0.0.1:1"
		return r
	}

	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req())
	if rec1.Code != http.StatusOK {
		t.Fatalf("expected first request allowed, got %d", rec1.Code)
	}

	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req())
	if rec2.Code != http.StatusTooManyRequests {
		t.Errorf("expected second request rejected with 429, got %d", rec2.Code)
	}
	if rec2.Header().Get("X-RateLimit-Queued") != "false" {
		t.Errorf("expected X-RateLimit-Queued=false on reject, got %q", rec2.Header().Get("X-RateLimit-Queued"))
	}
}

func TestMiddleware_QueuesOverLimitWhenQueueEnabled(t *testing.T) {
	rule := &ratelimit.Rule{
		ID: "r1", Pattern: "/api/orders", Active: true,
		Limit: 1, Window: time.Minute,
		Identifiers: []ratelimit.IdentifierSource{{Kind: ratelimit.IdentifierIP}},
		Queue: ratelimit.QueueConfig{
			Enabled: true, MaxDepth: 5,
			DelayPerSlot: 5 * time.Millisecond, MaxWait: time.Second,
		},
	}
	p := newTestPipeline(t, rule)
	handler := Middleware(p)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
		r.RemoteAddr = "10.0.0.1:1"
		return r
	}

	handler.ServeHTTP(httptest.NewRecorder(), req())

	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req())
	if rec2.Code != http.StatusOK {
		t.Errorf("expected queued request to eventually succeed with 200, got %d", rec2.Code)
	}
	if rec2.Header().Get("X-RateLimit-Queued") != "true" {
		t.Errorf("expected X-RateLimit-Queued=true, got %q", rec2.Header().Get("X-RateLimit-Queued"))
	}
}
