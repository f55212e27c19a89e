package gin

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/galemark/ratelimitgw/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

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

func newTestRouter(p *ratelimit.Pipeline) *gin.Engine {
	r := gin.New()
	r.Use(RateLimiter(p))
	r.GET("/api/orders", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return r
}

func TestRateLimiter_AllowsUnregulatedRequest(t *testing.T) {
	p := newTestPipeline(t)
	router := newTestRouter(p)

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.RemoteAddr = "10.0.0.1:1"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for unregulated route, got %d", rec.Code)
	}
}

func TestRateLimiter_RejectsOverLimit(t *testing.T) {
	rule := &ratelimit.Rule{
		ID: "r1", Pattern: "/api/orders", Active: true,
		Limit: 1, Window: time.Minute,
		Identifiers: []ratelimit.IdentifierSource{{Kind: ratelimit.IdentifierIP}},
	}
	p := newTestPipeline(t, rule)
	router := newTestRouter(p)

	newReq := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
		r.RemoteAddr = "10.0.0.1:1"
		return r
	}

	rec1 := httptest.NewRecorder()
	router.ServeHTTP(rec1, newReq())
	if rec1.Code != http.StatusOK {
		t.Fatalf("expected first request allowed, got %d", rec1.Code)
	}

	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, newReq())
	if rec2.Code != http.StatusTooManyRequests {
		t.Errorf("expected second request rejected, got %d", rec2.Code)
	}
}
