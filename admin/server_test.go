package admin

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

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
	if len(rules) > 0 {
		for _, r := range rules {
			if err := store.PutRule(t.Context(), r); err != nil {
				t.Fatalf("PutRule failed: %v", err)
			}
		}
		if err := p.RuleCache().Refresh(t.Context(), store); err != nil {
			t.Fatalf("Refresh failed: %v", err)
		}
	}
	return p
}

func doRequest(t *testing.T, handler http.Handler, method, path, token string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestServer_Healthz_NoAuthRequired(t *testing.T) {
	p := newTestPipeline(t)
	srv := NewServerWithAddress("127.0.0.1", 0, "secret", p, 1<<20)

	rec := doRequest(t, srv.Handler(), http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestServer_RulesAPI_RequiresToken(t *testing.T) {
	p := newTestPipeline(t)
	srv := NewServerWithAddress("127.0.0.1", 0, "secret", p, 1<<20)

	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/rules", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}

	rec = doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/rules", "wrong", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong token, got %d", rec.Code)
	}

	rec = doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/rules", "secret", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 with correct token, got %d", rec.Code)
	}
}

func TestServer_CreateGetUpdateDeleteRule(t *testing.T) {
	p := newTestPipeline(t)
	srv := NewServerWithAddress("127.0.0.1", 0, "", p, 1<<20)

	createBody := `{
		"name": "orders",
		"pattern": "/api/orders",
		"priority": 1,
		"active": true,
		"limit": 10,
		"window": 60000000000,
		"identifiers": [{"kind": "ip"}],
		"queue": {"enabled": false, "max_depth": 0, "delay_per_slot": 0, "max_wait": 0}
	}`
	rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/v1/rules", "", createBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created ratelimit.Rule
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created rule: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected server-assigned id")
	}

	rec = doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/rules/"+created.ID, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on get, got %d", rec.Code)
	}

	updateBody := `{
		"name": "orders-v2",
		"pattern": "/api/orders",
		"priority": 2,
		"active": true,
		"limit": 20,
		"window": 60000000000,
		"identifiers": [{"kind": "ip"}],
		"queue": {"enabled": false, "max_depth": 0, "delay_per_slot": 0, "max_wait": 0}
	}`
	rec = doRequest(t, srv.Handler(), http.MethodPut, "/api/v1/rules/"+created.ID, "", updateBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on update, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv.Handler(), http.MethodDelete, "/api/v1/rules/"+created.ID, "", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 on delete, got %d", rec.Code)
	}

	rec = doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/rules/"+created.ID, "", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestServer_PatchQueue(t *testing.T) {
	rule := &ratelimit.Rule{
		ID: "r1", Pattern: "/api/orders", Active: true,
		Limit: 10, Window: time.Minute,
		Identifiers: []ratelimit.IdentifierSource{{Kind: ratelimit.IdentifierIP}},
	}
	p := newTestPipeline(t, rule)
	srv := NewServerWithAddress("127.0.0.1", 0, "", p, 1<<20)

	rec := doRequest(t, srv.Handler(), http.MethodPatch, "/api/v1/rules/r1/queue", "",
		`{"enabled": true, "max_depth": 5, "delay_per_slot_ms": 10, "max_wait_ms": 1000}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var updated ratelimit.Rule
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !updated.Queue.Enabled || updated.Queue.MaxDepth != 5 {
		t.Errorf("expected queue enabled with max depth 5, got %+v", updated.Queue)
	}
	if updated.Queue.DelayPerSlot != 10*time.Millisecond {
		t.Errorf("expected 10ms delay per slot, got %s", updated.Queue.DelayPerSlot)
	}
}

func TestServer_RefreshAndActiveRules(t *testing.T) {
	p := newTestPipeline(t)
	srv := NewServerWithAddress("127.0.0.1", 0, "", p, 1<<20)

	rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/v1/rules/refresh", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/rules/active", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestServer_ConfigSetGetList(t *testing.T) {
	p := newTestPipeline(t)
	srv := NewServerWithAddress("127.0.0.1", 0, "", p, 1<<20)

	rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/v1/config/max_body_bytes", "", `{"value": "1048576"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on set, got %d", rec.Code)
	}

	rec = doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/config/max_body_bytes", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on get, got %d", rec.Code)
	}

	rec = doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/config/missing", "", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unset key, got %d", rec.Code)
	}

	rec = doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/config", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on list, got %d", rec.Code)
	}
}

func TestServer_BodyTooLarge(t *testing.T) {
	p := newTestPipeline(t)
	srv := NewServerWithAddress("127.0.0.1", 0, "", p, 16)

	rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/v1/rules", "",
		`{"name": "this payload is definitely longer than sixteen bytes"}`)
	if rec.Code != http.StatusBadRequest && rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected body-too-large to surface as an error status, got %d", rec.Code)
	}
}
