package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestResolver_HeaderTakesPrecedence(t *testing.T) {
	r := &Rule{
		ID: "r1",
		Identifiers: []IdentifierSource{
			{Kind: IdentifierHeader, HeaderName: "X-Api-Key"},
			{Kind: IdentifierIP},
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Api-Key", "key-123")
	req.RemoteAddr = "10.0.0.5:1234"

	rv := NewResolver(nil)
	id := rv.Resolve(req, r, nil)
	if id.Value != "key-123" || id.Kind != IdentifierHeader {
		t.Errorf("expected header identifier, got %+v", id)
	}
}

func TestResolver_FallsThroughEmptyHeaderToCookie(t *testing.T) {
	r := &Rule{
		ID: "r1",
		Identifiers: []IdentifierSource{
			{Kind: IdentifierHeader, HeaderName: "X-Api-Key"},
			{Kind: IdentifierCookie, CookieName: "session_id"},
			{Kind: IdentifierIP},
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "sess-abc"})
	req.RemoteAddr = "10.0.0.5:1234"

	rv := NewResolver(nil)
	id := rv.Resolve(req, r, nil)
	if id.Value != "sess-abc" || id.Kind != IdentifierCookie {
		t.Errorf("expected cookie identifier, got %+v", id)
	}
}

func TestResolver_FallsBackToClientIP(t *testing.T) {
	r := &Rule{
		ID: "r1",
		Identifiers: []IdentifierSource{
			{Kind: IdentifierHeader, HeaderName: "X-Api-Key"},
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:5555"

	rv := NewResolver(nil)
	id := rv.Resolve(req, r, nil)
	if id.Value != "203.0.113.9" || id.Kind != IdentifierIP {
		t.Errorf("expected fallback to client ip, got %+v", id)
	}
}

func TestResolver_ClientIPPrefersForwardedFor(t *testing.T) {
	r := &Rule{ID: "r1", Identifiers: []IdentifierSource{{Kind: IdentifierIP}}}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.1")
	req.RemoteAddr = "10.0.0.1:9999"

	rv := NewResolver(nil)
	id := rv.Resolve(req, r, nil)
	if id.Value != "198.51.100.1" {
		t.Errorf("expected left-most X-Forwarded-For entry, got %q", id.Value)
	}
}

func TestResolver_BodyIdentifier(t *testing.T) {
	r := &Rule{
		ID: "r1",
		Identifiers: []IdentifierSource{
			{Kind: IdentifierBody, BodyField: "user.id", BodyFormat: BodyFormatJSON},
			{Kind: IdentifierIP},
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"user":{"id":"body-id-1"}}`))
	req.RemoteAddr = "10.0.0.1:1"

	var body BodyBuffer
	rv := NewResolver(nil)
	id := rv.Resolve(req, r, &body)
	if id.Value != "body-id-1" || id.Kind != IdentifierBody {
		t.Errorf("expected body identifier, got %+v", id)
	}
}

func TestResolver_JWTIdentifier(t *testing.T) {
	r := &Rule{
		ID: "r1",
		Identifiers: []IdentifierSource{
			{Kind: IdentifierJWT, Claims: []string{"sub"}, Separator: ":"},
			{Kind: IdentifierIP},
		},
	}
	token := makeTestJWT(`{"sub":"jwt-user-7"}`)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.RemoteAddr = "10.0.0.1:1"

	rv := NewResolver(nil)
	id := rv.Resolve(req, r, nil)
	if id.Value != "jwt-user-7" || id.Kind != IdentifierJWT {
		t.Errorf("expected jwt identifier, got %+v", id)
	}
}

func TestResolver_JWTIdentifier_MultipleClaimsConcatenated(t *testing.T) {
	r := &Rule{
		ID: "r1",
		Identifiers: []IdentifierSource{
			{Kind: IdentifierJWT, Claims: []string{"sub", "tenant_id"}, Separator: ":"},
			{Kind: IdentifierIP},
		},
	}
	token := makeTestJWT(`{"sub":"u1","tenant_id":"t1"}`)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.RemoteAddr = "10.0.0.1:1"

	rv := NewResolver(nil)
	id := rv.Resolve(req, r, nil)
	if id.Value != "u1:t1" {
		t.Errorf("expected concatenated jwt claims u1:t1, got %q", id.Value)
	}
}

func TestResolver_JWTIdentifier_MissingClaimFallsThrough(t *testing.T) {
	r := &Rule{
		ID: "r1",
		Identifiers: []IdentifierSource{
			{Kind: IdentifierJWT, Claims: []string{"sub", "tenant_id"}, Separator: ":"},
			{Kind: IdentifierIP},
		},
	}
	token := makeTestJWT(`{"sub":"u1"}`)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.RemoteAddr = "10.0.0.1:1"

	rv := NewResolver(nil)
	id := rv.Resolve(req, r, nil)
	if id.Kind != IdentifierIP {
		t.Errorf("expected fallback to ip when a jwt claim is missing, got %+v", id)
	}
}

func TestResolver_BodyCombineWithIP(t *testing.T) {
	r := &Rule{
		ID: "r1",
		Identifiers: []IdentifierSource{
			{Kind: IdentifierBody, BodyField: "user_id", BodyFormat: BodyFormatJSON, Mode: ModeCombineWithIP},
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"user_id":"u9"}`))
	req.RemoteAddr = "10.0.0.1:1"

	var body BodyBuffer
	rv := NewResolver(nil)
	id := rv.Resolve(req, r, &body)
	if id.Value != "10.0.0.1:u9" {
		t.Errorf("expected combine-with-ip identifier 10.0.0.1:u9, got %q", id.Value)
	}
}

func TestResolver_HeaderReplaceIPIsDefault(t *testing.T) {
	r := &Rule{
		ID: "r1",
		Identifiers: []IdentifierSource{
			{Kind: IdentifierHeader, HeaderName: "X-Api-Key"},
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Api-Key", "key-123")
	req.RemoteAddr = "10.0.0.1:1"

	rv := NewResolver(nil)
	id := rv.Resolve(req, r, nil)
	if id.Value != "key-123" {
		t.Errorf("expected plain replace-mode value key-123, got %q", id.Value)
	}
}
