package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func corsHandler(t *testing.T, origins ...string) http.Handler {
	t.Helper()
	policy, err := newCORSPolicy(CORSConfig{AllowedOrigins: origins})
	if err != nil {
		t.Fatalf("newCORSPolicy: %v", err)
	}
	return corsMiddleware(policy, quietLogger(), okHandler())
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	h := corsHandler(t, "https://App.Example.com/")

	req := httptest.NewRequest(http.MethodGet, "/api/songs", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected pass through, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("unexpected allow origin %q", got)
	}
	if rec.Header().Get("Vary") != "Origin" {
		t.Fatalf("expected Vary: Origin, got %q", rec.Header().Get("Vary"))
	}
}

func TestCORSPreflight(t *testing.T) {
	h := corsHandler(t, "https://app.example.com")

	req := httptest.NewRequest(http.MethodOptions, "/api/songs", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Methods") != corsAllowedMethods {
		t.Fatalf("unexpected methods %q", rec.Header().Get("Access-Control-Allow-Methods"))
	}
	if rec.Header().Get("Access-Control-Allow-Headers") != corsAllowedHeaders {
		t.Fatalf("unexpected headers %q", rec.Header().Get("Access-Control-Allow-Headers"))
	}
}

func TestCORSBlocksUnknownOrigin(t *testing.T) {
	h := corsHandler(t, "https://app.example.com")

	req := httptest.NewRequest(http.MethodPost, "/api/songs", nil)
	req.Header.Set("Origin", "https://evil.example.net")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("blocked origins must not be echoed")
	}
}

func TestCORSSameOriginAndWildcard(t *testing.T) {
	sameOrigin := corsHandler(t)
	req := httptest.NewRequest(http.MethodGet, "http://api.example.com/api/songs", nil)
	req.Header.Set("Origin", "http://api.example.com")
	rec := httptest.NewRecorder()
	sameOrigin.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected same-origin request to pass, got %d", rec.Code)
	}

	wildcard := corsHandler(t, "*")
	req = httptest.NewRequest(http.MethodGet, "/api/songs", nil)
	req.Header.Set("Origin", "https://anywhere.example.org")
	rec = httptest.NewRecorder()
	wildcard.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") != "https://anywhere.example.org" {
		t.Fatalf("expected wildcard to allow any origin, got %d", rec.Code)
	}
}

func TestNewCORSPolicyRejectsMalformedOrigin(t *testing.T) {
	if _, err := newCORSPolicy(CORSConfig{AllowedOrigins: []string{"app.example.com"}}); err == nil {
		t.Fatal("expected origin without scheme to fail")
	}
}
