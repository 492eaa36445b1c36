package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
}

func TestCORS_ExplicitOrigin(t *testing.T) {
	h := CORS([]string{"https://arcade.example.com"})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/games", nil)
	req.Header.Set("Origin", "https://arcade.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://arcade.example.com" {
		t.Errorf("Unexpected allow origin %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("Expected credentials for explicit origin")
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("Expected request to reach handler, got %d", rec.Code)
	}
}

func TestCORS_WildcardNoCredentials(t *testing.T) {
	h := CORS([]string{"*"})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Error("Expected wildcard to echo origin")
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Error("Wildcard must not allow credentials")
	}
}

func TestCORS_PreflightShortCircuits(t *testing.T) {
	h := CORS([]string{"https://a.example"})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 for preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("Disallowed origin must not be echoed")
	}
}

func TestOriginAllowed(t *testing.T) {
	allowed := []string{"https://a.example"}
	if !OriginAllowed(allowed, "") {
		t.Error("Empty origin should be allowed")
	}
	if !OriginAllowed(allowed, "https://a.example") {
		t.Error("Listed origin should be allowed")
	}
	if OriginAllowed(allowed, "https://b.example") {
		t.Error("Unlisted origin should be rejected")
	}
	if !OriginAllowed([]string{"*"}, "https://b.example") {
		t.Error("Wildcard should allow any origin")
	}
}
