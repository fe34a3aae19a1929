package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/aibom-registry/aibom-registry/internal/config"
)

func TestSecurityHeaders(t *testing.T) {
	tests := []struct {
		name     string
		tls      bool
		wantHSTS bool
	}{
		{"plain http", false, false},
		{"tls", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(SecurityHeaders(tt.tls))
			r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

			h := w.Header()
			if got := h.Get("Strict-Transport-Security") != ""; got != tt.wantHSTS {
				t.Errorf("HSTS present = %v, want %v", got, tt.wantHSTS)
			}
			if h.Get("X-Content-Type-Options") != "nosniff" {
				t.Error("missing X-Content-Type-Options")
			}
			if h.Get("X-Frame-Options") != "DENY" {
				t.Error("missing X-Frame-Options")
			}
			if h.Get("Content-Security-Policy") != apiContentSecurityPolicy {
				t.Errorf("CSP = %q", h.Get("Content-Security-Policy"))
			}
		})
	}
}

func TestSecurityHeaders_PresentOnErrors(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders(false))
	r.GET("/", func(c *gin.Context) { c.AbortWithStatus(http.StatusForbidden) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing on error response")
	}
}

func newCORSRouter(cfg config.CORSConfig) *gin.Engine {
	r := gin.New()
	r.Use(CORS(cfg))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.OPTIONS("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func corsRequest(r *gin.Engine, method, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCORS_AllowedOrigin(t *testing.T) {
	r := newCORSRouter(config.CORSConfig{AllowedOrigins: []string{"https://console.example.com"}})
	w := corsRequest(r, http.MethodGet, "https://console.example.com")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://console.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if w.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("credentials not advertised for explicit origin")
	}
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	r := newCORSRouter(config.CORSConfig{AllowedOrigins: []string{"https://console.example.com"}})

	w := corsRequest(r, http.MethodGet, "https://evil.example.com")
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("Allow-Origin set for disallowed origin")
	}
	if w := corsRequest(r, http.MethodOptions, "https://evil.example.com"); w.Code != http.StatusForbidden {
		t.Errorf("preflight status = %d, want 403", w.Code)
	}
}

func TestCORS_Wildcard(t *testing.T) {
	r := newCORSRouter(config.CORSConfig{AllowedOrigins: []string{"*"}, AllowedMethods: []string{"GET"}})
	w := corsRequest(r, http.MethodOptions, "https://anywhere.example")
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("Allow-Origin = %q", w.Header().Get("Access-Control-Allow-Origin"))
	}
	if w.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Error("credentials must not be advertised with a wildcard origin")
	}
	if w.Header().Get("Access-Control-Allow-Methods") != "GET" {
		t.Errorf("Allow-Methods = %q", w.Header().Get("Access-Control-Allow-Methods"))
	}
}

func TestCORS_NoOriginPassesThrough(t *testing.T) {
	r := newCORSRouter(config.CORSConfig{})
	w := corsRequest(r, http.MethodGet, "")
	if w.Code != http.StatusOK || w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Errorf("status = %d, Allow-Origin = %q", w.Code, w.Header().Get("Access-Control-Allow-Origin"))
	}
}
