package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aibom-registry/aibom-registry/internal/auth"
	"github.com/aibom-registry/aibom-registry/internal/config"
	"github.com/aibom-registry/aibom-registry/internal/middleware"
	"github.com/aibom-registry/aibom-registry/internal/registry"
	"github.com/aibom-registry/aibom-registry/internal/registry/registrytest"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// pingStore is a memory store whose Ping can be made to fail
type pingStore struct {
	*registry.MemoryStore
	err error
}

func (s *pingStore) Ping(context.Context) error { return s.err }

type fakeRedis struct{ err error }

func (f fakeRedis) Health(context.Context) error { return f.err }

func testConfig(apiKeys bool) *config.Config {
	cfg := &config.Config{}
	cfg.Auth.APIKeys.Enabled = apiKeys
	cfg.Auth.APIKeys.Prefix = "aibom"
	return cfg
}

func newTestRouter(t *testing.T, deps Dependencies) *gin.Engine {
	t.Helper()
	if deps.Config == nil {
		deps.Config = testConfig(false)
	}
	if deps.Registry == nil {
		deps.Registry = registrytest.NewFixture(t, registry.NewMemoryStore()).Registry
	}
	deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(deps)
}

func bearer(t *testing.T, identity string) string {
	t.Helper()
	tok, err := auth.GenerateJWT(identity, time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	return "Bearer " + tok
}

func request(r *gin.Engine, method, path, authz string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return body
}

// ---------------------------------------------------------------------------
// healthCheckHandler / readinessHandler
// ---------------------------------------------------------------------------

func TestHealthCheckHandler(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
		wantField  string
	}{
		{"healthy", nil, http.StatusOK, "healthy"},
		{"store down", errors.New("connection refused"), http.StatusServiceUnavailable, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &pingStore{MemoryStore: registry.NewMemoryStore(), err: tt.pingErr}
			r := gin.New()
			r.GET("/health", healthCheckHandler(store))

			w := request(r, http.MethodGet, "/health", "", nil)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := decodeBody(t, w)["status"]; got != tt.wantField {
				t.Errorf("status field = %v, want %s", got, tt.wantField)
			}
		})
	}
}

func TestReadinessHandler(t *testing.T) {
	down := errors.New("down")
	tests := []struct {
		name       string
		storeErr   error
		redis      HealthChecker
		wantStatus int
		wantChecks map[string]interface{}
	}{
		{
			name:       "store only",
			wantStatus: http.StatusOK,
			wantChecks: map[string]interface{}{"store": "healthy"},
		},
		{
			name:       "store and redis",
			redis:      fakeRedis{},
			wantStatus: http.StatusOK,
			wantChecks: map[string]interface{}{"store": "healthy", "redis": "healthy"},
		},
		{
			name:       "store down",
			storeErr:   down,
			redis:      fakeRedis{},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]interface{}{"store": "unhealthy"},
		},
		{
			name:       "redis down",
			redis:      fakeRedis{err: down},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]interface{}{"store": "healthy", "redis": "unhealthy"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &pingStore{MemoryStore: registry.NewMemoryStore(), err: tt.storeErr}
			r := gin.New()
			r.GET("/ready", readinessHandler(store, tt.redis))

			w := request(r, http.MethodGet, "/ready", "", nil)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			body := decodeBody(t, w)
			if ready := body["ready"].(bool); ready != (tt.wantStatus == http.StatusOK) {
				t.Errorf("ready = %v", ready)
			}
			checks := body["checks"].(map[string]interface{})
			if len(checks) != len(tt.wantChecks) {
				t.Fatalf("checks = %v, want %v", checks, tt.wantChecks)
			}
			for k, v := range tt.wantChecks {
				if checks[k] != v {
					t.Errorf("checks[%s] = %v, want %v", k, checks[k], v)
				}
			}
		})
	}
}

func TestVersionHandler(t *testing.T) {
	r := newTestRouter(t, Dependencies{})
	w := request(r, http.MethodGet, "/version", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["version"] != Version || body["api_version"] != "v1" {
		t.Errorf("body = %v", body)
	}
}

// ---------------------------------------------------------------------------
// NewRouter wiring
// ---------------------------------------------------------------------------

func TestNewRouter_SecurityHeadersOnEveryResponse(t *testing.T) {
	r := newTestRouter(t, Dependencies{})
	w := request(r, http.MethodGet, "/api/v1/records", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Errorf("missing X-Content-Type-Options")
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Errorf("missing X-Request-ID")
	}
}

func TestNewRouter_RecordLifecycle(t *testing.T) {
	r := newTestRouter(t, Dependencies{})
	developer := bearer(t, registrytest.Developer)

	// Writes need a caller
	if w := request(r, http.MethodPost, "/api/v1/records", "", map[string]string{"cid": "bafy-1"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous register = %d, want 401", w.Code)
	}

	w := request(r, http.MethodPost, "/api/v1/records", developer, map[string]string{"cid": "bafy-1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("register = %d: %s", w.Code, w.Body.String())
	}

	w = request(r, http.MethodPost, "/api/v1/records/0/submissions", developer, map[string]string{"cid": "bafy-2"})
	if w.Code != http.StatusCreated {
		t.Fatalf("submit = %d: %s", w.Code, w.Body.String())
	}

	w = request(r, http.MethodPost, "/api/v1/records/0/decisions", bearer(t, registrytest.Regulator),
		map[string]interface{}{"status": "Approved"})
	if w.Code != http.StatusOK {
		t.Fatalf("decide = %d: %s", w.Code, w.Body.String())
	}

	// Reads are public
	w = request(r, http.MethodGet, "/api/v1/records/0", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}
	if got := decodeBody(t, w)["status"]; got != float64(3) {
		t.Errorf("status = %v, want 3", got)
	}

	w = request(r, http.MethodGet, "/api/v1/events/verify", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("verify = %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["valid"] != true || body["events"] != float64(3) {
		t.Errorf("verify body = %v", body)
	}
}

func TestNewRouter_InvalidCredentialRejectedOnPublicRoute(t *testing.T) {
	r := newTestRouter(t, Dependencies{})
	w := request(r, http.MethodGet, "/api/v1/records", "Bearer not.a.jwt", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestNewRouter_AccountRoutes(t *testing.T) {
	r := newTestRouter(t, Dependencies{})

	if w := request(r, http.MethodGet, "/api/v1/whoami", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous whoami = %d, want 401", w.Code)
	}

	w := request(r, http.MethodGet, "/api/v1/whoami", bearer(t, registrytest.Regulator), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("whoami = %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["identity"] != registry.NormalizeIdentity(registrytest.Regulator) {
		t.Errorf("identity = %v", body["identity"])
	}
	if body["auth_method"] != "jwt" {
		t.Errorf("auth_method = %v", body["auth_method"])
	}

	if w := request(r, http.MethodGet, "/api/v1/me/records", bearer(t, registrytest.Developer), nil); w.Code != http.StatusOK {
		t.Errorf("me/records = %d", w.Code)
	}
}

func TestNewRouter_AdminGate(t *testing.T) {
	r := newTestRouter(t, Dependencies{})
	tests := []struct {
		name       string
		authz      string
		wantStatus int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"regulator", bearer(t, registrytest.Regulator), http.StatusForbidden},
		{"supervisor", bearer(t, registrytest.Supervisor), http.StatusForbidden},
		{"principal", bearer(t, registrytest.Principal), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := request(r, http.MethodGet, "/api/v1/admin/roles", tt.authz, nil)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestNewRouter_OptionalRoutesAbsent(t *testing.T) {
	r := newTestRouter(t, Dependencies{})
	principal := bearer(t, registrytest.Principal)
	for _, path := range []string{
		"/api/v1/admin/api-keys",
		"/api/v1/admin/snapshots",
		"/api/v1/admin/audit-logs",
	} {
		if w := request(r, http.MethodGet, path, principal, nil); w.Code != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", path, w.Code)
		}
	}
}

func TestNewRouter_APIKeysDisabledIgnoresStore(t *testing.T) {
	r := newTestRouter(t, Dependencies{Keys: auth.NewMemoryKeyStore()})
	w := request(r, http.MethodGet, "/api/v1/admin/api-keys", bearer(t, registrytest.Principal), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestNewRouter_IssuedAPIKeyAuthenticates(t *testing.T) {
	r := newTestRouter(t, Dependencies{
		Config: testConfig(true),
		Keys:   auth.NewMemoryKeyStore(),
	})

	w := request(r, http.MethodPost, "/api/v1/admin/api-keys", bearer(t, registrytest.Principal),
		map[string]string{"identity": registrytest.Supervisor, "name": "ci"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", w.Code, w.Body.String())
	}
	key, _ := decodeBody(t, w)["key"].(string)
	if key == "" {
		t.Fatal("no key returned")
	}

	w = request(r, http.MethodGet, "/api/v1/whoami", "Bearer "+key, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("whoami = %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["identity"] != registry.NormalizeIdentity(registrytest.Supervisor) {
		t.Errorf("identity = %v", body["identity"])
	}
	if body["auth_method"] != "api_key" {
		t.Errorf("auth_method = %v", body["auth_method"])
	}
}

func TestNewRouter_RateLimitPerIdentity(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := newTestRouter(t, Dependencies{Limiter: middleware.NewMemoryLimiter(ctx, 60, 1)})

	dev := bearer(t, registrytest.Developer)
	if w := request(r, http.MethodGet, "/api/v1/whoami", dev, nil); w.Code != http.StatusOK {
		t.Fatalf("first call status = %d", w.Code)
	}
	if w := request(r, http.MethodGet, "/api/v1/whoami", dev, nil); w.Code != http.StatusTooManyRequests {
		t.Errorf("second call status = %d, want 429", w.Code)
	}
	// Same client address, different caller: a separate bucket
	if w := request(r, http.MethodGet, "/api/v1/whoami", bearer(t, registrytest.Attacker), nil); w.Code != http.StatusOK {
		t.Errorf("other identity status = %d, want 200", w.Code)
	}
	// Invalid credentials are refused by auth, never charged to a bucket
	if w := request(r, http.MethodGet, "/api/v1/whoami", "Bearer aaa.bbb.ccc", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("invalid credential status = %d, want 401", w.Code)
	}
}

func TestNewRouter_EventStreamNeedsBus(t *testing.T) {
	resolver, err := registry.NewResolver(registrytest.Principal, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	r := newTestRouter(t, Dependencies{Registry: registry.New(registry.NewMemoryStore(), resolver)})
	if w := request(r, http.MethodGet, "/api/v1/events/stream", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
