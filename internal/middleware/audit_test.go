package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aibom-registry/aibom-registry/internal/audit"
	"github.com/aibom-registry/aibom-registry/internal/config"
	"github.com/aibom-registry/aibom-registry/internal/db/models"
)

// recorder collects rows and entries written from the audit goroutine
type recorder struct {
	mu      sync.Mutex
	rows    []*models.AuditLog
	entries []*audit.LogEntry
	done    chan struct{}
}

func newRecorder() *recorder { return &recorder{done: make(chan struct{}, 16)} }

func (r *recorder) CreateAuditLog(_ context.Context, l *models.AuditLog) error {
	r.mu.Lock()
	r.rows = append(r.rows, l)
	r.mu.Unlock()
	return nil
}

func (r *recorder) Ship(_ context.Context, e *audit.LogEntry) error {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("audit entry was not shipped")
	}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func newAuditRouter(rec *recorder, cfg config.AuditConfig, status int) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(RequestIDKey, "req-1")
		c.Next()
	})
	r.Use(withIdentity("0xowner"), Audit(rec, rec, cfg))
	handler := func(c *gin.Context) { c.Status(status) }
	r.POST("/api/v1/records/:modelId/submissions", handler)
	r.GET("/api/v1/records/:modelId", handler)
	r.DELETE("/api/v1/admin/api-keys/:id", handler)
	return r
}

func TestAudit_RecordsSuccessfulWrite(t *testing.T) {
	rec := newRecorder()
	r := newAuditRouter(rec, config.AuditConfig{}, http.StatusCreated)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/records/7/submissions", nil))
	rec.wait(t)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rec.rows))
	}
	row := rec.rows[0]
	if row.Action != "POST /api/v1/records/:modelId/submissions" {
		t.Errorf("Action = %q", row.Action)
	}
	if row.Identity == nil || *row.Identity != "0xowner" {
		t.Errorf("Identity = %v", row.Identity)
	}
	if row.ResourceType == nil || *row.ResourceType != "record" || row.ResourceID == nil || *row.ResourceID != "7" {
		t.Errorf("resource = %v/%v", row.ResourceType, row.ResourceID)
	}
	if row.StatusCode != http.StatusCreated {
		t.Errorf("StatusCode = %d", row.StatusCode)
	}
	if e := rec.entries[0]; e.RequestID != "req-1" || e.ResourceID != "7" {
		t.Errorf("entry = %+v", e)
	}
}

func TestAudit_ClassifiesAPIKeys(t *testing.T) {
	rec := newRecorder()
	r := newAuditRouter(rec, config.AuditConfig{}, http.StatusNoContent)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/api/v1/admin/api-keys/k1", nil))
	rec.wait(t)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if e := rec.entries[0]; e.ResourceType != "api_key" || e.ResourceID != "k1" {
		t.Errorf("entry = %+v", e)
	}
}

func TestAudit_Filtering(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.AuditConfig
		method  string
		path    string
		status  int
		shipped bool
	}{
		{"read skipped by default", config.AuditConfig{}, http.MethodGet, "/api/v1/records/1", 200, false},
		{"read logged when enabled", config.AuditConfig{LogReadOperations: true}, http.MethodGet, "/api/v1/records/1", 200, true},
		{"failed write skipped by default", config.AuditConfig{}, http.MethodPost, "/api/v1/records/1/submissions", 403, false},
		{"failed write logged when enabled", config.AuditConfig{LogFailedRequests: true}, http.MethodPost, "/api/v1/records/1/submissions", 409, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newRecorder()
			r := newAuditRouter(rec, tt.cfg, tt.status)
			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, tt.path, nil))
			if tt.shipped {
				rec.wait(t)
				return
			}
			time.Sleep(50 * time.Millisecond)
			if n := rec.count(); n != 0 {
				t.Errorf("shipped %d entries, want 0", n)
			}
		})
	}
}

func TestAudit_NilSinks(t *testing.T) {
	r := gin.New()
	r.Use(Audit(nil, nil, config.AuditConfig{}))
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}
