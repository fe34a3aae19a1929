package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func newRequestIDRouter(logger *slog.Logger) (*gin.Engine, *string) {
	var seen string
	r := gin.New()
	r.Use(RequestID(logger))
	r.GET("/", func(c *gin.Context) {
		seen = c.GetString(RequestIDKey)
		Logger(c).Info("handled")
		c.Status(http.StatusOK)
	})
	return r, &seen
}

func TestRequestID_GeneratesWhenAbsent(t *testing.T) {
	r, seen := newRequestIDRouter(nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	got := w.Header().Get(RequestIDHeader)
	if len(got) != 36 {
		t.Errorf("generated id = %q, want a UUID", got)
	}
	if *seen != got {
		t.Errorf("context id = %q, header id = %q", *seen, got)
	}
}

func TestRequestID_ReusesWellFormedInbound(t *testing.T) {
	r, seen := newRequestIDRouter(nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "lb-1234.abcd")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get(RequestIDHeader); got != "lb-1234.abcd" {
		t.Errorf("header = %q, want inbound id", got)
	}
	if *seen != "lb-1234.abcd" {
		t.Errorf("context id = %q", *seen)
	}
}

func TestRequestID_ReplacesMalformedInbound(t *testing.T) {
	r, _ := newRequestIDRouter(nil)
	for _, bad := range []string{"has space", strings.Repeat("a", 129), "inject\"quote"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, bad)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if got := w.Header().Get(RequestIDHeader); got == bad {
			t.Errorf("malformed id %q was echoed back", bad)
		}
	}
}

func TestRequestID_LoggerCarriesID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	r, _ := newRequestIDRouter(logger)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	r.ServeHTTP(httptest.NewRecorder(), req)

	if !strings.Contains(buf.String(), `"request_id":"req-42"`) {
		t.Errorf("log line = %s, want request_id attribute", buf.String())
	}
}

func TestLogger_DefaultWithoutMiddleware(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if Logger(c) != slog.Default() {
		t.Error("Logger() without RequestID should return slog.Default()")
	}
}
