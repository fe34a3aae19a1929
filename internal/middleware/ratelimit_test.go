package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

// newTestLimiter builds a MemoryLimiter with a controllable clock
func newTestLimiter(t *testing.T, perMinute, burst int) (*MemoryLimiter, *time.Time) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	l := NewMemoryLimiter(ctx, perMinute, burst)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestMemoryLimiter_Burst(t *testing.T) {
	l, _ := newTestLimiter(t, 60, 3)
	for i := 0; i < 3; i++ {
		d, _ := l.Allow(context.Background(), "k")
		if !d.Allowed {
			t.Fatalf("request %d rejected within burst", i+1)
		}
		if d.Remaining != 2-i {
			t.Errorf("request %d remaining = %d, want %d", i+1, d.Remaining, 2-i)
		}
	}
	d, _ := l.Allow(context.Background(), "k")
	if d.Allowed {
		t.Fatal("request beyond burst allowed")
	}
	if d.RetryAfter != time.Second {
		t.Errorf("RetryAfter = %v, want 1s at 60/min", d.RetryAfter)
	}
}

func TestMemoryLimiter_Refill(t *testing.T) {
	l, now := newTestLimiter(t, 60, 1)
	if d, _ := l.Allow(context.Background(), "k"); !d.Allowed {
		t.Fatal("first request rejected")
	}
	if d, _ := l.Allow(context.Background(), "k"); d.Allowed {
		t.Fatal("second request allowed without refill")
	}
	*now = now.Add(time.Second)
	if d, _ := l.Allow(context.Background(), "k"); !d.Allowed {
		t.Error("request rejected after refill interval")
	}
}

func TestMemoryLimiter_KeysIndependent(t *testing.T) {
	l, _ := newTestLimiter(t, 60, 1)
	l.Allow(context.Background(), "a")
	if d, _ := l.Allow(context.Background(), "b"); !d.Allowed {
		t.Error("key b throttled by key a")
	}
}

func TestMemoryLimiter_Sweep(t *testing.T) {
	l, now := newTestLimiter(t, 60, 1)
	l.Allow(context.Background(), "old")
	*now = now.Add(11 * time.Minute)
	l.Allow(context.Background(), "fresh")
	l.sweep(10 * time.Minute)

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.buckets["old"]; ok {
		t.Error("idle bucket not swept")
	}
	if _, ok := l.buckets["fresh"]; !ok {
		t.Error("active bucket swept")
	}
}

type errLimiter struct{}

func (errLimiter) Allow(context.Context, string) (Decision, error) {
	return Decision{}, errors.New("redis down")
}
func (errLimiter) Backend() string { return "redis" }

func newRateLimitRouter(l Limiter, identity string) *gin.Engine {
	r := gin.New()
	r.Use(withIdentity(identity), RateLimit(l))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRateLimit_Rejects(t *testing.T) {
	l, _ := newTestLimiter(t, 60, 1)
	r := newRateLimitRouter(l, "")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("first status = %d", w.Code)
	}
	if w.Header().Get("X-RateLimit-Limit") != "60" {
		t.Errorf("X-RateLimit-Limit = %q", w.Header().Get("X-RateLimit-Limit"))
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") != "1" {
		t.Errorf("Retry-After = %q, want 1", w.Header().Get("Retry-After"))
	}
}

func TestRateLimit_KeyedByIdentity(t *testing.T) {
	l, _ := newTestLimiter(t, 60, 1)
	newRateLimitRouter(l, "0xa").ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	// same client address, different identity
	w := httptest.NewRecorder()
	newRateLimitRouter(l, "0xb").ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for a distinct identity", w.Code)
	}
}

func TestRateLimit_FailsOpen(t *testing.T) {
	w := httptest.NewRecorder()
	newRateLimitRouter(errLimiter{}, "").ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when the limiter backend fails", w.Code)
	}
}
