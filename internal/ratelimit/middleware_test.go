package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddleware(t *testing.T) {
	l := New(60, 1)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := Middleware(l, func(r *http.Request) (string, int) { return ClientIP(r), 0 })(ok)

	do := func(path, remote string) int {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := do("/api/v1/chat", "10.0.0.1:5000"); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := do("/api/v1/chat", "10.0.0.1:5001"); code != http.StatusTooManyRequests {
		t.Errorf("expected 429 for the same client, got %d", code)
	}
	if code := do("/api/v1/chat", "10.0.0.2:5000"); code != http.StatusOK {
		t.Errorf("expected 200 for another client, got %d", code)
	}
	if code := do("/health/ready", "10.0.0.1:5000"); code != http.StatusOK {
		t.Errorf("expected health endpoints to bypass limits, got %d", code)
	}
}

func TestAllowWithLimitOverridesDefault(t *testing.T) {
	l := New(0, 1)
	if !l.AllowWithLimit("key-1", 60) {
		t.Fatal("expected first request to pass")
	}
	if l.AllowWithLimit("key-1", 60) {
		t.Error("expected per-key limit to apply even when the default is unlimited")
	}
	if !l.AllowWithLimit("key-2", 0) || !l.AllowWithLimit("key-2", 0) {
		t.Error("expected default unlimited rate when no override is given")
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.5:4242"
	if got := ClientIP(req); got != "192.168.1.5" {
		t.Errorf("expected 192.168.1.5, got %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := ClientIP(req); got != "203.0.113.7" {
		t.Errorf("expected 203.0.113.7, got %q", got)
	}
}
