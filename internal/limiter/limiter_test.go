package limiter

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPerClientBurst(t *testing.T) {
	rl := NewRateLimiter(1000, 1, 2, 100)
	for i := 0; i < 2; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("request %d within burst rejected", i)
		}
		rl.Done()
	}
	if rl.Allow("10.0.0.1") {
		t.Fatal("request beyond burst allowed")
	}
	if !rl.Allow("10.0.0.2") {
		t.Fatal("other client must have its own bucket")
	}
}

func TestConcurrencyCap(t *testing.T) {
	rl := NewRateLimiter(1000, 1000, 1000, 1)
	if !rl.Allow("a") {
		t.Fatal("first request rejected")
	}
	if rl.Allow("b") {
		t.Fatal("second concurrent request allowed")
	}
	rl.Done()
	if !rl.Allow("b") {
		t.Fatal("request rejected after slot released")
	}
}

func TestConcurrencyRejectionKeepsTokens(t *testing.T) {
	rl := NewRateLimiter(1000, 1, 2, 1)
	if !rl.Allow("a") {
		t.Fatal("first request rejected")
	}
	for i := 0; i < 5; i++ {
		if rl.Allow("a") {
			t.Fatal("concurrent request allowed past the cap")
		}
	}
	rl.Done()
	if !rl.Allow("a") {
		t.Fatal("second token of the burst was spent by rejected requests")
	}
}

func TestMiddlewareRejectsWith429(t *testing.T) {
	rl := NewRateLimiter(1000, 1, 1, 10)
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/code/execute", nil)
		req.RemoteAddr = "192.0.2.1:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status codes %v", codes)
	}
}

func TestCleanupForgetsIdleClients(t *testing.T) {
	rl := NewRateLimiter(1000, 1, 1, 10)
	now := time.Now()
	rl.now = func() time.Time { return now }

	rl.Allow("old")
	rl.Done()
	now = now.Add(time.Hour)
	rl.Allow("fresh")
	rl.Done()

	rl.cleanup(10 * time.Minute)
	if _, ok := rl.clients["old"]; ok {
		t.Fatal("idle client not removed")
	}
	if _, ok := rl.clients["fresh"]; !ok {
		t.Fatal("active client removed")
	}
}
