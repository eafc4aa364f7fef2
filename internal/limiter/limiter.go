package limiter

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/itstheanurag/coderunner/internal/metrics"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type RateLimiter struct {
	globalLimiter *rate.Limiter
	clients       map[string]*clientLimiter
	clientRate    rate.Limit
	clientBurst   int
	maxConcurrent int64
	currentConc   int64
	mu            sync.Mutex
	now           func() time.Time
}

func NewRateLimiter(globalRPS float64, perClientRPS float64, perClientBurst int, maxConcurrent int) *RateLimiter {
	globalBurst := int(globalRPS) * 2
	if globalBurst < 1 {
		globalBurst = 1
	}
	return &RateLimiter{
		globalLimiter: rate.NewLimiter(rate.Limit(globalRPS), globalBurst),
		clients:       make(map[string]*clientLimiter),
		clientRate:    rate.Limit(perClientRPS),
		clientBurst:   perClientBurst,
		maxConcurrent: int64(maxConcurrent),
		now:           time.Now,
	}
}

func (rl *RateLimiter) limiterFor(client string) *rate.Limiter {
	c, ok := rl.clients[client]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(rl.clientRate, rl.clientBurst)}
		rl.clients[client] = c
	}
	c.lastSeen = rl.now()
	return c.limiter
}

// Allow reports whether a request from client may proceed. Every allowed
// request must be followed by a call to Done.
func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// a request turned away for lack of a slot must not spend tokens
	if rl.maxConcurrent > 0 && rl.currentConc >= rl.maxConcurrent {
		metrics.RateLimitHits.Inc()
		return false
	}
	if !rl.globalLimiter.Allow() {
		metrics.RateLimitHits.Inc()
		return false
	}
	if !rl.limiterFor(client).Allow() {
		metrics.RateLimitHits.Inc()
		return false
	}
	rl.currentConc++
	return true
}

func (rl *RateLimiter) Done() {
	rl.mu.Lock()
	if rl.currentConc > 0 {
		rl.currentConc--
	}
	rl.mu.Unlock()
}

// Middleware keys clients by remote address, so it should run after a
// middleware that resolves the real client IP.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := r.RemoteAddr
		if host, _, err := net.SplitHostPort(client); err == nil {
			client = host
		}

		if !rl.Allow(client) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"status_code":429,"body":{"error":"too many requests"}}` + "\n"))
			return
		}
		defer rl.Done()

		next.ServeHTTP(w, r)
	})
}

// StartCleanup forgets clients idle for longer than maxIdle, checking every
// interval until ctx is done.
func (rl *RateLimiter) StartCleanup(ctx context.Context, interval, maxIdle time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.cleanup(maxIdle)
			}
		}
	}()
}

func (rl *RateLimiter) cleanup(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-maxIdle)
	for client, c := range rl.clients {
		if c.lastSeen.Before(cutoff) {
			delete(rl.clients, client)
		}
	}
}
