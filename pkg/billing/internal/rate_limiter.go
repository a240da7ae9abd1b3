package internal

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RateLimiter provides simple in-memory fixed-window rate limiting per client
// IP for webhook endpoints.
type RateLimiter struct {
	mu            sync.Mutex
	requests      map[string]*bucket
	limit         int           // max requests per window
	window        time.Duration // time window
	requestCount  int           // counter for deterministic cleanup
	cleanupEvery  int           // cleanup every N requests
	cleanupAtSize int           // cleanup when map size exceeds this
	trustProxy    bool
	now           func() time.Time
}

type bucket struct {
	count   int
	resetAt time.Time
}

// RateLimiterOption customizes a RateLimiter
type RateLimiterOption func(*RateLimiter)

// WithClock replaces the wall clock, mainly for tests
func WithClock(now func() time.Time) RateLimiterOption {
	return func(rl *RateLimiter) { rl.now = now }
}

// WithTrustedProxy makes the limiter key clients by the first
// X-Forwarded-For address instead of the socket peer address.
func WithTrustedProxy(trust bool) RateLimiterOption {
	return func(rl *RateLimiter) { rl.trustProxy = trust }
}

// NewRateLimiter creates a new rate limiter with the specified limit and window
func NewRateLimiter(limit int, window time.Duration, opts ...RateLimiterOption) *RateLimiter {
	rl := &RateLimiter{
		requests:      make(map[string]*bucket),
		limit:         limit,
		window:        window,
		cleanupEvery:  100,
		cleanupAtSize: 200,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// Allow reports whether one more request from ip fits in the current window.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	rl.requestCount++
	if rl.requestCount%rl.cleanupEvery == 0 || len(rl.requests) > rl.cleanupAtSize {
		rl.cleanupExpired(now)
		rl.requestCount = 0
	}

	b, exists := rl.requests[ip]
	if !exists || now.After(b.resetAt) {
		rl.requests[ip] = &bucket{count: 1, resetAt: now.Add(rl.window)}
		return true
	}

	if b.count >= rl.limit {
		return false
	}
	b.count++
	return true
}

func (rl *RateLimiter) cleanupExpired(now time.Time) {
	for ip, b := range rl.requests {
		if now.After(b.resetAt) {
			delete(rl.requests, ip)
		}
	}
}

// Len returns the number of tracked clients
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.requests)
}

// Middleware wraps HTTP handler with rate limiting
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(ClientIP(r, rl.trustProxy)) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP extracts the client IP address from the request. X-Forwarded-For
// is only honored when trustProxy is set.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
