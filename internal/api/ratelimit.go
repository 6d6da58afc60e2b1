package api

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	generatePath = "/api/v1/generate"
	idleLimiter  = 5 * time.Minute
)

// ipLimiter holds a rate limiter and the last time it was seen.
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter manages per-IP rate limiters for video submission.
type RateLimiter struct {
	mu    sync.Mutex
	ips   map[string]*ipLimiter
	rps   rate.Limit
	burst int
}

// NewRateLimiter creates a RateLimiter allowing rps requests/second per IP.
// Burst is set to rps (allows a short burst equal to the per-second rate).
// Limiters idle for 5 minutes are evicted until ctx is done.
func NewRateLimiter(ctx context.Context, rps int) *RateLimiter {
	rl := &RateLimiter{
		ips:   make(map[string]*ipLimiter),
		rps:   rate.Limit(rps),
		burst: rps,
	}
	go rl.cleanup(ctx)
	return rl
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.ips[ip]
	if !ok {
		l = &ipLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.ips[ip] = l
	}
	l.lastSeen = time.Now()
	return l.limiter.Allow()
}

func (rl *RateLimiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(idleLimiter)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.evict(now.Add(-idleLimiter))
		}
	}
}

func (rl *RateLimiter) evict(cutoff time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, l := range rl.ips {
		if l.lastSeen.Before(cutoff) {
			delete(rl.ips, ip)
		}
	}
}

// RateLimit returns a Middleware that limits POST /api/v1/generate to rps req/s per IP.
// If rps is 0 the middleware is a no-op.
func RateLimit(ctx context.Context, rps int) Middleware {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	rl := NewRateLimiter(ctx, rps)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost && r.URL.Path == generatePath {
				if !rl.allow(clientIP(r)) {
					writeError(w, http.StatusTooManyRequests, "rate limit exceeded, slow down")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the real client IP, respecting X-Forwarded-For when behind a proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		// "client, proxy1, proxy2": the first entry is the client.
		if idx := strings.Index(fwd, ","); idx != -1 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
