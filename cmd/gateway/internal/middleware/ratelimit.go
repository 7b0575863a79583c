package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Kocoro-lab/lina/internal/auth"
	"github.com/Kocoro-lab/lina/internal/circuitbreaker"
	"github.com/Kocoro-lab/lina/internal/metrics"
)

// RateLimiter limits requests per client. With Redis it counts a fixed one-minute
// window shared by every gateway replica; without Redis each process keeps a token
// bucket per client.
type RateLimiter struct {
	redis  *circuitbreaker.RedisWrapper
	logger *zap.Logger

	requestsPerMinute int
	burst             int

	mu        sync.Mutex
	local     map[string]*localBucket
	lastSweep time.Time
	now       func() time.Time
	window    time.Duration
}

type localBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a rate limiter. A nil client selects the in-process limiter.
func NewRateLimiter(client *circuitbreaker.RedisWrapper, requestsPerMinute, burst int, logger *zap.Logger) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	if burst <= 0 {
		burst = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		redis:             client,
		logger:            logger,
		requestsPerMinute: requestsPerMinute,
		burst:             burst,
		local:             make(map[string]*localBucket),
		now:               time.Now,
		window:            time.Minute,
	}
}

// Middleware returns the HTTP middleware function
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		key := clientKey(r)
		var (
			allowed   bool
			remaining int
			resetAt   time.Time
			backend   string
		)
		if rl.redis != nil {
			backend = "redis"
			allowed, remaining, resetAt = rl.checkRedis(r.Context(), key)
		} else {
			backend = "local"
			allowed, remaining, resetAt = rl.checkLocal(key)
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMinute))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			metrics.RateLimitRejections.WithLabelValues(backend).Inc()
			rl.logger.Warn("Rate limit exceeded",
				zap.String("client", key),
				zap.String("backend", backend),
				zap.String("path", r.URL.Path),
			)
			retry := int(resetAt.Sub(rl.now()).Seconds())
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			sendRateLimitError(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// checkRedis counts the request in the current one-minute window.
func (rl *RateLimiter) checkRedis(ctx context.Context, key string) (allowed bool, remaining int, resetAt time.Time) {
	window := rl.now().Truncate(rl.window)
	resetAt = window.Add(rl.window)
	windowKey := fmt.Sprintf("ratelimit:%s:%d", key, window.Unix())

	count, err := rl.redis.IncrWindow(ctx, windowKey, rl.window+time.Second)
	if err != nil {
		rl.logger.Error("Rate limit check failed", zap.Error(err))
		// fail open
		return true, rl.requestsPerMinute, resetAt
	}

	remaining = rl.requestsPerMinute - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return count <= int64(rl.requestsPerMinute), remaining, resetAt
}

// checkLocal spends one token from the client's bucket.
func (rl *RateLimiter) checkLocal(key string) (allowed bool, remaining int, resetAt time.Time) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.local[key]
	if !ok {
		if now.Sub(rl.lastSweep) >= rl.window {
			rl.evictIdle(now)
			rl.lastSweep = now
		}
		b = &localBucket{
			limiter: rate.NewLimiter(rate.Limit(float64(rl.requestsPerMinute)/60.0), rl.burst),
		}
		rl.local[key] = b
	}
	b.lastSeen = now

	allowed = b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)
	if tokens > 0 {
		remaining = int(tokens)
	}
	// time until one token is available again
	perToken := time.Duration(float64(time.Minute) / float64(rl.requestsPerMinute))
	resetAt = now
	if tokens < 1 {
		resetAt = now.Add(time.Duration((1 - tokens) * float64(perToken)))
	}
	return allowed, remaining, resetAt
}

// evictIdle drops buckets untouched for ten windows. Caller holds rl.mu.
func (rl *RateLimiter) evictIdle(now time.Time) {
	for k, b := range rl.local {
		if now.Sub(b.lastSeen) > 10*rl.window {
			delete(rl.local, k)
		}
	}
}

// clientKey identifies the caller: the authenticated subject when present, the
// remote address otherwise.
func clientKey(r *http.Request) string {
	if p, ok := auth.PrincipalFrom(r.Context()); ok && p.Method != auth.MethodNone && p.Subject != "" {
		return "sub:" + p.Subject
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

func sendRateLimitError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "Rate limit exceeded",
		"message": "Too many requests. Please retry after the rate limit window resets.",
	})
}
