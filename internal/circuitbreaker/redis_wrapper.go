package circuitbreaker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisWrapper guards the Redis commands the gateway uses with a circuit breaker.
// Callers treat ErrCircuitBreakerOpen like any other Redis failure.
type RedisWrapper struct {
	client  redis.UniversalClient
	cb      *CircuitBreaker
	service string
}

// NewRedisWrapper creates a Redis wrapper configured from CB_REDIS_*.
func NewRedisWrapper(client redis.UniversalClient, service string, logger *zap.Logger) *RedisWrapper {
	cb := NewCircuitBreaker("redis", GetRedisConfig().ToConfig(), logger)
	GlobalMetricsCollector.RegisterCircuitBreaker("redis", service, cb)
	return &RedisWrapper{client: client, cb: cb, service: service}
}

// Breaker exposes the underlying breaker for health reporting.
func (rw *RedisWrapper) Breaker() *CircuitBreaker { return rw.cb }

// Client returns the wrapped client.
func (rw *RedisWrapper) Client() redis.UniversalClient { return rw.client }

// Ping wraps Redis Ping with circuit breaker
func (rw *RedisWrapper) Ping(ctx context.Context) error {
	err := rw.cb.Execute(ctx, func() error {
		return rw.client.Ping(ctx).Err()
	})
	GlobalMetricsCollector.RecordRequest("redis", rw.service, rw.cb.State(), err == nil)
	return err
}

// IncrWindow increments key and (re)sets its expiry in one round trip, returning the
// new count.
func (rw *RedisWrapper) IncrWindow(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var count int64
	err := rw.cb.Execute(ctx, func() error {
		pipe := rw.client.Pipeline()
		incr := pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, ttl)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		count = incr.Val()
		return nil
	})
	GlobalMetricsCollector.RecordRequest("redis", rw.service, rw.cb.State(), err == nil)
	return count, err
}

// Close closes the wrapped client.
func (rw *RedisWrapper) Close() error {
	return rw.client.Close()
}

// IsCircuitBreakerOpen returns true if circuit breaker is open
func (rw *RedisWrapper) IsCircuitBreakerOpen() bool {
	return rw.cb.State() == StateOpen
}
