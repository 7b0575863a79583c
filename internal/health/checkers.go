package health

import (
	"context"
	"time"

	"github.com/Kocoro-lab/lina/internal/circuitbreaker"
	"github.com/Kocoro-lab/lina/internal/clients"
	"github.com/Kocoro-lab/lina/internal/inference"
	"github.com/Kocoro-lab/lina/internal/tools"
)

const defaultCheckTimeout = 5 * time.Second

// slowThreshold marks a responding dependency as degraded.
const slowThreshold = 500 * time.Millisecond

// Pinger is implemented by dependencies with a cheap liveness call.
type Pinger interface {
	Ping(ctx context.Context) error
}

type breakerSource interface {
	Breaker() *circuitbreaker.CircuitBreaker
}

func breakerOpen(v any) bool {
	b, ok := v.(breakerSource)
	return ok && b.Breaker() != nil && b.Breaker().State() == circuitbreaker.StateOpen
}

func failed(msg string, err error, details map[string]any) CheckResult {
	return CheckResult{Status: StatusUnhealthy, Message: msg, Error: err.Error(), Details: details}
}

func timed(name string, start time.Time, details map[string]any) CheckResult {
	took := time.Since(start)
	if details == nil {
		details = map[string]any{}
	}
	details["latency_ms"] = took.Milliseconds()
	if took > slowThreshold {
		return CheckResult{Status: StatusDegraded, Message: name + " responding slowly", Details: details}
	}
	return CheckResult{Status: StatusHealthy, Message: name + " healthy", Details: details}
}

// ModelsChecker reports the loaded model registry. Models load before serving, so
// this only fails when the process was wired without them.
type ModelsChecker struct {
	registry *inference.Registry
}

func NewModelsChecker(registry *inference.Registry) *ModelsChecker {
	return &ModelsChecker{registry: registry}
}

func (c *ModelsChecker) Name() string           { return "models" }
func (c *ModelsChecker) IsCritical() bool       { return true }
func (c *ModelsChecker) Timeout() time.Duration { return time.Second }

func (c *ModelsChecker) Check(context.Context) CheckResult {
	if c.registry == nil {
		return CheckResult{Status: StatusUnhealthy, Message: "model registry not loaded"}
	}
	info := c.registry.Info()
	return CheckResult{
		Status:  StatusHealthy,
		Message: "models loaded",
		Details: map[string]any{
			"source":         info.Source,
			"fraud_topology": info.FraudTopology,
			"risk_classes":   info.RiskClasses,
			"risk_trees":     info.RiskTrees,
			"loaded_at":      info.LoadedAt,
		},
	}
}

// ClientStoreChecker probes the reference client dataset.
type ClientStoreChecker struct {
	store clients.Store
}

func NewClientStoreChecker(store clients.Store) *ClientStoreChecker {
	return &ClientStoreChecker{store: store}
}

func (c *ClientStoreChecker) Name() string           { return "client_store" }
func (c *ClientStoreChecker) IsCritical() bool       { return true }
func (c *ClientStoreChecker) Timeout() time.Duration { return defaultCheckTimeout }

func (c *ClientStoreChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	if p, ok := c.store.(Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return failed("client store ping failed", err, nil)
		}
		return timed("client store", start, nil)
	}
	list, err := c.store.List(ctx)
	if err != nil {
		return failed("client store listing failed", err, nil)
	}
	return timed("client store", start, map[string]any{"clients": len(list)})
}

// LLMChecker probes the language-model server.
type LLMChecker struct {
	client Pinger
}

func NewLLMChecker(client Pinger) *LLMChecker {
	return &LLMChecker{client: client}
}

func (c *LLMChecker) Name() string           { return "llm" }
func (c *LLMChecker) IsCritical() bool       { return true }
func (c *LLMChecker) Timeout() time.Duration { return defaultCheckTimeout }

func (c *LLMChecker) Check(ctx context.Context) CheckResult {
	if breakerOpen(c.client) {
		return CheckResult{Status: StatusUnhealthy, Message: "LLM circuit breaker is open", Error: circuitbreaker.ErrCircuitBreakerOpen.Error()}
	}
	start := time.Now()
	if err := c.client.Ping(ctx); err != nil {
		return failed("LLM ping failed", err, nil)
	}
	return timed("LLM", start, nil)
}

// ToolServerChecker probes a remote decision server through its catalogue.
type ToolServerChecker struct {
	executor tools.Executor
}

func NewToolServerChecker(executor tools.Executor) *ToolServerChecker {
	return &ToolServerChecker{executor: executor}
}

func (c *ToolServerChecker) Name() string           { return "tool_server" }
func (c *ToolServerChecker) IsCritical() bool       { return true }
func (c *ToolServerChecker) Timeout() time.Duration { return defaultCheckTimeout }

func (c *ToolServerChecker) Check(ctx context.Context) CheckResult {
	if breakerOpen(c.executor) {
		return CheckResult{Status: StatusUnhealthy, Message: "tool server circuit breaker is open", Error: circuitbreaker.ErrCircuitBreakerOpen.Error()}
	}
	start := time.Now()
	defs, err := c.executor.Definitions(ctx)
	if err != nil {
		return failed("tool catalogue unavailable", err, nil)
	}
	return timed("tool server", start, map[string]any{"tools": len(defs)})
}

// RedisChecker checks Redis connectivity. The rate limiter fails open, so a Redis
// outage degrades the gateway without taking it out of service.
type RedisChecker struct {
	client Pinger
}

// NewRedisChecker checks client, usually a *circuitbreaker.RedisWrapper.
func NewRedisChecker(client Pinger) *RedisChecker {
	return &RedisChecker{client: client}
}

func (c *RedisChecker) Name() string           { return "redis" }
func (c *RedisChecker) IsCritical() bool       { return false }
func (c *RedisChecker) Timeout() time.Duration { return defaultCheckTimeout }

func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	if breakerOpen(c.client) {
		return CheckResult{Status: StatusUnhealthy, Message: "Redis circuit breaker is open", Error: circuitbreaker.ErrCircuitBreakerOpen.Error()}
	}
	start := time.Now()
	if err := c.client.Ping(ctx); err != nil {
		return failed("Redis ping failed", err, nil)
	}
	return timed("Redis", start, nil)
}
