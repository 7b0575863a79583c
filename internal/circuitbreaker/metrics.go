package circuitbreaker

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	circuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lina_circuit_breaker_state",
			Help: "Current state of circuit breaker (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name", "service"},
	)

	circuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lina_circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "service", "state", "result"},
	)

	circuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lina_circuit_breaker_state_changes_total",
			Help: "Total number of state changes in circuit breaker",
		},
		[]string{"name", "service", "from_state", "to_state"},
	)
)

// MetricsCollector exports breaker state for every registered downstream.
type MetricsCollector struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{breakers: make(map[string]*CircuitBreaker)}
}

// RegisterCircuitBreaker hooks state changes of cb into the exported gauges.
func (mc *MetricsCollector) RegisterCircuitBreaker(name, service string, cb *CircuitBreaker) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.breakers[service+":"+name] = cb

	cb.mu.Lock()
	previous := cb.config.OnStateChange
	cb.config.OnStateChange = func(cbName string, from State, to State) {
		if previous != nil {
			previous(cbName, from, to)
		}
		circuitBreakerStateChanges.WithLabelValues(name, service, from.String(), to.String()).Inc()
		circuitBreakerState.WithLabelValues(name, service).Set(float64(to))
	}
	cb.mu.Unlock()

	circuitBreakerState.WithLabelValues(name, service).Set(float64(StateClosed))
}

// RecordRequest records a request attempt
func (mc *MetricsCollector) RecordRequest(name, service string, state State, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	circuitBreakerRequests.WithLabelValues(name, service, state.String(), result).Inc()
}

// UpdateMetrics refreshes the state gauges; open breakers move to half-open lazily, so
// the gauge would otherwise lag until the next request.
func (mc *MetricsCollector) UpdateMetrics() {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	for key, cb := range mc.breakers {
		service, name, ok := strings.Cut(key, ":")
		if !ok {
			continue
		}
		circuitBreakerState.WithLabelValues(name, service).Set(float64(cb.State()))
	}
}

// Snapshot returns the state of every registered breaker keyed by "service:name".
func (mc *MetricsCollector) Snapshot() map[string]State {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	out := make(map[string]State, len(mc.breakers))
	for key, cb := range mc.breakers {
		out[key] = cb.State()
	}
	return out
}

// GlobalMetricsCollector is shared by every wrapper in the process.
var GlobalMetricsCollector = NewMetricsCollector()

// StartMetricsCollection refreshes breaker gauges until ctx is done.
func StartMetricsCollection(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				GlobalMetricsCollector.UpdateMetrics()
			}
		}
	}()
}
