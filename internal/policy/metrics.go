package policy

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	evaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lina_policy_evaluations_total",
			Help: "Tool-call policy evaluations by tool and result",
		},
		[]string{"tool", "result"},
	)

	evaluationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lina_policy_errors_total",
			Help: "Tool-call policy failures by stage",
		},
		[]string{"stage"},
	)

	evaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lina_policy_evaluation_duration_seconds",
			Help:    "Tool-call policy evaluation latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		},
	)
)

func recordEvaluation(tool string, d *Decision, took time.Duration) {
	result := "allow"
	switch {
	case !d.Enforced:
		result = "dry_run_deny"
	case !d.Allow:
		result = "deny"
	}
	evaluations.WithLabelValues(tool, result).Inc()
	evaluationDuration.Observe(took.Seconds())
}
