package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Decision pipeline metrics
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lina_decisions_total",
			Help: "Total number of credit decisions by outcome and tier",
		},
		[]string{"decision", "tier"},
	)

	DecisionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lina_decision_duration_seconds",
			Help:    "Decision pipeline evaluation duration in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
		[]string{"decision"},
	)

	ModelInferenceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lina_model_inference_errors_total",
			Help: "Total number of classifier or ranking failures by pipeline stage",
		},
		[]string{"stage"},
	)

	// Tool metrics
	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lina_tool_calls_total",
			Help: "Total number of tool dispatches by tool and status",
		},
		[]string{"tool", "status"},
	)

	ToolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lina_tool_duration_seconds",
			Help:    "Tool handler execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	// Conversation metrics
	ConversationsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lina_conversations_started_total",
			Help: "Total number of agent conversations started",
		},
		[]string{"transport"},
	)

	ConversationsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lina_conversations_completed_total",
			Help: "Total number of agent conversations by terminal outcome",
		},
		[]string{"outcome"},
	)

	ConversationTurns = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lina_conversation_turns",
			Help:    "Number of model turns used per conversation",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)

	// LLM metrics
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lina_llm_requests_total",
			Help: "Total number of language-model requests by model and status",
		},
		[]string{"model", "status"},
	)

	LLMLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lina_llm_request_duration_seconds",
			Help:    "Language-model request latency in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"model"},
	)

	// Transport metrics
	StreamEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lina_stream_events_total",
			Help: "Total number of chat events written to clients",
		},
		[]string{"transport", "type"},
	)

	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lina_rate_limit_rejections_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
		[]string{"backend"},
	)
)

// RecordDecision records a completed pipeline evaluation.
func RecordDecision(decision, tier string, durationSeconds float64) {
	if tier == "" {
		tier = "none"
	}
	DecisionsTotal.WithLabelValues(decision, tier).Inc()
	DecisionDuration.WithLabelValues(decision).Observe(durationSeconds)
}

// RecordToolCall records one dispatcher invocation.
func RecordToolCall(tool, status string, durationSeconds float64) {
	ToolCalls.WithLabelValues(tool, status).Inc()
	ToolDuration.WithLabelValues(tool).Observe(durationSeconds)
}

// RecordConversation records the terminal outcome of an agent loop.
func RecordConversation(outcome string, turns int) {
	ConversationsCompleted.WithLabelValues(outcome).Inc()
	ConversationTurns.Observe(float64(turns))
}

// RecordLLMRequest records one language-model call.
func RecordLLMRequest(model, status string, durationSeconds float64) {
	LLMRequests.WithLabelValues(model, status).Inc()
	LLMLatency.WithLabelValues(model).Observe(durationSeconds)
}
