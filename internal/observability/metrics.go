package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the set of Prometheus collectors the agent loop, mesh, and
// control plane report against.
type Metrics struct {
	// ProviderRequestDuration measures one Complete() call's wall time.
	// Labels: provider, model, status (success|error)
	ProviderRequestDuration *prometheus.HistogramVec

	// TokensUsed tracks token consumption by kind.
	// Labels: provider, model, kind (input|output|cache_read|cache_write)
	TokensUsed *prometheus.CounterVec

	// ToolExecutionDuration measures one tool call's wall time.
	// Labels: tool_name, status (success|error)
	ToolExecutionDuration *prometheus.HistogramVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status
	ToolExecutionCounter *prometheus.CounterVec

	// ActiveSessions is the current count of live control-plane sessions.
	ActiveSessions prometheus.Gauge

	// DelegationDepth records the depth at which delegated tasks run,
	// local or peer.
	DelegationDepth prometheus.Histogram

	// PeerMessagesTotal counts mesh frames by direction and kind.
	// Labels: direction (sent|received), kind (announce|task|ack|task_result)
	PeerMessagesTotal *prometheus.CounterVec

	// CompactionsTotal counts context-compaction runs.
	// Labels: status (success|failed)
	CompactionsTotal *prometheus.CounterVec
}

// NewMetrics registers and returns the full collector set against the
// default Prometheus registry.
func NewMetrics() *Metrics {
	return &Metrics{
		ProviderRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentcore_provider_request_duration_seconds",
			Help:    "Latency of one provider Complete() call.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"provider", "model", "status"}),

		TokensUsed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_tokens_used_total",
			Help: "Tokens consumed, by provider/model/kind.",
		}, []string{"provider", "model", "kind"}),

		ToolExecutionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentcore_tool_execution_duration_seconds",
			Help:    "Latency of one tool Execute() call.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"tool_name", "status"}),

		ToolExecutionCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_tool_executions_total",
			Help: "Tool invocations, by tool name and outcome.",
		}, []string{"tool_name", "status"}),

		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "agentcore_active_sessions",
			Help: "Number of sessions currently held by the control plane.",
		}),

		DelegationDepth: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentcore_delegation_depth",
			Help:    "Depth at which a delegated task ran.",
			Buckets: []float64{0, 1, 2, 3},
		}),

		PeerMessagesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_peer_messages_total",
			Help: "P2P frames exchanged, by direction and kind.",
		}, []string{"direction", "kind"}),

		CompactionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_compactions_total",
			Help: "Context compactions run, by outcome.",
		}, []string{"status"}),
	}
}
