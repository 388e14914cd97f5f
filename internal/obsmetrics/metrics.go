// Package obsmetrics centralizes the runtime's Prometheus instrumentation,
// following the counter/histogram/gauge layout of the teacher's
// internal/observability package but scoped to the agent-core domain:
// sessions, steps, tool executions, and fork depth rather than channel
// messaging.
package obsmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the runtime's Prometheus instrumentation surface. Create one
// with New and share it across components; every method is safe for
// concurrent use (the underlying prometheus vectors are).
type Metrics struct {
	// Registry is the private registry every collector below is registered
	// against, so multiple Metrics instances (one per test, for example)
	// never collide on prometheus.DefaultRegisterer.
	Registry *prometheus.Registry

	// SessionsActive tracks currently active sessions by agent kind.
	SessionsActive *prometheus.GaugeVec

	// SessionDuration measures session lifetime in seconds.
	// Labels: kind (interactive|autonomous), status (completed|failed|stopped)
	SessionDuration *prometheus.HistogramVec

	// StepsExecuted counts steps by action kind and outcome.
	// Labels: action, status (completed|failed)
	StepsExecuted *prometheus.CounterVec

	// StepDuration measures time spent executing one step.
	// Labels: action
	StepDuration *prometheus.HistogramVec

	// ToolExecutions counts tool invocations by tool name and status.
	ToolExecutions *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	ToolExecutionDuration *prometheus.HistogramVec

	// LLMRequests counts model calls by provider and status.
	LLMRequests *prometheus.CounterVec

	// LLMRequestDuration measures model call latency in seconds.
	LLMRequestDuration *prometheus.HistogramVec

	// LLMTokensUsed tracks token consumption by provider and kind
	// (prompt|completion).
	LLMTokensUsed *prometheus.CounterVec

	// ForkDepth observes the depth of spawned sub-agent tasks.
	ForkDepth prometheus.Histogram

	// ForksActive tracks the number of fork tasks currently running.
	ForksActive prometheus.Gauge

	// mu guards the running-executor snapshot fields below, which back
	// Snapshot() independent of Prometheus's own collection cycle.
	mu              sync.Mutex
	toolCallsTotal  int64
	toolErrorsTotal int64
}

// New creates all Prometheus collectors against a fresh private registry.
// Call once at startup and share the result; expose Registry to an HTTP
// handler (promhttp.HandlerFor) to serve /metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	fac := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		SessionsActive: fac.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agentcore_sessions_active",
			Help: "Current number of active sessions by agent kind.",
		}, []string{"kind"}),

		SessionDuration: fac.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentcore_session_duration_seconds",
			Help:    "Duration of a session from creation to terminal status.",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 600, 1800, 3600},
		}, []string{"kind", "status"}),

		StepsExecuted: fac.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_steps_total",
			Help: "Total steps executed by action kind and outcome.",
		}, []string{"action", "status"}),

		StepDuration: fac.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentcore_step_duration_seconds",
			Help:    "Duration of one step's dispatch and execution.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"action"}),

		ToolExecutions: fac.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_tool_executions_total",
			Help: "Total tool executions by tool name and status.",
		}, []string{"tool_name", "status"}),

		ToolExecutionDuration: fac.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentcore_tool_execution_duration_seconds",
			Help:    "Duration of tool executions in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"tool_name"}),

		LLMRequests: fac.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_llm_requests_total",
			Help: "Total LLM requests by provider and status.",
		}, []string{"provider", "model", "status"}),

		LLMRequestDuration: fac.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentcore_llm_request_duration_seconds",
			Help:    "Duration of LLM requests in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider", "model"}),

		LLMTokensUsed: fac.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_llm_tokens_total",
			Help: "Total tokens consumed by provider, model, and kind.",
		}, []string{"provider", "model", "kind"}),

		ForkDepth: fac.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentcore_fork_depth",
			Help:    "Depth of spawned sub-agent tasks at creation time.",
			Buckets: []float64{0, 1, 2, 3, 4, 5},
		}),

		ForksActive: fac.NewGauge(prometheus.GaugeOpts{
			Name: "agentcore_forks_active",
			Help: "Current number of fork tasks running.",
		}),
	}
}

// RecordSessionStarted increments the active-sessions gauge for kind.
func (m *Metrics) RecordSessionStarted(kind string) {
	m.SessionsActive.WithLabelValues(kind).Inc()
}

// RecordSessionEnded decrements the active-sessions gauge and observes the
// session's total duration.
func (m *Metrics) RecordSessionEnded(kind, status string, duration time.Duration) {
	m.SessionsActive.WithLabelValues(kind).Dec()
	m.SessionDuration.WithLabelValues(kind, status).Observe(duration.Seconds())
}

// RecordStep records one step's outcome and dispatch latency.
func (m *Metrics) RecordStep(action, status string, duration time.Duration) {
	m.StepsExecuted.WithLabelValues(action, status).Inc()
	m.StepDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordToolExecution records one tool invocation's outcome and latency,
// and folds it into the in-process snapshot counters.
func (m *Metrics) RecordToolExecution(toolName, status string, duration time.Duration) {
	m.ToolExecutions.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(duration.Seconds())

	m.mu.Lock()
	m.toolCallsTotal++
	if status != "success" {
		m.toolErrorsTotal++
	}
	m.mu.Unlock()
}

// RecordLLMRequest records one model call's outcome, latency, and token use.
func (m *Metrics) RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int) {
	m.LLMRequests.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordForkStarted observes the depth a fork task was created at and
// increments the active-forks gauge.
func (m *Metrics) RecordForkStarted(depth int) {
	m.ForkDepth.Observe(float64(depth))
	m.ForksActive.Inc()
}

// RecordForkEnded decrements the active-forks gauge.
func (m *Metrics) RecordForkEnded() {
	m.ForksActive.Dec()
}

// Snapshot is the supplemented "executor metrics" feature: a point-in-time
// view of tool-execution counts independent of Prometheus's own scrape
// cycle, useful for a CLI `doctor` subcommand or a health endpoint.
type Snapshot struct {
	ToolCallsTotal  int64 `json:"toolCallsTotal"`
	ToolErrorsTotal int64 `json:"toolErrorsTotal"`
}

// Snapshot returns the current in-process tool-execution counters.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{ToolCallsTotal: m.toolCallsTotal, ToolErrorsTotal: m.toolErrorsTotal}
}
