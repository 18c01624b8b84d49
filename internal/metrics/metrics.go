// Package metrics exposes Prometheus collectors for the resolution service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chatform"

var (
	// modelCalls counts model turns.
	// Labels: provider, outcome (success, error, tool_budget_exhausted)
	modelCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "llm",
		Name:      "calls_total",
		Help:      "Total model turns by provider and outcome",
	}, []string{"provider", "outcome"})

	// modelLatency measures a whole turn, tool rounds included.
	modelLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "llm",
		Name:      "turn_duration_seconds",
		Help:      "Model turn latency in seconds, tool rounds included",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
	}, []string{"provider"})

	modelTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "llm",
		Name:      "tokens_total",
		Help:      "Total tokens reported by the model provider",
	}, []string{"provider"})

	// toolExecutions counts tool calls.
	// Labels: tool, outcome (success, error, unknown_tool, invalid_arguments, panic)
	toolExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tools",
		Name:      "executions_total",
		Help:      "Total tool executions by tool and outcome",
	}, []string{"tool", "outcome"})

	toolLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "tools",
		Name:      "duration_seconds",
		Help:      "Tool execution latency in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
	}, []string{"tool"})

	// resolutions counts terminal conversation outcomes.
	// Labels: rule, action (update, justify, escalated)
	resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "resolution",
		Name:      "committed_total",
		Help:      "Total committed resolutions by rule and action",
	}, []string{"rule", "action"})

	// malformedOutputs counts model replies that did not match the output contract.
	malformedOutputs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "resolution",
		Name:      "malformed_outputs_total",
		Help:      "Model replies degraded to a clarifying question",
	}, []string{"rule"})

	// redFlags counts flags raised by the rule engine.
	redFlags = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rules",
		Name:      "red_flags_total",
		Help:      "Total red flags raised by rule",
	}, []string{"rule"})

	// verifications counts employer verification lookups.
	// Labels: source (allowlist, ai_search), outcome (verified, not_verified, error)
	verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "verification",
		Name:      "lookups_total",
		Help:      "Employer verification lookups by source and outcome",
	}, []string{"source", "outcome"})

	// sheetRefreshes counts CSV sheet refreshes.
	// Labels: sheet, outcome (success, error)
	sheetRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sheets",
		Name:      "refreshes_total",
		Help:      "Sheet refreshes by sheet and outcome",
	}, []string{"sheet", "outcome"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// RecordModelCall records one model turn
func RecordModelCall(provider, outcome string, duration time.Duration, tokens int) {
	modelCalls.WithLabelValues(provider, outcome).Inc()
	modelLatency.WithLabelValues(provider).Observe(duration.Seconds())
	if tokens > 0 {
		modelTokens.WithLabelValues(provider).Add(float64(tokens))
	}
}

// RecordToolExecution records one tool call
func RecordToolExecution(tool, outcome string, duration time.Duration) {
	toolExecutions.WithLabelValues(tool, outcome).Inc()
	toolLatency.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordResolution records a committed Update or Justify
func RecordResolution(rule, action string) {
	resolutions.WithLabelValues(rule, action).Inc()
}

// RecordMalformedOutput records a model reply that was degraded to a question
func RecordMalformedOutput(rule string) {
	malformedOutputs.WithLabelValues(rule).Inc()
}

// RecordRedFlag records a flag raised by the rule engine
func RecordRedFlag(rule string) {
	redFlags.WithLabelValues(rule).Inc()
}

// RecordVerification records an employer verification lookup
func RecordVerification(source, outcome string) {
	verifications.WithLabelValues(source, outcome).Inc()
}

// RecordSheetRefresh records a sheet refresh attempt
func RecordSheetRefresh(sheet string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	sheetRefreshes.WithLabelValues(sheet, outcome).Inc()
}

// RecordHTTPRequest records a served HTTP request
func RecordHTTPRequest(method, route, status string, duration time.Duration) {
	httpRequests.WithLabelValues(method, route, status).Inc()
	httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}
