// Package telemetry holds the Prometheus collectors and OpenTelemetry tracing
// helpers used by the providers.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	codexpc "github.com/haowjy/codexpc-go"
)

// Request outcomes recorded in codexpc_requests_total
const (
	StatusCompleted   = "completed"
	StatusError       = "error"
	StatusCancelled   = "cancelled"
	StatusClosed      = "closed"
	StatusStartFailed = "start_failed"
)

// Metrics collects request and daemon telemetry.
//
// It implements codexpc.MetricsObserver for the daemon's metrics events and
// bridge.DropObserver for callbacks the translator discarded.
//
// Usage:
//
//	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
//	metrics.RequestStarted("text")
//	defer metrics.RequestFinished("text", telemetry.StatusCompleted, time.Since(start).Seconds())
type Metrics struct {
	// RequestsTotal counts finished requests.
	// Labels: mode (text|messages|tokens|cli), status
	RequestsTotal *prometheus.CounterVec

	// RequestDuration measures time from start to the end of the stream.
	// Labels: mode
	RequestDuration *prometheus.HistogramVec

	// ActiveRequests is the number of requests holding a foreign handle.
	// Labels: mode
	ActiveRequests *prometheus.GaugeVec

	// TimeToFirstToken is the daemon-reported ttfb in seconds.
	TimeToFirstToken prometheus.Histogram

	// TokensPerSecond is the daemon-reported generation rate.
	TokensPerSecond prometheus.Histogram

	// Deltas counts text deltas reported by the daemon.
	Deltas prometheus.Counter

	// ToolCalls counts tool calls reported by the daemon.
	ToolCalls prometheus.Counter

	// TokensUsed tracks token consumption.
	// Labels: type (input|output)
	TokensUsed *prometheus.CounterVec

	// DroppedCallbacks counts callbacks that produced no event.
	// Labels: reason (untranslatable|after_terminal|detached)
	DroppedCallbacks *prometheus.CounterVec

	// ValidationWarnings counts advisory prompt warnings.
	// Labels: code
	ValidationWarnings *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. Pass a
// fresh prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codexpc_requests_total",
				Help: "Total number of requests by input mode and outcome",
			},
			[]string{"mode", "status"},
		),

		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "codexpc_request_duration_seconds",
				Help:    "Duration of streamed requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"mode"},
		),

		ActiveRequests: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "codexpc_active_requests",
				Help: "Number of requests currently holding a daemon handle",
			},
			[]string{"mode"},
		),

		TimeToFirstToken: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "codexpc_time_to_first_token_seconds",
				Help:    "Daemon-reported time to first token in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		),

		TokensPerSecond: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "codexpc_tokens_per_second",
				Help:    "Daemon-reported generation rate",
				Buckets: []float64{1, 5, 10, 20, 40, 80, 160},
			},
		),

		Deltas: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "codexpc_deltas_total",
				Help: "Total number of text deltas reported by the daemon",
			},
		),

		ToolCalls: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "codexpc_tool_calls_total",
				Help: "Total number of tool calls reported by the daemon",
			},
		),

		TokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codexpc_tokens_total",
				Help: "Total number of tokens by type",
			},
			[]string{"type"},
		),

		DroppedCallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codexpc_dropped_callbacks_total",
				Help: "Callbacks that produced no event, by reason",
			},
			[]string{"reason"},
		),

		ValidationWarnings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codexpc_validation_warnings_total",
				Help: "Advisory prompt validation warnings by code",
			},
			[]string{"code"},
		),
	}
}

// ObserveMetrics records one daemon metrics event.
func (m *Metrics) ObserveMetrics(ev codexpc.MetricsEvent) {
	if ev.TTFBMillis > 0 {
		m.TimeToFirstToken.Observe(ev.TTFBMillis / 1000)
	}
	if ev.TokensPerSec > 0 {
		m.TokensPerSecond.Observe(ev.TokensPerSec)
	}
	if ev.DeltaCount > 0 {
		m.Deltas.Add(float64(ev.DeltaCount))
	}
	if ev.ToolCalls > 0 {
		m.ToolCalls.Add(float64(ev.ToolCalls))
	}
}

// ObserveDropped records a callback discarded by the translator.
func (m *Metrics) ObserveDropped(reason string) {
	m.DroppedCallbacks.WithLabelValues(reason).Inc()
}

// RequestStarted increments the active request gauge.
func (m *Metrics) RequestStarted(mode string) {
	m.ActiveRequests.WithLabelValues(mode).Inc()
}

// RequestFinished decrements the active request gauge and records the outcome.
//
// Example:
//
//	start := time.Now()
//	// ... drain the stream ...
//	metrics.RequestFinished("messages", telemetry.StatusCompleted, time.Since(start).Seconds())
func (m *Metrics) RequestFinished(mode, status string, durationSeconds float64) {
	m.ActiveRequests.WithLabelValues(mode).Dec()
	m.RequestsTotal.WithLabelValues(mode, status).Inc()
	m.RequestDuration.WithLabelValues(mode).Observe(durationSeconds)
}

// RecordStartFailure counts a request that never obtained a handle.
func (m *Metrics) RecordStartFailure(mode string) {
	m.RequestsTotal.WithLabelValues(mode, StatusStartFailed).Inc()
}

// RecordUsage adds the token usage of a completed response.
func (m *Metrics) RecordUsage(usage *codexpc.TokenUsage) {
	if usage == nil {
		return
	}
	if usage.InputTokens > 0 {
		m.TokensUsed.WithLabelValues("input").Add(float64(usage.InputTokens))
	}
	if usage.OutputTokens > 0 {
		m.TokensUsed.WithLabelValues("output").Add(float64(usage.OutputTokens))
	}
}

// RecordWarnings counts validation warnings by code.
func (m *Metrics) RecordWarnings(warnings []codexpc.ValidationWarning) {
	for _, w := range warnings {
		m.ValidationWarnings.WithLabelValues(string(w.Code)).Inc()
	}
}
