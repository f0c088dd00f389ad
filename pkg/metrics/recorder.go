package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"dwagent/pkg/proto"
)

// PrometheusRecorder records engine activity as Prometheus metrics. It
// satisfies both gateway.Recorder and llm.Recorder so a single instance
// can be threaded through the tool gateway and the reasoner middleware.
type PrometheusRecorder struct {
	reasonerRequests *prometheus.CounterVec
	reasonerTokens   *prometheus.CounterVec
	reasonerDuration *prometheus.HistogramVec
	toolCalls        *prometheus.CounterVec
	toolDuration     *prometheus.HistogramVec
	toolAttempts     *prometheus.HistogramVec
	invocations      prometheus.Counter
	activeSessions   prometheus.Gauge
	sessionsEnded    *prometheus.CounterVec
	sessionTokens    prometheus.Counter
}

// NewPrometheusRecorder registers the engine metrics on the default
// registry. Call it at most once per process.
func NewPrometheusRecorder() *PrometheusRecorder {
	return NewPrometheusRecorderWith(prometheus.DefaultRegisterer)
}

// NewPrometheusRecorderWith registers the engine metrics on the given
// registerer. Tests pass a fresh registry to avoid duplicate
// registration panics.
func NewPrometheusRecorderWith(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		reasonerRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reasoner_requests_total",
				Help: "Total reasoner completion requests by model, status, and error type",
			},
			[]string{"model", "status", "error_type"},
		),
		reasonerTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reasoner_tokens_total",
				Help: "Total tokens consumed by reasoner requests",
			},
			[]string{"model", "type"},
		),
		reasonerDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reasoner_request_duration_seconds",
				Help:    "Duration of reasoner completion requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model"},
		),
		toolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_calls_total",
				Help: "Total tool dispatches by tool name and result status",
			},
			[]string{"tool", "status"},
		),
		toolDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tool_call_duration_seconds",
				Help:    "Duration of tool dispatches in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		toolAttempts: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tool_call_attempts",
				Help:    "Attempts consumed per tool dispatch including retries",
				Buckets: []float64{1, 2, 3, 4, 5, 6},
			},
			[]string{"tool"},
		),
		invocations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "engine_invocations_total",
				Help: "Total invoke_session requests accepted by the engine",
			},
		),
		activeSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "engine_active_sessions",
				Help: "Sessions currently resident in the engine registry",
			},
		),
		sessionsEnded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_sessions_ended_total",
				Help: "Sessions that reached a terminal status",
			},
			[]string{"status"},
		),
		sessionTokens: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "engine_session_tokens_total",
				Help: "Estimated tokens accumulated across all sessions",
			},
		),
	}
}

// ObserveCompletion implements llm.Recorder.
func (p *PrometheusRecorder) ObserveCompletion(model string, promptTokens, completionTokens int, success bool, errorType string, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	p.reasonerRequests.WithLabelValues(model, status, errorType).Inc()
	if success {
		p.reasonerTokens.WithLabelValues(model, "prompt").Add(float64(promptTokens))
		p.reasonerTokens.WithLabelValues(model, "completion").Add(float64(completionTokens))
		p.sessionTokens.Add(float64(promptTokens + completionTokens))
	}
	p.reasonerDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// RecordToolCall implements gateway.Recorder.
func (p *PrometheusRecorder) RecordToolCall(tool string, status proto.ResultStatus, duration time.Duration, attempts int) {
	p.toolCalls.WithLabelValues(tool, string(status)).Inc()
	p.toolDuration.WithLabelValues(tool).Observe(duration.Seconds())
	p.toolAttempts.WithLabelValues(tool).Observe(float64(attempts))
}

// IncInvocation counts an accepted invoke request.
func (p *PrometheusRecorder) IncInvocation() {
	p.invocations.Inc()
}

// SessionOpened and SessionClosed track registry residency.
func (p *PrometheusRecorder) SessionOpened() {
	p.activeSessions.Inc()
}

func (p *PrometheusRecorder) SessionClosed() {
	p.activeSessions.Dec()
}

// ObserveSessionEnd records a session reaching a terminal status.
func (p *PrometheusRecorder) ObserveSessionEnd(status proto.SessionStatus) {
	p.sessionsEnded.WithLabelValues(string(status)).Inc()
}
