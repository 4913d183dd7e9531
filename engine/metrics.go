package engine

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hupe1980/agentcore/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	outcomeSuccess     = "success"
	outcomeNotFound    = "not_found"
	outcomeInvalid     = "invalid"
	outcomeUnreachable = "backend_unreachable"
	outcomeMalformed   = "malformed_response"
	outcomeCanceled    = "canceled"
	outcomeError       = "error"
)

// outcomeFor maps a failure onto a low-cardinality metric label.
func outcomeFor(err error) string {
	switch {
	case err == nil:
		return outcomeSuccess
	case errors.Is(err, core.ErrAgentNotFound):
		return outcomeNotFound
	case errors.Is(err, core.ErrInvalidRequest):
		return outcomeInvalid
	case errors.Is(err, core.ErrBackendUnreachable):
		return outcomeUnreachable
	case errors.Is(err, core.ErrMalformedResponse):
		return outcomeMalformed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return outcomeCanceled
	default:
		return outcomeError
	}
}

// Metrics holds the Prometheus collectors of the orchestrator. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Executions       *prometheus.CounterVec
	ExecutionLatency *prometheus.HistogramVec
	ToolCalls        *prometheus.CounterVec
	InFlight         prometheus.Gauge
	ActiveSessions   prometheus.Gauge
	StreamChunks     prometheus.Counter
}

// NewMetrics creates the collectors on a dedicated registry that also carries
// the Go runtime and process collectors.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Agent executions by outcome.",
		}, []string{"outcome"}),
		ExecutionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Agent execution latency in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "executions_in_flight",
			Help:      "Executions currently running.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Session buffers currently tracked.",
		}),
		StreamChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_chunks_total",
			Help:      "Chunks delivered on streaming channels.",
		}),
	}
	reg.MustRegister(
		m.Executions, m.ExecutionLatency, m.ToolCalls, m.InFlight, m.ActiveSessions, m.StreamChunks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) observeExecution(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Executions.WithLabelValues(outcome).Inc()
	m.ExecutionLatency.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) observeTool(name string, ok bool) {
	if m == nil {
		return
	}
	outcome := outcomeSuccess
	if !ok {
		outcome = outcomeError
	}
	m.ToolCalls.WithLabelValues(name, outcome).Inc()
}

func (m *Metrics) inFlight(delta float64) {
	if m == nil {
		return
	}
	m.InFlight.Add(delta)
}

func (m *Metrics) observeChunk() {
	if m == nil {
		return
	}
	m.StreamChunks.Inc()
}

func (m *Metrics) setSessions(buffer core.ConversationBuffer) {
	if m == nil {
		return
	}
	if counter, ok := buffer.(interface{ Len() int }); ok {
		m.ActiveSessions.Set(float64(counter.Len()))
	}
}
