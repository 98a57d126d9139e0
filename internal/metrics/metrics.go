package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Questions       *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec
	StageErrors     *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
	RequestCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	BiasDetections  *prometheus.CounterVec
}

// New registers all collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Questions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "f1voice_questions_total",
			Help: "Questions handled, by outcome.",
		}, []string{"outcome"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "f1voice_cache_lookups_total",
			Help: "Answer cache lookups, by result.",
		}, []string{"result"}),
		StageErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "f1voice_stage_errors_total",
			Help: "Pipeline stage failures, by stage.",
		}, []string{"stage"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "f1voice_stage_duration_seconds",
			Help:    "Pipeline stage latency in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"stage"}),
		RequestCount: f.NewCounterVec(prometheus.CounterOpts{
			Name: "f1voice_http_requests_total",
			Help: "HTTP requests, by method, route and status.",
		}, []string{"method", "route", "status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name: "f1voice_http_request_duration_seconds",
			Help: "HTTP request duration in seconds.",
		}, []string{"method", "route"}),
		BiasDetections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "f1voice_bias_detections_total",
			Help: "Bias detection requests, by outcome.",
		}, []string{"outcome"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveStage records the duration of a pipeline stage and counts a failure
// when err is non-nil. A nil receiver is a no-op.
func (m *Metrics) ObserveStage(stage string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	if err != nil {
		m.StageErrors.WithLabelValues(stage).Inc()
	}
}

// CacheLookup counts a cache hit or miss. A nil receiver is a no-op.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.CacheLookups.WithLabelValues("miss").Inc()
}

// Question counts a handled question by outcome. A nil receiver is a no-op.
func (m *Metrics) Question(outcome string) {
	if m == nil {
		return
	}
	m.Questions.WithLabelValues(outcome).Inc()
}

// Bias counts a bias detection request by outcome. A nil receiver is a no-op.
func (m *Metrics) Bias(outcome string) {
	if m == nil {
		return
	}
	m.BiasDetections.WithLabelValues(outcome).Inc()
}
