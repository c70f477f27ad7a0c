package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Side-effect results.
const (
	ResultOK      = "ok"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// Metrics holds the service counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	Events          *prometheus.CounterVec
	SideEffects     *prometheus.CounterVec
	WebhookRequests *prometheus.CounterVec
	SkippedRecords  prometheus.Counter
}

// New registers the counters on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replybot_events_total",
			Help: "Inbound events processed, by kind and resolved bucket.",
		}, []string{"kind", "bucket"}),
		SideEffects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replybot_side_effects_total",
			Help: "Outbound side effects, by effect and result.",
		}, []string{"effect", "result"}),
		WebhookRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replybot_webhook_requests_total",
			Help: "Webhook HTTP requests, by method and status code.",
		}, []string{"method", "code"}),
		SkippedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replybot_skipped_records_total",
			Help: "Webhook records that did not decode to a supported event.",
		}),
	}
	reg.MustRegister(
		m.Events,
		m.SideEffects,
		m.WebhookRequests,
		m.SkippedRecords,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) IncEvent(kind, bucket string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(kind, bucket).Inc()
}

func (m *Metrics) IncSideEffect(effect, result string) {
	if m == nil {
		return
	}
	m.SideEffects.WithLabelValues(effect, result).Inc()
}

func (m *Metrics) IncWebhook(method, code string) {
	if m == nil {
		return
	}
	m.WebhookRequests.WithLabelValues(method, code).Inc()
}

func (m *Metrics) AddSkipped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SkippedRecords.Add(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
