package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics records provider webhook processing outcomes. Because the
// ingress handlers mask failures from providers (Apple always gets a 200),
// these counters are the primary signal for stuck reconciliation.
type WebhookMetrics struct {
	duration  *prometheus.HistogramVec
	processed *prometheus.CounterVec
	failed    *prometheus.CounterVec
	dropped   *prometheus.CounterVec
}

// NewWebhookMetrics registers webhook metrics on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_duration_seconds",
		Help:    "Duration of webhook processing in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_processed_total",
		Help: "Webhook events processed successfully.",
	}, []string{"provider", "event_type"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_failed_total",
		Help: "Webhook events whose processing failed.",
	}, []string{"provider", "event_type"})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_dropped_total",
		Help: "Webhook deliveries dropped before processing (bad signature, malformed payload, duplicate).",
	}, []string{"provider", "reason"})
	reg.MustRegister(duration, processed, failed, dropped)
	return &WebhookMetrics{
		duration:  duration,
		processed: processed,
		failed:    failed,
		dropped:   dropped,
	}
}

// ObserveDuration records how long one delivery took end to end.
func (m *WebhookMetrics) ObserveDuration(provider string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(provider)).Observe(duration.Seconds())
}

// IncProcessed counts a successfully applied event.
func (m *WebhookMetrics) IncProcessed(provider, eventType string) {
	if m == nil || m.processed == nil {
		return
	}
	m.processed.WithLabelValues(normalizeLabel(provider), normalizeLabel(eventType)).Inc()
}

// IncFailed counts an event whose reconciliation errored.
func (m *WebhookMetrics) IncFailed(provider, eventType string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(normalizeLabel(provider), normalizeLabel(eventType)).Inc()
}

// IncDropped counts a delivery rejected before reaching the engine.
func (m *WebhookMetrics) IncDropped(provider, reason string) {
	if m == nil || m.dropped == nil {
		return
	}
	m.dropped.WithLabelValues(normalizeLabel(provider), normalizeLabel(reason)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
