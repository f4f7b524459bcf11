package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics records processing metadata for inbound provider events.
type WebhookMetrics struct {
	duration *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
	rejected prometheus.Counter
}

// NewWebhookMetrics registers the webhook metrics on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_event_duration_seconds",
		Help:    "Duration of webhook event processing in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"event_type"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_event_outcomes",
		Help: "Webhook events by type and processing outcome.",
	}, []string{"event_type", "outcome"})
	rejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webhook_signature_rejections",
		Help: "Webhook requests rejected for signature failures.",
	})
	reg.MustRegister(duration, outcomes, rejected)
	return &WebhookMetrics{
		duration: duration,
		outcomes: outcomes,
		rejected: rejected,
	}
}

// ObserveDuration records processing time for the event type.
func (m *WebhookMetrics) ObserveDuration(eventType string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(eventType)).Observe(duration.Seconds())
}

// IncOutcome increments the outcome counter for the event type.
func (m *WebhookMetrics) IncOutcome(eventType, outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// IncSignatureRejection counts a request that failed verification.
func (m *WebhookMetrics) IncSignatureRejection() {
	if m == nil || m.rejected == nil {
		return
	}
	m.rejected.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
