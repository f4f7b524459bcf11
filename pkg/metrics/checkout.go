package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records checkout session creation outcomes.
type CheckoutMetrics struct {
	sessions *prometheus.CounterVec
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	sessions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_sessions",
		Help: "Checkout session attempts by donation kind and outcome.",
	}, []string{"kind", "outcome"})
	reg.MustRegister(sessions)
	return &CheckoutMetrics{sessions: sessions}
}

// IncSession increments the session counter for the donation kind.
func (m *CheckoutMetrics) IncSession(kind, outcome string) {
	if m == nil || m.sessions == nil {
		return
	}
	m.sessions.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}
