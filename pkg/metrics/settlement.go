package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics records payment webhook processing outcomes.
type SettlementMetrics struct {
	duration *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
	failures *prometheus.CounterVec
}

// NewSettlementMetrics registers the settlement metrics on the provided registerer.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settlement_duration_seconds",
		Help:    "Duration of payment webhook settlement in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"event_type"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_outcomes_total",
		Help: "Payment webhook outcomes by tag.",
	}, []string{"outcome"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_failures_total",
		Help: "Payment webhook processing failures.",
	}, []string{"event_type"})
	reg.MustRegister(duration, outcomes, failures)
	return &SettlementMetrics{
		duration: duration,
		outcomes: outcomes,
		failures: failures,
	}
}

// ObserveDuration records how long one webhook took to settle.
func (s *SettlementMetrics) ObserveDuration(eventType string, duration time.Duration) {
	if s == nil || s.duration == nil {
		return
	}
	s.duration.WithLabelValues(normalizeLabel(eventType)).Observe(duration.Seconds())
}

// IncOutcome increments the counter for the given outcome tag.
func (s *SettlementMetrics) IncOutcome(outcome string) {
	if s == nil || s.outcomes == nil {
		return
	}
	s.outcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncFailure increments the failure counter for the event type.
func (s *SettlementMetrics) IncFailure(eventType string) {
	if s == nil || s.failures == nil {
		return
	}
	s.failures.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
