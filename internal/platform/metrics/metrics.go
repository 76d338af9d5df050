package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	EventsAppended  *prometheus.CounterVec
	AppendConflicts prometheus.Counter
	AppendLatency   prometheus.Histogram
	EndpointLatency *prometheus.HistogramVec

	// Consent metrics
	ConsentsGranted *prometheus.CounterVec
	ConsentsRevoked prometheus.Counter
	ConsentsExpired prometheus.Counter

	// Verification metrics
	ChainVerifications *prometheus.CounterVec
	ChainViolations    *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return &Metrics{
		EventsAppended: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veritas_events_appended_total",
			Help: "Total number of ledger events appended, labeled by event type",
		}, []string{"event_type"}),
		AppendConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veritas_append_conflicts_total",
			Help: "Total number of appends rejected because the write section could not be acquired",
		}),
		AppendLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "veritas_append_latency_seconds",
			Help:    "Latency of ledger append operations in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		EndpointLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "veritas_endpoint_latency_seconds",
			Help:    "Latency of endpoints in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		ConsentsGranted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veritas_consents_granted_total",
			Help: "Total number of consents granted, labeled by purpose",
		}, []string{"purpose"}),
		ConsentsRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veritas_consents_revoked_total",
			Help: "Total number of consents revoked",
		}),
		ConsentsExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veritas_consents_expired_total",
			Help: "Total number of consents expired by the sweeper",
		}),
		ChainVerifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veritas_chain_verifications_total",
			Help: "Total number of chain verification runs, labeled by result status",
		}, []string{"status"}),
		ChainViolations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veritas_chain_violations_total",
			Help: "Total number of chain violations detected, labeled by kind",
		}, []string{"kind"}),
	}
}

// IncrementEventsAppended increments the appended events counter with an event type label
func (m *Metrics) IncrementEventsAppended(eventType string) {
	m.EventsAppended.WithLabelValues(eventType).Inc()
}

// IncrementAppendConflicts increments the append conflict counter by 1
func (m *Metrics) IncrementAppendConflicts() {
	m.AppendConflicts.Inc()
}

// ObserveAppendLatency records the latency for ledger append operations
func (m *Metrics) ObserveAppendLatency(durationSeconds float64) {
	m.AppendLatency.Observe(durationSeconds)
}

// ObserveEndpointLatency records the latency for a given endpoint
func (m *Metrics) ObserveEndpointLatency(endpoint string, durationSeconds float64) {
	m.EndpointLatency.WithLabelValues(endpoint).Observe(durationSeconds)
}

// IncrementConsentsGranted increments the consents granted counter with purpose label
func (m *Metrics) IncrementConsentsGranted(purpose string) {
	m.ConsentsGranted.WithLabelValues(purpose).Inc()
}

func (m *Metrics) IncrementConsentsRevoked() {
	m.ConsentsRevoked.Inc()
}

func (m *Metrics) IncrementConsentsExpired() {
	m.ConsentsExpired.Inc()
}

// IncrementChainVerifications increments the verification counter with a status label
func (m *Metrics) IncrementChainVerifications(status string) {
	m.ChainVerifications.WithLabelValues(status).Inc()
}

// IncrementChainViolations increments the violation counter with a kind label
func (m *Metrics) IncrementChainViolations(kind string) {
	m.ChainViolations.WithLabelValues(kind).Inc()
}
