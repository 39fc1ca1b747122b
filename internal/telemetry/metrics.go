package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	DeliveriesTotal *prometheus.CounterVec
	GatewayCalls    *prometheus.CounterVec
	GatewayDuration *prometheus.HistogramVec
	StorageErrors   *prometheus.CounterVec
	SideEffectFails *prometheus.CounterVec
}

// NewMetrics creates Prometheus metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on /metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DeliveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "delivery_runs_total",
				Help: "Total delivery runs by outcome",
			},
			[]string{"outcome"},
		),
		GatewayCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "delivery_gateway_calls_total",
				Help: "Total shipment-creation calls by gateway and status",
			},
			[]string{"gateway", "status"},
		),
		GatewayDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "delivery_gateway_call_duration_seconds",
				Help:    "Shipment-creation call duration in seconds by gateway",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"gateway"},
		),
		StorageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "delivery_storage_errors_total",
				Help: "Total delivery store errors by operation",
			},
			[]string{"operation"},
		),
		SideEffectFails: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "delivery_side_effect_failures_total",
				Help: "Total swallowed notification and alert failures by kind",
			},
			[]string{"kind"},
		),
	}
}

// RecordDelivery records the outcome of one delivery run.
func (m *Metrics) RecordDelivery(outcome string) {
	if m == nil {
		return
	}
	m.DeliveriesTotal.WithLabelValues(outcome).Inc()
}

// RecordGatewayCall records a gateway call metric.
func (m *Metrics) RecordGatewayCall(gateway, status string, duration float64) {
	if m == nil {
		return
	}
	m.GatewayCalls.WithLabelValues(gateway, status).Inc()
	m.GatewayDuration.WithLabelValues(gateway).Observe(duration)
}

// RecordStorageError records a store failure.
func (m *Metrics) RecordStorageError(operation string) {
	if m == nil {
		return
	}
	m.StorageErrors.WithLabelValues(operation).Inc()
}

// RecordSideEffectFailure records a swallowed notification or alert failure.
func (m *Metrics) RecordSideEffectFailure(kind string) {
	if m == nil {
		return
	}
	m.SideEffectFails.WithLabelValues(kind).Inc()
}
