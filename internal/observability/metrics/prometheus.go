// Package metrics provides Prometheus metrics for the mesh lifecycle engines.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics. A nil *Metrics records nothing.
type Metrics struct {
	SupplyRequestsCreated  prometheus.Counter
	SupplyResolutions      *prometheus.CounterVec
	StockUnitsMoved        *prometheus.CounterVec
	StockInsufficient      prometheus.Counter
	TransferRequests       prometheus.Counter
	TransferResolutions    *prometheus.CounterVec
	TransportTransitions   *prometheus.CounterVec
	AppointmentTransitions *prometheus.CounterVec
	PatientUpdates         *prometheus.CounterVec
	AlertsBroadcast        *prometheus.CounterVec
	VersionConflicts       prometheus.Counter
	OperationDuration      *prometheus.HistogramVec
	KafkaMessagesProduced  prometheus.Counter
	KafkaMessagesConsumed  prometheus.Counter
	OutboxPending          prometheus.Gauge
	CircuitBreakerState    *prometheus.GaugeVec
}

// New creates all metrics and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SupplyRequestsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mesh_supply_requests_created_total",
			Help: "Total supply requests created",
		}),
		SupplyResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mesh_supply_resolutions_total",
			Help: "Supply request resolutions by target status",
		}, []string{"status"}),
		StockUnitsMoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mesh_stock_units_moved_total",
			Help: "Stock units debited or credited by resolutions",
		}, []string{"direction"}),
		StockInsufficient: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mesh_stock_insufficient_total",
			Help: "Debits that were clamped or found no provider line",
		}),
		TransferRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mesh_patient_transfer_requests_total",
			Help: "Total patient transfer requests opened",
		}),
		TransferResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mesh_patient_transfers_total",
			Help: "Patient transfer resolutions by status",
		}, []string{"status"}),
		TransportTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mesh_transport_transitions_total",
			Help: "Transport transitions by status",
		}, []string{"status"}),
		AppointmentTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mesh_appointment_transitions_total",
			Help: "Appointment transitions by status",
		}, []string{"status"}),
		PatientUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mesh_patient_updates_total",
			Help: "Patient chart updates by kind",
		}, []string{"kind"}),
		AlertsBroadcast: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mesh_alerts_broadcast_total",
			Help: "Emergency alerts broadcast by severity",
		}, []string{"severity"}),
		VersionConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mesh_snapshot_version_conflicts_total",
			Help: "Concurrent resolutions that lost the version race",
		}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mesh_operation_duration_seconds",
			Help:    "Engine operation duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),
		KafkaMessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_produced_total",
			Help: "Total Kafka messages produced",
		}),
		KafkaMessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_consumed_total",
			Help: "Total Kafka messages consumed",
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_entries",
			Help: "Pending outbox entries",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.SupplyRequestsCreated,
		m.SupplyResolutions,
		m.StockUnitsMoved,
		m.StockInsufficient,
		m.TransferRequests,
		m.TransferResolutions,
		m.TransportTransitions,
		m.AppointmentTransitions,
		m.PatientUpdates,
		m.AlertsBroadcast,
		m.VersionConflicts,
		m.OperationDuration,
		m.KafkaMessagesProduced,
		m.KafkaMessagesConsumed,
		m.OutboxPending,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus HTTP handler for the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor serves a specific gatherer
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) SupplyCreated() {
	if m == nil {
		return
	}
	m.SupplyRequestsCreated.Inc()
}

func (m *Metrics) SupplyResolved(status string) {
	if m == nil {
		return
	}
	m.SupplyResolutions.WithLabelValues(status).Inc()
}

// StockMoved records units leaving ("debit") or entering ("credit") a ledger
func (m *Metrics) StockMoved(direction string, units int) {
	if m == nil || units <= 0 {
		return
	}
	m.StockUnitsMoved.WithLabelValues(direction).Add(float64(units))
}

func (m *Metrics) Insufficient() {
	if m == nil {
		return
	}
	m.StockInsufficient.Inc()
}

func (m *Metrics) TransferRequested() {
	if m == nil {
		return
	}
	m.TransferRequests.Inc()
}

func (m *Metrics) TransferResolved(status string) {
	if m == nil {
		return
	}
	m.TransferResolutions.WithLabelValues(status).Inc()
}

func (m *Metrics) TransportMoved(status string) {
	if m == nil {
		return
	}
	m.TransportTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) AppointmentMoved(status string) {
	if m == nil {
		return
	}
	m.AppointmentTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) PatientUpdated(kind string) {
	if m == nil {
		return
	}
	m.PatientUpdates.WithLabelValues(kind).Inc()
}

func (m *Metrics) AlertSent(severity string) {
	if m == nil {
		return
	}
	m.AlertsBroadcast.WithLabelValues(severity).Inc()
}

func (m *Metrics) Conflict() {
	if m == nil {
		return
	}
	m.VersionConflicts.Inc()
}

// ObserveSince records the duration of operation started at start
func (m *Metrics) ObserveSince(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) Produced(n int) {
	if m == nil {
		return
	}
	m.KafkaMessagesProduced.Add(float64(n))
}

func (m *Metrics) Consumed() {
	if m == nil {
		return
	}
	m.KafkaMessagesConsumed.Inc()
}

func (m *Metrics) SetOutboxPending(n int64) {
	if m == nil {
		return
	}
	m.OutboxPending.Set(float64(n))
}

func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}
