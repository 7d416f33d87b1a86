package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fleetwatch"

// Metrics holds the service counters on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry          *prometheus.Registry
	positionsAccepted prometheus.Counter
	positionsRejected *prometheus.CounterVec
	attendanceMarked  *prometheus.CounterVec
	notifications     *prometheus.CounterVec
	reports           *prometheus.CounterVec
	storageFailures   *prometheus.CounterVec
	authRejected      *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		positionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "positions_accepted_total",
			Help:      "Position reports persisted.",
		}),
		positionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "positions_rejected_total",
			Help:      "Position reports rejected, by error code.",
		}, []string{"reason"}),
		attendanceMarked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attendance_marked_total",
			Help:      "Attendance records inserted.",
		}, []string{"leg", "status"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_created_total",
			Help:      "Notifications emitted to guardians.",
		}, []string{"category"}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_generated_total",
			Help:      "Reports generated.",
		}, []string{"kind"}),
		storageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_failures_total",
			Help:      "Store operations that failed.",
		}, []string{"op"}),
		authRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_auth_rejected_total",
			Help:      "Internal gRPC calls refused by the service token check.",
		}, []string{"method", "reason"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.positionsAccepted,
		m.positionsRejected,
		m.attendanceMarked,
		m.notifications,
		m.reports,
		m.storageFailures,
		m.authRejected,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) PositionAccepted() {
	if m == nil {
		return
	}
	m.positionsAccepted.Inc()
}

func (m *Metrics) PositionRejected(reason string) {
	if m == nil {
		return
	}
	m.positionsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) AttendanceMarked(leg, status string) {
	if m == nil {
		return
	}
	m.attendanceMarked.WithLabelValues(leg, status).Inc()
}

func (m *Metrics) NotificationCreated(category string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(category).Inc()
}

func (m *Metrics) ReportGenerated(kind string) {
	if m == nil {
		return
	}
	m.reports.WithLabelValues(kind).Inc()
}

func (m *Metrics) StorageFailure(op string) {
	if m == nil {
		return
	}
	m.storageFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) ServiceAuthRejected(method, reason string) {
	if m == nil {
		return
	}
	m.authRejected.WithLabelValues(method, reason).Inc()
}
