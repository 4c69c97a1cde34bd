package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the saga counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	reservations  *prometheus.CounterVec
	events        *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "saga_reservations_total",
			Help: "Per-item reservation attempts by outcome.",
		}, []string{"outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "saga_events_handled_total",
			Help: "Inbound events by topic and result (ack, retry, dropped).",
		}, []string{"topic", "result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "saga_notifications_total",
			Help: "Notifications created by type.",
		}, []string{"type"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.reservations,
		m.events,
		m.notifications,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ReservationOutcome(outcome string) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) EventHandled(topic, result string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(topic, result).Inc()
}

func (m *Metrics) NotificationCreated(typ string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(typ).Inc()
}
