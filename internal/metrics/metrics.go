// Package metrics registers the service's prometheus collectors on a
// dedicated registry so tests can construct isolated instances.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "messaging"

// Delivery path labels.
const (
	PathPush = "push"
	PathPoll = "poll"
)

// Result labels.
const (
	ResultDelivered  = "delivered"
	ResultEmpty      = "empty"
	ResultError      = "error"
	ResultConfirmed  = "confirmed"
	ResultRolledBack = "rolled_back"
)

type Metrics struct {
	registry *prometheus.Registry

	MessagesDelivered *prometheus.CounterVec
	PollsTotal        *prometheus.CounterVec
	SendsTotal        *prometheus.CounterVec
	SessionsOpen      prometheus.Gauge
	SweepRuns         prometheus.Counter
	SweepCallsEnded   prometheus.Counter
	SweepRoomsDeleted prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		MessagesDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_delivered_total",
			Help:      "Messages applied to a reconciliation buffer, by delivery path.",
		}, []string{"path"}),
		PollsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_polls_total",
			Help:      "Fallback poll executions, by result.",
		}, []string{"result"}),
		SendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_total",
			Help:      "Optimistic sends, by outcome.",
		}, []string{"result"}),
		SessionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "delivery_sessions_open",
			Help:      "Currently open delivery sessions.",
		}),
		SweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_sweep_runs_total",
			Help:      "Completed call cleanup sweeps.",
		}),
		SweepCallsEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_sweep_calls_ended_total",
			Help:      "Stale calls ended by the sweeper.",
		}),
		SweepRoomsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_sweep_rooms_deleted_total",
			Help:      "Provider rooms deleted by the sweeper.",
		}),
	}

	registry.MustRegister(
		m.MessagesDelivered,
		m.PollsTotal,
		m.SendsTotal,
		m.SessionsOpen,
		m.SweepRuns,
		m.SweepCallsEnded,
		m.SweepRoomsDeleted,
	)

	return m
}

// Handler serves the registry in prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
