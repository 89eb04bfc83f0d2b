// Package observability exposes Prometheus metrics for FSM runs, fed by
// runtime lifecycle hooks.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/corvid-labs/strand/internal/runtime"
	"github.com/corvid-labs/strand/pkg/protocol"
)

// Metrics holds the run counters on a private registry so concurrent
// engines (and tests) do not collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	messages     *prometheus.CounterVec
	stateEntries *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	runs         *prometheus.CounterVec
}

// NewMetrics creates and registers the metric set.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strand_messages_total",
				Help: "Total protocol messages emitted, by type",
			},
			[]string{"type"},
		),
		stateEntries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strand_state_entries_total",
				Help: "Total state entries, by state",
			},
			[]string{"state"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strand_transitions_total",
				Help: "Total transitions taken, by endpoint pair",
			},
			[]string{"from", "to"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strand_runs_total",
				Help: "Total runs reaching a terminal outcome",
			},
			[]string{"outcome"},
		),
	}
	m.registry.MustRegister(m.messages, m.stateEntries, m.transitions, m.runs)
	return m
}

// Registry returns the backing registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Hooks returns runtime hooks that record every lifecycle event.
func (m *Metrics) Hooks() runtime.Hooks {
	return runtime.Hooks{
		OnEvent: func(msg protocol.Message) {
			m.messages.WithLabelValues(string(msg.Type)).Inc()
			switch msg.Type {
			case protocol.TypeFSMFinished:
				m.runs.WithLabelValues("finished").Inc()
			case protocol.TypeFSMStuck:
				m.runs.WithLabelValues("stuck").Inc()
			}
		},
		OnStateEnter: func(state string, isFinal bool) {
			m.stateEntries.WithLabelValues(state).Inc()
		},
		OnTransition: func(from, to string) {
			m.transitions.WithLabelValues(from, to).Inc()
		},
	}
}
