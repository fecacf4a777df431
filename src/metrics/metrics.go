// Package metrics exposes the progress of an iteration engine as prometheus
// collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of one node. Each node gets its own registry so
// that several engines can share a process, as the simulate command does.
type Metrics struct {
	registry *prometheus.Registry

	iterations        prometheus.Counter
	publishes         prometheus.Counter
	suppressed        prometheus.Counter
	neighborUpdates   *prometheus.CounterVec
	resilienceActions *prometheus.CounterVec
	runSeconds        prometheus.Gauge
	state             prometheus.Gauge
	solution          *prometheus.GaugeVec
}

// NewMetrics creates and registers the collectors of node.
func NewMetrics(node string) *Metrics {
	labels := prometheus.Labels{"node": node}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "iterum_iterations_total",
			Help:        "Completed iterations.",
			ConstLabels: labels,
		}),
		publishes: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "iterum_publishes_total",
			Help:        "Outbound messages published, the initial one included.",
			ConstLabels: labels,
		}),
		suppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "iterum_publishes_suppressed_total",
			Help:        "Outbound messages withheld by the publish policy.",
			ConstLabels: labels,
		}),
		neighborUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "iterum_neighbor_updates_total",
			Help:        "Neighbour messages folded into the local state.",
			ConstLabels: labels,
		}, []string{"tag"}),
		resilienceActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "iterum_resilience_actions_total",
			Help:        "Decisions taken by the resilience policy.",
			ConstLabels: labels,
		}, []string{"action"}),
		runSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "iterum_run_seconds",
			Help:        "Time spent running.",
			ConstLabels: labels,
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "iterum_engine_state",
			Help:        "Engine state: 0 constructing, 1 ready, 2 running, 3 stopped.",
			ConstLabels: labels,
		}),
		solution: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "iterum_solution",
			Help:        "Components of the local partition of the solution.",
			ConstLabels: labels,
		}, []string{"index"}),
	}

	m.registry.MustRegister(
		m.iterations,
		m.publishes,
		m.suppressed,
		m.neighborUpdates,
		m.resilienceActions,
		m.runSeconds,
		m.state,
		m.solution,
	)

	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Iteration records a completed iteration.
func (m *Metrics) Iteration(runTime time.Duration) {
	m.iterations.Inc()
	m.runSeconds.Set(runTime.Seconds())
}

// Published records the outcome of a publish decision.
func (m *Metrics) Published(published bool) {
	if published {
		m.publishes.Inc()
	} else {
		m.suppressed.Inc()
	}
}

// NeighborUpdate records a message received on tag.
func (m *Metrics) NeighborUpdate(tag string) {
	m.neighborUpdates.WithLabelValues(tag).Inc()
}

// ResilienceAction records a resilience decision.
func (m *Metrics) ResilienceAction(action string) {
	m.resilienceActions.WithLabelValues(action).Inc()
}

// State records the engine state.
func (m *Metrics) State(state int) {
	m.state.Set(float64(state))
}

// Solution records the local partition.
func (m *Metrics) Solution(values []float64) {
	for i, v := range values {
		m.solution.WithLabelValues(strconv.Itoa(i)).Set(v)
	}
}
