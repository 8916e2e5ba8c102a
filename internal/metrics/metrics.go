// Package metrics exposes advisor pipeline counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-advisor/internal/action"
	"github.com/nerrad567/gray-logic-advisor/internal/deviation"
)

// Metrics holds the advisor collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal      *prometheus.CounterVec
	runsSkipped    prometheus.Counter
	runDuration    prometheus.Histogram
	deviations     *prometheus.CounterVec
	actionsCreated *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	lastRun        prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "advisor_runs_total",
			Help: "Analysis runs by result.",
		}, []string{"result"}),
		runsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "advisor_runs_skipped_total",
			Help: "Triggers rejected because a run was already in progress.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "advisor_run_duration_seconds",
			Help:    "Duration of analysis runs.",
			Buckets: prometheus.DefBuckets,
		}),
		deviations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "advisor_deviations_total",
			Help: "Deviations detected by category and type.",
		}, []string{"category", "type"}),
		actionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "advisor_actions_created_total",
			Help: "Actions created by source and category.",
		}, []string{"source", "category"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "advisor_action_transitions_total",
			Help: "Action status transitions by category and target status.",
		}, []string{"category", "to"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "advisor_last_run_timestamp_seconds",
			Help: "Unix time of the last completed run.",
		}),
	}

	m.registry.MustRegister(
		m.runsTotal,
		m.runsSkipped,
		m.runDuration,
		m.deviations,
		m.actionsCreated,
		m.transitions,
		m.lastRun,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RunFinished records one completed run.
func (m *Metrics) RunFinished(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.runsTotal.WithLabelValues(result).Inc()
	m.runDuration.Observe(d.Seconds())
	m.lastRun.SetToCurrentTime()
}

// RunSkipped records a rejected overlapping trigger.
func (m *Metrics) RunSkipped() {
	if m == nil {
		return
	}
	m.runsSkipped.Inc()
}

// Deviations records the deviations of one run.
func (m *Metrics) Deviations(devs []deviation.Deviation) {
	if m == nil {
		return
	}
	for _, d := range devs {
		m.deviations.WithLabelValues(d.Category, d.Type).Inc()
	}
}

// ActionChanged implements action.Observer.
func (m *Metrics) ActionChanged(ev action.Event) {
	if m == nil {
		return
	}
	switch ev.Kind {
	case action.EventCreated:
		m.actionsCreated.WithLabelValues(string(ev.Action.Source), string(ev.Action.Category)).Inc()
	case action.EventTransition:
		m.transitions.WithLabelValues(string(ev.Action.Category), string(ev.Action.Status)).Inc()
	}
}
