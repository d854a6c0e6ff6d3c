package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for a grid run.
type Metrics struct {
	GridPoints   prometheus.Counter
	CellsEmitted prometheus.Counter
	CellsDropped prometheus.Counter

	RunDuration   prometheus.Histogram
	StageDuration *prometheus.HistogramVec // labels: stage={load_grid,load_boundary,prepare_region,process,write}
	Runs          *prometheus.CounterVec   // labels: outcome={success,unavailable,error}
	LastSuccess   prometheus.Gauge

	// Upstream availability checks.
	UpstreamChecks *prometheus.CounterVec // labels: result={available,unavailable,error}
}

// NewMetrics creates and registers all run metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates run metrics and registers them with reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		GridPoints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storm_grid",
			Name:      "grid_points_projected_total",
			Help:      "Total grid points projected into the LCC plane.",
		}),
		CellsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storm_grid",
			Name:      "cells_emitted_total",
			Help:      "Total cells kept by the region filter and written out.",
		}),
		CellsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storm_grid",
			Name:      "cells_dropped_total",
			Help:      "Total cells rejected by the region filter.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "storm_grid",
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete grid run.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storm_grid",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each run stage.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storm_grid",
			Name:      "runs_total",
			Help:      "Grid runs by outcome.",
		}, []string{"outcome"}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "storm_grid",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
		UpstreamChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storm_grid",
			Name:      "upstream_checks_total",
			Help:      "Upstream availability checks by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.GridPoints,
		m.CellsEmitted,
		m.CellsDropped,
		m.RunDuration,
		m.StageDuration,
		m.Runs,
		m.LastSuccess,
		m.UpstreamChecks,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return NewMetricsWith(prometheus.NewRegistry())
}
