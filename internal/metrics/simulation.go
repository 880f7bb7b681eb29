// SPDX-License-Identifier: MIT

// Package metrics exposes Prometheus instrumentation for the simulation
// workers and stores.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SweepsTotal counts completed Metropolis sweeps.
	SweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "znsim_sweeps_total",
		Help: "Total number of completed Metropolis sweeps",
	})

	// SweepDuration tracks the wall time of a single sweep.
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "znsim_sweep_duration_seconds",
		Help:    "Wall time per Metropolis sweep",
		Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
	})

	// ProposalsTotal counts single-spin proposals by outcome.
	ProposalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "znsim_proposals_total",
		Help: "Total number of single-spin proposals by outcome",
	}, []string{"outcome"})

	// ActiveRuns tracks the number of runs currently executing.
	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "znsim_active_runs",
		Help: "Number of simulation runs currently executing",
	})

	// QueuedRuns tracks runs accepted but not yet picked up by a worker.
	QueuedRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "znsim_queued_runs",
		Help: "Number of simulation runs waiting for a worker",
	})

	// RunsTotal counts finished runs by terminal state.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "znsim_runs_total",
		Help: "Total number of finished simulation runs by terminal state",
	}, []string{"state"})

	// MeasurementBatchDuration tracks results-store batch insert latency.
	MeasurementBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "znsim_measurement_batch_duration_seconds",
		Help:    "Latency of measurement batch inserts",
		Buckets: prometheus.DefBuckets,
	})

	// SnapshotWritesTotal counts lattice snapshots persisted to the state store.
	SnapshotWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "znsim_snapshot_writes_total",
		Help: "Total number of lattice snapshots written",
	})
)

// ObserveSweep records one completed sweep and its duration.
func ObserveSweep(d time.Duration) {
	SweepsTotal.Inc()
	SweepDuration.Observe(d.Seconds())
}

// AddProposals records proposal outcomes since the previous observation.
func AddProposals(accepted, rejected uint64) {
	if accepted > 0 {
		ProposalsTotal.WithLabelValues("accepted").Add(float64(accepted))
	}
	if rejected > 0 {
		ProposalsTotal.WithLabelValues("rejected").Add(float64(rejected))
	}
}

// IncRunFinished records a run reaching a terminal state.
func IncRunFinished(state string) {
	RunsTotal.WithLabelValues(state).Inc()
}

// ObserveMeasurementBatch records one results-store batch insert.
func ObserveMeasurementBatch(d time.Duration) {
	MeasurementBatchDuration.Observe(d.Seconds())
}
