/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptlab_runs_started_total",
			Help: "Total number of runs that entered the running state",
		},
		[]string{"kind"},
	)

	runsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptlab_runs_finished_total",
			Help: "Total number of runs that reached a terminal state",
		},
		[]string{"kind", "status"},
	)

	exampleResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptlab_example_results_total",
			Help: "Total number of per-example results recorded",
		},
		[]string{"metric", "passed"},
	)

	budgetStops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptlab_budget_hard_stops_total",
			Help: "Total number of runs stopped for exceeding a budget",
		},
		[]string{"kind"},
	)

	runCost = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promptlab_run_cost_usd",
			Help:    "Estimated USD cost of finished runs",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50},
		},
		[]string{"kind"},
	)

	runScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "promptlab_run_score",
			Help: "Aggregate score of the most recent finished run (0.0-1.0)",
		},
		[]string{"kind", "metric"},
	)
)

// RunStarted counts a run entering running.
func RunStarted(kind string) {
	runsStarted.WithLabelValues(kind).Inc()
}

// RunFinished counts a terminal run and observes its cost.
func RunFinished(kind, status string, usd float64) {
	runsFinished.WithLabelValues(kind, status).Inc()
	runCost.WithLabelValues(kind).Observe(usd)
}

// RunScored records the aggregate score of a finished run.
func RunScored(kind, metric string, score float64) {
	runScore.WithLabelValues(kind, metric).Set(score)
}

// ExampleResult counts one per-example result.
func ExampleResult(metric string, passed bool) {
	exampleResults.WithLabelValues(metric, strconv.FormatBool(passed)).Inc()
}

// BudgetStop counts a budget hard stop.
func BudgetStop(kind string) {
	budgetStops.WithLabelValues(kind).Inc()
}
