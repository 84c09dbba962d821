// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PlansCommitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_plans_committed_total",
			Help: "Audit plans created by optimizer batches",
		},
	)

	BatchRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planning_batch_runs_total",
			Help: "Batch generation runs by outcome",
		},
		[]string{"outcome"},
	)

	ProposalsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proposals_rejected_total",
			Help: "Optimizer proposals dropped by the validator",
		},
		[]string{"reason"},
	)

	CascadeStores = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cascade_store_outcomes_total",
			Help: "Per-store cascade outcomes",
		},
		[]string{"action"},
	)

	OptimizerCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optimizer_calls_total",
			Help: "Calls to the external optimizer",
		},
		[]string{"purpose", "status"},
	)

	OptimizerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "optimizer_call_duration_seconds",
			Help:    "Latency of optimizer calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"purpose"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route pattern and status",
		},
		[]string{"method", "route", "status"},
	)
)
