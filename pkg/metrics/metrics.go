package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors for the worker host, registered on the default registry
// and served through the status API's /metrics endpoint.
var (
	TaskExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cloudhost",
		Name:      "task_executions_total",
		Help:      "Scheduled task invocations by task and outcome (executed, skipped, failed).",
	}, []string{"task", "outcome"})

	TaskTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cloudhost",
		Name:      "task_timeouts_total",
		Help:      "Executions forcibly interrupted by the deadline guard.",
	}, []string{"task"})

	StateRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cloudhost",
		Name:      "task_state_refreshes_total",
		Help:      "Task-state cache refreshes by result (ok, created, error).",
	}, []string{"task", "result"})

	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cloudhost",
		Name:      "runs_total",
		Help:      "Hosted processing-loop runs by outcome (clean, restart, fault).",
	}, []string{"outcome"})

	RunActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cloudhost",
		Name:      "run_active",
		Help:      "Whether a processing-loop run is currently active (0 or 1).",
	})

	StopWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cloudhost",
		Name:      "stop_wait_seconds",
		Help:      "Time spent waiting for the active run during Stop.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 25},
	})
)
