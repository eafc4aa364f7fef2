package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coderunner_executions_total",
			Help: "Total number of evaluated submissions by overall status",
		},
		[]string{"language", "status"},
	)

	CaseResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coderunner_case_results_total",
			Help: "Total number of evaluated test cases by status",
		},
		[]string{"language", "status"},
	)

	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coderunner_execution_duration_ms",
			Help:    "Execution duration in milliseconds",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"language", "phase"}, // phase: "compile", "case", "total"
	)

	SandboxRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coderunner_sandbox_retries_total",
			Help: "Sandbox operations retried after an infrastructure failure",
		},
		[]string{"operation"},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coderunner_queue_depth",
			Help: "Current number of jobs in the queue",
		},
	)

	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coderunner_active_workers",
			Help: "Number of workers currently processing jobs",
		},
	)

	SandboxSlots = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coderunner_sandbox_slots",
			Help: "Configured global sandbox concurrency cap",
		},
	)

	SandboxSlotsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coderunner_sandbox_slots_in_use",
			Help: "Sandbox slots currently held by builds or runs",
		},
	)

	MemoryUsage = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coderunner_memory_usage_kb",
			Help:    "Peak memory usage per test case in KB",
			Buckets: []float64{1024, 4096, 16384, 65536, 131072, 262144},
		},
		[]string{"language"},
	)

	ContainerCreationTime = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coderunner_container_creation_ms",
			Help:    "Time to create and start a container",
			Buckets: []float64{50, 100, 200, 500, 1000, 2000},
		},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coderunner_rate_limit_hits_total",
			Help: "Total number of requests rejected by rate limiter",
		},
	)

	ReportsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coderunner_reports_published_total",
			Help: "Finished reports handed to the event publisher",
		},
		[]string{"result"}, // "ok", "error"
	)
)
