package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics
var (
	// JobsProcessed counts processed jobs by task type and outcome.
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pipeline",
			Name:      "jobs_processed_total",
			Help:      "Total number of processing jobs completed or failed",
		},
		[]string{"task_type", "outcome"},
	)

	// JobDuration tracks driver execution time per task type.
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pipeline",
			Name:      "job_duration_seconds",
			Help:      "Driver execution time per job",
			Buckets:   []float64{1, 5, 15, 60, 180, 600, 1800},
		},
		[]string{"task_type"},
	)

	// JobRetries counts retry requeues by task type.
	JobRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pipeline",
			Name:      "job_retries_total",
			Help:      "Total number of job retry requeues",
		},
		[]string{"task_type"},
	)

	// ActiveWorkers tracks workers currently executing a job.
	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pipeline",
			Name:      "active_workers",
			Help:      "Number of workers currently executing a job",
		},
	)

	// VideosReady counts videos that reached ready.
	VideosReady = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pipeline",
			Name:      "videos_ready_total",
			Help:      "Total number of videos transitioned to ready",
		},
	)

	// VideosFailed counts videos that reached failed.
	VideosFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pipeline",
			Name:      "videos_failed_total",
			Help:      "Total number of videos transitioned to failed",
		},
	)
)

// HTTP metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pipeline",
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request duration.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pipeline",
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Uptime metrics
var (
	// ProbeResults counts uptime probes by outcome.
	ProbeResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pipeline",
			Subsystem: "uptime",
			Name:      "probes_total",
			Help:      "Total number of uptime probes",
		},
		[]string{"outcome"},
	)

	// RollingUptime is the current rolling uptime percentage.
	RollingUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pipeline",
			Subsystem: "uptime",
			Name:      "rolling_percentage",
			Help:      "Rolling uptime percentage over the trailing probe window",
		},
	)
)
