// Package metrics holds the Prometheus collectors of the reel engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reel_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reel_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Delivery
	PagesServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reel_pages_served_total",
			Help: "Pages served by source path",
		},
		[]string{"dialect", "path"}, // "candidates", "cold_start"
	)

	BreakpointsInjected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reel_breakpoints_injected_total",
			Help: "Breakpoint cards spliced into served pages",
		},
		[]string{"dialect"},
	)

	// Candidate generation
	CandidatePoolFill = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reel_candidate_pool_fill",
			Help:    "Items accepted from each pool per generation run",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 10, 15},
		},
		[]string{"pool"},
	)

	CandidateGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reel_candidate_generation_duration_seconds",
			Help:    "Candidate generation latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"dialect"},
	)

	// Scoring worker
	ScoringPassDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reel_scoring_pass_duration_seconds",
			Help:    "Duration of one scoring pass over one dialect",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300},
		},
		[]string{"pass", "dialect"},
	)

	ScoringPassFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reel_scoring_pass_failures_total",
			Help: "Scoring passes that aborted for one dialect",
		},
		[]string{"pass", "dialect"},
	)

	ScoringItemsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reel_scoring_items_skipped_total",
			Help: "Items skipped during a scoring pass",
		},
		[]string{"pass", "reason"},
	)

	// Engagement
	ActionsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reel_actions_recorded_total",
			Help: "User actions recorded by type",
		},
		[]string{"action"}, // "view", "like", "share", "progress"
	)

	EngagementLevels = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reel_engagement_level_assignments_total",
			Help: "Engagement levels assigned by boost recomputation",
		},
		[]string{"level"},
	)

	// Background tasks
	TasksSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reel_background_tasks_total",
			Help: "Background tasks by outcome",
		},
		[]string{"task", "outcome"}, // "queued", "dropped", "succeeded", "failed"
	)

	TaskQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reel_background_task_queue_depth",
			Help: "Background tasks waiting for a worker",
		},
	)

	// Job bus
	JobMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reel_job_messages_total",
			Help: "Score job messages by job and outcome",
		},
		[]string{"job", "outcome"}, // "published", "processed", "retried", "dead_lettered"
	)

	// Health
	DependencyHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reel_dependency_healthy",
			Help: "Dependency health (1 = healthy, 0 = unhealthy)",
		},
		[]string{"dependency"},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reel_rate_limited_requests_total",
			Help: "Requests rejected by the per-user rate limit",
		},
		[]string{"tier"},
	)

	// Analytics feed
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reel_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reel_circuit_breaker_requests_total",
			Help: "Requests through a circuit breaker by result",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)
)

// ObserveSince records the seconds elapsed since start on a histogram.
func ObserveSince(h prometheus.Observer, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}
