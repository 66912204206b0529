// Package metrics provides Prometheus instrumentation for opsmux.
// It tracks task execution outcomes and latency, metadata crawl
// progress, and registry publish activity.
//
// Metrics are registered automatically via promauto; components record
// through the package-level collectors:
//
//	metrics.TasksExecuted.WithLabelValues("clickhouse", "execute_query", "success").Inc()
//
//	timer := metrics.NewTimer()
//	result, err := handler(...)
//	metrics.TaskDuration.WithLabelValues(system, task).Observe(timer.Stop().Seconds())
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TasksExecuted counts task executions by system, task type and outcome
	TasksExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsmux_tasks_executed_total",
			Help: "Total number of tasks executed",
		},
		[]string{"system", "task", "status"},
	)

	// TaskDuration tracks task handler latency by system and task type
	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opsmux_task_duration_seconds",
			Help:    "Task handler execution latency",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"system", "task"},
	)

	// TaskTimeouts counts bounded executions abandoned at the deadline
	TaskTimeouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsmux_task_timeouts_total",
			Help: "Total number of task executions abandoned on timeout",
		},
		[]string{"system", "task"},
	)

	// CrawlPages counts provider listing pages fetched per category
	CrawlPages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsmux_crawl_pages_total",
			Help: "Total number of provider pages fetched",
		},
		[]string{"system", "category"},
	)

	// CrawlEntities counts entities accumulated per category
	CrawlEntities = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsmux_crawl_entities_total",
			Help: "Total number of entities accumulated by crawls",
		},
		[]string{"system", "category"},
	)

	// CrawlEntityFailures counts entities skipped due to extraction errors
	CrawlEntityFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsmux_crawl_entity_failures_total",
			Help: "Total number of entities skipped during extraction",
		},
		[]string{"system", "category"},
	)

	// PublishChunks counts registry publish calls by outcome
	PublishChunks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsmux_publish_chunks_total",
			Help: "Total number of metadata chunks published",
		},
		[]string{"category", "status"},
	)

	// PublishChunkSize tracks the entity count per published chunk
	PublishChunkSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opsmux_publish_chunk_size",
			Help:    "Entities per published metadata chunk",
			Buckets: prometheus.LinearBuckets(10, 10, 10),
		},
		[]string{"category"},
	)
)

// Timer measures elapsed time for a single operation
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed duration since the timer started
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
