// Package metrics provides Prometheus metrics for the mango sync engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal tracks engine operations by result
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mango",
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Total number of engine results by operation and status",
		},
		[]string{"operation", "status"},
	)

	// OperationDuration tracks engine operation duration in seconds
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mango",
			Subsystem: "engine",
			Name:      "operation_duration_seconds",
			Help:      "Duration of engine operations in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	// FailuresTotal tracks failures by kind
	FailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mango",
			Subsystem: "engine",
			Name:      "failures_total",
			Help:      "Total number of failed results by operation and failure kind",
		},
		[]string{"operation", "kind"},
	)

	// StatementsTotal tracks statements sent to the graph store
	StatementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mango",
			Subsystem: "store",
			Name:      "statements_total",
			Help:      "Total number of statements sent to the graph store",
		},
		[]string{"mode", "status"},
	)

	// LockRetries tracks statements retried after a lock conflict
	LockRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mango",
			Subsystem: "store",
			Name:      "lock_retries_total",
			Help:      "Total number of transactions retried after a lock conflict",
		},
	)

	// SessionsOpen tracks sessions currently held
	SessionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mango",
			Subsystem: "store",
			Name:      "sessions_open",
			Help:      "Number of graph store sessions currently open",
		},
	)

	// EventsPublished tracks sync events published
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mango",
			Subsystem: "kafka",
			Name:      "events_published_total",
			Help:      "Total number of sync events published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// PublishDuration tracks Kafka publish duration
	PublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mango",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka publish operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)

	// VersionLockWait tracks time spent acquiring per-node version locks
	VersionLockWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mango",
			Subsystem: "redis",
			Name:      "version_lock_wait_seconds",
			Help:      "Time spent acquiring version locks in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"acquired"},
	)

	// HTTPRequestsTotal tracks inbound HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mango",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)
)

// RecordOperation records the outcome counts and duration of an engine call.
func RecordOperation(operation string, start time.Time, succeeded, failed int) {
	OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if succeeded > 0 {
		OperationsTotal.WithLabelValues(operation, "success").Add(float64(succeeded))
	}
	if failed > 0 {
		OperationsTotal.WithLabelValues(operation, "failure").Add(float64(failed))
	}
}

// RecordFailure records one failed result of the given kind.
func RecordFailure(operation, kind string) {
	FailuresTotal.WithLabelValues(operation, kind).Inc()
}

// RecordStatements records statements sent in one transaction.
func RecordStatements(mode string, count int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	StatementsTotal.WithLabelValues(mode, status).Add(float64(count))
}

// RecordEvent records a published event.
func RecordEvent(topic string, start time.Time, err error) {
	PublishDuration.Observe(time.Since(start).Seconds())
	status := "success"
	if err != nil {
		status = "error"
	}
	EventsPublished.WithLabelValues(topic, status).Inc()
}
