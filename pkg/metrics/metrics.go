// Package metrics provides Prometheus instrumentation for pgstream exports.
//
// # Overview
//
// All collectors are registered with the default registry on package load,
// so a process only has to serve promhttp.Handler() to expose them. The
// source and the worker pool update them directly; nothing here is needed to
// run an export.
//
// # Basic Usage
//
//	metrics.RowsExported.WithLabelValues(metrics.OutcomeDecoded).Inc()
//
//	timer := metrics.NewTimer("relation")
//	runExport(ctx)
//	metrics.RelationDuration.WithLabelValues("table").Observe(timer.Stop().Seconds())
//
//	tracker := metrics.NewThroughputTracker("weather")
//	for row := range rows {
//	    write(row)
//	    tracker.Increment(1)
//	}
//	rowsPerSec := tracker.GetAndReset()
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values shared by the outcome-labelled collectors.
const (
	OutcomeDecoded   = "decoded"
	OutcomeFailed    = "failed"
	OutcomeOpened    = "opened"
	OutcomeCompleted = "completed"
)

var (
	// RowsExported counts rows taken off the wire.
	// Labels: outcome (decoded/failed)
	RowsExported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgstream_rows_exported_total",
			Help: "Total number of exported rows by decode outcome",
		},
		[]string{"outcome"},
	)

	// CopyBytes counts CopyData payload bytes received from the server.
	CopyBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pgstream_copy_bytes_total",
			Help: "Total number of COPY payload bytes received",
		},
	)

	// Connections counts connection attempts.
	// Labels: outcome (opened/failed)
	Connections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgstream_connections_total",
			Help: "Total number of connection attempts by outcome",
		},
		[]string{"outcome"},
	)

	// ActiveConnections tracks connections currently held by assignments.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pgstream_active_connections",
			Help: "Number of open connections",
		},
	)

	// Assignments counts finished assignments.
	// Labels: outcome (completed/failed)
	Assignments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgstream_assignments_total",
			Help: "Total number of finished assignments by outcome",
		},
		[]string{"outcome"},
	)

	// ActiveWorkItems tracks work items being driven by a pool.
	ActiveWorkItems = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pgstream_active_work_items",
			Help: "Number of work items currently running",
		},
	)

	// WorkItemPanics counts work items that panicked.
	WorkItemPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pgstream_work_item_panics_total",
			Help: "Total number of work items that panicked",
		},
	)

	// RelationDuration tracks how long one relation takes to export, from
	// submitting COPY to the trailer.
	// Labels: kind (table/query)
	RelationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pgstream_relation_duration_seconds",
			Help:    "Time to export one relation",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 10),
		},
		[]string{"kind"},
	)

	// Throughput tracks rows per second as last reported by a tracker.
	// Labels: export
	Throughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pgstream_throughput_rows_per_second",
			Help: "Current throughput in rows per second",
		},
		[]string{"export"},
	)
)

// Timer provides a simple timing mechanism for measuring operation durations.
// It captures the start time on creation and calculates elapsed time on stop.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the name the timer was created with.
func (t *Timer) Name() string {
	return t.name
}

// Stop returns the elapsed duration since creation. It can be called more
// than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker tracks rows per second over time windows.
// Thread-safe for concurrent use.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64
	lastReset time.Time
	export    string
}

// NewThroughputTracker creates a new throughput tracker labelled with the
// export name.
func NewThroughputTracker(export string) *ThroughputTracker {
	return &ThroughputTracker{
		lastReset: time.Now(),
		export:    export,
	}
}

// Increment adds n to the row count. Safe for concurrent use.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// GetAndReset calculates the throughput since the last reset, publishes it
// to the Throughput gauge, and starts a new window.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}

	throughput := float64(t.count) / elapsed
	t.count = 0
	t.lastReset = time.Now()

	Throughput.WithLabelValues(t.export).Set(throughput)
	return throughput
}
