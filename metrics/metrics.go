// Package metrics instruments the engine's hot paths with Prometheus
// collectors. Nothing in the core imports this package; callers opt in
// by wrapping a Db, a Remote, a Store, or an Invalidator with the
// decorators below and exposing Handler() on their mux.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var streamLabels = []string{"stream"}

var (
	appendCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rippledb_append_changes_total",
		Help: "the number of changes accepted into the log",
	}, streamLabels)
	appendReplays = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rippledb_append_replays_total",
		Help: "the number of appends short-circuited by an idempotency key",
	}, streamLabels)
	appendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rippledb_append_errors_total",
		Help: "the number of times an append was rejected",
	}, streamLabels)
	appendDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rippledb_append_duration_seconds",
		Help:    "the length of time it took to append a batch",
		Buckets: prometheus.DefBuckets,
	}, streamLabels)

	pullCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rippledb_pull_changes_total",
		Help: "the number of changes handed out by pulls",
	}, streamLabels)
	pullErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rippledb_pull_errors_total",
		Help: "the number of times a pull failed",
	}, streamLabels)
	pullDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rippledb_pull_duration_seconds",
		Help:    "the length of time it took to serve a pull",
		Buckets: prometheus.DefBuckets,
	}, streamLabels)

	applyBatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rippledb_store_apply_batches_total",
		Help: "the number of change batches committed to the local store",
	})
	applyChanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rippledb_store_apply_changes_total",
		Help: "the number of changes committed to the local store",
	})
	applyErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rippledb_store_apply_errors_total",
		Help: "the number of change batches the local store rejected",
	})
	applyDurations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rippledb_store_apply_duration_seconds",
		Help:    "the length of time it took to commit a batch locally",
		Buckets: prometheus.DefBuckets,
	})

	invalidationCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rippledb_invalidations_total",
		Help: "the number of cache invalidations issued after coalescing",
	})
)

// Handler returns the HTTP handler serving this process's collected
// metrics, for mounting at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
