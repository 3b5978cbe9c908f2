// Package monitoring provides metrics and observability for the catalog bulk backend
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Bulk job metrics
	bulkJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_bulk_jobs_total",
			Help: "Total number of bulk jobs processed",
		},
		[]string{"operation", "status"},
	)

	bulkJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_bulk_job_duration_seconds",
			Help:    "Duration of bulk job processing",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"operation", "status"},
	)

	bulkItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_bulk_items_total",
			Help: "Total number of bulk items processed by outcome",
		},
		[]string{"operation", "outcome"},
	)

	bulkBatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_bulk_batch_duration_seconds",
			Help:    "Duration of a single bulk batch",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	bulkTargetSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_bulk_target_size",
			Help:    "Number of items resolved for a bulk trigger",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"operation"},
	)

	bulkQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_bulk_queue_size",
			Help: "Current size of the bulk job queue",
		},
	)

	// Progress store metrics
	storeOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_bulk_store_operations_total",
			Help: "Total number of progress store operations",
		},
		[]string{"operation", "status"},
	)

	storeOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_bulk_store_operation_duration_seconds",
			Help:    "Duration of progress store operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)

	// Catalog repository metrics
	catalogOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_bulk_catalog_operations_total",
			Help: "Total number of catalog repository operations",
		},
		[]string{"backend", "operation", "status"},
	)

	catalogOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_bulk_catalog_operation_duration_seconds",
			Help:    "Duration of catalog repository operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation", "status"},
	)

	// TMDB metrics
	tmdbRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_bulk_tmdb_requests_total",
			Help: "Total number of TMDB API requests",
		},
		[]string{"entity_type", "status"},
	)

	tmdbRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_bulk_tmdb_request_duration_seconds",
			Help:    "Duration of TMDB API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"entity_type", "status"},
	)

	// Feed metrics
	feedFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_bulk_feed_fetch_total",
			Help: "Total number of import feed fetch attempts",
		},
		[]string{"status"},
	)

	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_bulk_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_bulk_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	// System metrics
	activeWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_bulk_active_workers",
			Help: "Number of workers currently running a bulk job",
		},
	)
)

// RecordBulkJob records metrics for a finished bulk job
func RecordBulkJob(operation, status string, duration float64) {
	bulkJobsTotal.WithLabelValues(operation, status).Inc()
	bulkJobDuration.WithLabelValues(operation, status).Observe(duration)
}

// RecordBulkItems adds count items with the given outcome ("success" or "failed")
func RecordBulkItems(operation, outcome string, count int) {
	if count <= 0 {
		return
	}
	bulkItemsTotal.WithLabelValues(operation, outcome).Add(float64(count))
}

// RecordBatch records how long one batch took
func RecordBatch(operation string, duration float64) {
	bulkBatchDuration.WithLabelValues(operation).Observe(duration)
}

// RecordTargetSize records the size of a resolved target set
func RecordTargetSize(operation string, size int) {
	bulkTargetSize.WithLabelValues(operation).Observe(float64(size))
}

// UpdateQueueSize updates the bulk queue size gauge
func UpdateQueueSize(size int) {
	bulkQueueSize.Set(float64(size))
}

// RecordStoreOperation records progress store operation metrics
func RecordStoreOperation(operation, status string, duration float64) {
	storeOperations.WithLabelValues(operation, status).Inc()
	storeOperationDuration.WithLabelValues(operation, status).Observe(duration)
}

// RecordCatalogOperation records catalog repository operation metrics
func RecordCatalogOperation(backend, operation, status string, duration float64) {
	catalogOperations.WithLabelValues(backend, operation, status).Inc()
	catalogOperationDuration.WithLabelValues(backend, operation, status).Observe(duration)
}

// RecordTMDBRequest records TMDB API request metrics
func RecordTMDBRequest(entityType, status string, duration float64) {
	tmdbRequests.WithLabelValues(entityType, status).Inc()
	tmdbRequestDuration.WithLabelValues(entityType, status).Observe(duration)
}

// RecordFeedFetch records an import feed fetch
func RecordFeedFetch(status string) {
	feedFetchTotal.WithLabelValues(status).Inc()
}

// RecordHTTPRequest records HTTP request metrics
func RecordHTTPRequest(method, endpoint, status string, duration float64) {
	httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, status).Observe(duration)
}

// UpdateActiveWorkers updates the active workers gauge
func UpdateActiveWorkers(count int) {
	activeWorkers.Set(float64(count))
}
