package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics manages the Prometheus metrics.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	SyncTasks           *prometheus.CounterVec
	SyncDuration        *prometheus.HistogramVec
	LifecycleOperations *prometheus.CounterVec
	ReportCacheLookups  *prometheus.CounterVec
	RateLimitRejections *prometheus.CounterVec
}

var (
	metricsOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics creates and registers the Prometheus metrics. Registration happens
// once per process; later calls return the same collectors.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = &Metrics{
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "advisor_http_requests_total",
					Help: "Total number of HTTP requests.",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "advisor_http_request_duration_seconds",
					Help:    "Latency of HTTP requests.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "path"},
			),
			SyncTasks: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "advisor_sync_tasks_total",
					Help: "Per-tenant sync task outcomes.",
				},
				[]string{"result"},
			),
			SyncDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "advisor_sync_duration_seconds",
					Help:    "Duration of per-tenant sync tasks.",
					Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
				},
				[]string{"result"},
			),
			LifecycleOperations: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "advisor_lifecycle_operations_total",
					Help: "Tenant lifecycle operations by action and result.",
				},
				[]string{"action", "result"},
			),
			ReportCacheLookups: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "advisor_report_cache_lookups_total",
					Help: "Report cache lookups by outcome.",
				},
				[]string{"outcome"},
			),
			RateLimitRejections: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "advisor_rate_limit_rejections_total",
					Help: "Advisor API requests rejected by a rate limit policy.",
				},
				[]string{"policy"},
			),
		}
	})
	return defaultMetrics
}

// RecordSyncTask records the outcome of one per-tenant sync task.
func (m *Metrics) RecordSyncTask(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SyncTasks.WithLabelValues(result).Inc()
	m.SyncDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// RecordLifecycle records a lifecycle operation.
func (m *Metrics) RecordLifecycle(action, result string) {
	if m == nil {
		return
	}
	m.LifecycleOperations.WithLabelValues(action, result).Inc()
}

// RecordCacheLookup records a report cache hit, miss, or error.
func (m *Metrics) RecordCacheLookup(outcome string) {
	if m == nil {
		return
	}
	m.ReportCacheLookups.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest records a served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordRateLimited records a request rejected by policy.
func (m *Metrics) RecordRateLimited(policy string) {
	if m == nil {
		return
	}
	m.RateLimitRejections.WithLabelValues(policy).Inc()
}
