package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/edugen-studio/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestDuration   *prometheus.HistogramVec
	requestTotal      *prometheus.CounterVec
	upstreamDuration  *prometheus.HistogramVec
	upstreamTotal     *prometheus.CounterVec
	generations       *prometheus.CounterVec
	blockFailures     *prometheus.CounterVec
	downloadBytes     prometheus.Counter
	workspaceLatency  *prometheus.HistogramVec
	workspaceHitRatio prometheus.Gauge
	journalDuration   *prometheus.HistogramVec

	workspaceHitCount    uint64
	workspaceMissCount   uint64
	requestCount         uint64
	requestDurationTotal uint64
	upstreamCount        uint64
	upstreamFailures     uint64
	generationCount      uint64
	downloadCount        uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	upstreamDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backend_call_duration_seconds",
		Help:    "Duration of calls to the generation backend",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 180},
	}, []string{"operation", "outcome"})

	upstreamTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backend_calls_total",
		Help: "Total calls to the generation backend",
	}, []string{"operation", "outcome"})

	generations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "generations_total",
		Help: "Generation submissions by outcome",
	}, []string{"outcome"})

	blockFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "content_block_failures_total",
		Help: "Content blocks that could not be rendered",
	}, []string{"tag"})

	downloadBytes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "document_download_bytes_total",
		Help: "Bytes delivered by document downloads",
	})

	workspaceLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "workspace_store_seconds",
		Help:    "Latency for workspace store operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	workspaceHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "workspace_hit_ratio",
		Help: "Ratio of workspace loads that found a stored workspace",
	})

	journalDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of download journal queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, upstreamDuration, upstreamTotal, generations, blockFailures,
		downloadBytes, workspaceLatency, workspaceHitRatio, journalDuration, goroutines)

	return &MetricsService{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		upstreamDuration:  upstreamDuration,
		upstreamTotal:     upstreamTotal,
		generations:       generations,
		blockFailures:     blockFailures,
		downloadBytes:     downloadBytes,
		workspaceLatency:  workspaceLatency,
		workspaceHitRatio: workspaceHitRatio,
		journalDuration:   journalDuration,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// ObserveBackendCall records one call to the generation backend.
func (m *MetricsService) ObserveBackendCall(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.upstreamDuration.WithLabelValues(operation, outcome).Observe(duration.Seconds())
	m.upstreamTotal.WithLabelValues(operation, outcome).Inc()
	atomic.AddUint64(&m.upstreamCount, 1)
	if outcome != "ok" {
		atomic.AddUint64(&m.upstreamFailures, 1)
	}
}

// RecordGeneration counts a generation submission by outcome.
func (m *MetricsService) RecordGeneration(outcome string) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		atomic.AddUint64(&m.generationCount, 1)
	}
}

// RecordBlockFailure counts a content block that rendered as an error.
func (m *MetricsService) RecordBlockFailure(tag models.ContentType) {
	if m == nil {
		return
	}
	m.blockFailures.WithLabelValues(string(tag)).Inc()
}

// RecordDownload counts a delivered document.
func (m *MetricsService) RecordDownload(size int64) {
	if m == nil {
		return
	}
	if size > 0 {
		m.downloadBytes.Add(float64(size))
	}
	atomic.AddUint64(&m.downloadCount, 1)
}

// RecordWorkspaceLoad records whether a stored workspace was found.
func (m *MetricsService) RecordWorkspaceLoad(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.workspaceLatency.WithLabelValues("load").Observe(duration.Seconds())
	if hit {
		atomic.AddUint64(&m.workspaceHitCount, 1)
	} else {
		atomic.AddUint64(&m.workspaceMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.workspaceHitCount)
	total := hits + atomic.LoadUint64(&m.workspaceMissCount)
	if total > 0 {
		m.workspaceHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveWorkspaceWrite tracks workspace save and delete latency.
func (m *MetricsService) ObserveWorkspaceWrite(op string, duration time.Duration) {
	if m == nil {
		return
	}
	m.workspaceLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// ObserveDBQuery records journal query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.journalDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// Snapshot returns aggregated counters for the studio status endpoint.
func (m *MetricsService) Snapshot() models.StudioMetrics {
	if m == nil {
		return models.StudioMetrics{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	hits := atomic.LoadUint64(&m.workspaceHitCount)
	misses := atomic.LoadUint64(&m.workspaceMissCount)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}
	var hitRatio float64
	if hits+misses > 0 {
		hitRatio = float64(hits) / float64(hits+misses)
	}

	return models.StudioMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		BackendCalls:             atomic.LoadUint64(&m.upstreamCount),
		BackendFailures:          atomic.LoadUint64(&m.upstreamFailures),
		Generations:              atomic.LoadUint64(&m.generationCount),
		Downloads:                atomic.LoadUint64(&m.downloadCount),
		WorkspaceHitRatio:        hitRatio,
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
