package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API.
type MetricsService struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	uploadsTotal       *prometheus.CounterVec
	extractionDuration *prometheus.HistogramVec
	studentsIngested   prometheus.Counter
	recordsSkipped     prometheus.Counter
	exportsTotal       *prometheus.CounterVec
	cacheHitRatio      prometheus.Gauge
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers the collectors on a private registry.
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

	uploadsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marksheet_uploads_total",
		Help: "Marksheet images processed, by final status",
	}, []string{"status"})

	extractionDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marksheet_extraction_duration_seconds",
		Help:    "Time spent waiting on the vision model",
		Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 180},
	}, []string{"outcome"})

	studentsIngested := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "marksheet_students_ingested_total",
		Help: "Student records persisted from extractions",
	})

	recordsSkipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "marksheet_records_skipped_total",
		Help: "Student records rejected during ingestion",
	})

	exportsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marksheet_exports_total",
		Help: "Rendered exports, by shape and format",
	}, []string{"shape", "format"})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, uploadsTotal, extractionDuration, studentsIngested,
		recordsSkipped, exportsTotal, cacheHitRatio, cacheHits, cacheMisses, goroutines)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		uploadsTotal:       uploadsTotal,
		extractionDuration: extractionDuration,
		studentsIngested:   studentsIngested,
		recordsSkipped:     recordsSkipped,
		exportsTotal:       exportsTotal,
		cacheHitRatio:      cacheHitRatio,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
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

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordUpload counts an upload that reached a terminal status.
func (m *MetricsService) RecordUpload(status string, students, skipped int) {
	if m == nil {
		return
	}
	m.uploadsTotal.WithLabelValues(status).Inc()
	m.studentsIngested.Add(float64(students))
	m.recordsSkipped.Add(float64(skipped))
}

// ObserveExtraction records how long the vision model took.
func (m *MetricsService) ObserveExtraction(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.extractionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordExport counts a rendered export.
func (m *MetricsService) RecordExport(shape, format string) {
	if m == nil {
		return
	}
	m.exportsTotal.WithLabelValues(shape, format).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}
