package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the portal.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	cacheLatency    prometheus.Observer

	submissionsGraded *prometheus.CounterVec
	publications      *prometheus.CounterVec
	promotions        *prometheus.CounterVec
	promotionRetries  prometheus.Counter
}

// NewMetricsService registers the portal's Prometheus collectors.
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

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits on the result read path",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses on the result read path",
	})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	submissionsGraded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "exam_submissions_graded_total",
		Help: "Graded submissions by pass/fail status",
	}, []string{"status"})

	publications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "exam_result_publications_total",
		Help: "Publication gate operations by action",
	}, []string{"action"})

	promotions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "student_promotions_total",
		Help: "Level advancements by destination level",
	}, []string{"to_level"})

	promotionRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "student_promotion_retries_total",
		Help: "Promotions deferred to the retry queue",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheHits, cacheMisses, cacheLatency,
		submissionsGraded, publications, promotions, promotionRetries, goroutines)

	return &MetricsService{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		cacheHits:         cacheHits,
		cacheMisses:       cacheMisses,
		cacheLatency:      cacheLatency,
		submissionsGraded: submissionsGraded,
		publications:      publications,
		promotions:        promotions,
		promotionRetries:  promotionRetries,
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache hit or miss with its latency.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// RecordSubmissionGraded counts one graded submission by status.
func (m *MetricsService) RecordSubmissionGraded(status string) {
	if m == nil {
		return
	}
	m.submissionsGraded.WithLabelValues(status).Inc()
}

// RecordPublication counts a publish or unpublish action.
func (m *MetricsService) RecordPublication(published bool) {
	if m == nil {
		return
	}
	action := "unpublish"
	if published {
		action = "publish"
	}
	m.publications.WithLabelValues(action).Inc()
}

// RecordPromotion counts one level advancement.
func (m *MetricsService) RecordPromotion(toLevel string) {
	if m == nil {
		return
	}
	m.promotions.WithLabelValues(toLevel).Inc()
}

// RecordPromotionRetry counts a promotion deferred to the retry queue.
func (m *MetricsService) RecordPromotionRetry() {
	if m == nil {
		return
	}
	m.promotionRetries.Inc()
}
