package monitoring

import (
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "leaderboard"

// Metrics holds application metrics. Every counter is exported to
// prometheus from a private registry and mirrored in atomics for the
// health endpoint.
type Metrics struct {
	registry *prometheus.Registry

	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	datasets         *prometheus.CounterVec
	rowsProcessed    prometheus.Counter
	validationFailed prometheus.Counter
	shareEncoded     prometheus.Counter
	shareDecoded     *prometheus.CounterVec
	rateLimitBlocks  prometheus.Counter
	cacheLookups     *prometheus.CounterVec

	RequestCount        int64
	ErrorCount          int64
	DatasetCount        int64
	RowCount            int64
	ValidationFailures  int64
	TokensEncoded       int64
	TokensDecoded       int64
	TokensRejected      int64
	RateLimitIPBlocks   int64
	CacheHits           int64
	CacheMisses         int64
	AverageResponseTime int64 // in nanoseconds
	StartTime           time.Time

	// last 1000 samples for percentiles
	ResponseTimes      []time.Duration
	ResponseTimesMutex sync.RWMutex

	RequestCountByStatus map[int]int64
	StatusMutex          sync.RWMutex
}

// NewMetrics creates a metrics instance with its own registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		datasets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datasets_processed_total",
			Help:      "Datasets aggregated, by input source.",
		}, []string{"source"}),
		rowsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_processed_total",
			Help:      "Annotation rows aggregated.",
		}),
		validationFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_failures_total",
			Help:      "Datasets rejected by structural validation.",
		}),
		shareEncoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "share_tokens_encoded_total",
			Help:      "Share tokens created.",
		}),
		shareDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "share_tokens_decoded_total",
			Help:      "Share token decodes by result.",
		}, []string{"result"}),
		rateLimitBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_blocks_total",
			Help:      "Requests rejected by the per-IP rate limiter.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Decoded payload cache lookups by result.",
		}, []string{"result"}),
		StartTime:            time.Now(),
		ResponseTimes:        make([]time.Duration, 0, 1000),
		RequestCountByStatus: make(map[int]int64),
	}

	m.registry.MustRegister(
		m.requests,
		m.requestDuration,
		m.datasets,
		m.rowsProcessed,
		m.validationFailed,
		m.shareEncoded,
		m.shareDecoded,
		m.rateLimitBlocks,
		m.cacheLookups,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry exposes the private registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordRequest records one finished HTTP request
func (m *Metrics) RecordRequest(method, route string, statusCode int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(duration.Seconds())

	atomic.AddInt64(&m.RequestCount, 1)
	if statusCode >= 400 {
		atomic.AddInt64(&m.ErrorCount, 1)
	}
	m.RecordResponseTime(duration)
	m.RecordRequestByStatus(statusCode)
}

// RecordDataset records an aggregated dataset and its row count
func (m *Metrics) RecordDataset(source string, rows int) {
	m.datasets.WithLabelValues(source).Inc()
	m.rowsProcessed.Add(float64(rows))
	atomic.AddInt64(&m.DatasetCount, 1)
	atomic.AddInt64(&m.RowCount, int64(rows))
}

// IncrementValidationFailure counts a dataset rejected by validation
func (m *Metrics) IncrementValidationFailure() {
	m.validationFailed.Inc()
	atomic.AddInt64(&m.ValidationFailures, 1)
}

// IncrementTokenEncoded counts a created share token
func (m *Metrics) IncrementTokenEncoded() {
	m.shareEncoded.Inc()
	atomic.AddInt64(&m.TokensEncoded, 1)
}

// RecordTokenDecode counts a decode attempt; reason is empty on success
func (m *Metrics) RecordTokenDecode(reason string) {
	if reason == "" {
		m.shareDecoded.WithLabelValues("ok").Inc()
		atomic.AddInt64(&m.TokensDecoded, 1)
		return
	}
	m.shareDecoded.WithLabelValues(reason).Inc()
	atomic.AddInt64(&m.TokensRejected, 1)
}

// IncrementRateLimitIPBlock counts a request rejected by the rate limiter
func (m *Metrics) IncrementRateLimitIPBlock() {
	m.rateLimitBlocks.Inc()
	atomic.AddInt64(&m.RateLimitIPBlocks, 1)
}

// IncrementCacheHit increments cache hit count
func (m *Metrics) IncrementCacheHit() {
	m.cacheLookups.WithLabelValues("hit").Inc()
	atomic.AddInt64(&m.CacheHits, 1)
}

// IncrementCacheMiss increments cache miss count
func (m *Metrics) IncrementCacheMiss() {
	m.cacheLookups.WithLabelValues("miss").Inc()
	atomic.AddInt64(&m.CacheMisses, 1)
}

// RecordResponseTime records response time for averaging and percentiles
func (m *Metrics) RecordResponseTime(duration time.Duration) {
	current := atomic.LoadInt64(&m.AverageResponseTime)
	newAverage := (current + duration.Nanoseconds()) / 2
	atomic.StoreInt64(&m.AverageResponseTime, newAverage)

	m.ResponseTimesMutex.Lock()
	m.ResponseTimes = append(m.ResponseTimes, duration)
	if len(m.ResponseTimes) > 1000 {
		m.ResponseTimes = m.ResponseTimes[1:]
	}
	m.ResponseTimesMutex.Unlock()
}

// RecordRequestByStatus records request count by HTTP status code
func (m *Metrics) RecordRequestByStatus(statusCode int) {
	m.StatusMutex.Lock()
	defer m.StatusMutex.Unlock()
	m.RequestCountByStatus[statusCode]++
}

// GetPercentileResponseTime calculates percentile response time
func (m *Metrics) GetPercentileResponseTime(percentile float64) time.Duration {
	m.ResponseTimesMutex.RLock()
	defer m.ResponseTimesMutex.RUnlock()

	if len(m.ResponseTimes) == 0 {
		return 0
	}

	times := make([]time.Duration, len(m.ResponseTimes))
	copy(times, m.ResponseTimes)
	sort.Slice(times, func(i, j int) bool {
		return times[i] < times[j]
	})

	index := int(float64(len(times)-1) * percentile / 100.0)
	if index >= len(times) {
		index = len(times) - 1
	}
	return times[index]
}

// GetStatusCodeDistribution returns request count by status code
func (m *Metrics) GetStatusCodeDistribution() map[int]int64 {
	m.StatusMutex.RLock()
	defer m.StatusMutex.RUnlock()

	distribution := make(map[int]int64, len(m.RequestCountByStatus))
	for code, count := range m.RequestCountByStatus {
		distribution[code] = count
	}
	return distribution
}

// GetStats returns current metrics statistics
func (m *Metrics) GetStats() map[string]interface{} {
	requests := atomic.LoadInt64(&m.RequestCount)
	errors := atomic.LoadInt64(&m.ErrorCount)
	cacheHits := atomic.LoadInt64(&m.CacheHits)
	cacheMisses := atomic.LoadInt64(&m.CacheMisses)

	errorRate := float64(0)
	if requests > 0 {
		errorRate = float64(errors) / float64(requests) * 100
	}

	cacheHitRate := float64(0)
	if total := cacheHits + cacheMisses; total > 0 {
		cacheHitRate = float64(cacheHits) / float64(total) * 100
	}

	return map[string]interface{}{
		"uptime_seconds":         time.Since(m.StartTime).Seconds(),
		"total_requests":         requests,
		"error_count":            errors,
		"error_rate_percent":     errorRate,
		"datasets_processed":     atomic.LoadInt64(&m.DatasetCount),
		"rows_processed":         atomic.LoadInt64(&m.RowCount),
		"validation_failures":    atomic.LoadInt64(&m.ValidationFailures),
		"tokens_encoded":         atomic.LoadInt64(&m.TokensEncoded),
		"tokens_decoded":         atomic.LoadInt64(&m.TokensDecoded),
		"tokens_rejected":        atomic.LoadInt64(&m.TokensRejected),
		"rate_limit_ip_blocks":   atomic.LoadInt64(&m.RateLimitIPBlocks),
		"cache_hits":             cacheHits,
		"cache_misses":           cacheMisses,
		"cache_hit_rate_percent": cacheHitRate,
		"avg_response_time_ms":   float64(atomic.LoadInt64(&m.AverageResponseTime)) / 1e6,
		"p50_response_time_ms":   float64(m.GetPercentileResponseTime(50)) / 1e6,
		"p95_response_time_ms":   float64(m.GetPercentileResponseTime(95)) / 1e6,
		"p99_response_time_ms":   float64(m.GetPercentileResponseTime(99)) / 1e6,
		"start_time":             m.StartTime.Format(time.RFC3339),

		"status_code_distribution": m.GetStatusCodeDistribution(),
	}
}

// Metrics satisfies the cache metrics hook
var _ interface {
	IncrementCacheHit()
	IncrementCacheMiss()
} = (*Metrics)(nil)
