// Package metrics provides Prometheus metrics for the preview service.
// Exports HTTP, pipeline (parse, repair, synthesis, preview), cache and
// websocket metrics.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	instance *Metrics
)

// Metrics holds the process-wide collectors.
type Metrics struct {
	// HTTP
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	HTTPResponseSize     *prometheus.HistogramVec

	// Pipeline
	ParsesTotal        *prometheus.CounterVec
	ParsedFiles        prometheus.Histogram
	RepairsTotal       *prometheus.CounterVec
	SynthesesTotal     *prometheus.CounterVec
	SynthesisDuration  *prometheus.HistogramVec
	SynthesisWarnings  prometheus.Counter
	BundleSize         prometheus.Histogram
	PreviewsTotal      *prometheus.CounterVec
	PreviewDuration    *prometheus.HistogramVec
	LiveSurfaces       prometheus.Gauge
	RuntimeBootsTotal  *prometheus.CounterVec
	PublishesTotal     *prometheus.CounterVec
	RateLimitedTotal   prometheus.Counter

	// Cache
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// WebSocket
	WebSocketConnections prometheus.Gauge

	// System
	BuildInfo    *prometheus.GaugeVec
	StartupTime  prometheus.Gauge
	GoroutineNum prometheus.Gauge
}

// Get returns the singleton Metrics instance.
func Get() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

func newMetrics() *Metrics {
	m := &Metrics{}

	m.HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apex_preview",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by endpoint, method, and status code",
		},
		[]string{"endpoint", "method", "status"},
	)

	m.HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "apex_preview",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "method"},
	)

	m.HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "apex_preview",
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Current number of HTTP requests being processed",
		},
	)

	m.HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "apex_preview",
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 7),
		},
		[]string{"endpoint", "method"},
	)

	m.ParsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apex_preview",
			Subsystem: "parser",
			Name:      "parses_total",
			Help:      "Total parsed responses by winning strategy",
		},
		[]string{"strategy"},
	)

	m.ParsedFiles = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "apex_preview",
			Subsystem: "parser",
			Name:      "files_per_response",
			Help:      "Number of files recovered from one response",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34, 55},
		},
	)

	m.RepairsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apex_preview",
			Subsystem: "repair",
			Name:      "actions_total",
			Help:      "Total repair actions applied by kind",
		},
		[]string{"kind"},
	)

	m.SynthesesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apex_preview",
			Subsystem: "bundler",
			Name:      "syntheses_total",
			Help:      "Total bundle syntheses by transpile mode and result",
		},
		[]string{"mode", "result"},
	)

	m.SynthesisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "apex_preview",
			Subsystem: "bundler",
			Name:      "synthesis_duration_seconds",
			Help:      "Bundle synthesis duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"mode"},
	)

	m.SynthesisWarnings = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "apex_preview",
			Subsystem: "bundler",
			Name:      "warnings_total",
			Help:      "Total per-file transform failures contained during synthesis",
		},
	)

	m.BundleSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "apex_preview",
			Subsystem: "bundler",
			Name:      "document_size_bytes",
			Help:      "Size of synthesized preview documents",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		},
	)

	m.PreviewsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apex_preview",
			Subsystem: "preview",
			Name:      "updates_total",
			Help:      "Total preview updates by strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)

	m.PreviewDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "apex_preview",
			Subsystem: "preview",
			Name:      "update_duration_seconds",
			Help:      "Time from preview request to delivery",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"strategy"},
	)

	m.LiveSurfaces = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "apex_preview",
			Subsystem: "preview",
			Name:      "surfaces",
			Help:      "Current number of preview surfaces",
		},
	)

	m.RuntimeBootsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apex_preview",
			Subsystem: "sandbox",
			Name:      "boots_total",
			Help:      "Total sandbox runtime boots by result",
		},
		[]string{"result"},
	)

	m.PublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apex_preview",
			Subsystem: "publish",
			Name:      "publishes_total",
			Help:      "Total bundle publishes by target and result",
		},
		[]string{"target", "result"},
	)

	m.RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "apex_preview",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Total requests rejected by the rate limiter",
		},
	)

	m.CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apex_preview",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total cache hits",
		},
		[]string{"cache"},
	)

	m.CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apex_preview",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total cache misses",
		},
		[]string{"cache"},
	)

	m.WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "apex_preview",
			Subsystem: "websocket",
			Name:      "connections",
			Help:      "Current number of live reload connections",
		},
	)

	m.BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "apex_preview",
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "commit", "build_date"},
	)

	m.StartupTime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "apex_preview",
			Name:      "startup_time_seconds",
			Help:      "Unix timestamp of service startup",
		},
	)
	m.StartupTime.SetToCurrentTime()

	m.GoroutineNum = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "apex_preview",
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	return m
}

// RecordHTTPRequest records one HTTP request.
func (m *Metrics) RecordHTTPRequest(endpoint, method string, statusCode int, duration time.Duration, responseSize int) {
	m.HTTPRequestsTotal.WithLabelValues(endpoint, method, HTTPStatusCode(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(endpoint, method).Observe(duration.Seconds())
	m.HTTPResponseSize.WithLabelValues(endpoint, method).Observe(float64(responseSize))
}

// RecordCacheOperation records a cache lookup.
func (m *Metrics) RecordCacheOperation(cacheName string, hit bool) {
	if hit {
		m.CacheHitsTotal.WithLabelValues(cacheName).Inc()
	} else {
		m.CacheMissesTotal.WithLabelValues(cacheName).Inc()
	}
}

// SetBuildInfo sets the build information gauge.
func (m *Metrics) SetBuildInfo(version, commit, buildDate string) {
	m.BuildInfo.WithLabelValues(version, commit, buildDate).Set(1)
}
