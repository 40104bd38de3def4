package metrics

import (
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// responseWriter wraps gin.ResponseWriter to capture response size
type responseWriter struct {
	gin.ResponseWriter
	size int
}

func (w *responseWriter) Write(data []byte) (int, error) {
	n, err := w.ResponseWriter.Write(data)
	w.size += n
	return n, err
}

func (w *responseWriter) WriteString(s string) (int, error) {
	n, err := w.ResponseWriter.WriteString(s)
	w.size += n
	return n, err
}

// PrometheusMiddleware returns a Gin middleware that records HTTP metrics
func PrometheusMiddleware() gin.HandlerFunc {
	m := Get()

	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		rw := &responseWriter{ResponseWriter: c.Writer}
		c.Writer = rw

		c.Next()

		m.RecordHTTPRequest(
			normalizeEndpoint(c.FullPath()),
			c.Request.Method,
			c.Writer.Status(),
			time.Since(start),
			rw.size,
		)
	}
}

// PrometheusHandler returns the Prometheus HTTP handler
func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// normalizeEndpoint keeps label cardinality bounded. Gin's FullPath already
// uses parameter placeholders; unmatched routes collapse to "unknown".
func normalizeEndpoint(path string) string {
	if path == "" {
		return "unknown"
	}
	return path
}

// Collector periodically samples runtime gauges.
type Collector struct {
	metrics  *Metrics
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewCollector creates a collector sampling every interval.
func NewCollector(interval time.Duration) *Collector {
	return &Collector{
		metrics:  Get(),
		interval: interval,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins periodic collection.
func (mc *Collector) Start() {
	go func() {
		defer close(mc.done)
		ticker := time.NewTicker(mc.interval)
		defer ticker.Stop()

		mc.collect()
		for {
			select {
			case <-ticker.C:
				mc.collect()
			case <-mc.stopCh:
				return
			}
		}
	}()
}

// Stop stops the collector and waits for it to exit.
func (mc *Collector) Stop() {
	mc.stopOnce.Do(func() { close(mc.stopCh) })
	<-mc.done
}

func (mc *Collector) collect() {
	mc.metrics.GoroutineNum.Set(float64(runtime.NumGoroutine()))
}

// HTTPStatusCode returns the status label for code.
func HTTPStatusCode(code int) string {
	return strconv.Itoa(code)
}
