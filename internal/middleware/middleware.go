// Package middleware holds the gin middleware of the preview service:
// recovery, request IDs, zap request logging, CORS, per-IP rate limiting
// and the security headers of API and preview responses.
package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"apex-preview/internal/logging"
	"apex-preview/internal/metrics"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Success   bool                   `json:"success"`
	Error     string                 `json:"error"`
	Code      string                 `json:"code"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	RequestID string                 `json:"request_id,omitempty"`
}

// Recovery turns panics into a 500 ErrorResponse and logs the stack.
func Recovery() gin.HandlerFunc {
	log := logging.Named("recovery")
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		requestID := requestIDFrom(c)
		log.Error("panic recovered",
			zap.String("request_id", requestID),
			zap.Any("error", recovered),
			zap.ByteString("stack", debug.Stack()))

		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
			Error:     "Internal server error",
			Code:      "INTERNAL_SERVER_ERROR",
			Timestamp: time.Now().UTC(),
			RequestID: requestID,
		})
	})
}

// RequestID middleware adds a unique request ID to each request
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

func requestIDFrom(c *gin.Context) string {
	if v, ok := c.Get("request_id"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	if id := c.GetHeader("X-Request-ID"); id != "" {
		return id
	}
	return generateRequestID()
}

// Logger logs each request through zap. Paths in skip are not logged.
func Logger(skip ...string) gin.HandlerFunc {
	log := logging.Named("http")
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()

		if _, ok := skipped[path]; ok {
			return
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", c.GetString("request_id")),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		switch {
		case c.Writer.Status() >= 500:
			log.Error("request", fields...)
		case c.Writer.Status() >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

// CORS allows the listed origins. A "*" entry allows any origin without
// credentials.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	allowAny := false
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAny = true
			continue
		}
		allowed[o] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if _, ok := allowed[origin]; ok && origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Vary", "Origin")
		} else if allowAny {
			c.Header("Access-Control-Allow-Origin", "*")
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-Requested-With, X-Request-ID")
		c.Header("Access-Control-Expose-Headers", "X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RateLimiter represents a rate limiter for a specific client
type RateLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter manages rate limiters for different IP addresses
type IPRateLimiter struct {
	limiters map[string]*RateLimiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// NewIPRateLimiter creates a limiter allowing requestsPerMinute with the
// given burst per client IP. Call Stop to end its cleanup goroutine.
func NewIPRateLimiter(requestsPerMinute, burst int) *IPRateLimiter {
	irl := &IPRateLimiter{
		limiters: make(map[string]*RateLimiter),
		rate:     rate.Limit(requestsPerMinute) / 60,
		burst:    burst,
		idle:     time.Hour,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go irl.cleanupRoutine(10 * time.Minute)
	return irl
}

// GetLimiter returns the rate limiter for a given IP
func (irl *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	irl.mu.Lock()
	defer irl.mu.Unlock()

	l, ok := irl.limiters[ip]
	if !ok {
		l = &RateLimiter{limiter: rate.NewLimiter(irl.rate, irl.burst)}
		irl.limiters[ip] = l
	}
	l.lastSeen = irl.now()
	return l.limiter
}

// Len returns the number of tracked clients.
func (irl *IPRateLimiter) Len() int {
	irl.mu.Lock()
	defer irl.mu.Unlock()
	return len(irl.limiters)
}

// Stop ends the cleanup goroutine.
func (irl *IPRateLimiter) Stop() {
	irl.stopOnce.Do(func() { close(irl.stop) })
}

func (irl *IPRateLimiter) cleanupRoutine(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			irl.sweep()
		case <-irl.stop:
			return
		}
	}
}

// sweep removes limiters idle for longer than irl.idle.
func (irl *IPRateLimiter) sweep() int {
	irl.mu.Lock()
	defer irl.mu.Unlock()

	cutoff := irl.now().Add(-irl.idle)
	removed := 0
	for ip, l := range irl.limiters {
		if l.lastSeen.Before(cutoff) {
			delete(irl.limiters, ip)
			removed++
		}
	}
	return removed
}

// RateLimit rejects requests over the client's budget with 429.
func RateLimit(irl *IPRateLimiter) gin.HandlerFunc {
	limit := strconv.Itoa(int(float64(irl.rate)*60+0.5)) + " requests per minute"
	return func(c *gin.Context) {
		if !irl.GetLimiter(c.ClientIP()).Allow() {
			metrics.RecordRateLimited()
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error: "Rate limit exceeded",
				Code:  "RATE_LIMIT_EXCEEDED",
				Details: map[string]interface{}{
					"retry_after": "60s",
					"limit":       limit,
				},
				Timestamp: time.Now().UTC(),
				RequestID: c.GetString("request_id"),
			})
			return
		}
		c.Next()
	}
}

// generateRequestID generates a unique request ID using timestamp + random bytes
func generateRequestID() string {
	randomBytes := make([]byte, 4)
	rand.Read(randomBytes)
	return fmt.Sprintf("%d-%s", time.Now().UnixNano(), hex.EncodeToString(randomBytes))
}
