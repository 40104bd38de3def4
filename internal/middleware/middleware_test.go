package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestIPRateLimiter_GetLimiter(t *testing.T) {
	limiter := NewIPRateLimiter(600, 5)
	defer limiter.Stop()

	t.Run("same IP shares a limiter", func(t *testing.T) {
		l1 := limiter.GetLimiter("192.168.1.1")
		l2 := limiter.GetLimiter("192.168.1.1")
		assert.Same(t, l1, l2)
	})

	t.Run("different IPs get different limiters", func(t *testing.T) {
		l1 := limiter.GetLimiter("192.168.1.1")
		l2 := limiter.GetLimiter("10.0.0.1")
		assert.NotSame(t, l1, l2)
	})

	t.Run("concurrent access is safe", func(t *testing.T) {
		var wg sync.WaitGroup
		ips := []string{"1.1.1.1", "2.2.2.2", "3.3.3.3", "4.4.4.4", "5.5.5.5"}
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func(ip string) {
				defer wg.Done()
				limiter.GetLimiter(ip)
			}(ips[i%len(ips)])
		}
		wg.Wait()
		assert.Equal(t, 7, limiter.Len())
	})
}

func TestIPRateLimiter_Sweep(t *testing.T) {
	limiter := NewIPRateLimiter(60, 1)
	defer limiter.Stop()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	limiter.GetLimiter("old")

	now = now.Add(2 * time.Hour)
	limiter.GetLimiter("fresh")

	assert.Equal(t, 1, limiter.sweep())
	assert.Equal(t, 1, limiter.Len())
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewIPRateLimiter(60, 2)
	defer limiter.Stop()

	r := gin.New()
	r.Use(RequestID(), RateLimit(limiter))
	r.GET("/test", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = "203.0.113.7:1234"
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)

		if w.Code == http.StatusTooManyRequests {
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "RATE_LIMIT_EXCEEDED", resp.Code)
			assert.False(t, resp.Success)
			assert.Equal(t, "60 requests per minute", resp.Details["limit"])
			assert.Equal(t, "60", w.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	// Another client is unaffected.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = "198.51.100.1:1234"
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestIDMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/test", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	t.Run("generates an ID", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
		id := w.Header().Get("X-Request-ID")
		assert.NotEmpty(t, id)
		assert.Equal(t, id, w.Body.String())
	})

	t.Run("keeps the caller's ID", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("X-Request-ID", "abc-123")
		r.ServeHTTP(w, req)
		assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
	})
}

func TestCORSMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:5173"}))
	r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name       string
		method     string
		origin     string
		wantOrigin string
		wantCode   int
	}{
		{name: "allowed origin", method: http.MethodGet, origin: "http://localhost:5173", wantOrigin: "http://localhost:5173", wantCode: 200},
		{name: "unknown origin", method: http.MethodGet, origin: "https://evil.example", wantOrigin: "", wantCode: 200},
		{name: "preflight", method: http.MethodOptions, origin: "http://localhost:5173", wantOrigin: "http://localhost:5173", wantCode: 204},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(tt.method, "/test", nil)
			req.Header.Set("Origin", tt.origin)
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}

	wildcard := gin.New()
	wildcard.Use(CORS([]string{"*"}))
	wildcard.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	wildcard.ServeHTTP(w, req)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "INTERNAL_SERVER_ERROR", resp.Code)
	assert.Equal(t, w.Header().Get("X-Request-ID"), resp.RequestID)
}

func TestLoggerPassesThrough(t *testing.T) {
	r := gin.New()
	r.Use(Logger("/health"))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	for _, p := range []string{"/health", "/missing"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, p, nil))
		assert.NotEqual(t, 0, w.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "frame-ancestors 'none'")
}

func TestPreviewCSP(t *testing.T) {
	csp := PreviewCSP([]string{
		"https://unpkg.com/react@18/umd/react.development.js",
		"https://unpkg.com/react-dom@18/umd/react-dom.development.js",
		"not a url",
	})
	assert.Contains(t, csp, "script-src 'self' 'unsafe-inline' 'unsafe-eval' https://unpkg.com;")
	assert.Equal(t, 1, strings.Count(csp, "https://unpkg.com"))
	assert.Contains(t, csp, "frame-ancestors 'self'")
	assert.Contains(t, csp, "object-src 'none'")

	csp = PreviewCSP(nil, "http://localhost:5173")
	assert.Contains(t, csp, "frame-ancestors http://localhost:5173")
}

func TestPreviewHeaders(t *testing.T) {
	r := gin.New()
	r.Use(PreviewHeaders([]string{"https://unpkg.com/x.js"}))
	r.GET("/p", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/p", nil))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "https://unpkg.com")
}

func TestPreviewHeadersReplaceAPIHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/p", PreviewHeaders(nil), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/p", nil))
	assert.Empty(t, w.Header().Get("X-Frame-Options"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "frame-ancestors 'self'")
	assert.NotContains(t, w.Header().Get("Content-Security-Policy"), "default-src 'none'")
}

func TestGenerateRequestID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := generateRequestID()
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}
