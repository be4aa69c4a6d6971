package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spinwish/internal/logger"
	"spinwish/internal/metrics"
)

func okRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(mw...)
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

func get(router http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestMetricsMiddleware(t *testing.T) {
	router := okRouter(MetricsMiddleware())

	matched := metrics.HTTPRequestsTotal.WithLabelValues("GET", "/test", "200")
	before := testutil.ToFloat64(matched)
	w := get(router, "/test", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(matched))

	unmatched := metrics.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")
	before = testutil.ToFloat64(unmatched)
	w = get(router, "/nope/123", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(unmatched))
}

func TestRequestLoggingMiddleware_AssignsRequestID(t *testing.T) {
	router := okRouter(RequestLoggingMiddleware())

	w := get(router, "/test", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, w.Header().Get(requestIDHeader), 36)

	w = get(router, "/test", map[string]string{requestIDHeader: "edge-42"})
	assert.Equal(t, "edge-42", w.Header().Get(requestIDHeader))
}

func TestRequestLoggingMiddleware_ContextLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestLoggingMiddleware())

	var got bool
	router.GET("/test", func(c *gin.Context) {
		got = logger.FromContext(c.Request.Context()) != logger.FromContext(context.Background())
		c.Status(http.StatusNoContent)
	})

	w := get(router, "/test", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, got)
}

func TestRateLimitMiddleware(t *testing.T) {
	router := okRouter(RateLimitMiddleware(2, 3))

	for i := 0; i < 3; i++ {
		w := get(router, "/test", nil)
		assert.Equal(t, http.StatusOK, w.Code, "request %d within burst", i+1)
	}
}

func TestRateLimitMiddleware_Exceeded(t *testing.T) {
	router := okRouter(RateLimitMiddleware(0.001, 1))

	w := get(router, "/test", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = get(router, "/test", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded","retryable":true}`, w.Body.String())
}

func TestRateLimitMiddleware_PerClient(t *testing.T) {
	router := okRouter(RateLimitMiddleware(0.001, 1))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	router := okRouter(RateLimitMiddleware(0, 0))

	for i := 0; i < 10; i++ {
		w := get(router, "/test", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestCorsMiddleware(t *testing.T) {
	router := okRouter(corsMiddleware())

	w := get(router, "/test", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest(http.MethodOptions, "/test", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRateLimiter_EvictIdle(t *testing.T) {
	rl := &RateLimiter{visitors: make(map[string]*visitor), rate: 1, burst: 1, ttl: time.Minute}

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))

	rl.evictIdle(time.Now().Add(2 * time.Minute))
	assert.Empty(t, rl.visitors)
	assert.True(t, rl.Allow("10.0.0.1"))
}
