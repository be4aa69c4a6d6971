package server

import (
	"net/http"
	"time"

	"spinwish/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// RequestLoggingMiddleware tags each request with an id, stores a logger
// carrying it in the request context, and logs one line when the handler
// returns. 5xx responses log at error level.
func RequestLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		log := logger.FromContext(c.Request.Context()).With("request_id", requestID)
		c.Request = c.Request.WithContext(logger.IntoContext(c.Request.Context(), log))

		c.Next()

		status := c.Writer.Status()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path += "?" + raw
		}

		// Handlers downstream may have enriched the context logger.
		log = logger.FromContext(c.Request.Context())
		emit := log.Info
		if status >= http.StatusInternalServerError {
			emit = log.Error
		}
		emit("http request",
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
		)
	}
}
