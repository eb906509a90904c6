package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/guttosm/stockmeter/internal/logger"
)

// RequestLogger is a Gin middleware that emits one "http_request" event per
// request with method, path, status, latency, client ip, request id and, for
// admitted requests, the user id.
//
// Usage:
//
//	router := gin.New()
//	router.Use(middleware.RequestID(), middleware.RequestLogger())
//
// Example log output:
//
//	{"level":"info","request_id":"123e4567-...","method":"GET","path":"/api/v1/stocks/rsi/ACME","status":200,"latency_ms":15,"user_id":"u1","message":"http_request"}
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path

		c.Next()

		rid, _ := c.Get(RequestIDKey)
		uid, _ := c.Get(UserIDKey)
		status := c.Writer.Status()

		ev := logger.L().Info()
		if status >= 500 {
			ev = logger.L().Error()
		}
		ev.Str("request_id", toString(rid)).
			Str("method", method).
			Str("path", path).
			Int("status", status).
			Int64("latency_ms", time.Since(start).Milliseconds()).
			Str("client_ip", c.ClientIP()).
			Str("user_id", toString(uid)).
			Msg("http_request")
	}
}

// StatusRecorder counts responses by status code.
type StatusRecorder interface {
	RecordHTTPStatus(statusCode int)
}

// StatusMetrics records the final status of every request.
func StatusMetrics(rec StatusRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		rec.RecordHTTPStatus(c.Writer.Status())
	}
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
