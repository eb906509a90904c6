package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/guttosm/stockmeter/internal/domain/apperr"
	"github.com/guttosm/stockmeter/internal/domain/dto"
	"github.com/guttosm/stockmeter/internal/logger"
)

// ErrorHandler renders the last error attached with c.Error once the handler
// chain has run, unless a response was already written.
//
// Usage:
//
//	router := gin.New()
//	router.Use(middleware.ErrorHandler)
func ErrorHandler(c *gin.Context) {
	c.Next()

	if len(c.Errors) == 0 || c.Writer.Written() {
		return
	}
	WriteError(c, c.Errors.Last().Err)
}

// WriteError aborts the request with the HTTP rendering of err.
//
// Behavior:
//   - apperr kinds map to their status (400/401/403/404/429/500).
//   - RATE_LIMITED sets Retry-After in whole seconds.
//   - A retryable INTERNAL error becomes 503 with Retry-After.
//   - Foreign errors are masked as "Internal server error" and logged.
func WriteError(c *gin.Context, err error) {
	ae := apperr.As(err)
	status := ae.Kind.Status()

	if ae.Kind == apperr.KindInternal {
		if ae.Retryable {
			status = http.StatusServiceUnavailable
		}
		logger.Ctx(c.Request.Context()).Error().
			Err(err).
			Str("path", c.Request.URL.Path).
			Msg("request failed")
	}
	if ae.RetryAfter > 0 && (ae.Kind == apperr.KindRateLimited || ae.Retryable) {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(ae.RetryAfter.Seconds()))))
	}

	resp := dto.NewErrorResponse(ae.Message, nil)
	resp.Code = ae.Kind.String()
	c.AbortWithStatusJSON(status, resp)
}

// AbortWithError aborts with an explicit status and message. err is logged,
// never sent to the client.
func AbortWithError(c *gin.Context, status int, message string, err error) {
	if err != nil {
		logger.Ctx(c.Request.Context()).Warn().Err(err).Int("status", status).Str("path", c.Request.URL.Path).Msg(message)
	}
	c.AbortWithStatusJSON(status, dto.NewErrorResponse(message, nil))
}
