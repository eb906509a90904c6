package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/guttosm/stockmeter/internal/logger"
)

// RecoveryMiddleware turns a panic in the handler chain into a masked 500
// rendered by WriteError. The stack goes to the log, never to the client.
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.Ctx(c.Request.Context()).Error().
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")
			WriteError(c, fmt.Errorf("panic: %v", r))
		}()

		c.Next()
	}
}
