package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger checks one dependency, e.g. db.PingContext or a Redis PING.
type Pinger func(ctx context.Context) error

// HealthHandler provides liveness and readiness endpoints.
//
// Responsibilities:
//   - /healthz: liveness, always 200 while the process serves.
//   - /readyz: readiness, 200 only when every dependency answers its ping.
type HealthHandler struct {
	checks  map[string]Pinger
	timeout time.Duration
}

// NewHealthHandler builds a HealthHandler. Each check gets its own timeout.
//
// Example:
//
//	api.NewHealthHandler(time.Second, map[string]api.Pinger{
//		"postgres": db.PingContext,
//		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
//	})
func NewHealthHandler(timeout time.Duration, checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: timeout}
}

// Register mounts /healthz and /readyz. Neither goes through admission.
func (h *HealthHandler) Register(r gin.IRoutes) {
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)
}

// Liveness godoc
// @Summary      Liveness check
// @Description  Always returns OK if the service is running
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /healthz [get]
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness godoc
// @Summary      Readiness check
// @Description  Returns ready if Postgres and Redis are reachable
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]any
// @Failure      503  {object}  map[string]any
// @Router       /readyz [get]
func (h *HealthHandler) Readiness(c *gin.Context) {
	var failed []string
	for name, ping := range h.checks {
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
		err := ping(ctx)
		cancel()
		if err != nil {
			failed = append(failed, name)
		}
	}

	if len(failed) > 0 {
		sort.Strings(failed)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "failed": failed})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
