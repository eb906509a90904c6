package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/guttosm/stockmeter/internal/indicator"
	"github.com/guttosm/stockmeter/internal/middleware"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// RouterConfig carries the collaborators NewRouter mounts around the handler.
//
// Fields:
//   - Admitter: admission gateway guarding /api/v1 (required).
//   - Throttle: per-IP pre-auth throttle; nil disables it.
//   - Status: records response status codes; nil disables it.
//   - Metrics: Prometheus exposition handler for /metrics; nil disables it.
//   - Health: liveness and readiness checks; nil disables them.
//   - RequestTimeout: deadline attached to every request context.
type RouterConfig struct {
	Admitter       middleware.Admitter
	Throttle       *middleware.IPThrottle
	Status         middleware.StatusRecorder
	Metrics        http.Handler
	Health         *HealthHandler
	RequestTimeout time.Duration
}

// NewRouter creates the Gin engine.
//
// Responsibilities:
//   - Registers global middlewares (RequestID, Logger, Recovery, ErrorHandler, status metrics).
//   - Attaches the request timeout to every request context.
//   - Mounts unauthenticated operational routes (/healthz, /readyz, /metrics, /swagger/*any).
//   - Mounts /api/v1/stocks behind the IP throttle, per-route parameter
//     checks, and the admission gateway, in that order.
func NewRouter(handler *Handler, cfg RouterConfig) *gin.Engine {
	router := gin.New()

	// ─── Middlewares ───────────────────────────────
	router.Use(
		middleware.RequestID(),
		middleware.RequestLogger(),
		middleware.RecoveryMiddleware(),
		middleware.ErrorHandler,
	)
	if cfg.Status != nil {
		router.Use(middleware.StatusMetrics(cfg.Status))
	}

	// ─── Timeout ──────────────────────────────────
	if cfg.RequestTimeout > 0 {
		router.Use(func(c *gin.Context) {
			ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
			defer cancel()
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}

	// ─── Operational ──────────────────────────────
	if cfg.Health != nil {
		cfg.Health.Register(router)
	}
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// ─── API v1 ───────────────────────────────────
	v1 := router.Group("/api/v1")
	if cfg.Throttle != nil {
		v1.Use(cfg.Throttle.Middleware())
	}

	// Each route checks its parameters before Admission, so malformed
	// requests are answered with 400 without touching the quota store.
	admit := middleware.Admission(cfg.Admitter)
	stocks := v1.Group("/stocks")
	{
		stocks.GET("", checkList, admit, handler.ListStocks)
		stocks.GET("/search", checkSearch, admit, handler.SearchStocks)
		stocks.GET("/:symbol", checkSymbol, admit, handler.GetStock)
		stocks.GET("/:symbol/daily", checkPagedSeries, admit, handler.DailyBars)
		stocks.GET("/performance/:symbol", checkPagedSeries, admit, handler.Performance)
		stocks.GET("/moving-averages/:symbol", checkIndicator(indicator.KindSMA), admit, handler.MovingAverages)
		stocks.GET("/sma/:symbol", checkIndicator(indicator.KindSMA), admit, handler.Indicator(indicator.KindSMA))
		stocks.GET("/ema/:symbol", checkIndicator(indicator.KindEMA), admit, handler.Indicator(indicator.KindEMA))
		stocks.GET("/rsi/:symbol", checkIndicator(indicator.KindRSI), admit, handler.Indicator(indicator.KindRSI))
		stocks.GET("/download/:symbol", checkSeries, admit, handler.DownloadHistory)
	}

	return router
}
