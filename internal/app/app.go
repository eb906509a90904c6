package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/guttosm/stockmeter/config"
	"github.com/guttosm/stockmeter/internal/api"
	"github.com/guttosm/stockmeter/internal/daterange"
	"github.com/guttosm/stockmeter/internal/gateway"
	"github.com/guttosm/stockmeter/internal/metrics"
	"github.com/guttosm/stockmeter/internal/middleware"
	"github.com/guttosm/stockmeter/internal/quota"
	"github.com/guttosm/stockmeter/internal/service"
	"github.com/guttosm/stockmeter/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// InitializeApp sets up all application dependencies and returns a fully
// configured Gin router, a cleanup function for graceful shutdown, and any
// error encountered during initialization.
//
// Responsibilities:
//   - Connects to PostgreSQL and Redis.
//   - Builds the repositories, the quota store and the admission gateway.
//   - Creates the stock service and HTTP handler.
//   - Registers Prometheus metrics, health checks and the IP throttle.
//
// The cleanup function stops the throttle sweeper, waits for pending audit
// writes and closes both connections, in that order.
func InitializeApp() (*gin.Engine, func(), error) {
	cfg := config.AppConfig

	db, err := postgresOpener(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}

	rdb, err := redisOpener(cfg)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	gw := gateway.New(
		storage.NewAccountsRepository(db),
		quota.NewStore(quota.NewRedisCounter(rdb), cfg.Gateway.QuotaTimeout),
		storage.NewAuditRepository(db),
		gateway.Options{
			LookupTimeout: cfg.Gateway.LookupTimeout,
			AuditTimeout:  cfg.Gateway.AuditTimeout,
			Observer:      collector,
		},
	)

	svc := service.NewStockService(storage.NewStocksRepository(db), daterange.NewResolver(nil))
	handler := api.NewHandler(svc)

	var throttle *middleware.IPThrottle
	stop := make(chan struct{})
	if cfg.Throttle.PerMinute > 0 {
		throttle = middleware.NewIPThrottle(cfg.Throttle.PerMinute, cfg.Throttle.Burst, cfg.Throttle.Idle)
		go throttle.Run(stop)
	}

	router := api.NewRouter(handler, api.RouterConfig{
		Admitter: gw,
		Throttle: throttle,
		Status:   collector,
		Metrics:  metrics.Handler(reg),
		Health: api.NewHealthHandler(2*time.Second, map[string]api.Pinger{
			"postgres": db.PingContext,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		}),
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	cleanup := func() {
		close(stop)
		gw.Wait()
		_ = rdb.Close()
		_ = db.Close()
	}

	return router, cleanup, nil
}
