package main

//
//  @title           stockmeter API
//  @version         1.0
//  @description     Metered historical stock prices and technical indicators.
//  @termsOfService  https://github.com/guttosm/stockmeter
//  @contact.name    API Support
//  @contact.url     https://github.com/guttosm/stockmeter
//  @contact.email   support@example.com
//  @license.name    MIT
//  @license.url     https://opensource.org/licenses/MIT
//  @host            localhost:8080
//  @BasePath        /
//  @schemes         http
//
//  @securityDefinitions.apikey ApiKeyAuth
//  @in                         header
//  @name                       X-API-Key
//
//  @tag.name        stocks
//  @tag.description Stock listing, daily bars, performance and CSV export
//
//  @tag.name        indicators
//  @tag.description SMA, EMA and RSI over a symbol's closing prices
//
//  @tag.name        health
//  @tag.description Liveness and readiness checks

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/guttosm/stockmeter/config"
	_ "github.com/guttosm/stockmeter/docs" // swagger docs
	"github.com/guttosm/stockmeter/internal/app"
	"github.com/guttosm/stockmeter/internal/ingestion"
	"github.com/guttosm/stockmeter/internal/logger"
	"github.com/guttosm/stockmeter/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// options are the parsed command-line flags.
type options struct {
	mode     string
	dir      string
	parallel int
	force    bool
	port     string
}

// parseFlags reads args into options. Unknown modes are rejected here so the
// process fails before touching any backend.
func parseFlags(args []string, defaultPort string, out io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("stockmeter", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&o.mode, "mode", "api", "Mode: api, ingest or migrate")
	fs.StringVar(&o.dir, "dir", "./data/input", "Directory with <SYMBOL>.csv bar files")
	fs.IntVar(&o.parallel, "parallel", 0, "How many files to load concurrently (0=auto up to CPU, max 8)")
	fs.BoolVar(&o.force, "force", false, "Reload files already ingested, replacing the stock's bars")
	fs.StringVar(&o.port, "port", defaultPort, "Port for API mode")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	switch o.mode {
	case "api", "ingest", "migrate":
		return o, nil
	default:
		return o, fmt.Errorf("unknown mode %q", o.mode)
	}
}

// startServer initializes and starts the HTTP server in a separate goroutine.
//
// Parameters:
//   - router (http.Handler): The HTTP router (Gin Engine) configured with all routes.
//   - port (string): The port where the server will listen for incoming requests.
//
// Returns:
//   - *http.Server: The initialized HTTP server instance.
func startServer(router http.Handler, port string) *http.Server {
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.L().Info().Str("port", port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L().Fatal().Err(err).Msg("server failed to start")
		}
	}()

	return server
}

// gracefulShutdown waits for SIGINT or SIGTERM, drains the server and then
// runs cleanup, which flushes pending audit writes before closing the stores.
func gracefulShutdown(ctx context.Context, server *http.Server, cleanup func()) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	<-quit
	logger.L().Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.L().Error().Err(err).Msg("server forced to shutdown")
	}

	cleanup()
	logger.L().Info().Msg("server exited gracefully")
}

// runIngest loads every bar file in o.dir. An interrupt cancels the run.
func runIngest(ctx context.Context, o options) error {
	db, err := app.InitPostgres(config.AppConfig)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer func() { _ = db.Close() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	err = ingestion.ProcessDirectory(ctx, o.dir, db, ingestion.Options{
		Parallel: o.parallel,
		Force:    o.force,
		Recorder: metrics.NewCollector(reg),
	})
	logIngested(logger.L(), reg)
	return err
}

// logIngested logs the committed bars per symbol and the run total. It also
// runs after a failed run, where it shows which files made it in.
func logIngested(l *zerolog.Logger, g prometheus.Gatherer) {
	totals, err := metrics.BarsIngested(g)
	if err != nil {
		l.Warn().Err(err).Msg("could not read ingestion totals")
		return
	}
	sum := 0
	for _, symbol := range slices.Sorted(maps.Keys(totals)) {
		l.Info().Str("symbol", symbol).Int("bars", totals[symbol]).Msg("bars ingested")
		sum += totals[symbol]
	}
	l.Info().Int("symbols", len(totals)).Int("bars", sum).Msg("ingestion totals")
}

// runMigrate applies the embedded schema migrations.
func runMigrate() error {
	db, err := app.InitPostgres(config.AppConfig)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer func() { _ = db.Close() }()
	return app.Migrate(db)
}

// main is the entry point of the stockmeter application.
//
// Modes (selected via --mode flag):
//   - api:     Starts the metered REST API (default).
//   - ingest:  Loads <SYMBOL>.csv daily bar files from --dir.
//   - migrate: Applies the database migrations and exits.
func main() {
	ctx := context.Background()

	config.LoadConfig()
	logger.Init()

	o, err := parseFlags(os.Args[1:], config.AppConfig.Server.Port, os.Stderr)
	if err != nil {
		logger.L().Fatal().Err(err).Msg("invalid flags")
	}

	switch o.mode {
	case "ingest":
		logger.L().Info().Str("dir", o.dir).Msg("running ingestion")
		if err := runIngest(ctx, o); err != nil {
			logger.L().Fatal().Err(err).Msg("ingestion failed")
		}
		logger.L().Info().Msg("ingestion completed successfully")

	case "migrate":
		if err := runMigrate(); err != nil {
			logger.L().Fatal().Err(err).Msg("migration failed")
		}
		logger.L().Info().Msg("migrations applied")

	case "api":
		logger.L().Info().Msg("starting API server")

		router, cleanup, err := app.InitializeApp()
		if err != nil {
			logger.L().Fatal().Err(err).Msg("app init error")
		}

		server := startServer(router, o.port)
		gracefulShutdown(ctx, server, cleanup)
	}
}
