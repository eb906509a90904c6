// Package logger owns the process-wide zerolog logger and the per-request
// loggers derived from it.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const serviceName = "stockmeter"

var base zerolog.Logger

// Init configures the global JSON logger on stdout.
//
// Environment variables (optional):
//   - LOG_LEVEL: debug|info|warn|error (default: info)
//   - LOG_PRETTY: true|false (default: false)
//   - APP_VERSION: added as "version" when set
func Init() {
	var w io.Writer = os.Stdout
	if strings.EqualFold(getenv("LOG_PRETTY", "false"), "true") {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	InitWith(w, parseLevel(getenv("LOG_LEVEL", "info")))
}

// InitWith configures the global logger to write to w at level.
func InitWith(w io.Writer, level zerolog.Level) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	ctx := zerolog.New(w).With().Timestamp().Str("service", serviceName)
	if v := os.Getenv("APP_VERSION"); v != "" {
		ctx = ctx.Str("version", v)
	}
	base = ctx.Logger().Level(level)
}

// L returns the global logger. Call Init() once on startup.
func L() *zerolog.Logger {
	if base.GetLevel() == zerolog.NoLevel {
		Init()
	}
	return &base
}

// WithRequestID returns a copy of ctx carrying a logger tagged with id.
func WithRequestID(ctx context.Context, id string) context.Context {
	l := L().With().Str("request_id", id).Logger()
	return l.WithContext(ctx)
}

// Ctx returns the logger stored in ctx, or the global logger.
func Ctx(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return L()
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error", "err":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
