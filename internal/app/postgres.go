package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/guttosm/stockmeter/config"
	"github.com/guttosm/stockmeter/db"
	"github.com/pressly/goose/v3"

	_ "github.com/lib/pq" // PostgreSQL driver for database/sql
)

const pingTimeout = 5 * time.Second

// sqlOpener is an indirection for unit testing; defaults to sql.Open.
var sqlOpener = sql.Open

// InitPostgres opens the connection pool described by cfg.Postgres and pings
// it once so startup fails fast on a bad DSN or an unreachable server.
//
// Example usage:
//
//	db, err := app.InitPostgres(config.AppConfig)
//	if err != nil {
//	    logger.L().Fatal().Err(err).Msg("postgres")
//	}
//	defer db.Close()
func InitPostgres(cfg config.Config) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)

	conn, err := sqlOpener("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(10)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return conn, nil
}

// postgresOpener is an indirection used by InitializeApp; overridden in tests to avoid real connections.
var postgresOpener = InitPostgres

// Migrate applies every pending migration embedded in db.Migrations.
func Migrate(conn *sql.DB) error {
	goose.SetBaseFS(db.Migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.Up(conn, db.MigrationsDir); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}
