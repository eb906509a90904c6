package config

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full application configuration loaded from environment
// variables or a .env file.
//
// Example ENV:
//
//	SERVER_PORT=8080
//	POSTGRES_HOST=localhost
//	POSTGRES_DB=stockmeter
//	REDIS_ADDR=localhost:6379
//	QUOTA_TIMEOUT=200ms
//	IP_RATE_PER_MINUTE=600
type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Gateway  GatewayConfig
	Throttle ThrottleConfig
}

// ServerConfig holds HTTP server settings.
//
// Fields:
//   - Port: TCP port the HTTP server listens on.
//   - RequestTimeout: deadline attached to every request context.
type ServerConfig struct {
	Port           string
	RequestTimeout time.Duration
}

// PostgresConfig defines connection details for PostgreSQL. URL is the DSN
// computed from the other fields.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	URL      string
}

// RedisConfig points at the quota counter store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// GatewayConfig bounds every I/O on the admission path.
//
// Fields:
//   - QuotaTimeout: Redis INCR/EXPIRE deadline; exceeding it fails closed.
//   - LookupTimeout: API key and subscription lookup deadline; fails closed.
//   - AuditTimeout: request log insert deadline; failures are only logged.
type GatewayConfig struct {
	QuotaTimeout  time.Duration
	LookupTimeout time.Duration
	AuditTimeout  time.Duration
}

// ThrottleConfig sizes the per-IP pre-auth throttle.
type ThrottleConfig struct {
	PerMinute int
	Burst     int
	Idle      time.Duration
}

// AppConfig is the globally accessible configuration instance, populated
// once by LoadConfig.
var AppConfig Config

// LoadConfig initializes AppConfig.
//
// Precedence (from lowest to highest):
//  1. Defaults set in this function.
//  2. Values from .env file (if present).
//  3. Environment variables.
//
// Missing required values terminate the process via validateConfig.
func LoadConfig() {
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REQUEST_TIMEOUT", "10s")

	viper.SetDefault("POSTGRES_HOST", "localhost")
	viper.SetDefault("POSTGRES_PORT", 5432)
	viper.SetDefault("POSTGRES_USER", "postgres")
	viper.SetDefault("POSTGRES_PASSWORD", "postgres")
	viper.SetDefault("POSTGRES_DB", "stockmeter")
	viper.SetDefault("POSTGRES_SSLMODE", "disable")

	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)

	viper.SetDefault("QUOTA_TIMEOUT", "200ms")
	viper.SetDefault("LOOKUP_TIMEOUT", "2s")
	viper.SetDefault("AUDIT_TIMEOUT", "2s")

	viper.SetDefault("IP_RATE_PER_MINUTE", 600)
	viper.SetDefault("IP_RATE_BURST", 60)
	viper.SetDefault("IP_RATE_IDLE", "10m")

	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig() // ignore error if no .env

	viper.AutomaticEnv()

	AppConfig = Config{
		Server: ServerConfig{
			Port:           viper.GetString("SERVER_PORT"),
			RequestTimeout: viper.GetDuration("REQUEST_TIMEOUT"),
		},
		Postgres: PostgresConfig{
			Host:     viper.GetString("POSTGRES_HOST"),
			Port:     viper.GetInt("POSTGRES_PORT"),
			User:     viper.GetString("POSTGRES_USER"),
			Password: viper.GetString("POSTGRES_PASSWORD"),
			DBName:   viper.GetString("POSTGRES_DB"),
			SSLMode:  viper.GetString("POSTGRES_SSLMODE"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("REDIS_ADDR"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		Gateway: GatewayConfig{
			QuotaTimeout:  viper.GetDuration("QUOTA_TIMEOUT"),
			LookupTimeout: viper.GetDuration("LOOKUP_TIMEOUT"),
			AuditTimeout:  viper.GetDuration("AUDIT_TIMEOUT"),
		},
		Throttle: ThrottleConfig{
			PerMinute: viper.GetInt("IP_RATE_PER_MINUTE"),
			Burst:     viper.GetInt("IP_RATE_BURST"),
			Idle:      viper.GetDuration("IP_RATE_IDLE"),
		},
	}

	AppConfig.Postgres.URL = fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		AppConfig.Postgres.User,
		AppConfig.Postgres.Password,
		AppConfig.Postgres.Host,
		AppConfig.Postgres.Port,
		AppConfig.Postgres.DBName,
		AppConfig.Postgres.SSLMode,
	)

	validateConfig()
}

// missingKeys lists the required settings that are empty or non-positive.
func missingKeys(c Config) []string {
	var missing []string

	if c.Server.Port == "" {
		missing = append(missing, "SERVER_PORT")
	}
	if c.Postgres.Host == "" {
		missing = append(missing, "POSTGRES_HOST")
	}
	if c.Postgres.Port == 0 {
		missing = append(missing, "POSTGRES_PORT")
	}
	if c.Postgres.User == "" {
		missing = append(missing, "POSTGRES_USER")
	}
	if c.Postgres.Password == "" {
		missing = append(missing, "POSTGRES_PASSWORD")
	}
	if c.Postgres.DBName == "" {
		missing = append(missing, "POSTGRES_DB")
	}
	if c.Redis.Addr == "" {
		missing = append(missing, "REDIS_ADDR")
	}
	if c.Gateway.QuotaTimeout <= 0 {
		missing = append(missing, "QUOTA_TIMEOUT")
	}
	if c.Gateway.LookupTimeout <= 0 {
		missing = append(missing, "LOOKUP_TIMEOUT")
	}
	if c.Gateway.AuditTimeout <= 0 {
		missing = append(missing, "AUDIT_TIMEOUT")
	}
	return missing
}

// validateConfig terminates the application when required settings are
// missing, so a half-configured gateway never starts.
func validateConfig() {
	if missing := missingKeys(AppConfig); len(missing) > 0 {
		log.Fatalf("missing required environment variables: %v\n", missing)
	}
}
