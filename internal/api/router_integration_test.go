//go:build integration
// +build integration

package api_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/docker/go-connections/nat"
	_ "github.com/lib/pq"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/guttosm/stockmeter/config"
	"github.com/guttosm/stockmeter/internal/app"
)

func startPG(t *testing.T) (dsn string, host string, port nat.Port, terminate func()) {
	t.Helper()
	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "stockmeter",
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
		},
		WaitingFor: wait.ForSQL("5432/tcp", "postgres", func(h string, p nat.Port) string {
			return fmt.Sprintf("host=%s port=%s user=postgres password=postgres dbname=stockmeter sslmode=disable", h, p.Port())
		}).WithStartupTimeout(60 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Fatalf("container: %v", err)
	}
	h, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	mp, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn = fmt.Sprintf("postgres://postgres:postgres@%s:%s/stockmeter?sslmode=disable", h, mp.Port())
	terminate = func() { _ = c.Terminate(context.Background()) }
	return dsn, h, mp, terminate
}

func openAndMigrate(t *testing.T, dsn string) *sql.DB {
	t.Helper()
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := app.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// seedE2E creates one user on a 1-year, 3-calls-per-day plan and a stock
// with closes 44,45,44,45,44 over the last five days.
func seedE2E(t *testing.T, db *sql.DB, today time.Time) {
	t.Helper()
	exec := func(q string, args ...any) {
		if _, err := db.Exec(q, args...); err != nil {
			t.Fatalf("seed %q: %v", q, err)
		}
	}
	exec(`INSERT INTO plans (id, name, api_calls_per_day, api_requests_per_minute, data_range_years) VALUES ('p1', 'BASIC', 3, 10, 1)`)
	exec(`INSERT INTO users (id, email, api_key) VALUES ('u1', 'e2e@example.com', 'e2e-key')`)
	exec(`INSERT INTO subscriptions (id, user_id, plan_id, start_date, end_date) VALUES ('s1', 'u1', 'p1', $1, $2)`,
		today.AddDate(0, -1, 0), today.AddDate(0, 1, 0))
	exec(`INSERT INTO stocks (id, name, symbol, fno) VALUES ('st1', 'Acme Corp', 'ACME', true)`)
	for i, c := range []int{44, 45, 44, 45, 44} {
		exec(`INSERT INTO daily (id, stockid, date, open, high, low, close, volume) VALUES ($1, 'st1', $2, $3, $3, $3, $3, 1000)`,
			fmt.Sprintf("d%d", i), today.AddDate(0, 0, i-5), c)
	}
}

func TestAPI_E2E_IndicatorQuotaAndAudit(t *testing.T) {
	dsn, host, port, term := startPG(t)
	defer term()
	db := openAndMigrate(t, dsn)
	defer db.Close()

	today := time.Now().UTC().Truncate(24 * time.Hour)
	seedE2E(t, db, today)

	mr := miniredis.RunT(t)

	old := config.AppConfig
	t.Cleanup(func() { config.AppConfig = old })
	p, _ := nat.ParsePort(port.Port())
	config.AppConfig = config.Config{
		Server:   config.ServerConfig{Port: "0", RequestTimeout: 5 * time.Second},
		Postgres: config.PostgresConfig{Host: host, Port: p, User: "postgres", Password: "postgres", DBName: "stockmeter", SSLMode: "disable"},
		Redis:    config.RedisConfig{Addr: mr.Addr()},
		Gateway:  config.GatewayConfig{QuotaTimeout: time.Second, LookupTimeout: 2 * time.Second, AuditTimeout: 2 * time.Second},
	}

	router, cleanup, err := app.InitializeApp()
	if err != nil {
		t.Fatalf("init app: %v", err)
	}

	call := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("X-API-Key", "e2e-key")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := call("/api/v1/stocks/rsi/acme?period=2")
	if w.Code != http.StatusOK {
		t.Fatalf("rsi status %d body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"values":[50.00,75.00,37.50]`) {
		t.Fatalf("unexpected rsi body %s", w.Body.String())
	}

	w = call("/api/v1/stocks/ACME/daily?limit=2")
	if w.Code != http.StatusOK {
		t.Fatalf("daily status %d body=%s", w.Code, w.Body.String())
	}
	var daily struct {
		Data       []map[string]any `json:"data"`
		Pagination struct {
			Total int `json:"total"`
		} `json:"pagination"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &daily); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(daily.Data) != 2 || daily.Pagination.Total != 5 {
		t.Fatalf("unexpected daily page: %+v", daily)
	}

	w = call("/api/v1/stocks/download/ACME")
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Body.String(), "Date,Open,High,Low,Close,Volume\n") {
		t.Fatalf("download status %d body=%s", w.Code, w.Body.String())
	}

	w = call("/api/v1/stocks")
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") != "86400" {
		t.Fatalf("expected daily limit, got %d retry=%q", w.Code, w.Header().Get("Retry-After"))
	}

	cleanup()

	var logged int
	if err := db.QueryRow(`SELECT COUNT(*) FROM request_logs WHERE user_id = 'u1' AND status_code = 200`).Scan(&logged); err != nil {
		t.Fatalf("count logs: %v", err)
	}
	if logged != 3 {
		t.Fatalf("expected 3 audited requests, got %d", logged)
	}
}
