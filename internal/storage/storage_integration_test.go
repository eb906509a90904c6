//go:build integration
// +build integration

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/guttosm/stockmeter/db"
	"github.com/guttosm/stockmeter/internal/domain/models"
	_ "github.com/lib/pq"
	goose "github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startPostgres spins up a Postgres container and returns a DSN and terminate func.
func startPostgres(t *testing.T) (dsn string, terminate func()) {
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
		WaitingFor: wait.ForSQL("5432/tcp", "postgres", func(host string, port nat.Port) string {
			return fmt.Sprintf("host=%s port=%s user=postgres password=postgres dbname=stockmeter sslmode=disable", host, port.Port())
		}).WithStartupTimeout(60 * time.Second),
	}

	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Fatalf("container start: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}

	dsn = fmt.Sprintf("postgres://postgres:postgres@%s:%s/stockmeter?sslmode=disable", host, port.Port())
	return dsn, func() { _ = container.Terminate(context.Background()) }
}

func openDB(t *testing.T, dsn string) *sql.DB {
	t.Helper()
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
	goose.SetBaseFS(db.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		t.Fatalf("dialect: %v", err)
	}
	if err := goose.Up(conn, db.MigrationsDir); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	return conn
}

func seedAccounts(t *testing.T, conn *sql.DB, today time.Time) {
	t.Helper()
	stmts := []struct {
		q    string
		args []any
	}{
		{`INSERT INTO plans (id, name, api_calls_per_day, api_requests_per_minute, data_range_years) VALUES ('p1','BASIC',100,10,1)`, nil},
		{`INSERT INTO users (id, email, api_key, role) VALUES ('u1','a@x.io','key-1','user')`, nil},
		{`INSERT INTO subscriptions (id, user_id, plan_id, start_date, end_date, is_active) VALUES ('s-old','u1','p1',$1,$2,true)`, []any{today.AddDate(-1, 0, 0), today.AddDate(0, 0, -1)}},
		{`INSERT INTO subscriptions (id, user_id, plan_id, start_date, end_date, is_active) VALUES ('s-new','u1','p1',$1,$2,true)`, []any{today.AddDate(0, 0, -1), today}},
	}
	for _, s := range stmts {
		if _, err := conn.Exec(s.q, s.args...); err != nil {
			t.Fatalf("seed %q: %v", s.q, err)
		}
	}
}

func TestRepositories_Integration(t *testing.T) {
	dsn, terminate := startPostgres(t)
	defer terminate()
	conn := openDB(t, dsn)
	defer conn.Close()

	ctx := context.Background()
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	seedAccounts(t, conn, today)

	accounts := NewAccountsRepository(conn)
	stocks := NewStocksRepository(conn)
	bars := NewBarsRepository(conn)
	audit := NewAuditRepository(conn)

	t.Run("accounts", func(t *testing.T) {
		id, err := accounts.LookupByAPIKey(ctx, "key-1")
		if err != nil || id == nil || id.UserID != "u1" {
			t.Fatalf("lookup: %+v %v", id, err)
		}
		if id, _ := accounts.LookupByAPIKey(ctx, "missing"); id != nil {
			t.Fatalf("unknown key should be nil")
		}
		sub, err := accounts.ActiveSubscription(ctx, "u1", now)
		if err != nil || sub == nil || sub.ID != "s-new" || sub.APICallsPerDay != 100 {
			t.Fatalf("subscription ending today must be active: %+v %v", sub, err)
		}
		if sub, _ := accounts.ActiveSubscription(ctx, "u1", now.AddDate(0, 0, 2)); sub != nil {
			t.Fatalf("no subscription should be active after end date: %+v", sub)
		}
	})

	var stockID string
	t.Run("ingest bars", func(t *testing.T) {
		var err error
		stockID, err = bars.UpsertStock(ctx, "ACME", "ACME")
		if err != nil || stockID == "" {
			t.Fatalf("upsert: %q %v", stockID, err)
		}
		again, err := bars.UpsertStock(ctx, "ACME", "ACME")
		if err != nil || again != stockID {
			t.Fatalf("upsert must be idempotent: %q %v", again, err)
		}

		var batch []models.Bar
		for i, c := range []string{"10.00", "11.00", "12.00", "11.50", "12.50"} {
			d := decimal.NewNullDecimal(decimal.RequireFromString(c))
			batch = append(batch, models.Bar{
				Date: today.AddDate(0, 0, -10+i), Open: d, High: d, Low: d, Close: d,
				Volume: decimal.NewNullDecimal(decimal.NewFromInt(int64(1000 + i))),
			})
		}
		load, err := bars.BeginLoad(ctx, stockID, false)
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		if err := load.Insert(ctx, batch[:2]); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if err := load.Insert(ctx, batch[2:]); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if err := load.Commit(ctx, "ACME.csv", "ACME", len(batch)); err != nil {
			t.Fatalf("commit: %v", err)
		}
		if ok, err := bars.HasIngestion(ctx, "ACME.csv"); err != nil || !ok {
			t.Fatalf("has ingestion: %v %v", ok, err)
		}

		// Same dates again: the unique (stockid, date) index rejects the copy
		// and the rollback keeps the committed bars intact.
		dup, err := bars.BeginLoad(ctx, stockID, false)
		if err != nil {
			t.Fatalf("begin dup: %v", err)
		}
		if err := dup.Insert(ctx, batch); err == nil {
			t.Fatalf("expected unique violation on duplicate dates")
		}
		if err := dup.Rollback(); err != nil {
			t.Fatalf("rollback: %v", err)
		}
		all := models.DateRange{Start: today.AddDate(-1, 0, 0), End: now}
		if n, _ := stocks.CountDaily(ctx, stockID, all); n != len(batch) {
			t.Fatalf("expected %d bars after failed duplicate load, got %d", len(batch), n)
		}
	})

	t.Run("read bars", func(t *testing.T) {
		rng := models.DateRange{Start: today.AddDate(0, 0, -9), End: now}
		got, err := stocks.FetchBars(ctx, stockID, rng)
		if err != nil || len(got) != 4 {
			t.Fatalf("fetch: %d bars err=%v", len(got), err)
		}
		if got[0].Close.Decimal.StringFixed(2) != "11.00" {
			t.Fatalf("bars must be oldest first, got %s", got[0].Close.Decimal)
		}
		page, err := stocks.DailyBars(ctx, stockID, rng, 2, 0)
		if err != nil || len(page) != 2 || page[0].Close.Decimal.StringFixed(2) != "12.50" {
			t.Fatalf("daily page: %+v %v", page, err)
		}
		n, err := stocks.CountDaily(ctx, stockID, rng)
		if err != nil || n != 4 {
			t.Fatalf("count: %d %v", n, err)
		}
		perf, err := stocks.Performance(ctx, stockID, rng, 10, 0)
		if err != nil || len(perf) != 4 || !perf[0].PercentageChange.Valid {
			t.Fatalf("performance: %+v %v", perf, err)
		}
	})

	t.Run("stocks", func(t *testing.T) {
		hits, err := stocks.Search(ctx, SearchFilter{Query: "acm"})
		if err != nil || len(hits) != 1 || hits[0].LatestDate == nil {
			t.Fatalf("search: %+v %v", hits, err)
		}
		for _, q := range []string{"_", "%", "a_m"} {
			if hits, err := stocks.Search(ctx, SearchFilter{Query: q}); err != nil || len(hits) != 0 {
				t.Fatalf("search %q should match literally: %+v %v", q, hits, err)
			}
		}
		if got, _ := stocks.GetBySymbol(ctx, "ACME"); got == nil || got.ID != stockID {
			t.Fatalf("get by symbol: %+v", got)
		}
		if n, _ := stocks.CountStocks(ctx); n != 1 {
			t.Fatalf("count stocks: %d", n)
		}
	})

	t.Run("audit", func(t *testing.T) {
		err := audit.Append(ctx, models.RequestLog{UserID: "u1", Endpoint: "/api/v1/stocks", Method: "GET", StatusCode: 200, Timestamp: now})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		var n int
		if err := conn.QueryRow(`SELECT COUNT(*) FROM request_logs WHERE user_id = 'u1'`).Scan(&n); err != nil || n != 1 {
			t.Fatalf("request_logs count=%d err=%v", n, err)
		}
	})

	t.Run("replace bars", func(t *testing.T) {
		load, err := bars.BeginLoad(ctx, stockID, true)
		if err != nil {
			t.Fatalf("begin replace: %v", err)
		}
		if err := load.Commit(ctx, "ACME.csv", "ACME", 0); err != nil {
			t.Fatalf("commit: %v", err)
		}
		n, _ := stocks.CountDaily(ctx, stockID, models.DateRange{Start: today.AddDate(-1, 0, 0), End: now})
		if n != 0 {
			t.Fatalf("expected 0 bars after empty replace, got %d", n)
		}
	})
}
