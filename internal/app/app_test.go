package app

import (
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/guttosm/stockmeter/config"
)

func testConfig(redisAddr string) config.Config {
	return config.Config{
		Server: config.ServerConfig{Port: "0", RequestTimeout: time.Second},
		Postgres: config.PostgresConfig{
			Host: "127.0.0.1", Port: 54329, User: "x", Password: "y", DBName: "z", SSLMode: "disable",
		},
		Redis:    config.RedisConfig{Addr: redisAddr},
		Gateway:  config.GatewayConfig{QuotaTimeout: time.Second, LookupTimeout: time.Second, AuditTimeout: time.Second},
		Throttle: config.ThrottleConfig{PerMinute: 600, Burst: 60, Idle: time.Minute},
	}
}

func withConfig(t *testing.T, cfg config.Config) {
	t.Helper()
	old := config.AppConfig
	config.AppConfig = cfg
	t.Cleanup(func() { config.AppConfig = old })
}

// TestInitPostgres_InvalidHost expects ping failure.
func TestInitPostgres_InvalidHost(t *testing.T) {
	db, err := InitPostgres(testConfig(""))
	if err == nil {
		_ = db.Close()
		t.Fatalf("expected error connecting to invalid DB")
	}
}

func TestInitRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := InitRedis(testConfig(mr.Addr()))
	if err != nil {
		t.Fatalf("InitRedis: %v", err)
	}
	_ = client.Close()

	addr := mr.Addr()
	mr.Close()
	if _, err := InitRedis(testConfig(addr)); err == nil {
		t.Fatalf("expected ping error against a stopped server")
	}
}

func TestInitializeApp_DBFailure(t *testing.T) {
	withConfig(t, testConfig("127.0.0.1:1"))

	r, cleanup, err := InitializeApp()
	if err == nil || r != nil || cleanup != nil {
		if cleanup != nil {
			cleanup()
		}
		t.Fatalf("expected error from InitializeApp with invalid DB config")
	}
}

func TestInitializeApp_RedisFailureClosesPostgres(t *testing.T) {
	withConfig(t, testConfig("127.0.0.1:1"))

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	mock.ExpectClose()

	oldPG, oldRedis := postgresOpener, redisOpener
	postgresOpener = func(config.Config) (*sql.DB, error) { return db, nil }
	redisOpener = func(config.Config) (*goredis.Client, error) { return nil, errors.New("redis down") }
	t.Cleanup(func() { postgresOpener, redisOpener = oldPG, oldRedis })

	if _, _, err := InitializeApp(); err == nil || !strings.Contains(err.Error(), "redis") {
		t.Fatalf("expected redis error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("postgres not closed: %v", err)
	}
}

func TestInitializeApp_HappyPath(t *testing.T) {
	mr := miniredis.RunT(t)
	withConfig(t, testConfig(mr.Addr()))

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	mock.ExpectQuery(`SELECT id, role FROM users WHERE api_key = \$1`).
		WithArgs("unknown").
		WillReturnRows(sqlmock.NewRows([]string{"id", "role"}))
	mock.ExpectClose()

	old := postgresOpener
	postgresOpener = func(config.Config) (*sql.DB, error) { return db, nil }
	t.Cleanup(func() { postgresOpener = old })

	router, cleanup, err := InitializeApp()
	if err != nil || router == nil || cleanup == nil {
		t.Fatalf("InitializeApp failed: %v", err)
	}

	for _, path := range []string{"/healthz", "/readyz"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("%s status=%d body=%s", path, w.Code, w.Body.String())
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stocks", nil)
	req.Header.Set("X-API-Key", "unknown")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown key, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), `stockmeter_admissions_total{outcome="unauthenticated"} 1`) ||
		!strings.Contains(w.Body.String(), "go_goroutines") {
		t.Fatalf("metrics not exposed:\n%s", w.Body.String())
	}

	cleanup()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
