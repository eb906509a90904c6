package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/go-redis/redis/v8"
	"github.com/guttosm/stockmeter/internal/domain/models"
	"github.com/guttosm/stockmeter/internal/gateway"
	"github.com/guttosm/stockmeter/internal/metrics"
	"github.com/guttosm/stockmeter/internal/middleware"
	"github.com/guttosm/stockmeter/internal/quota"
	"github.com/prometheus/client_golang/prometheus"
)

type memAccounts struct{}

func (memAccounts) LookupByAPIKey(_ context.Context, key string) (*models.Identity, error) {
	switch key {
	case "key-1":
		return &models.Identity{UserID: "u1"}, nil
	case "key-lapsed":
		return &models.Identity{UserID: "u2"}, nil
	}
	return nil, nil
}

func (memAccounts) ActiveSubscription(_ context.Context, userID string, now time.Time) (*models.Subscription, error) {
	if userID != "u1" {
		return nil, nil
	}
	return &models.Subscription{
		PlanName:             "BASIC",
		EndDate:              now.AddDate(0, 1, 0),
		APICallsPerDay:       3,
		APIRequestsPerMinute: 10,
		DataRangeYears:       1,
	}, nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []models.RequestLog
}

func (m *memAudit) Append(_ context.Context, e models.RequestLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

type fullStack struct {
	router *gin.Engine
	gw     *gateway.Gateway
	audit  *memAudit
	redis  *miniredis.Miniredis
}

func newFullStack(t *testing.T, throttle *middleware.IPThrottle) fullStack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	audit := &memAudit{}
	gw := gateway.New(memAccounts{}, quota.NewStore(quota.NewRedisCounter(client), time.Second), audit,
		gateway.Options{Observer: collector})

	r := NewRouter(NewHandler(&stubService{stocks: []models.Stock{}}), RouterConfig{
		Admitter:       gw,
		Throttle:       throttle,
		Status:         collector,
		Metrics:        metrics.Handler(reg),
		Health:         NewHealthHandler(time.Second, map[string]Pinger{"redis": func(ctx context.Context) error { return client.Ping(ctx).Err() }}),
		RequestTimeout: 5 * time.Second,
	})
	return fullStack{router: r, gw: gw, audit: audit, redis: mr}
}

func call(r http.Handler, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if key != "" {
		req.Header.Set(middleware.APIKeyHeader, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_Admission(t *testing.T) {
	s := newFullStack(t, nil)

	cases := []struct {
		name string
		key  string
		want int
		msg  string
	}{
		{"missing key", "", 401, gateway.MsgMissingKey},
		{"unknown key", "nope", 401, gateway.MsgInvalidKey},
		{"no subscription", "key-lapsed", 403, gateway.MsgNoSubscription},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := call(s.router, "/api/v1/stocks", tc.key)
			if w.Code != tc.want || !strings.Contains(w.Body.String(), tc.msg) {
				t.Fatalf("status %d body %s", w.Code, w.Body.String())
			}
			if w.Header().Get(middleware.RequestIDHeader) == "" {
				t.Fatalf("missing request id on rejection")
			}
		})
	}
}

func TestRouter_DailyQuotaAndAudit(t *testing.T) {
	s := newFullStack(t, nil)

	for i := 0; i < 3; i++ {
		if w := call(s.router, "/api/v1/stocks?page=1", "key-1"); w.Code != 200 {
			t.Fatalf("request %d: status %d", i+1, w.Code)
		}
	}
	w := call(s.router, "/api/v1/stocks", "key-1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") != "86400" || !strings.Contains(w.Body.String(), gateway.MsgDailyExceeded) {
		t.Fatalf("retry=%q body=%s", w.Header().Get("Retry-After"), w.Body.String())
	}

	s.gw.Wait()
	s.audit.mu.Lock()
	defer s.audit.mu.Unlock()
	if len(s.audit.entries) != 3 {
		t.Fatalf("expected 3 audited requests, got %d", len(s.audit.entries))
	}
	if e := s.audit.entries[0]; e.UserID != "u1" || e.Endpoint != "/api/v1/stocks?page=1" || e.Method != "GET" || e.StatusCode != 200 {
		t.Fatalf("unexpected audit entry %+v", e)
	}
	if got, _ := s.redis.Get("daily:u1"); got != "4" {
		t.Fatalf("rejected request must still consume quota, daily=%q", got)
	}
}

func TestRouter_ValidationDoesNotConsumeQuota(t *testing.T) {
	s := newFullStack(t, nil)
	if w := call(s.router, "/api/v1/stocks/rsi/ACME?period=0", "key-1"); w.Code != 400 {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if w := call(s.router, "/api/v1/stocks/rsi/ACME?period=9223372036854775807", "key-1"); w.Code != 400 {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	s.gw.Wait()
	if s.redis.Exists("daily:u1") || s.redis.Exists("minute:u1") {
		t.Fatalf("malformed requests must not touch quota")
	}
	s.audit.mu.Lock()
	n := len(s.audit.entries)
	s.audit.mu.Unlock()
	if n != 0 {
		t.Fatalf("malformed requests must not be audited, got %d", n)
	}

	if w := call(s.router, "/api/v1/stocks", "key-1"); w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got, _ := s.redis.Get("daily:u1"); got != "1" {
		t.Fatalf("daily=%q", got)
	}
}

func TestRouter_QuotaStoreDownFailsClosed(t *testing.T) {
	s := newFullStack(t, nil)
	s.redis.Close()

	w := call(s.router, "/api/v1/stocks", "key-1")
	if w.Code != http.StatusServiceUnavailable || w.Header().Get("Retry-After") != "1" {
		t.Fatalf("status %d retry %q", w.Code, w.Header().Get("Retry-After"))
	}
	if w := call(s.router, "/readyz", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz should report redis down, got %d", w.Code)
	}
}

func TestRouter_OperationalRoutesSkipAdmission(t *testing.T) {
	s := newFullStack(t, nil)
	for _, path := range []string{"/healthz", "/readyz"} {
		if w := call(s.router, path, ""); w.Code != 200 {
			t.Fatalf("%s: status %d", path, w.Code)
		}
	}

	call(s.router, "/api/v1/stocks", "key-1")
	call(s.router, "/api/v1/stocks", "")
	w := call(s.router, "/metrics", "")
	if w.Code != 200 {
		t.Fatalf("metrics status %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`stockmeter_admissions_total{outcome="admitted"} 1`,
		`stockmeter_admissions_total{outcome="unauthenticated"} 1`,
		`stockmeter_http_responses_total{status_code="401"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q", want)
		}
	}
}

func TestRouter_IPThrottleRunsBeforeAdmission(t *testing.T) {
	s := newFullStack(t, middleware.NewIPThrottle(1, 2, time.Minute))
	call(s.router, "/api/v1/stocks", "key-1")
	call(s.router, "/api/v1/stocks", "key-1")
	w := call(s.router, "/api/v1/stocks", "key-1")
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") != "1" {
		t.Fatalf("status %d retry %q", w.Code, w.Header().Get("Retry-After"))
	}
	if got, _ := s.redis.Get("daily:u1"); got != "2" {
		t.Fatalf("throttled request must not touch quota, daily=%q", got)
	}
	if w := call(s.router, "/healthz", ""); w.Code != 200 {
		t.Fatalf("health must not be throttled, got %d", w.Code)
	}
}
