package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/guttosm/stockmeter/internal/domain/apperr"
	"github.com/guttosm/stockmeter/internal/domain/dto"
)

func init() { gin.SetMode(gin.TestMode) }

func decodeError(t *testing.T, w *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()
	var body dto.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return body
}

func TestToString(t *testing.T) {
	if s := toString(nil); s != "" {
		t.Fatalf("nil -> %q, want empty", s)
	}
	if s := toString("abc"); s != "abc" {
		t.Fatalf("string -> %q, want 'abc'", s)
	}
	if s := toString(123); s != "" {
		t.Fatalf("non-string -> %q, want empty", s)
	}
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(200, c.GetString(RequestIDKey)) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Header().Get(RequestIDHeader) == "" || w.Body.String() != w.Header().Get(RequestIDHeader) {
		t.Fatalf("request id not generated: header=%q body=%q", w.Header().Get(RequestIDHeader), w.Body.String())
	}

	const inbound = "0b3e4c5a-8f7d-4c1e-9a35-2f6c1b9d7e10"
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, inbound)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get(RequestIDHeader) != inbound {
		t.Fatalf("inbound uuid not kept: %q", w.Header().Get(RequestIDHeader))
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "not-a-uuid")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get(RequestIDHeader) == "not-a-uuid" {
		t.Fatalf("malformed inbound id must be replaced")
	}
}

func TestWriteError(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		retry   string
		message string
		code    string
	}{
		{"bad request", apperr.BadRequest("Invalid start date format"), 400, "", "Invalid start date format", "BAD_REQUEST"},
		{"unauthenticated", apperr.New(apperr.KindUnauthenticated, "API key is required"), 401, "", "API key is required", "UNAUTHENTICATED"},
		{"forbidden", apperr.New(apperr.KindForbidden, "No active subscription found"), 403, "", "No active subscription found", "FORBIDDEN"},
		{"not found", apperr.NotFound("Stock not found"), 404, "", "Stock not found", "NOT_FOUND"},
		{"daily limit", apperr.RateLimited("Daily API call limit exceeded", 24*time.Hour), 429, "86400", "Daily API call limit exceeded", "RATE_LIMITED"},
		{"minute limit", apperr.RateLimited("Per-minute API call limit exceeded", time.Minute), 429, "60", "Per-minute API call limit exceeded", "RATE_LIMITED"},
		{"retryable internal", apperr.Unavailable("Service temporarily unavailable", errors.New("redis down")), 503, "1", "Service temporarily unavailable", "INTERNAL"},
		{"foreign error masked", errors.New("pq: password authentication failed"), 500, "", "Internal server error", "INTERNAL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/", func(c *gin.Context) { WriteError(c, tc.err) })
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

			if w.Code != tc.status {
				t.Fatalf("status=%d want %d", w.Code, tc.status)
			}
			if got := w.Header().Get("Retry-After"); got != tc.retry {
				t.Fatalf("Retry-After=%q want %q", got, tc.retry)
			}
			body := decodeError(t, w)
			if body.Success || body.Message != tc.message || body.Code != tc.code || body.ErrorDetails != "" {
				t.Fatalf("unexpected body %+v", body)
			}
		})
	}
}

func TestErrorHandler(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler)
	r.GET("/fail", func(c *gin.Context) { _ = c.Error(apperr.NotFound("Stock not found")) })
	r.GET("/written", func(c *gin.Context) {
		c.String(http.StatusOK, "partial")
		_ = c.Error(errors.New("late failure"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))
	if w.Code != http.StatusNotFound || decodeError(t, w).Message != "Stock not found" {
		t.Fatalf("code=%d body=%s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/written", nil))
	if w.Code != http.StatusOK || w.Body.String() != "partial" {
		t.Fatalf("written response must not be overwritten: %d %q", w.Code, w.Body.String())
	}
}

func TestAbortWithError(t *testing.T) {
	r := gin.New()
	r.GET("/err", func(c *gin.Context) {
		AbortWithError(c, http.StatusBadRequest, "bad stuff", errors.New("internal detail"))
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/err", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code=%d", w.Code)
	}
	if body := decodeError(t, w); body.Message != "bad stuff" || body.ErrorDetails != "" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RecoveryMiddleware())
	r.GET("/panic", func(c *gin.Context) { panic("secret detail") })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	if w.Code != 500 {
		t.Fatalf("code=%d", w.Code)
	}
	if body := decodeError(t, w); body.Message != "Internal server error" || body.ErrorDetails != "" || body.Code != "INTERNAL" {
		t.Fatalf("panic value leaked: %+v", body)
	}
}

type statusCounter map[int]int

func (s statusCounter) RecordHTTPStatus(code int) { s[code]++ }

func TestRequestLoggerAndStatusMetrics(t *testing.T) {
	counts := statusCounter{}
	r := gin.New()
	r.Use(RequestID(), RequestLogger(), StatusMetrics(counts))
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	for _, path := range []string{"/ok", "/ok", "/boom"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}
	if counts[200] != 2 || counts[502] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
}
