package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

func testConfig(t *testing.T, redisAddr string) *Config {
	t.Helper()
	t.Setenv("PG_DSN", "")
	t.Setenv("REDIS_ADDR", redisAddr)
	t.Setenv("LEDGER_POSTING_RATE_LIMIT", "0")
	t.Setenv("CASH_CATEGORIES", "CASH, BANK,")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	return cfg
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := testConfig(t, "")
	require.True(t, InTestMode())
	require.True(t, cfg.InMemory())
	require.False(t, cfg.IsProduction())
	require.Equal(t, 5, cfg.PostingRetries)
	require.Equal(t, 2*time.Minute, cfg.LockTTL)
	require.Equal(t, []string{"CASH", "BANK"}, cfg.CashCategories)
	require.Equal(t, "0 2 1 * *", cfg.DepreciationCron)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	t.Setenv("LEDGER_POSTING_RETRIES", "0")
	_, err := LoadConfig()
	require.ErrorContains(t, err, "LEDGER_POSTING_RETRIES")

	t.Setenv("LEDGER_POSTING_RETRIES", "3")
	t.Setenv("LEDGER_LOCK_TTL", "0s")
	_, err = LoadConfig()
	require.ErrorContains(t, err, "LEDGER_LOCK_TTL")
}

func newTestServer(t *testing.T) (*Components, http.Handler) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr.Addr())
	logger := NewLogger(cfg)

	comps, err := Build(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(comps.Close)

	router := NewRouter(RouterParams{
		Logger:  logger,
		Config:  cfg,
		Ledger:  comps.LedgerHandler(cfg),
		Metrics: comps.Metrics,
		Health:  comps.Ping,
	})
	return comps, router
}

func send(t *testing.T, h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader = http.NoBody
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouterServesLedgerEndToEnd(t *testing.T) {
	comps, h := newTestServer(t)
	require.NoError(t, comps.Ping(context.Background()))

	rec := send(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	rec = send(t, h, http.MethodPost, "/api/v1/categories", `{"code":"CASH","name":"Cash","type":"asset"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = send(t, h, http.MethodPost, "/api/v1/categories", `{"code":"CAP","name":"Capital","type":"equity"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = send(t, h, http.MethodPost, "/api/v1/accounts", `{"code":"1000","name":"Cash","category_code":"CASH"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = send(t, h, http.MethodPost, "/api/v1/accounts", `{"code":"3000","name":"Capital","category_code":"CAP"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = send(t, h, http.MethodPost, "/api/v1/journals", `{
		"reference_no": "OPEN-1",
		"date": "2024-01-02",
		"items": [
			{"account_code": "1000", "debit": "500"},
			{"account_code": "3000", "credit": "500"}
		]
	}`, ActorHeader, "alice")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"created_by":"alice"`)

	rec = send(t, h, http.MethodGet, "/api/v1/accounts/1000/balance?as_of=2024-01-31", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"500.0000"`)

	rec = send(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `odyssey_ledger_postings_total{outcome="posted"} 1`)

	rec = send(t, h, http.MethodGet, "/nowhere", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestActorHeaderTooLong(t *testing.T) {
	_, h := newTestServer(t)
	rec := send(t, h, http.MethodGet, "/api/v1/accounts", "", ActorHeader, strings.Repeat("x", maxActorLength+1))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthReportsBackendFailure(t *testing.T) {
	cfg := testConfig(t, "")
	h := NewRouter(RouterParams{
		Logger: NewLogger(cfg),
		Config: cfg,
		Health: func(context.Context) error { return context.DeadlineExceeded },
	})
	rec := send(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
