package accountinghttp

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/assets"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledgertest"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/lock"
)

func newTestRouter(t *testing.T, cfg Config) http.Handler {
	t.Helper()
	st := ledgertest.Seed(t)
	locker := lock.NewLocalLocker()
	poster := ledger.NewPoster(st, nil, nil, ledger.Config{MaxAttempts: 5})
	h := NewHandler(nil, Services{
		Accounts:  accounts.NewService(st, nil, nil),
		Ledger:    poster,
		Periods:   periods.NewManager(st, poster, locker, nil, nil, periods.Config{RetainedEarningsCode: ledgertest.RetainedEarnings}),
		Inventory: inventory.NewService(st, poster, nil, nil, inventory.ServiceConfig{}),
		Assets:    assets.NewScheduler(st, poster, locker, nil, nil, assets.Config{Concurrency: 2}),
		Reports:   reports.NewBuilder(st, reports.Config{}),
		Reader:    st,
	}, cfg)
	r := chi.NewRouter()
	r.Route("/api/v1", h.MountRoutes)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body == "" {
		rd = bytes.NewReader(nil)
	} else {
		rd = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const saleJournal = `{
	"reference_no": "INV-001",
	"date": "2024-03-05",
	"description": "cash sale",
	"items": [
		{"account_code": "1000", "debit": "150.25"},
		{"account_code": "4000", "credit": "150.25"}
	]
}`

func TestPostJournalAndReadBack(t *testing.T) {
	h := newTestRouter(t, Config{})

	rec := do(t, h, http.MethodPost, "/api/v1/journals", saleJournal)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	require.Equal(t, "150.2500", body["balances"].(map[string]any)[ledgertest.Cash])
	entry := body["entry"].(map[string]any)
	require.Equal(t, "INV-001", entry["reference_no"])

	rec = do(t, h, http.MethodGet, "/api/v1/accounts/1000/balance?as_of=2024-03-31", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "150.2500", decodeBody(t, rec)["balance"])

	rec = do(t, h, http.MethodGet, "/api/v1/accounts/4000/rows?from=2024-03-01&to=2024-03-31", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rows := decodeBody(t, rec)["rows"].([]any)
	require.Len(t, rows, 1)
	require.Equal(t, "150.2500", rows[0].(map[string]any)["running_balance"])

	rec = do(t, h, http.MethodGet, "/api/v1/ledger/verify", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, decodeBody(t, rec)["balanced"])
}

func TestPostJournalRejectsDuplicateReference(t *testing.T) {
	h := newTestRouter(t, Config{})
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/v1/journals", saleJournal).Code)

	rec := do(t, h, http.MethodPost, "/api/v1/journals", saleJournal)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestPostJournalUnbalancedIsUnprocessable(t *testing.T) {
	h := newTestRouter(t, Config{})
	rec := do(t, h, http.MethodPost, "/api/v1/journals", `{
		"reference_no": "BAD-1",
		"date": "2024-03-05",
		"items": [
			{"account_code": "1000", "debit": "100"},
			{"account_code": "4000", "credit": "90"}
		]
	}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "unbalanced", body["reason"])
	require.Equal(t, "10.0000", body["delta"])
}

func TestPostJournalValidatesBody(t *testing.T) {
	h := newTestRouter(t, Config{})
	rec := do(t, h, http.MethodPost, "/api/v1/journals", `{"reference_no": "X", "date": "05/03/2024", "items": []}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := decodeBody(t, rec)["fields"].(map[string]any)
	require.Contains(t, fields, "journalRequest.Date")
	require.Contains(t, fields, "journalRequest.Items")

	rec = do(t, h, http.MethodPost, "/api/v1/journals", `{"reference_no": "X", "unknown": true}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostingRateLimit(t *testing.T) {
	h := newTestRouter(t, Config{PostingRateLimit: 1})
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/v1/journals", saleJournal).Code)
	rec := do(t, h, http.MethodPost, "/api/v1/journals", strings.Replace(saleJournal, "INV-001", "INV-002", 1))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestReverseJournal(t *testing.T) {
	h := newTestRouter(t, Config{})
	rec := do(t, h, http.MethodPost, "/api/v1/journals", saleJournal)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := int64(decodeBody(t, rec)["entry"].(map[string]any)["id"].(float64))

	rec = do(t, h, http.MethodPost, "/api/v1/journals/"+itoa(id)+"/reverse", `{"date": "2024-03-06"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, "0.0000", decodeBody(t, rec)["balances"].(map[string]any)[ledgertest.Cash])

	rec = do(t, h, http.MethodGet, "/api/v1/journals/"+itoa(id), "")
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/v1/journals/9999", "").Code)
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/v1/journals/abc", "").Code)
}

func TestClosePeriodAndStatements(t *testing.T) {
	h := newTestRouter(t, Config{})
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/v1/journals", saleJournal).Code)

	rec := do(t, h, http.MethodGet, "/api/v1/fiscal-years", "")
	require.Equal(t, http.StatusOK, rec.Code)
	years := decodeBody(t, rec)["fiscal_years"].([]any)
	require.Len(t, years, 1)
	yearID := int64(years[0].(map[string]any)["id"].(float64))

	rec = do(t, h, http.MethodGet, "/api/v1/fiscal-years/"+itoa(yearID)+"/periods", "")
	require.Equal(t, http.StatusOK, rec.Code)
	ps := decodeBody(t, rec)["periods"].([]any)
	require.Len(t, ps, 12)
	march := ps[2].(map[string]any)
	marchID := int64(march["id"].(float64))

	rec = do(t, h, http.MethodGet, "/api/v1/periods/"+itoa(marchID)+"/statements/income_statement", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/v1/periods/"+itoa(marchID)+"/statements/cash_budget", "").Code)

	rec = do(t, h, http.MethodPost, "/api/v1/periods/"+itoa(marchID)+"/close", `{"closing_entries": false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	require.Equal(t, "closed", body["period"].(map[string]any)["status"])
	require.Equal(t, "150.2500", body["balances"].(map[string]any)[ledgertest.Cash])

	rec = do(t, h, http.MethodPost, "/api/v1/journals", strings.Replace(saleJournal, "INV-001", "INV-LATE", 1))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "period_closed", decodeBody(t, rec)["reason"])

	rec = do(t, h, http.MethodPost, "/api/v1/periods/"+itoa(marchID)+"/close", "")
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestInventoryEndpoints(t *testing.T) {
	h := newTestRouter(t, Config{})
	rec := do(t, h, http.MethodPost, "/api/v1/inventory/items", `{
		"code": "WID", "name": "Widget", "method": "fifo", "inventory_account_code": "1200"
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := int64(decodeBody(t, rec)["id"].(float64))
	base := "/api/v1/inventory/items/" + itoa(id)

	for i, cost := range []string{"10", "12"} {
		rec = do(t, h, http.MethodPost, base+"/receipts", `{
			"date": "2024-02-0`+itoa(int64(i+1))+`", "type": "purchase", "quantity": "10",
			"unit_cost": "`+cost+`", "offset_account_code": "2000"
		}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, base+"/valuation?quantity=15&date=2024-02-28", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "160.0000", decodeBody(t, rec)["total_cost"])

	rec = do(t, h, http.MethodPost, base+"/issues", `{
		"date": "2024-02-10", "type": "sale", "quantity": "25", "offset_account_code": "5000"
	}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "25", body["requested"])
	require.Equal(t, "20", body["available"])

	rec = do(t, h, http.MethodPost, base+"/issues", `{
		"date": "2024-02-10", "type": "sale", "quantity": "15", "offset_account_code": "5000"
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body = decodeBody(t, rec)
	require.Equal(t, "160.0000", body["valuation"].(map[string]any)["total_cost"])
	require.Equal(t, "60.0000", body["item"].(map[string]any)["total_value"])

	rec = do(t, h, http.MethodGet, base+"/movements", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody(t, rec)["movements"].([]any), 3)
}

func TestAssetEndpoints(t *testing.T) {
	h := newTestRouter(t, Config{})
	rec := do(t, h, http.MethodPost, "/api/v1/assets", `{
		"code": "VAN", "name": "Delivery van", "method": "straight_line",
		"acquisition_date": "2024-01-01", "acquisition_cost": "12000", "salvage_value": "0",
		"useful_life_months": 12, "expense_account_code": "5200", "accumulated_account_code": "1590"
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := int64(decodeBody(t, rec)["id"].(float64))
	base := "/api/v1/assets/" + itoa(id)

	rec = do(t, h, http.MethodPost, base+"/depreciation", `{"period_end": "2024-01-31"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, "1000.0000", decodeBody(t, rec)["amount"])

	rec = do(t, h, http.MethodPost, base+"/depreciation", `{"period_end": "2024-01-31"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/assets/depreciation-runs", `{"period_end": "2024-02-29"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, decodeBody(t, rec)["records"].([]any), 1)

	rec = do(t, h, http.MethodGet, base+"/depreciation", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody(t, rec)["records"].([]any), 2)

	rec = do(t, h, http.MethodPost, base+"/retire", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, false, decodeBody(t, rec)["active"])
}

func TestAccountEndpoints(t *testing.T) {
	h := newTestRouter(t, Config{})
	rec := do(t, h, http.MethodPost, "/api/v1/accounts", `{"code": "1010", "name": "Petty cash", "category_code": "CASH"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, "debit", decodeBody(t, rec)["normal_balance"])

	rec = do(t, h, http.MethodPost, "/api/v1/accounts", `{"code": "1010", "name": "Again", "category_code": "CASH"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/accounts?category=CASH", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody(t, rec)["accounts"].([]any), 2)

	rec = do(t, h, http.MethodPost, "/api/v1/accounts/1010/deactivate", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, false, decodeBody(t, rec)["active"])

	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/v1/accounts/9999", "").Code)
}

func itoa(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
