package accountinghttp

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

func (h *Handler) listFiscalYears(w http.ResponseWriter, r *http.Request) {
	years, err := h.svc.Reader.ListFiscalYears(r.Context())
	if err != nil {
		h.fail(w, r, "list fiscal years", err)
		return
	}
	out := make([]fiscalYearResponse, 0, len(years))
	for _, y := range years {
		out = append(out, toFiscalYear(y, nil))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"fiscal_years": out})
}

func (h *Handler) createFiscalYear(w http.ResponseWriter, r *http.Request) {
	var req fiscalYearRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		h.fail(w, r, "create fiscal year", err)
		return
	}
	end, err := parseDate("end_date", req.EndDate)
	if err != nil {
		h.fail(w, r, "create fiscal year", err)
		return
	}
	year, ps, err := h.svc.Periods.CreateFiscalYear(r.Context(), periods.FiscalYearInput{
		Code:      req.Code,
		Name:      req.Name,
		StartDate: start,
		EndDate:   end,
		CreatedBy: actor(r),
	})
	if err != nil {
		h.fail(w, r, "create fiscal year", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toFiscalYear(year, ps))
}

func (h *Handler) listPeriods(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "list periods", err)
		return
	}
	ps, err := h.svc.Periods.ListPeriods(r.Context(), id)
	if err != nil {
		h.fail(w, r, "list periods", err)
		return
	}
	out := make([]periodResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, toPeriod(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"periods": out})
}

func (h *Handler) closePeriod(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "close period", err)
		return
	}
	var req closeRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Periods.Close(r.Context(), periods.CloseInput{
		PeriodID:             id,
		EmitClosingEntries:   req.ClosingEntries,
		RetainedEarningsCode: req.RetainedEarningsCode,
		CreatedBy:            actor(r),
	})
	if err != nil {
		h.fail(w, r, "close period", err)
		return
	}
	out := closeResponse{
		Period:           toPeriod(res.Period),
		Balances:         amounts(res.Balances),
		FiscalYearClosed: res.FiscalYearClosed,
	}
	if res.ClosingEntry != nil {
		entry := toJournal(*res.ClosingEntry)
		out.ClosingEntry = &entry
	}
	h.logger.Info("period closed", "period", res.Period.Code, "actor", actor(r))
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) statement(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "statement", err)
		return
	}
	typ := reports.StatementType(chi.URLParam(r, "type"))
	if !typ.Valid() {
		h.fail(w, r, "statement", fmt.Errorf("%w: unknown statement %q", domain.ErrInvalidInput, typ))
		return
	}
	st, err := h.svc.Reports.Build(r.Context(), id, typ)
	if err != nil {
		h.fail(w, r, "statement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, st)
}
