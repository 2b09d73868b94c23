package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
)

const problemBase = "https://odyssey-erp.dev/problems/"

type mapping struct {
	target error
	status int
	slug   string
	title  string
}

// Order matters: specific sentinels precede the umbrella ErrValidation.
var mappings = []mapping{
	{domain.ErrUnknownAccount, http.StatusUnprocessableEntity, "unknown-account", "Unknown Account"},
	{domain.ErrMalformedItem, http.StatusUnprocessableEntity, "malformed-item", "Malformed Journal Item"},
	{domain.ErrUnbalanced, http.StatusUnprocessableEntity, "unbalanced", "Unbalanced Entry"},
	{domain.ErrPeriodClosed, http.StatusConflict, "period-closed", "Period Closed"},
	{domain.ErrPeriodClosing, http.StatusConflict, "period-closing", "Period Closing"},
	{domain.ErrValidation, http.StatusUnprocessableEntity, "validation", "Validation Failed"},
	{domain.ErrAlreadyPosted, http.StatusConflict, "already-posted", "Already Posted"},
	{domain.ErrConcurrencyConflict, http.StatusConflict, "concurrency-conflict", "Concurrent Modification"},
	{domain.ErrInsufficientStock, http.StatusUnprocessableEntity, "insufficient-stock", "Insufficient Stock"},
	{domain.ErrAlreadyDepreciated, http.StatusConflict, "already-depreciated", "Already Depreciated"},
	{domain.ErrAssetRetired, http.StatusConflict, "asset-retired", "Asset Retired"},
	{domain.ErrIncompletePeriod, http.StatusConflict, "incomplete-period", "Period Incomplete"},
	{domain.ErrHasOpenBalance, http.StatusConflict, "open-balance", "Account Has Open Balance"},
	{domain.ErrNormalBalanceLocked, http.StatusConflict, "normal-balance-locked", "Normal Balance Locked"},
	{domain.ErrInvalidTransition, http.StatusConflict, "invalid-transition", "Invalid Period Transition"},
	{domain.ErrPeriodOverlap, http.StatusConflict, "period-overlap", "Overlapping Period"},
	{domain.ErrNotFound, http.StatusNotFound, "not-found", "Not Found"},
	{domain.ErrConflict, http.StatusConflict, "duplicate", "Duplicate"},
	{domain.ErrInvalidInput, http.StatusBadRequest, "invalid-input", "Invalid Input"},
	{domain.ErrStorageFailure, http.StatusServiceUnavailable, "storage-failure", "Storage Failure"},
}

// ProblemFor maps a domain error to its problem document. Structured errors
// contribute extension members.
func ProblemFor(err error) ProblemDetail {
	for _, m := range mappings {
		if !errors.Is(err, m.target) {
			continue
		}
		p := ProblemDetail{Type: problemBase + m.slug, Title: m.title, Status: m.status, Detail: err.Error()}
		if m.status >= http.StatusInternalServerError {
			p.Detail = ""
		}
		p.Extensions = extensions(err)
		return p
	}
	return ProblemDetail{Title: "Internal Error", Status: http.StatusInternalServerError}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	WriteProblem(w, ProblemFor(err))
}

func extensions(err error) map[string]any {
	var (
		verr  *domain.ValidationError
		stock *domain.InsufficientStockError
		open  *domain.HasOpenBalanceError
	)
	switch {
	case errors.As(err, &verr):
		ext := map[string]any{"reason": string(verr.Reason)}
		if verr.ItemIndex >= 0 {
			ext["item_index"] = verr.ItemIndex
		}
		if verr.AccountCode != "" {
			ext["account_code"] = verr.AccountCode
		}
		if verr.Reason == domain.ReasonUnbalanced {
			ext["delta"] = verr.Delta.StringFixed(domain.Scale)
		}
		if verr.PeriodCode != "" {
			ext["period_code"] = verr.PeriodCode
		}
		return ext
	case errors.As(err, &stock):
		return map[string]any{
			"requested": stock.Requested.String(),
			"available": stock.Available.String(),
		}
	case errors.As(err, &open):
		return map[string]any{
			"account_code": open.Code,
			"balance":      open.Balance.StringFixed(domain.Scale),
		}
	}
	return nil
}
