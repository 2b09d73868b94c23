package accountinghttp

import (
	"net/http"
	"sort"

	"github.com/odyssey-erp/odyssey-ledger/internal/assets"
	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

func (h *Handler) createAsset(w http.ResponseWriter, r *http.Request) {
	var req assetRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := req.input(actor(r))
	if err != nil {
		h.fail(w, r, "create asset", err)
		return
	}
	asset, err := h.svc.Assets.RegisterAsset(r.Context(), in)
	if err != nil {
		h.fail(w, r, "create asset", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAsset(asset))
}

func (req assetRequest) input(creator string) (assets.AssetInput, error) {
	acquired, err := parseDate("acquisition_date", req.AcquisitionDate)
	if err != nil {
		return assets.AssetInput{}, err
	}
	cost, err := parseAmount("acquisition_cost", req.AcquisitionCost)
	if err != nil {
		return assets.AssetInput{}, err
	}
	salvage, err := parseAmount("salvage_value", req.SalvageValue)
	if err != nil {
		return assets.AssetInput{}, err
	}
	rate, err := parseAmount("annual_rate", req.AnnualRate)
	if err != nil {
		return assets.AssetInput{}, err
	}
	return assets.AssetInput{
		Code:                   req.Code,
		Name:                   req.Name,
		Method:                 domain.DepreciationMethod(req.Method),
		AnnualRate:             rate,
		AcquisitionDate:        acquired,
		AcquisitionCost:        cost,
		SalvageValue:           salvage,
		UsefulLifeMonths:       req.UsefulLifeMonths,
		ExpenseAccountCode:     req.ExpenseAccountCode,
		AccumulatedAccountCode: req.AccumulatedAccountCode,
		CreatedBy:              creator,
	}, nil
}

func (h *Handler) showAsset(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "show asset", err)
		return
	}
	asset, err := h.svc.Assets.Asset(r.Context(), id)
	if err != nil {
		h.fail(w, r, "show asset", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAsset(asset))
}

func (h *Handler) listDepreciation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "list depreciation", err)
		return
	}
	recs, err := h.svc.Assets.Records(r.Context(), id)
	if err != nil {
		h.fail(w, r, "list depreciation", err)
		return
	}
	out := make([]depreciationResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toDepreciation(rec))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"records": out})
}

func (h *Handler) runDepreciation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "run depreciation", err)
		return
	}
	var req depreciationRequest
	if !h.decode(w, r, &req) {
		return
	}
	periodEnd, err := parseDate("period_end", req.PeriodEnd)
	if err != nil {
		h.fail(w, r, "run depreciation", err)
		return
	}
	rec, err := h.svc.Assets.RunPeriod(r.Context(), id, periodEnd, actor(r))
	if err != nil {
		h.fail(w, r, "run depreciation", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toDepreciation(rec))
}

func (h *Handler) runDepreciationBatch(w http.ResponseWriter, r *http.Request) {
	var req depreciationRequest
	if !h.decode(w, r, &req) {
		return
	}
	periodEnd, err := parseDate("period_end", req.PeriodEnd)
	if err != nil {
		h.fail(w, r, "depreciation batch", err)
		return
	}
	res, err := h.svc.Assets.RunBatch(r.Context(), periodEnd, actor(r))
	if err != nil {
		h.fail(w, r, "depreciation batch", err)
		return
	}
	records := make([]depreciationResponse, 0, len(res.Records))
	for _, rec := range res.Records {
		records = append(records, toDepreciation(rec))
	}
	failures := make(map[string]any, len(res.Failures))
	for code, ferr := range res.Failures {
		failures[code] = httpx.ProblemFor(ferr)
	}
	skipped := append([]string(nil), res.Skipped...)
	sort.Strings(skipped)
	status := http.StatusOK
	if len(failures) > 0 {
		status = http.StatusMultiStatus
	}
	httpx.JSON(w, status, map[string]any{
		"records":  records,
		"skipped":  skipped,
		"failures": failures,
	})
}

func (h *Handler) retireAsset(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "retire asset", err)
		return
	}
	asset, err := h.svc.Assets.Retire(r.Context(), id, actor(r))
	if err != nil {
		h.fail(w, r, "retire asset", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAsset(asset))
}
