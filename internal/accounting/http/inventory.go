package accountinghttp

import (
	"net/http"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

type movementResultResponse struct {
	Movement  movementResponse   `json:"movement"`
	Item      itemResponse       `json:"item"`
	Valuation *valuationResponse `json:"valuation,omitempty"`
	Entry     *journalResponse   `json:"entry,omitempty"`
}

func toValuation(v inventory.Valuation) valuationResponse {
	return valuationResponse{
		Method:    string(v.Method),
		Quantity:  amount(v.Quantity),
		UnitCost:  amount(v.UnitCost),
		TotalCost: amount(v.TotalCost),
		Lots:      toLots(v.LotsConsumed),
	}
}

func toMovementResult(res inventory.MovementResult) movementResultResponse {
	out := movementResultResponse{Movement: toMovement(res.Movement), Item: toItem(res.Item)}
	if res.Valuation != nil {
		v := toValuation(*res.Valuation)
		out.Valuation = &v
	}
	if res.Entry != nil {
		e := toJournal(*res.Entry)
		out.Entry = &e
	}
	return out
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.svc.Inventory.RegisterItem(r.Context(), inventory.ItemInput{
		Code:                 req.Code,
		Name:                 req.Name,
		Unit:                 req.Unit,
		Method:               domain.ValuationMethod(req.Method),
		InventoryAccountCode: req.InventoryAccountCode,
		CreatedBy:            actor(r),
	})
	if err != nil {
		h.fail(w, r, "create item", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toItem(item))
}

func (h *Handler) showItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "show item", err)
		return
	}
	item, err := h.svc.Inventory.Item(r.Context(), id)
	if err != nil {
		h.fail(w, r, "show item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toItem(item))
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "list movements", err)
		return
	}
	moves, err := h.svc.Inventory.Movements(r.Context(), id)
	if err != nil {
		h.fail(w, r, "list movements", err)
		return
	}
	out := make([]movementResponse, 0, len(moves))
	for _, m := range moves {
		out = append(out, toMovement(m))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": out})
}

// valueOutbound prices a prospective issue without recording it.
func (h *Handler) valueOutbound(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "value outbound", err)
		return
	}
	qty, err := parseAmount("quantity", r.URL.Query().Get("quantity"))
	if err != nil {
		h.fail(w, r, "value outbound", err)
		return
	}
	date, err := queryDate(r, "date")
	if err != nil {
		h.fail(w, r, "value outbound", err)
		return
	}
	if date.IsZero() {
		date = domain.DateOnly(time.Now())
	}
	v, err := h.svc.Inventory.ValueOutbound(r.Context(), id, date, qty)
	if err != nil {
		h.fail(w, r, "value outbound", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toValuation(v))
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "receive", err)
		return
	}
	var req receiptRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		h.fail(w, r, "receive", err)
		return
	}
	qty, err := parseAmount("quantity", req.Quantity)
	if err != nil {
		h.fail(w, r, "receive", err)
		return
	}
	cost, err := parseAmount("unit_cost", req.UnitCost)
	if err != nil {
		h.fail(w, r, "receive", err)
		return
	}
	res, err := h.svc.Inventory.Receive(r.Context(), inventory.InboundInput{
		ItemID:            id,
		Date:              date,
		Type:              domain.MovementType(req.Type),
		Quantity:          qty,
		UnitCost:          cost,
		OffsetAccountCode: req.OffsetAccountCode,
		ReferenceNo:       req.ReferenceNo,
		CreatedBy:         actor(r),
	})
	if err != nil {
		h.fail(w, r, "receive", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toMovementResult(res))
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "issue", err)
		return
	}
	var req issueRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		h.fail(w, r, "issue", err)
		return
	}
	qty, err := parseAmount("quantity", req.Quantity)
	if err != nil {
		h.fail(w, r, "issue", err)
		return
	}
	res, err := h.svc.Inventory.Issue(r.Context(), inventory.OutboundInput{
		ItemID:            id,
		Date:              date,
		Type:              domain.MovementType(req.Type),
		Quantity:          qty,
		OffsetAccountCode: req.OffsetAccountCode,
		ReferenceNo:       req.ReferenceNo,
		CreatedBy:         actor(r),
	})
	if err != nil {
		h.fail(w, r, "issue", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toMovementResult(res))
}
