package accountinghttp

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

func (h *Handler) postJournal(w http.ResponseWriter, r *http.Request) {
	var req journalRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := req.input(actor(r))
	if err != nil {
		h.fail(w, r, "post journal", err)
		return
	}
	res, err := h.svc.Ledger.Post(r.Context(), in)
	if err != nil {
		h.fail(w, r, "post journal", err)
		return
	}
	h.logger.Info("journal posted",
		"reference", res.Transaction.ReferenceNo,
		"entry_id", res.Entry.ID,
		"actor", res.Entry.CreatedBy)
	httpx.JSON(w, http.StatusCreated, toPosting(res))
}

func (req journalRequest) input(creator string) (ledger.PostingInput, error) {
	date, err := parseDate("date", req.Date)
	if err != nil {
		return ledger.PostingInput{}, err
	}
	items := make([]domain.JournalItem, 0, len(req.Items))
	total := decimal.Zero
	for i, it := range req.Items {
		debit, err := parseAmount("items["+strconv.Itoa(i)+"].debit", it.Debit)
		if err != nil {
			return ledger.PostingInput{}, err
		}
		credit, err := parseAmount("items["+strconv.Itoa(i)+"].credit", it.Credit)
		if err != nil {
			return ledger.PostingInput{}, err
		}
		total = total.Add(debit)
		items = append(items, domain.JournalItem{
			AccountCode: it.AccountCode,
			Description: it.Description,
			Debit:       debit,
			Credit:      credit,
		})
	}
	return ledger.PostingInput{
		Transaction: domain.Transaction{
			ReferenceNo: req.ReferenceNo,
			Type:        req.TransactionType,
			Date:        date,
			Amount:      total,
			Description: req.Description,
			CreatedBy:   creator,
		},
		Entry: domain.JournalEntry{
			Date:        date,
			Description: req.Description,
			Type:        domain.EntryType(req.Type),
			CreatedBy:   creator,
			Items:       items,
		},
	}, nil
}

func toPosting(res ledger.PostingResult) postingResponse {
	out := postingResponse{
		Entry:    toJournal(res.Entry),
		Rows:     make([]ledgerRowResponse, 0, len(res.Rows)),
		Balances: amounts(res.Balances),
	}
	for _, row := range res.Rows {
		out.Rows = append(out.Rows, toRow(row))
	}
	return out
}

func (h *Handler) showJournal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "show journal", err)
		return
	}
	entry, err := h.svc.Reader.JournalEntryByID(r.Context(), id)
	if err != nil {
		h.fail(w, r, "show journal", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toJournal(entry))
}

func (h *Handler) reverseJournal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "reverse journal", err)
		return
	}
	var req reverseRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		h.fail(w, r, "reverse journal", err)
		return
	}
	res, err := h.svc.Ledger.Reverse(r.Context(), ledger.ReverseInput{
		EntryID:     id,
		Date:        date,
		ReferenceNo: req.ReferenceNo,
		Description: req.Description,
		CreatedBy:   actor(r),
	})
	if err != nil {
		h.fail(w, r, "reverse journal", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPosting(res))
}

func (h *Handler) verifyLedger(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Ledger.VerifyLedger(r.Context())
	if err != nil {
		h.fail(w, r, "verify ledger", err)
		return
	}
	mismatches := make([]string, 0, len(report.Mismatches))
	for _, m := range report.Mismatches {
		mismatches = append(mismatches, m.Error())
	}
	status := http.StatusOK
	if !report.Balanced() {
		status = http.StatusConflict
	}
	httpx.JSON(w, status, map[string]any{
		"balanced":     report.Balanced(),
		"accounts":     report.Accounts,
		"rows":         report.Rows,
		"total_debit":  amount(report.TotalDebit),
		"total_credit": amount(report.TotalCredit),
		"mismatches":   mismatches,
	})
}
