package accountinghttp

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

const maxRowsPerPage = 500

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.svc.Accounts.Categories(r.Context())
	if err != nil {
		h.fail(w, r, "list categories", err)
		return
	}
	out := make([]categoryResponse, 0, len(cats))
	for _, c := range cats {
		out = append(out, toCategory(c))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"categories": out})
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if !h.decode(w, r, &req) {
		return
	}
	cat, err := h.svc.Accounts.RegisterCategory(r.Context(), accounts.CategoryInput{
		Code: req.Code,
		Name: req.Name,
		Type: domain.AccountType(req.Type),
	})
	if err != nil {
		h.fail(w, r, "create category", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toCategory(cat))
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accts, err := h.svc.Accounts.List(r.Context())
	if err != nil {
		h.fail(w, r, "list accounts", err)
		return
	}
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	out := make([]accountResponse, 0, len(accts))
	for _, a := range accts {
		if category != "" && a.CategoryCode != category {
			continue
		}
		out = append(out, toAccount(a))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": out})
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if !h.decode(w, r, &req) {
		return
	}
	acct, err := h.svc.Accounts.Register(r.Context(), accounts.RegisterInput{
		Code:          req.Code,
		Name:          req.Name,
		Description:   req.Description,
		CategoryCode:  req.CategoryCode,
		NormalBalance: domain.NormalBalance(req.NormalBalance),
		CreatedBy:     actor(r),
	})
	if err != nil {
		h.fail(w, r, "create account", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAccount(acct))
}

func (h *Handler) showAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := h.svc.Accounts.Resolve(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, r, "show account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccount(acct))
}

func (h *Handler) deactivateAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := h.svc.Accounts.Deactivate(r.Context(), chi.URLParam(r, "code"), actor(r))
	if err != nil {
		h.fail(w, r, "deactivate account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccount(acct))
}

func (h *Handler) changeNormalBalance(w http.ResponseWriter, r *http.Request) {
	var req normalBalanceRequest
	if !h.decode(w, r, &req) {
		return
	}
	acct, err := h.svc.Accounts.ChangeNormalBalance(r.Context(), chi.URLParam(r, "code"), domain.NormalBalance(req.NormalBalance), actor(r))
	if err != nil {
		h.fail(w, r, "change normal balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccount(acct))
}

func (h *Handler) accountBalance(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	asOf, err := queryDate(r, "as_of")
	if err != nil {
		h.fail(w, r, "account balance", err)
		return
	}
	if asOf.IsZero() {
		asOf = domain.DateOnly(time.Now())
	}
	bal, err := h.svc.Ledger.BalanceAsOf(r.Context(), code, asOf)
	if err != nil {
		h.fail(w, r, "account balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"account_code": code,
		"as_of":        asOf.Format(dateLayout),
		"balance":      amount(bal),
	})
}

func (h *Handler) accountRows(w http.ResponseWriter, r *http.Request) {
	from, err := queryDate(r, "from")
	if err != nil {
		h.fail(w, r, "ledger rows", err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		h.fail(w, r, "ledger rows", err)
		return
	}
	rows, err := h.svc.Ledger.Rows(r.Context(), chi.URLParam(r, "code"), from, to)
	if err != nil {
		h.fail(w, r, "ledger rows", err)
		return
	}
	page := shared.NewPagination(queryInt(r, "page", 1), min(queryInt(r, "per_page", 100), maxRowsPerPage), len(rows))
	lo, hi := page.Bounds()
	out := make([]ledgerRowResponse, 0, hi-lo)
	for _, row := range rows[lo:hi] {
		out = append(out, toRow(row))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rows": out, "pagination": page})
}
