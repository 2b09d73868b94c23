// Package accountinghttp exposes the ledger engine as a JSON API.
package accountinghttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/assets"
	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

const defaultActor = "api"

type accountService interface {
	RegisterCategory(ctx context.Context, in accounts.CategoryInput) (domain.Category, error)
	Register(ctx context.Context, in accounts.RegisterInput) (domain.Account, error)
	Resolve(ctx context.Context, code string) (domain.Account, error)
	List(ctx context.Context) ([]domain.Account, error)
	Categories(ctx context.Context) ([]domain.Category, error)
	Deactivate(ctx context.Context, code, actor string) (domain.Account, error)
	ChangeNormalBalance(ctx context.Context, code string, nb domain.NormalBalance, actor string) (domain.Account, error)
}

type ledgerService interface {
	Post(ctx context.Context, in ledger.PostingInput) (ledger.PostingResult, error)
	Reverse(ctx context.Context, in ledger.ReverseInput) (ledger.PostingResult, error)
	Rows(ctx context.Context, code string, from, to time.Time) ([]domain.LedgerRow, error)
	BalanceAsOf(ctx context.Context, code string, date time.Time) (decimal.Decimal, error)
	VerifyLedger(ctx context.Context) (ledger.IntegrityReport, error)
}

type periodService interface {
	CreateFiscalYear(ctx context.Context, in periods.FiscalYearInput) (domain.FiscalYear, []domain.Period, error)
	ListPeriods(ctx context.Context, yearID int64) ([]domain.Period, error)
	Close(ctx context.Context, in periods.CloseInput) (periods.CloseResult, error)
}

type inventoryService interface {
	RegisterItem(ctx context.Context, in inventory.ItemInput) (domain.InventoryItem, error)
	Receive(ctx context.Context, in inventory.InboundInput) (inventory.MovementResult, error)
	Issue(ctx context.Context, in inventory.OutboundInput) (inventory.MovementResult, error)
	ValueOutbound(ctx context.Context, itemID int64, date time.Time, qty decimal.Decimal) (inventory.Valuation, error)
	Item(ctx context.Context, itemID int64) (domain.InventoryItem, error)
	Movements(ctx context.Context, itemID int64) ([]domain.InventoryMovement, error)
}

type assetService interface {
	RegisterAsset(ctx context.Context, in assets.AssetInput) (domain.FixedAsset, error)
	RunPeriod(ctx context.Context, assetID int64, periodEnd time.Time, creator string) (domain.DepreciationRecord, error)
	RunBatch(ctx context.Context, periodEnd time.Time, creator string) (assets.BatchResult, error)
	Retire(ctx context.Context, assetID int64, actor string) (domain.FixedAsset, error)
	Asset(ctx context.Context, assetID int64) (domain.FixedAsset, error)
	Records(ctx context.Context, assetID int64) ([]domain.DepreciationRecord, error)
}

type reportService interface {
	Build(ctx context.Context, periodID int64, typ reports.StatementType) (reports.Statement, error)
}

type entryReader interface {
	JournalEntryByID(ctx context.Context, id int64) (domain.JournalEntry, error)
	ListFiscalYears(ctx context.Context) ([]domain.FiscalYear, error)
}

// Services groups the engine components served over HTTP.
type Services struct {
	Accounts  accountService
	Ledger    ledgerService
	Periods   periodService
	Inventory inventoryService
	Assets    assetService
	Reports   reportService
	Reader    entryReader
}

// Config tunes the HTTP surface.
type Config struct {
	// PostingRateLimit caps journal postings per actor per minute. Zero disables the limit.
	PostingRateLimit int
}

// Handler wires HTTP endpoints for the ledger engine.
type Handler struct {
	logger    *slog.Logger
	svc       Services
	validate  *validator.Validate
	rateLimit func(http.Handler) http.Handler
}

// NewHandler constructs the ledger HTTP handler.
func NewHandler(logger *slog.Logger, svc Services, cfg Config) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	limiter := func(next http.Handler) http.Handler { return next }
	if cfg.PostingRateLimit > 0 {
		limiter = httprate.Limit(cfg.PostingRateLimit, time.Minute, httprate.WithKeyFuncs(actorKey))
	}
	return &Handler{
		logger:    logger,
		svc:       svc,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		rateLimit: limiter,
	}
}

func actorKey(r *http.Request) (string, error) {
	if actor := shared.ActorFromContext(r.Context(), ""); actor != "" {
		return "actor:" + actor, nil
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr, nil
	}
	return "ip:" + host, nil
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/categories", func(r chi.Router) {
		r.Get("/", h.listCategories)
		r.Post("/", h.createCategory)
	})
	r.Route("/accounts", func(r chi.Router) {
		r.Get("/", h.listAccounts)
		r.Post("/", h.createAccount)
		r.Route("/{code}", func(r chi.Router) {
			r.Get("/", h.showAccount)
			r.Get("/balance", h.accountBalance)
			r.Get("/rows", h.accountRows)
			r.Post("/deactivate", h.deactivateAccount)
			r.Put("/normal-balance", h.changeNormalBalance)
		})
	})
	r.Route("/journals", func(r chi.Router) {
		r.With(h.rateLimit).Post("/", h.postJournal)
		r.Get("/{id}", h.showJournal)
		r.With(h.rateLimit).Post("/{id}/reverse", h.reverseJournal)
	})
	r.Get("/ledger/verify", h.verifyLedger)
	r.Route("/fiscal-years", func(r chi.Router) {
		r.Get("/", h.listFiscalYears)
		r.Post("/", h.createFiscalYear)
		r.Get("/{id}/periods", h.listPeriods)
	})
	r.Route("/periods/{id}", func(r chi.Router) {
		r.Post("/close", h.closePeriod)
		r.Get("/statements/{type}", h.statement)
	})
	r.Route("/inventory/items", func(r chi.Router) {
		r.Post("/", h.createItem)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.showItem)
			r.Get("/movements", h.listMovements)
			r.Get("/valuation", h.valueOutbound)
			r.Post("/receipts", h.receive)
			r.Post("/issues", h.issue)
		})
	})
	r.Route("/assets", func(r chi.Router) {
		r.Post("/", h.createAsset)
		r.Post("/depreciation-runs", h.runDepreciationBatch)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.showAsset)
			r.Get("/depreciation", h.listDepreciation)
			r.Post("/depreciation", h.runDepreciation)
			r.Post("/retire", h.retireAsset)
		})
	})
}

// decode reads and validates a JSON body. A failure has already been written
// to w when it returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed JSON body: %v", domain.ErrInvalidInput, err))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Namespace()] = fe.Tag()
			}
			httpx.WriteProblem(w, httpx.ProblemDetail{
				Type:       "https://odyssey-erp.dev/problems/invalid-input",
				Title:      "Invalid Input",
				Status:     http.StatusBadRequest,
				Detail:     "request body failed validation",
				Extensions: map[string]any{"fields": fields},
			})
			return false
		}
		httpx.RespondError(w, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	p := httpx.ProblemFor(err)
	if p.Status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.String("path", r.URL.Path), slog.Any("error", err))
	} else {
		h.logger.Debug(op, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.WriteProblem(w, p)
}

func actor(r *http.Request) string {
	return shared.ActorFromContext(r.Context(), defaultActor)
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", domain.ErrInvalidInput, name)
	}
	return id, nil
}

func queryDate(r *http.Request, name string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}, nil
	}
	return parseDate(name, raw)
}

func queryInt(r *http.Request, name string, fallback int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
