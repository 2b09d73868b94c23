// Package periods manages fiscal years and the open -> closing -> closed
// lifecycle of their periods.
package periods

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/lock"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/store"
)

// PostingPort posts closing entries.
type PostingPort interface {
	Post(ctx context.Context, in ledger.PostingInput) (ledger.PostingResult, error)
}

// AuditPort records period transitions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Recorder observes close outcomes.
type Recorder interface {
	ObserveClose(outcome string)
}

// Config tunes the manager.
type Config struct {
	LockTTL              time.Duration
	RetainedEarningsCode string
}

// Manager creates fiscal years and closes periods.
type Manager struct {
	store    store.Store
	poster   PostingPort
	locker   lock.Locker
	audit    AuditPort
	recorder Recorder
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
}

// NewManager constructs the period manager.
func NewManager(st store.Store, poster PostingPort, locker lock.Locker, audit AuditPort, logger *slog.Logger, cfg Config) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	return &Manager{store: st, poster: poster, locker: locker, audit: audit, logger: logger, cfg: cfg, now: time.Now}
}

// WithNow overrides the clock for testing.
func (m *Manager) WithNow(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

// WithRecorder attaches close metrics.
func (m *Manager) WithRecorder(r Recorder) {
	m.recorder = r
}

// FiscalYearInput describes a fiscal year to split into monthly periods.
type FiscalYearInput struct {
	Code      string
	Name      string
	StartDate time.Time
	EndDate   time.Time
	CreatedBy string
}

// CreateFiscalYear stores the year and its contiguous monthly periods.
func (m *Manager) CreateFiscalYear(ctx context.Context, in FiscalYearInput) (domain.FiscalYear, []domain.Period, error) {
	year := domain.FiscalYear{
		Code:      strings.TrimSpace(in.Code),
		Name:      strings.TrimSpace(in.Name),
		StartDate: domain.DateOnly(in.StartDate),
		EndDate:   domain.DateOnly(in.EndDate),
	}
	if year.Code == "" || year.StartDate.IsZero() || year.EndDate.IsZero() {
		return domain.FiscalYear{}, nil, fmt.Errorf("%w: fiscal year code and dates required", domain.ErrInvalidInput)
	}
	if year.EndDate.Before(year.StartDate) {
		return domain.FiscalYear{}, nil, fmt.Errorf("%w: fiscal year ends before it starts", domain.ErrInvalidInput)
	}
	if year.Name == "" {
		year.Name = year.Code
	}
	periods := SplitMonthly(year)
	if err := CheckContiguous(year, periods); err != nil {
		return domain.FiscalYear{}, nil, err
	}

	err := m.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		existing, err := tx.ListFiscalYears(ctx)
		if err != nil {
			return err
		}
		for _, other := range existing {
			if other.Overlaps(year) {
				return fmt.Errorf("fiscal year %q overlaps %q: %w", year.Code, other.Code, domain.ErrPeriodOverlap)
			}
		}
		if err := tx.InsertFiscalYear(ctx, &year); err != nil {
			return err
		}
		for i := range periods {
			periods[i].FiscalYearID = year.ID
			if err := tx.InsertPeriod(ctx, &periods[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.FiscalYear{}, nil, domain.NewStorageError("create fiscal year", err)
	}
	m.record(ctx, in.CreatedBy, "fiscal_year.create", "fiscal_year", year.Code, map[string]any{"periods": len(periods)})
	return year, periods, nil
}

// SplitMonthly cuts the year into calendar-month periods clipped to its
// bounds. Periods are numbered from the start of the fiscal year.
func SplitMonthly(year domain.FiscalYear) []domain.Period {
	var out []domain.Period
	for start := year.StartDate; !start.After(year.EndDate); {
		end := domain.MonthEnd(start)
		if end.After(year.EndDate) {
			end = year.EndDate
		}
		out = append(out, domain.Period{
			Code:      fmt.Sprintf("%s-%02d", year.Code, len(out)+1),
			StartDate: start,
			EndDate:   end,
			Status:    domain.PeriodOpen,
		})
		start = end.AddDate(0, 0, 1)
	}
	return out
}

// CheckContiguous verifies the periods tile the year without gaps or overlaps.
func CheckContiguous(year domain.FiscalYear, periods []domain.Period) error {
	if len(periods) == 0 {
		return fmt.Errorf("%w: fiscal year %q has no periods", domain.ErrInvalidInput, year.Code)
	}
	sorted := append([]domain.Period(nil), periods...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartDate.Before(sorted[j].StartDate) })
	if !sorted[0].StartDate.Equal(year.StartDate) || !sorted[len(sorted)-1].EndDate.Equal(year.EndDate) {
		return fmt.Errorf("%w: periods do not span fiscal year %q", domain.ErrPeriodOverlap, year.Code)
	}
	for i, p := range sorted {
		if p.EndDate.Before(p.StartDate) {
			return fmt.Errorf("%w: period %q ends before it starts", domain.ErrInvalidInput, p.Code)
		}
		if i == 0 {
			continue
		}
		if want := sorted[i-1].EndDate.AddDate(0, 0, 1); !p.StartDate.Equal(want) {
			return fmt.Errorf("%w: period %q starts %s, want %s", domain.ErrPeriodOverlap, p.Code, p.StartDate.Format("2006-01-02"), want.Format("2006-01-02"))
		}
	}
	return nil
}

// PeriodFor returns the period covering date.
func (m *Manager) PeriodFor(ctx context.Context, date time.Time) (domain.Period, error) {
	return m.store.PeriodForDate(ctx, date)
}

// ListPeriods returns the periods of a fiscal year, or all when yearID is zero.
func (m *Manager) ListPeriods(ctx context.Context, yearID int64) ([]domain.Period, error) {
	return m.store.ListPeriods(ctx, yearID)
}

// CloseInput controls a period close.
type CloseInput struct {
	PeriodID             int64
	EmitClosingEntries   bool
	RetainedEarningsCode string
	CreatedBy            string
}

// CloseResult reports the closed period and its period-end balances.
type CloseResult struct {
	Period           domain.Period
	Balances         map[string]decimal.Decimal
	ClosingEntry     *domain.JournalEntry
	FiscalYearClosed bool
}

// Close moves the period to closing, optionally posts the closing entry into
// retained earnings, snapshots period-end balances and marks it closed. Any
// failure after the period entered closing returns it to open.
func (m *Manager) Close(ctx context.Context, in CloseInput) (res CloseResult, err error) {
	if m.recorder != nil {
		defer func() { m.recorder.ObserveClose(closeOutcome(err)) }()
	}
	release, err := m.locker.Acquire(ctx, shared.PeriodCloseLockKey(in.PeriodID), m.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return CloseResult{}, fmt.Errorf("period %d: %w", in.PeriodID, domain.ErrPeriodClosing)
		}
		return CloseResult{}, domain.NewStorageError("acquire period lock", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			m.logger.Warn("release period lock", slog.Int64("period_id", in.PeriodID), slog.Any("error", err))
		}
	}()

	period, err := m.transition(ctx, in.PeriodID, domain.PeriodOpen, domain.PeriodClosing, nil)
	if err != nil {
		return CloseResult{}, err
	}
	logger := m.logger.With(slog.Int64("period_id", period.ID), slog.String("period", period.Code))
	logger.Info("period closing")

	result, err := m.finish(ctx, period, in)
	if err != nil {
		if _, rbErr := m.transition(context.WithoutCancel(ctx), period.ID, domain.PeriodClosing, domain.PeriodOpen, nil); rbErr != nil {
			logger.Error("reopen after failed close", slog.Any("error", rbErr))
		}
		logger.Warn("period close aborted", slog.Any("error", err))
		return CloseResult{}, err
	}
	logger.Info("period closed", slog.Int("accounts", len(result.Balances)))
	m.record(ctx, in.CreatedBy, "period.close", "period", period.Code, map[string]any{
		"closing_entries":    in.EmitClosingEntries,
		"fiscal_year_closed": result.FiscalYearClosed,
	})
	return result, nil
}

func closeOutcome(err error) string {
	switch {
	case err == nil:
		return "closed"
	case errors.Is(err, domain.ErrPeriodClosing):
		return "busy"
	case errors.Is(err, domain.ErrPeriodClosed):
		return "already_closed"
	default:
		return "aborted"
	}
}

func (m *Manager) transition(ctx context.Context, id int64, from, to domain.PeriodStatus, closedAt *time.Time) (domain.Period, error) {
	var period domain.Period
	err := store.Retry(ctx, store.DefaultAttempts, func(ctx context.Context) error {
		return m.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			current, err := tx.LockPeriod(ctx, id)
			if err != nil {
				return fmt.Errorf("period %d: %w", id, err)
			}
			if current.Status != from {
				switch current.Status {
				case domain.PeriodClosed:
					return fmt.Errorf("period %q: %w", current.Code, domain.ErrPeriodClosed)
				case domain.PeriodClosing:
					return fmt.Errorf("period %q: %w", current.Code, domain.ErrPeriodClosing)
				}
				return fmt.Errorf("period %q %s -> %s: %w", current.Code, current.Status, to, domain.ErrInvalidTransition)
			}
			if !current.Status.CanTransitionTo(to) {
				return fmt.Errorf("period %q %s -> %s: %w", current.Code, current.Status, to, domain.ErrInvalidTransition)
			}
			if err := tx.UpdatePeriodStatus(ctx, id, to, closedAt); err != nil {
				return err
			}
			current.Status = to
			current.ClosedAt = closedAt
			period = current
			return nil
		})
	})
	if err != nil {
		return domain.Period{}, domain.NewStorageError("period transition", err)
	}
	return period, nil
}

func (m *Manager) finish(ctx context.Context, period domain.Period, in CloseInput) (CloseResult, error) {
	result := CloseResult{}
	if in.EmitClosingEntries {
		entry, err := m.postClosingEntry(ctx, period, in)
		if err != nil {
			return CloseResult{}, err
		}
		result.ClosingEntry = entry
	}

	closedAt := m.now().UTC()
	err := store.Retry(ctx, store.DefaultAttempts, func(ctx context.Context) error {
		return m.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			current, err := tx.LockPeriod(ctx, period.ID)
			if err != nil {
				return err
			}
			if current.Status != domain.PeriodClosing {
				return fmt.Errorf("period %q %s -> %s: %w", current.Code, current.Status, domain.PeriodClosed, domain.ErrInvalidTransition)
			}
			balances, snapshot, err := periodEndBalances(ctx, tx, period)
			if err != nil {
				return err
			}
			if err := tx.InsertPeriodBalances(ctx, snapshot); err != nil {
				return err
			}
			if err := tx.UpdatePeriodStatus(ctx, period.ID, domain.PeriodClosed, &closedAt); err != nil {
				return err
			}
			siblings, err := tx.ListPeriods(ctx, period.FiscalYearID)
			if err != nil {
				return err
			}
			yearClosed := true
			for _, p := range siblings {
				if p.ID != period.ID && p.Status != domain.PeriodClosed {
					yearClosed = false
					break
				}
			}
			if yearClosed {
				if err := tx.MarkFiscalYearClosed(ctx, period.FiscalYearID); err != nil {
					return err
				}
			}
			current.Status = domain.PeriodClosed
			current.ClosedAt = &closedAt
			result.Period = current
			result.Balances = balances
			result.FiscalYearClosed = yearClosed
			return nil
		})
	})
	if err != nil {
		return CloseResult{}, domain.NewStorageError("close period", err)
	}
	return result, nil
}

func (m *Manager) postClosingEntry(ctx context.Context, period domain.Period, in CloseInput) (*domain.JournalEntry, error) {
	reCode := in.RetainedEarningsCode
	if reCode == "" {
		reCode = m.cfg.RetainedEarningsCode
	}
	if reCode == "" {
		return nil, fmt.Errorf("%w: retained earnings account required for closing entries", domain.ErrInvalidInput)
	}
	accounts, err := m.store.ListAccounts(ctx)
	if err != nil {
		return nil, domain.NewStorageError("list accounts", err)
	}
	rows, err := m.store.LedgerRows(ctx, domain.LedgerFilter{To: period.EndDate})
	if err != nil {
		return nil, domain.NewStorageError("ledger rows", err)
	}
	byAccount := groupRows(rows)

	items := make([]domain.JournalItem, 0)
	net := decimal.Zero
	for _, acc := range accounts {
		if !acc.Type.Temporary() {
			continue
		}
		balance := ledger.Fold(acc.NormalBalance, byAccount[acc.ID])
		if balance.IsZero() {
			continue
		}
		// Zero the account by posting its balance on the opposite side.
		signed := acc.NormalBalance.Delta(balance, decimal.Zero).Neg()
		item := domain.JournalItem{AccountCode: acc.Code, Description: "Closing " + period.Code, Debit: decimal.Zero, Credit: decimal.Zero}
		if signed.IsPositive() {
			item.Debit = signed
		} else {
			item.Credit = signed.Neg()
		}
		net = net.Add(item.Debit).Sub(item.Credit)
		items = append(items, item)
	}
	if len(items) == 0 {
		return nil, nil
	}
	re := domain.JournalItem{AccountCode: reCode, Description: "Net income " + period.Code, Debit: decimal.Zero, Credit: decimal.Zero}
	switch {
	case net.IsPositive():
		re.Credit = net
		items = append(items, re)
	case net.IsNegative():
		re.Debit = net.Neg()
		items = append(items, re)
	}
	if len(items) < 2 {
		return nil, nil
	}

	res, err := m.poster.Post(ctx, ledger.PostingInput{
		Transaction: domain.Transaction{
			ReferenceNo: "CLOSE-" + period.Code,
			Type:        string(domain.EntryClosing),
			Description: "Period close " + period.Code,
			CreatedBy:   in.CreatedBy,
		},
		Entry: domain.JournalEntry{
			Date:  period.EndDate,
			Type:  domain.EntryClosing,
			Items: items,
		},
	})
	if err != nil {
		return nil, err
	}
	return &res.Entry, nil
}

func periodEndBalances(ctx context.Context, tx store.Tx, period domain.Period) (map[string]decimal.Decimal, []domain.PeriodBalance, error) {
	accounts, err := tx.ListAccounts(ctx)
	if err != nil {
		return nil, nil, err
	}
	rows, err := tx.LedgerRows(ctx, domain.LedgerFilter{To: period.EndDate})
	if err != nil {
		return nil, nil, err
	}
	byAccount := groupRows(rows)
	balances := make(map[string]decimal.Decimal, len(accounts))
	snapshot := make([]domain.PeriodBalance, 0, len(accounts))
	for _, acc := range accounts {
		bal := ledger.Fold(acc.NormalBalance, byAccount[acc.ID])
		balances[acc.Code] = bal
		snapshot = append(snapshot, domain.PeriodBalance{PeriodID: period.ID, AccountID: acc.ID, AccountCode: acc.Code, Balance: bal})
	}
	return balances, snapshot, nil
}

func groupRows(rows []domain.LedgerRow) map[int64][]domain.LedgerRow {
	out := make(map[int64][]domain.LedgerRow)
	for _, row := range rows {
		out[row.AccountID] = append(out[row.AccountID], row)
	}
	return out
}

func (m *Manager) record(ctx context.Context, actor, action, entity, id string, meta map[string]any) {
	if m.audit == nil {
		return
	}
	err := m.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   entity,
		EntityID: id,
		Meta:     meta,
		At:       m.now(),
	})
	if err != nil {
		m.logger.WarnContext(ctx, "audit record", slog.String("action", action), slog.Any("error", err))
	}
}
