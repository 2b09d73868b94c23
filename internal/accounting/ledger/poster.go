// Package ledger posts validated journal entries into the general ledger and
// answers point-in-time balance queries.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/store"
)

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Recorder observes posting outcomes.
type Recorder interface {
	ObservePosting(outcome string, took time.Duration)
}

// Config tunes the poster.
type Config struct {
	MaxAttempts int
}

// Poster turns journal entries into ledger rows and running balances.
type Poster struct {
	store    store.Store
	audit    AuditPort
	recorder Recorder
	logger   *slog.Logger
	attempts int
	now      func() time.Time
}

// NewPoster constructs the ledger poster.
func NewPoster(st store.Store, audit AuditPort, logger *slog.Logger, cfg Config) *Poster {
	if logger == nil {
		logger = slog.Default()
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = store.DefaultAttempts
	}
	return &Poster{store: st, audit: audit, logger: logger, attempts: attempts, now: time.Now}
}

// WithNow overrides the clock for testing.
func (p *Poster) WithNow(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

// WithRecorder attaches posting metrics.
func (p *Poster) WithRecorder(r Recorder) {
	p.recorder = r
}

// PostingInput couples the business transaction with its journal entry.
// Transaction.ReferenceNo is the idempotency key.
type PostingInput struct {
	Transaction domain.Transaction
	Entry       domain.JournalEntry
}

// PostingResult is the committed state produced by a posting.
type PostingResult struct {
	Transaction domain.Transaction
	Entry       domain.JournalEntry
	Rows        []domain.LedgerRow
	Balances    map[string]decimal.Decimal
}

// Post validates and atomically posts the entry. A reference that was
// already posted yields domain.ErrAlreadyPosted and leaves the ledger untouched.
// Lost optimistic races are retried from validation.
func (p *Poster) Post(ctx context.Context, in PostingInput) (PostingResult, error) {
	start := p.now()
	in, err := normalize(in)
	if err != nil {
		return PostingResult{}, err
	}
	var result PostingResult
	err = store.Retry(ctx, p.attempts, func(ctx context.Context) error {
		if err := p.ensureNotPosted(ctx, in.Transaction.ReferenceNo); err != nil {
			return err
		}
		if err := journals.Validate(ctx, p.store, in.Entry); err != nil {
			return err
		}
		return p.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			res, err := p.PostInTx(ctx, tx, in)
			if err != nil {
				return err
			}
			result = res
			return nil
		})
	})
	p.observe(start, err)
	if err != nil {
		p.logger.DebugContext(ctx, "posting rejected",
			slog.String("reference", in.Transaction.ReferenceNo),
			slog.Any("error", err),
		)
		return PostingResult{}, err
	}
	if p.audit != nil {
		err := p.audit.Record(ctx, shared.AuditLog{
			ActorID:  result.Transaction.CreatedBy,
			Action:   "journal.post",
			Entity:   "journal_entry",
			EntityID: fmt.Sprintf("%d", result.Entry.ID),
			Meta: map[string]any{
				"reference": result.Transaction.ReferenceNo,
				"type":      string(result.Entry.Type),
				"amount":    result.Transaction.Amount.StringFixed(domain.Scale),
			},
			At: p.now(),
		})
		if err != nil {
			p.logger.WarnContext(ctx, "audit record", slog.String("action", "journal.post"), slog.Any("error", err))
		}
	}
	return result, nil
}

// PostInTx runs the atomic part of a posting inside a caller-owned
// transaction. The caller is responsible for retrying on conflict.
func (p *Poster) PostInTx(ctx context.Context, tx store.Tx, in PostingInput) (PostingResult, error) {
	in, err := normalize(in)
	if err != nil {
		return PostingResult{}, err
	}
	entry := in.Entry

	if err := ensureNotPostedIn(ctx, tx, in.Transaction.ReferenceNo); err != nil {
		return PostingResult{}, err
	}

	accounts := make(map[string]domain.Account, len(entry.Items))
	ids := make([]int64, 0, len(entry.Items))
	for _, item := range entry.Items {
		if _, seen := accounts[item.AccountCode]; seen {
			continue
		}
		acc, err := tx.AccountByCode(ctx, item.AccountCode)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return PostingResult{}, domain.NewStorageError("resolve account", err)
		}
		accounts[item.AccountCode] = acc
		ids = append(ids, acc.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	balances, err := tx.LockAccountBalances(ctx, ids)
	if err != nil {
		return PostingResult{}, domain.NewStorageError("lock balances", err)
	}
	if period, err := tx.PeriodForDate(ctx, entry.Date); err == nil {
		if _, err := tx.LockPeriod(ctx, period.ID); err != nil {
			return PostingResult{}, domain.NewStorageError("lock period", err)
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return PostingResult{}, domain.NewStorageError("resolve period", err)
	}

	// Re-check under the locks; the snapshot used before the transaction may be stale.
	if err := journals.Validate(ctx, tx, entry); err != nil {
		return PostingResult{}, err
	}
	snapshots, err := balancesThrough(ctx, tx, entry.Date, accounts, balances)
	if err != nil {
		return PostingResult{}, domain.NewStorageError("fold backdated rows", err)
	}

	debit, _ := entry.Totals()
	txn := in.Transaction
	txn.Date = entry.Date
	txn.Amount = debit
	txn.Posted = false
	if err := tx.InsertTransaction(ctx, &txn); err != nil {
		return PostingResult{}, domain.NewStorageError("insert transaction", err)
	}

	entry.TransactionID = txn.ID
	for i := range entry.Items {
		entry.Items[i].AccountID = accounts[entry.Items[i].AccountCode].ID
	}
	if err := tx.InsertJournalEntry(ctx, &entry); err != nil {
		return PostingResult{}, domain.NewStorageError("insert journal entry", err)
	}

	rows := make([]domain.LedgerRow, 0, len(entry.Items))
	for _, item := range entry.Items {
		acc := accounts[item.AccountCode]
		delta := acc.NormalBalance.Delta(item.Debit, item.Credit)
		bal := balances[acc.ID]
		bal.Balance = bal.Balance.Add(delta)
		if entry.Date.After(bal.LastPostingDate) {
			bal.LastPostingDate = entry.Date
		}
		balances[acc.ID] = bal
		snapshots[acc.ID] = snapshots[acc.ID].Add(delta)
		rows = append(rows, domain.LedgerRow{
			AccountID:      acc.ID,
			AccountCode:    acc.Code,
			EntryID:        entry.ID,
			ItemID:         item.ID,
			EntryType:      entry.Type,
			PostingDate:    entry.Date,
			Debit:          item.Debit,
			Credit:         item.Credit,
			RunningBalance: snapshots[acc.ID],
		})
	}
	rows, err = tx.AppendLedgerRows(ctx, rows)
	if err != nil {
		return PostingResult{}, domain.NewStorageError("append ledger rows", err)
	}

	updated := make([]domain.AccountBalance, 0, len(ids))
	after := make(map[string]decimal.Decimal, len(accounts))
	for _, id := range ids {
		updated = append(updated, balances[id])
	}
	for code, acc := range accounts {
		after[code] = balances[acc.ID].Balance
	}
	if err := tx.SaveAccountBalances(ctx, updated); err != nil {
		return PostingResult{}, domain.NewStorageError("save balances", err)
	}

	postedAt := p.now().UTC()
	if err := tx.MarkTransactionPosted(ctx, txn.ID, entry.ID, postedAt); err != nil {
		return PostingResult{}, domain.NewStorageError("mark posted", err)
	}
	txn.Posted = true
	txn.PostedAt = &postedAt
	txn.JournalEntryID = entry.ID

	return PostingResult{Transaction: txn, Entry: entry, Rows: rows, Balances: after}, nil
}

// balancesThrough returns each account's balance as of date. Accounts with no
// row after date use the locked running balance; backdated postings fold the
// account's rows dated on or before date.
func balancesThrough(ctx context.Context, tx store.Reader, date time.Time, accounts map[string]domain.Account, locked map[int64]domain.AccountBalance) (map[int64]decimal.Decimal, error) {
	out := make(map[int64]decimal.Decimal, len(accounts))
	for _, acc := range accounts {
		bal := locked[acc.ID]
		if !date.Before(bal.LastPostingDate) {
			out[acc.ID] = bal.Balance
			continue
		}
		rows, err := tx.LedgerRows(ctx, domain.LedgerFilter{AccountID: acc.ID, To: date})
		if err != nil {
			return nil, err
		}
		out[acc.ID] = Fold(acc.NormalBalance, rows)
	}
	return out, nil
}

func (p *Poster) ensureNotPosted(ctx context.Context, ref string) error {
	return ensureNotPostedIn(ctx, p.store, ref)
}

type referenceReader interface {
	TransactionByReference(ctx context.Context, ref string) (domain.Transaction, error)
}

func ensureNotPostedIn(ctx context.Context, r referenceReader, ref string) error {
	txn, err := r.TransactionByReference(ctx, ref)
	switch {
	case err == nil && txn.Posted:
		return fmt.Errorf("reference %q: %w", ref, domain.ErrAlreadyPosted)
	case err == nil, errors.Is(err, domain.ErrNotFound):
		return nil
	default:
		return domain.NewStorageError("lookup transaction", err)
	}
}

func (p *Poster) observe(start time.Time, err error) {
	if p.recorder == nil {
		return
	}
	p.recorder.ObservePosting(Outcome(err), p.now().Sub(start))
}

// Outcome labels err for metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "posted"
	case errors.Is(err, domain.ErrAlreadyPosted):
		return "duplicate"
	case errors.Is(err, domain.ErrValidation):
		return "rejected"
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return "conflict"
	default:
		return "error"
	}
}

func normalize(in PostingInput) (PostingInput, error) {
	ref := strings.TrimSpace(in.Transaction.ReferenceNo)
	if ref == "" {
		ref = strings.TrimSpace(in.Entry.ReferenceNo)
	}
	if ref == "" {
		return in, fmt.Errorf("%w: reference number required", domain.ErrInvalidInput)
	}
	if in.Entry.Date.IsZero() {
		in.Entry.Date = in.Transaction.Date
	}
	if in.Entry.Date.IsZero() {
		return in, fmt.Errorf("%w: entry date required", domain.ErrInvalidInput)
	}
	if in.Entry.Type == "" {
		in.Entry.Type = domain.EntryGeneral
	}
	if in.Transaction.Type == "" {
		in.Transaction.Type = string(in.Entry.Type)
	}
	if in.Entry.CreatedBy == "" {
		in.Entry.CreatedBy = in.Transaction.CreatedBy
	}
	if in.Transaction.CreatedBy == "" {
		in.Transaction.CreatedBy = in.Entry.CreatedBy
	}
	if in.Entry.Description == "" {
		in.Entry.Description = in.Transaction.Description
	}
	in.Transaction.ReferenceNo = ref
	in.Entry.ReferenceNo = ref
	in.Entry.Date = domain.DateOnly(in.Entry.Date)
	items := make([]domain.JournalItem, len(in.Entry.Items))
	copy(items, in.Entry.Items)
	for i := range items {
		items[i].AccountCode = strings.TrimSpace(items[i].AccountCode)
	}
	in.Entry.Items = items
	return in, nil
}
