package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
)

// ErrIntegrity indicates stored snapshots that disagree with the row history.
var ErrIntegrity = errors.New("ledger: integrity check failed")

// BalanceAsOf folds every row of the account dated on or before date, in
// (posting date, insertion) order, applying the normal-balance sign rule.
func (p *Poster) BalanceAsOf(ctx context.Context, code string, date time.Time) (decimal.Decimal, error) {
	acc, err := p.store.AccountByCode(ctx, code)
	if err != nil {
		return decimal.Zero, err
	}
	rows, err := p.store.LedgerRows(ctx, domain.LedgerFilter{AccountID: acc.ID, To: domain.DateOnly(date)})
	if err != nil {
		return decimal.Zero, domain.NewStorageError("ledger rows", err)
	}
	return Fold(acc.NormalBalance, rows), nil
}

// Fold accumulates rows with the sign rule of nb.
func Fold(nb domain.NormalBalance, rows []domain.LedgerRow) decimal.Decimal {
	balance := decimal.Zero
	for _, row := range rows {
		balance = balance.Add(nb.Delta(row.Debit, row.Credit))
	}
	return balance
}

// Rows lists an account's ledger rows in (posting date, insertion) order.
func (p *Poster) Rows(ctx context.Context, code string, from, to time.Time) ([]domain.LedgerRow, error) {
	acc, err := p.store.AccountByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	filter := domain.LedgerFilter{AccountID: acc.ID}
	if !from.IsZero() {
		filter.From = domain.DateOnly(from)
	}
	if !to.IsZero() {
		filter.To = domain.DateOnly(to)
	}
	return p.store.LedgerRows(ctx, filter)
}

// ReverseInput identifies the entry to reverse.
type ReverseInput struct {
	EntryID     int64
	Date        time.Time
	ReferenceNo string
	Description string
	CreatedBy   string
}

// Reverse posts a reversing entry that swaps debit and credit of the original.
// Posted rows are never edited.
func (p *Poster) Reverse(ctx context.Context, in ReverseInput) (PostingResult, error) {
	if in.EntryID == 0 {
		return PostingResult{}, fmt.Errorf("%w: entry id required", domain.ErrInvalidInput)
	}
	original, err := p.store.JournalEntryByID(ctx, in.EntryID)
	if err != nil {
		return PostingResult{}, err
	}
	date := in.Date
	if date.IsZero() {
		date = p.now()
	}
	ref := in.ReferenceNo
	if ref == "" {
		ref = "REV-" + original.ReferenceNo
	}
	desc := in.Description
	if desc == "" {
		desc = fmt.Sprintf("Reversal of JE %d", original.ID)
	}
	items := make([]domain.JournalItem, 0, len(original.Items))
	for _, item := range original.Items {
		items = append(items, domain.JournalItem{
			AccountCode: item.AccountCode,
			Description: item.Description,
			Debit:       item.Credit,
			Credit:      item.Debit,
		})
	}
	originalID := original.ID
	return p.Post(ctx, PostingInput{
		Transaction: domain.Transaction{
			ReferenceNo: ref,
			Type:        string(domain.EntryReversing),
			Description: desc,
			CreatedBy:   in.CreatedBy,
		},
		Entry: domain.JournalEntry{
			Date:        date,
			Description: desc,
			Type:        domain.EntryReversing,
			ReversalOf:  &originalID,
			CreatedBy:   in.CreatedBy,
			Items:       items,
		},
	})
}

// IntegrityError describes the first row whose snapshot disagrees with the fold.
type IntegrityError struct {
	AccountCode string
	RowID       int64
	Expected    decimal.Decimal
	Stored      decimal.Decimal
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%v: account %s row %d expected %s stored %s", ErrIntegrity, e.AccountCode, e.RowID, e.Expected.String(), e.Stored.String())
}

func (e *IntegrityError) Unwrap() error { return ErrIntegrity }

// VerifyAccount replays the account's rows and compares every snapshot and
// the stored running balance against the fold. A snapshot covers the row and
// every row inserted before it with the same or an earlier posting date.
func (p *Poster) VerifyAccount(ctx context.Context, code string) error {
	acc, err := p.store.AccountByCode(ctx, code)
	if err != nil {
		return err
	}
	rows, err := p.store.LedgerRows(ctx, domain.LedgerFilter{AccountID: acc.ID})
	if err != nil {
		return domain.NewStorageError("ledger rows", err)
	}
	expected := insertionSnapshots(acc.NormalBalance, rows)
	for i, row := range rows {
		if !expected[i].Equal(row.RunningBalance) {
			return &IntegrityError{AccountCode: code, RowID: row.ID, Expected: expected[i], Stored: row.RunningBalance}
		}
	}
	balance := Fold(acc.NormalBalance, rows)
	stored, err := p.store.AccountBalance(ctx, acc.ID)
	if err != nil {
		return domain.NewStorageError("account balance", err)
	}
	if !stored.Balance.Equal(balance) {
		return &IntegrityError{AccountCode: code, Expected: balance, Stored: stored.Balance}
	}
	return nil
}

// insertionSnapshots computes the balance each row should have stored when it
// was appended. rows must be in (posting date, seq) order; they are replayed
// in seq order over a Fenwick tree keyed by posting date.
func insertionSnapshots(nb domain.NormalBalance, rows []domain.LedgerRow) []decimal.Decimal {
	rank := make([]int, len(rows))
	dates := 0
	for i, row := range rows {
		if i == 0 || !row.PostingDate.Equal(rows[i-1].PostingDate) {
			dates++
		}
		rank[i] = dates
	}
	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return rows[order[a]].Seq < rows[order[b]].Seq })

	tree := make([]decimal.Decimal, dates+1)
	out := make([]decimal.Decimal, len(rows))
	for _, i := range order {
		delta := nb.Delta(rows[i].Debit, rows[i].Credit)
		for k := rank[i]; k <= dates; k += k & -k {
			tree[k] = tree[k].Add(delta)
		}
		sum := decimal.Zero
		for k := rank[i]; k > 0; k -= k & -k {
			sum = sum.Add(tree[k])
		}
		out[i] = sum
	}
	return out
}

// IntegrityReport summarises a full ledger verification.
type IntegrityReport struct {
	Accounts    int
	Rows        int
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
	Mismatches  []error
}

// Balanced reports whether the ledger passed every check.
func (r IntegrityReport) Balanced() bool {
	return r.TotalDebit.Equal(r.TotalCredit) && len(r.Mismatches) == 0
}

// VerifyLedger checks every account and that total debits equal total credits.
func (p *Poster) VerifyLedger(ctx context.Context) (IntegrityReport, error) {
	accounts, err := p.store.ListAccounts(ctx)
	if err != nil {
		return IntegrityReport{}, domain.NewStorageError("list accounts", err)
	}
	rows, err := p.store.LedgerRows(ctx, domain.LedgerFilter{})
	if err != nil {
		return IntegrityReport{}, domain.NewStorageError("ledger rows", err)
	}
	report := IntegrityReport{Accounts: len(accounts), Rows: len(rows), TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	for _, row := range rows {
		report.TotalDebit = report.TotalDebit.Add(row.Debit)
		report.TotalCredit = report.TotalCredit.Add(row.Credit)
	}
	for _, acc := range accounts {
		if err := p.VerifyAccount(ctx, acc.Code); err != nil {
			var ierr *IntegrityError
			if !errors.As(err, &ierr) {
				return report, err
			}
			report.Mismatches = append(report.Mismatches, err)
		}
	}
	if !report.TotalDebit.Equal(report.TotalCredit) {
		report.Mismatches = append(report.Mismatches, fmt.Errorf("%w: debit %s credit %s", ErrIntegrity, report.TotalDebit.String(), report.TotalCredit.String()))
	}
	return report, nil
}
