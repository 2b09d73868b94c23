package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryType distinguishes regular postings from period-end and correcting entries.
type EntryType string

const (
	EntryGeneral    EntryType = "general"
	EntryAdjustment EntryType = "adjustment"
	EntryClosing    EntryType = "closing"
	EntryReversing  EntryType = "reversing"
)

// Valid reports whether e is a known entry type.
func (e EntryType) Valid() bool {
	switch e {
	case EntryGeneral, EntryAdjustment, EntryClosing, EntryReversing:
		return true
	}
	return false
}

// AllowedWhileClosing reports whether entries of this type may land in a closing period.
func (e EntryType) AllowedWhileClosing() bool {
	return e == EntryClosing || e == EntryAdjustment
}

// Transaction is the business event behind a journal entry. ReferenceNo is unique.
type Transaction struct {
	ID             int64
	ReferenceNo    string
	Type           string
	Date           time.Time
	Amount         decimal.Decimal
	Description    string
	CreatedBy      string
	Posted         bool
	PostedAt       *time.Time
	JournalEntryID int64
	CreatedAt      time.Time
}

// JournalEntry is a balanced set of debit and credit items.
type JournalEntry struct {
	ID            int64
	TransactionID int64
	Date          time.Time
	ReferenceNo   string
	Description   string
	Type          EntryType
	ReversalOf    *int64
	CreatedBy     string
	Items         []JournalItem
	CreatedAt     time.Time
}

// JournalItem is one side of a journal entry against a single account.
type JournalItem struct {
	ID          int64
	EntryID     int64
	AccountID   int64
	AccountCode string
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// Totals sums debit and credit over the items.
func (e JournalEntry) Totals() (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, item := range e.Items {
		debit = debit.Add(item.Debit)
		credit = credit.Add(item.Credit)
	}
	return debit, credit
}

// LedgerRow is an append-only general ledger line carrying the balance snapshot
// of its account after the row was applied.
type LedgerRow struct {
	ID             int64
	Seq            int64
	AccountID      int64
	AccountCode    string
	EntryID        int64
	ItemID         int64
	EntryType      EntryType
	PostingDate    time.Time
	Debit          decimal.Decimal
	Credit         decimal.Decimal
	RunningBalance decimal.Decimal
	CreatedAt      time.Time
}

// LedgerFilter narrows ledger row queries. Zero values are unbounded.
type LedgerFilter struct {
	AccountID int64
	From      time.Time
	To        time.Time
}

// Match reports whether the row satisfies the filter.
func (f LedgerFilter) Match(row LedgerRow) bool {
	if f.AccountID != 0 && row.AccountID != f.AccountID {
		return false
	}
	if !f.From.IsZero() && row.PostingDate.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && row.PostingDate.After(f.To) {
		return false
	}
	return true
}

// RowLess orders rows by posting date then insertion sequence.
func RowLess(a, b LedgerRow) bool {
	if !a.PostingDate.Equal(b.PostingDate) {
		return a.PostingDate.Before(b.PostingDate)
	}
	return a.Seq < b.Seq
}
