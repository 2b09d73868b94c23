// Package journals validates journal entries before they reach the ledger.
// Validation never writes; it reads accounts and periods through Reader.
package journals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
)

// Reader is the read-only view validation needs.
type Reader interface {
	AccountByCode(ctx context.Context, code string) (domain.Account, error)
	PeriodForDate(ctx context.Context, date time.Time) (domain.Period, error)
}

// Validator checks entries against a reader snapshot.
type Validator struct {
	reader Reader
}

// NewValidator constructs a Validator.
func NewValidator(reader Reader) *Validator {
	return &Validator{reader: reader}
}

// Validate checks entry against the validator's reader.
func (v *Validator) Validate(ctx context.Context, entry domain.JournalEntry) error {
	return Validate(ctx, v.reader, entry)
}

// Validate runs the checks in order: accounts, item shape, balance, period.
// The first failing rule is returned as a *domain.ValidationError.
func Validate(ctx context.Context, r Reader, entry domain.JournalEntry) error {
	if entry.Type != "" && !entry.Type.Valid() {
		return fmt.Errorf("%w: entry type %q", domain.ErrInvalidInput, entry.Type)
	}
	if len(entry.Items) < 2 {
		return domain.MalformedItem(len(entry.Items), "", "entry requires at least two items")
	}

	for idx, item := range entry.Items {
		if item.AccountCode == "" {
			return domain.UnknownAccount(idx, item.AccountCode)
		}
		acc, err := r.AccountByCode(ctx, item.AccountCode)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.UnknownAccount(idx, item.AccountCode)
			}
			return domain.NewStorageError("resolve account", err)
		}
		if !acc.IsActive {
			return domain.UnknownAccount(idx, item.AccountCode)
		}
	}

	for idx, item := range entry.Items {
		if err := checkItem(idx, item); err != nil {
			return err
		}
	}

	debit, credit := entry.Totals()
	if delta := domain.Round(debit).Sub(domain.Round(credit)); !delta.IsZero() {
		return domain.Unbalanced(delta)
	}

	period, err := r.PeriodForDate(ctx, entry.Date)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.PeriodRejection(domain.PeriodClosed, entry.Date, "")
		}
		return domain.NewStorageError("resolve period", err)
	}
	return CheckPeriod(period, entry)
}

// CheckPeriod rejects entries dated in a closed period or, except for closing
// and adjustment entries, in a period being closed.
func CheckPeriod(period domain.Period, entry domain.JournalEntry) error {
	switch period.Status {
	case domain.PeriodOpen:
		return nil
	case domain.PeriodClosing:
		if entry.Type.AllowedWhileClosing() {
			return nil
		}
		return domain.PeriodRejection(domain.PeriodClosing, entry.Date, period.Code)
	default:
		return domain.PeriodRejection(domain.PeriodClosed, entry.Date, period.Code)
	}
}

func checkItem(idx int, item domain.JournalItem) error {
	if item.Debit.IsNegative() || item.Credit.IsNegative() {
		return domain.MalformedItem(idx, item.AccountCode, "negative amount")
	}
	if !domain.WithinScale(item.Debit) || !domain.WithinScale(item.Credit) {
		return domain.MalformedItem(idx, item.AccountCode, fmt.Sprintf("more than %d fractional digits", domain.Scale))
	}
	hasDebit := item.Debit.GreaterThan(decimal.Zero)
	hasCredit := item.Credit.GreaterThan(decimal.Zero)
	if hasDebit == hasCredit {
		return domain.MalformedItem(idx, item.AccountCode, "exactly one of debit or credit must be non-zero")
	}
	return nil
}
