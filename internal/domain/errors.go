package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrValidation marks every rejection raised by journal validation. Never retried.
	ErrValidation = errors.New("ledger: validation failed")
	// ErrUnknownAccount indicates an item referencing an unknown or inactive account.
	ErrUnknownAccount = errors.New("ledger: unknown or inactive account")
	// ErrMalformedItem indicates an item without exactly one positive side.
	ErrMalformedItem = errors.New("ledger: malformed journal item")
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = errors.New("ledger: journal items must balance")
	// ErrPeriodClosed indicates the entry date has no open period.
	ErrPeriodClosed = errors.New("ledger: period closed")
	// ErrPeriodClosing indicates a close is in flight for the entry's period.
	ErrPeriodClosing = errors.New("ledger: period closing")
	// ErrAlreadyPosted indicates the transaction reference was posted before.
	ErrAlreadyPosted = errors.New("ledger: transaction already posted")
	// ErrConcurrencyConflict indicates a lost optimistic race; retry from validation.
	ErrConcurrencyConflict = errors.New("ledger: concurrent modification")
	// ErrStorageFailure indicates the store failed; nothing was written.
	ErrStorageFailure = errors.New("ledger: storage failure")
	// ErrInsufficientStock indicates an outbound quantity above the on-hand quantity.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrAlreadyDepreciated indicates a fully depreciated asset or a repeated period run.
	ErrAlreadyDepreciated = errors.New("assets: already depreciated")
	// ErrAssetRetired indicates an inactive asset.
	ErrAssetRetired = errors.New("assets: asset retired")
	// ErrIncompletePeriod indicates statements were requested while postings are in flight.
	ErrIncompletePeriod = errors.New("reports: period incomplete")
	// ErrHasOpenBalance indicates deactivation of an account with a non-zero balance.
	ErrHasOpenBalance = errors.New("accounts: account has open balance")
	// ErrNormalBalanceLocked indicates a normal balance change on a referenced account.
	ErrNormalBalanceLocked = errors.New("accounts: normal balance locked by ledger rows")
	// ErrInvalidTransition indicates a disallowed period status change.
	ErrInvalidTransition = errors.New("periods: invalid status transition")
	// ErrPeriodOverlap indicates overlapping fiscal years or periods.
	ErrPeriodOverlap = errors.New("periods: overlapping period")
	// ErrNotFound indicates a missing record.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a duplicate code.
	ErrConflict = errors.New("conflict")
	// ErrInvalidInput indicates a malformed request before any business rule runs.
	ErrInvalidInput = errors.New("invalid input")
)

// Reason names the journal validation rule that rejected an entry.
type Reason string

const (
	ReasonUnknownAccount Reason = "unknown_account"
	ReasonMalformedItem  Reason = "malformed_item"
	ReasonUnbalanced     Reason = "unbalanced"
	ReasonPeriodClosed   Reason = "period_closed"
	ReasonPeriodClosing  Reason = "period_closing"
)

func (r Reason) sentinel() error {
	switch r {
	case ReasonUnknownAccount:
		return ErrUnknownAccount
	case ReasonMalformedItem:
		return ErrMalformedItem
	case ReasonUnbalanced:
		return ErrUnbalanced
	case ReasonPeriodClosed:
		return ErrPeriodClosed
	case ReasonPeriodClosing:
		return ErrPeriodClosing
	}
	return nil
}

// ValidationError carries the structured detail of a rejected journal entry.
type ValidationError struct {
	Reason      Reason
	ItemIndex   int
	AccountCode string
	Delta       decimal.Decimal
	Date        time.Time
	PeriodCode  string
	Detail      string
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case ReasonUnknownAccount:
		return fmt.Sprintf("%v: item %d account %q", ErrUnknownAccount, e.ItemIndex, e.AccountCode)
	case ReasonMalformedItem:
		return fmt.Sprintf("%v: item %d: %s", ErrMalformedItem, e.ItemIndex, e.Detail)
	case ReasonUnbalanced:
		return fmt.Sprintf("%v: delta %s", ErrUnbalanced, e.Delta.StringFixed(Scale))
	case ReasonPeriodClosed, ReasonPeriodClosing:
		msg := fmt.Sprintf("%v: %s", e.Reason.sentinel(), e.Date.Format("2006-01-02"))
		if e.PeriodCode != "" {
			msg += " (" + e.PeriodCode + ")"
		}
		return msg
	}
	return ErrValidation.Error()
}

func (e *ValidationError) Unwrap() []error {
	if s := e.Reason.sentinel(); s != nil {
		return []error{ErrValidation, s}
	}
	return []error{ErrValidation}
}

// UnknownAccount builds a rejection for item index referencing code.
func UnknownAccount(index int, code string) *ValidationError {
	return &ValidationError{Reason: ReasonUnknownAccount, ItemIndex: index, AccountCode: code}
}

// MalformedItem builds a rejection for item index.
func MalformedItem(index int, code, detail string) *ValidationError {
	return &ValidationError{Reason: ReasonMalformedItem, ItemIndex: index, AccountCode: code, Detail: detail}
}

// Unbalanced builds a rejection carrying debit - credit.
func Unbalanced(delta decimal.Decimal) *ValidationError {
	return &ValidationError{Reason: ReasonUnbalanced, ItemIndex: -1, Delta: delta}
}

// PeriodRejection builds a closed/closing rejection for date.
func PeriodRejection(status PeriodStatus, date time.Time, periodCode string) *ValidationError {
	reason := ReasonPeriodClosed
	if status == PeriodClosing {
		reason = ReasonPeriodClosing
	}
	return &ValidationError{Reason: reason, ItemIndex: -1, Date: date, PeriodCode: periodCode}
}

// InsufficientStockError reports the requested and available quantities.
type InsufficientStockError struct {
	ItemID    int64
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("%v: item %d requested %s available %s", ErrInsufficientStock, e.ItemID, e.Requested.String(), e.Available.String())
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// HasOpenBalanceError reports the balance that blocks deactivation.
type HasOpenBalanceError struct {
	Code    string
	Balance decimal.Decimal
}

func (e *HasOpenBalanceError) Error() string {
	return fmt.Sprintf("%v: %s balance %s", ErrHasOpenBalance, e.Code, e.Balance.StringFixed(Scale))
}

func (e *HasOpenBalanceError) Unwrap() error { return ErrHasOpenBalance }

// StorageError wraps a driver failure raised while reading or committing.
type StorageError struct {
	Op  string
	Err error
}

// NewStorageError wraps err unless it already belongs to the ledger taxonomy.
func NewStorageError(op string, err error) error {
	if err == nil || Known(err) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrStorageFailure, e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorageFailure, e.Err} }

// Known reports whether err is already classified.
func Known(err error) bool {
	for _, target := range []error{
		ErrValidation, ErrAlreadyPosted, ErrConcurrencyConflict, ErrStorageFailure,
		ErrInsufficientStock, ErrAlreadyDepreciated, ErrAssetRetired, ErrIncompletePeriod,
		ErrHasOpenBalance, ErrNormalBalanceLocked, ErrInvalidTransition, ErrPeriodOverlap,
		ErrNotFound, ErrConflict, ErrInvalidInput,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Retryable reports whether the operation may be retried from validation.
func Retryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}
