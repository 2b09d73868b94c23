package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PeriodStatus enumerates fiscal period states. Closed is terminal.
type PeriodStatus string

const (
	PeriodOpen    PeriodStatus = "open"
	PeriodClosing PeriodStatus = "closing"
	PeriodClosed  PeriodStatus = "closed"
)

// CanTransitionTo reports whether the state machine allows s -> next.
// Closing may fall back to open when a close attempt is aborted.
func (s PeriodStatus) CanTransitionTo(next PeriodStatus) bool {
	switch s {
	case PeriodOpen:
		return next == PeriodClosing
	case PeriodClosing:
		return next == PeriodClosed || next == PeriodOpen
	}
	return false
}

// FiscalYear spans a contiguous run of periods.
type FiscalYear struct {
	ID        int64
	Code      string
	Name      string
	StartDate time.Time
	EndDate   time.Time
	IsClosed  bool
	CreatedAt time.Time
}

// Overlaps reports whether the two years share any day.
func (y FiscalYear) Overlaps(other FiscalYear) bool {
	return !y.EndDate.Before(other.StartDate) && !other.EndDate.Before(y.StartDate)
}

// Period is an accounting window inside a fiscal year. Both bounds are inclusive days.
type Period struct {
	ID           int64
	FiscalYearID int64
	Code         string
	StartDate    time.Time
	EndDate      time.Time
	Status       PeriodStatus
	ClosedAt     *time.Time
	Version      int64
}

// Contains reports whether date falls inside the period.
func (p Period) Contains(date time.Time) bool {
	d := DateOnly(date)
	return !d.Before(p.StartDate) && !d.After(p.EndDate)
}

// PeriodBalance is an account balance captured when a period closes.
type PeriodBalance struct {
	PeriodID    int64
	AccountID   int64
	AccountCode string
	Balance     decimal.Decimal
}

// DateOnly strips the clock from t in UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MonthEnd returns the last day of t's month.
func MonthEnd(t time.Time) time.Time {
	y, m, _ := t.UTC().Date()
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC)
}

// MonthKey formats t as YYYY-MM.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
