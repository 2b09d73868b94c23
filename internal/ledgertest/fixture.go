// Package ledgertest seeds an in-memory ledger with a small chart of
// accounts and one fiscal year for package tests.
package ledgertest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
	"github.com/odyssey-erp/odyssey-ledger/internal/store"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memstore"
)

// Chart account codes.
const (
	Cash              = "1000"
	Receivable        = "1100"
	Inventory         = "1200"
	Equipment         = "1500"
	AccumDepreciation = "1590"
	Payable           = "2000"
	Capital           = "3000"
	RetainedEarnings  = "3100"
	Sales             = "4000"
	COGS              = "5000"
	Supplies          = "5100"
	Depreciation      = "5200"
)

// Year is the seeded fiscal year code. It covers calendar 2024.
const Year = "FY2024"

type account struct {
	code, name, category string
	nb                   domain.NormalBalance
}

var categories = []domain.Category{
	{Code: "CASH", Name: "Cash and equivalents", Type: domain.AccountTypeAsset},
	{Code: "CA", Name: "Current assets", Type: domain.AccountTypeAsset},
	{Code: "FA", Name: "Fixed assets", Type: domain.AccountTypeAsset},
	{Code: "CL", Name: "Current liabilities", Type: domain.AccountTypeLiability},
	{Code: "EQ", Name: "Equity", Type: domain.AccountTypeEquity},
	{Code: "REV", Name: "Revenue", Type: domain.AccountTypeRevenue},
	{Code: "EXP", Name: "Expenses", Type: domain.AccountTypeExpense},
}

var chart = []account{
	{Cash, "Cash", "CASH", domain.NormalDebit},
	{Receivable, "Accounts receivable", "CA", domain.NormalDebit},
	{Inventory, "Inventory", "CA", domain.NormalDebit},
	{Equipment, "Equipment", "FA", domain.NormalDebit},
	{AccumDepreciation, "Accumulated depreciation", "FA", domain.NormalCredit},
	{Payable, "Accounts payable", "CL", domain.NormalCredit},
	{Capital, "Owner capital", "EQ", domain.NormalCredit},
	{RetainedEarnings, "Retained earnings", "EQ", domain.NormalCredit},
	{Sales, "Sales", "REV", domain.NormalCredit},
	{COGS, "Cost of goods sold", "EXP", domain.NormalDebit},
	{Supplies, "Supplies expense", "EXP", domain.NormalDebit},
	{Depreciation, "Depreciation expense", "EXP", domain.NormalDebit},
}

// Seed returns a memstore holding the chart and twelve open monthly periods of 2024.
func Seed(t testing.TB) *memstore.Store {
	t.Helper()
	st := memstore.New()
	SeedInto(t, st)
	return st
}

// SeedInto writes the chart and fiscal year into st.
func SeedInto(t testing.TB, st store.Store) {
	t.Helper()
	ctx := context.Background()
	err := st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		types := make(map[string]domain.AccountType, len(categories))
		for _, c := range categories {
			cat := c
			if err := tx.InsertCategory(ctx, &cat); err != nil {
				return err
			}
			types[cat.Code] = cat.Type
		}
		for _, a := range chart {
			acc := domain.Account{
				Code:          a.code,
				Name:          a.name,
				CategoryCode:  a.category,
				Type:          types[a.category],
				NormalBalance: a.nb,
				IsActive:      true,
			}
			if err := tx.InsertAccount(ctx, &acc); err != nil {
				return err
			}
		}
		year := domain.FiscalYear{
			Code:      Year,
			Name:      "Fiscal 2024",
			StartDate: Date(2024, 1, 1),
			EndDate:   Date(2024, 12, 31),
		}
		if err := tx.InsertFiscalYear(ctx, &year); err != nil {
			return err
		}
		for m := time.January; m <= time.December; m++ {
			start := Date(2024, m, 1)
			period := domain.Period{
				FiscalYearID: year.ID,
				Code:         fmt.Sprintf("%s-%02d", Year, int(m)),
				StartDate:    start,
				EndDate:      domain.MonthEnd(start),
				Status:       domain.PeriodOpen,
			}
			if err := tx.InsertPeriod(ctx, &period); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

// Date builds a UTC date.
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Entry builds a general entry with one debit and one credit line.
func Entry(date time.Time, debitCode, creditCode string, amount string) domain.JournalEntry {
	amt := domain.MustAmount(amount)
	return domain.JournalEntry{
		Date: date,
		Type: domain.EntryGeneral,
		Items: []domain.JournalItem{
			{AccountCode: debitCode, Debit: amt},
			{AccountCode: creditCode, Credit: amt},
		},
	}
}

// Period returns the seeded period covering date.
func Period(t testing.TB, st store.Reader, date time.Time) domain.Period {
	t.Helper()
	period, err := st.PeriodForDate(context.Background(), date)
	require.NoError(t, err)
	return period
}
