package reports

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
)

// BalanceSheetAccount summarises an account for assets, liabilities, or equity.
type BalanceSheetAccount struct {
	Code    string          `json:"code"`
	Name    string          `json:"name"`
	Balance decimal.Decimal `json:"balance"`
}

// BalanceSheetSection contains the accounts and totals for a classification.
type BalanceSheetSection struct {
	Label    string                `json:"label"`
	Accounts []BalanceSheetAccount `json:"accounts"`
	Total    decimal.Decimal       `json:"total"`
}

// BalanceSheet is the structured response for the balance sheet report.
// UnclosedEarnings is revenue less expense not yet closed into retained
// earnings; it is part of the equity total.
type BalanceSheet struct {
	Assets                    BalanceSheetSection `json:"assets"`
	Liabilities               BalanceSheetSection `json:"liabilities"`
	Equity                    BalanceSheetSection `json:"equity"`
	UnclosedEarnings          decimal.Decimal     `json:"unclosed_earnings"`
	TotalLiabilitiesAndEquity decimal.Decimal     `json:"total_liabilities_and_equity"`
}

// Balanced reports whether assets equal liabilities plus equity.
func (b BalanceSheet) Balanced() bool {
	return b.Assets.Total.Equal(b.TotalLiabilitiesAndEquity)
}

// BuildBalanceSheet aggregates cumulative balances into assets, liabilities, and equity sections.
func BuildBalanceSheet(accounts []AccountBalance) BalanceSheet {
	assets := BalanceSheetSection{Label: "Assets"}
	liabilities := BalanceSheetSection{Label: "Liabilities"}
	equity := BalanceSheetSection{Label: "Equity"}

	earnings := UnclosedEarnings(accounts)
	for _, acc := range accounts {
		row := BalanceSheetAccount{Code: acc.Code, Name: acc.Name, Balance: acc.Natural(acc.Closing())}
		switch acc.Type {
		case domain.AccountTypeAsset:
			assets.Accounts = append(assets.Accounts, row)
			assets.Total = assets.Total.Add(row.Balance)
		case domain.AccountTypeLiability:
			liabilities.Accounts = append(liabilities.Accounts, row)
			liabilities.Total = liabilities.Total.Add(row.Balance)
		case domain.AccountTypeEquity:
			equity.Accounts = append(equity.Accounts, row)
			equity.Total = equity.Total.Add(row.Balance)
		}
	}
	equity.Total = equity.Total.Add(earnings)

	sort.Slice(assets.Accounts, func(i, j int) bool { return assets.Accounts[i].Code < assets.Accounts[j].Code })
	sort.Slice(liabilities.Accounts, func(i, j int) bool { return liabilities.Accounts[i].Code < liabilities.Accounts[j].Code })
	sort.Slice(equity.Accounts, func(i, j int) bool { return equity.Accounts[i].Code < equity.Accounts[j].Code })

	return BalanceSheet{
		Assets:                    assets,
		Liabilities:               liabilities,
		Equity:                    equity,
		UnclosedEarnings:          earnings,
		TotalLiabilitiesAndEquity: liabilities.Total.Add(equity.Total),
	}
}

// UnclosedEarnings sums cumulative revenue less expense.
func UnclosedEarnings(accounts []AccountBalance) decimal.Decimal {
	return unclosed(accounts, func(a AccountBalance) decimal.Decimal { return a.Closing() })
}

func openingEarnings(accounts []AccountBalance) decimal.Decimal {
	return unclosed(accounts, func(a AccountBalance) decimal.Decimal { return a.Opening })
}

func unclosed(accounts []AccountBalance, balance func(AccountBalance) decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, acc := range accounts {
		switch acc.Type {
		case domain.AccountTypeRevenue:
			total = total.Add(acc.Natural(balance(acc)))
		case domain.AccountTypeExpense:
			total = total.Sub(acc.Natural(balance(acc)))
		}
	}
	return total
}
