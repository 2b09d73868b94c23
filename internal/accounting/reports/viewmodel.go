package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
)

// StatementType selects the statement to build.
type StatementType string

const (
	StatementIncome       StatementType = "income_statement"
	StatementBalanceSheet StatementType = "balance_sheet"
	StatementCashFlow     StatementType = "cash_flow"
	StatementEquityChange StatementType = "equity_change"
	StatementTrialBalance StatementType = "trial_balance"
)

// Valid reports whether t is a known statement type.
func (t StatementType) Valid() bool {
	switch t {
	case StatementIncome, StatementBalanceSheet, StatementCashFlow, StatementEquityChange, StatementTrialBalance:
		return true
	}
	return false
}

// Statement is the reporting-layer view of a period. Sections maps account
// type to account code to balance; Totals carries the named figures of the
// statement type. Exactly one detail field is populated.
type Statement struct {
	Type       StatementType                                     `json:"type"`
	PeriodID   int64                                             `json:"period_id"`
	PeriodCode string                                            `json:"period_code"`
	From       time.Time                                         `json:"from"`
	To         time.Time                                         `json:"to"`
	Sections   map[domain.AccountType]map[string]decimal.Decimal `json:"sections"`
	Totals     map[string]decimal.Decimal                        `json:"totals"`

	TrialBalance  *TrialBalance       `json:"trial_balance,omitempty"`
	ProfitAndLoss *ProfitAndLoss      `json:"profit_and_loss,omitempty"`
	BalanceSheet  *BalanceSheet       `json:"balance_sheet,omitempty"`
	CashFlow      *CashFlowReport     `json:"cash_flow,omitempty"`
	EquityChange  *EquityChangeReport `json:"equity_change,omitempty"`
}

// CashFlowLine is one cash account's movement.
type CashFlowLine struct {
	Code    string          `json:"code"`
	Name    string          `json:"name"`
	Opening decimal.Decimal `json:"opening"`
	Change  decimal.Decimal `json:"change"`
	Closing decimal.Decimal `json:"closing"`
}

// CashFlowReport is the net change of cash-category accounts.
type CashFlowReport struct {
	Accounts  []CashFlowLine  `json:"accounts"`
	Opening   decimal.Decimal `json:"opening"`
	NetChange decimal.Decimal `json:"net_change"`
	Closing   decimal.Decimal `json:"closing"`
}

// EquityChangeLine is one equity account's movement.
type EquityChangeLine struct {
	Code     string          `json:"code"`
	Name     string          `json:"name"`
	Opening  decimal.Decimal `json:"opening"`
	Movement decimal.Decimal `json:"movement"`
	Closing  decimal.Decimal `json:"closing"`
}

// EquityChangeReport reconciles opening to closing equity:
// Closing = Opening + NetIncome + OtherMovements.
type EquityChangeReport struct {
	Accounts       []EquityChangeLine `json:"accounts"`
	Opening        decimal.Decimal    `json:"opening"`
	NetIncome      decimal.Decimal    `json:"net_income"`
	OtherMovements decimal.Decimal    `json:"other_movements"`
	Closing        decimal.Decimal    `json:"closing"`
}
