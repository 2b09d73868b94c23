// Package reports aggregates ledger balances into financial statements.
package reports

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
)

// Reader is the read-only ledger view the builder needs.
type Reader interface {
	PeriodByID(ctx context.Context, id int64) (domain.Period, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	LedgerRows(ctx context.Context, filter domain.LedgerFilter) ([]domain.LedgerRow, error)
}

// Config selects the categories whose accounts count as cash.
type Config struct {
	CashCategories []string
}

// Builder produces statements for a period.
type Builder struct {
	reader Reader
	cash   map[string]struct{}
}

// NewBuilder constructs a statement builder.
func NewBuilder(reader Reader, cfg Config) *Builder {
	cash := make(map[string]struct{}, len(cfg.CashCategories))
	for _, code := range cfg.CashCategories {
		cash[code] = struct{}{}
	}
	return &Builder{reader: reader, cash: cash}
}

// Build aggregates the ledger for the period into the requested statement.
// A period that is closing yields domain.ErrIncompletePeriod.
func (b *Builder) Build(ctx context.Context, periodID int64, typ StatementType) (Statement, error) {
	if !typ.Valid() {
		return Statement{}, fmt.Errorf("%w: statement type %q", domain.ErrInvalidInput, typ)
	}
	period, err := b.reader.PeriodByID(ctx, periodID)
	if err != nil {
		return Statement{}, fmt.Errorf("period %d: %w", periodID, err)
	}
	if period.Status == domain.PeriodClosing {
		return Statement{}, fmt.Errorf("period %s: %w", period.Code, domain.ErrIncompletePeriod)
	}
	balances, err := b.Balances(ctx, period)
	if err != nil {
		return Statement{}, err
	}

	st := Statement{
		Type:       typ,
		PeriodID:   period.ID,
		PeriodCode: period.Code,
		From:       period.StartDate,
		To:         period.EndDate,
		Sections:   make(map[domain.AccountType]map[string]decimal.Decimal),
		Totals:     make(map[string]decimal.Decimal),
	}
	switch typ {
	case StatementIncome:
		b.income(&st, balances)
	case StatementBalanceSheet:
		b.balanceSheet(&st, balances)
	case StatementCashFlow:
		b.cashFlow(&st, balances)
	case StatementEquityChange:
		b.equityChange(&st, balances)
	case StatementTrialBalance:
		b.trialBalance(&st, balances)
	}
	return st, nil
}

// Balances folds every ledger row up to the period end into per-account
// opening balances and period activity.
func (b *Builder) Balances(ctx context.Context, period domain.Period) ([]AccountBalance, error) {
	accounts, err := b.reader.ListAccounts(ctx)
	if err != nil {
		return nil, domain.NewStorageError("list accounts", err)
	}
	rows, err := b.reader.LedgerRows(ctx, domain.LedgerFilter{To: period.EndDate})
	if err != nil {
		return nil, domain.NewStorageError("ledger rows", err)
	}
	byID := make(map[int64]*AccountBalance, len(accounts))
	out := make([]*AccountBalance, 0, len(accounts))
	for _, acc := range accounts {
		bal := &AccountBalance{
			Code:          acc.Code,
			Name:          acc.Name,
			Category:      acc.CategoryCode,
			Type:          acc.Type,
			NormalBalance: acc.NormalBalance,
		}
		byID[acc.ID] = bal
		out = append(out, bal)
	}
	for _, row := range rows {
		bal, ok := byID[row.AccountID]
		if !ok {
			continue
		}
		if row.PostingDate.Before(period.StartDate) {
			bal.Opening = bal.Opening.Add(bal.NormalBalance.Delta(row.Debit, row.Credit))
			continue
		}
		bal.Debit = bal.Debit.Add(row.Debit)
		bal.Credit = bal.Credit.Add(row.Credit)
		if row.EntryType == domain.EntryClosing {
			bal.ClosingDebit = bal.ClosingDebit.Add(row.Debit)
			bal.ClosingCredit = bal.ClosingCredit.Add(row.Credit)
		}
	}
	result := make([]AccountBalance, 0, len(out))
	for _, bal := range out {
		result = append(result, *bal)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result, nil
}

func (st *Statement) put(typ domain.AccountType, code string, v decimal.Decimal) {
	section, ok := st.Sections[typ]
	if !ok {
		section = make(map[string]decimal.Decimal)
		st.Sections[typ] = section
	}
	section[code] = v
}

func (b *Builder) income(st *Statement, balances []AccountBalance) {
	pl := BuildProfitAndLoss(balances)
	for _, row := range pl.Revenue.Accounts {
		st.put(domain.AccountTypeRevenue, row.Code, row.Amount)
	}
	for _, row := range pl.Expense.Accounts {
		st.put(domain.AccountTypeExpense, row.Code, row.Amount)
	}
	st.Totals["revenue"] = pl.Revenue.Total
	st.Totals["expense"] = pl.Expense.Total
	st.Totals["net_income"] = pl.NetIncome
	st.ProfitAndLoss = &pl
}

func (b *Builder) balanceSheet(st *Statement, balances []AccountBalance) {
	bs := BuildBalanceSheet(balances)
	for _, row := range bs.Assets.Accounts {
		st.put(domain.AccountTypeAsset, row.Code, row.Balance)
	}
	for _, row := range bs.Liabilities.Accounts {
		st.put(domain.AccountTypeLiability, row.Code, row.Balance)
	}
	for _, row := range bs.Equity.Accounts {
		st.put(domain.AccountTypeEquity, row.Code, row.Balance)
	}
	st.Totals["assets"] = bs.Assets.Total
	st.Totals["liabilities"] = bs.Liabilities.Total
	st.Totals["equity"] = bs.Equity.Total
	st.Totals["unclosed_earnings"] = bs.UnclosedEarnings
	st.Totals["liabilities_and_equity"] = bs.TotalLiabilitiesAndEquity
	st.BalanceSheet = &bs
}

func (b *Builder) cashFlow(st *Statement, balances []AccountBalance) {
	report := CashFlowReport{}
	for _, acc := range balances {
		if _, ok := b.cash[acc.Category]; !ok {
			continue
		}
		line := CashFlowLine{
			Code:    acc.Code,
			Name:    acc.Name,
			Opening: acc.Natural(acc.Opening),
			Change:  acc.Natural(acc.Activity(false)),
			Closing: acc.Natural(acc.Closing()),
		}
		report.Accounts = append(report.Accounts, line)
		report.Opening = report.Opening.Add(line.Opening)
		report.NetChange = report.NetChange.Add(line.Change)
		report.Closing = report.Closing.Add(line.Closing)
		st.put(acc.Type, acc.Code, line.Change)
	}
	st.Totals["opening_cash"] = report.Opening
	st.Totals["net_change"] = report.NetChange
	st.Totals["closing_cash"] = report.Closing
	st.CashFlow = &report
}

func (b *Builder) equityChange(st *Statement, balances []AccountBalance) {
	report := EquityChangeReport{}
	for _, acc := range balances {
		if acc.Type != domain.AccountTypeEquity {
			continue
		}
		line := EquityChangeLine{
			Code:     acc.Code,
			Name:     acc.Name,
			Opening:  acc.Natural(acc.Opening),
			Movement: acc.Natural(acc.Activity(false)),
			Closing:  acc.Natural(acc.Closing()),
		}
		report.Accounts = append(report.Accounts, line)
		report.Opening = report.Opening.Add(line.Opening)
		report.Closing = report.Closing.Add(line.Closing)
		report.OtherMovements = report.OtherMovements.Add(acc.Natural(acc.Activity(true)))
		st.put(acc.Type, acc.Code, line.Movement)
	}
	report.Opening = report.Opening.Add(openingEarnings(balances))
	report.Closing = report.Closing.Add(UnclosedEarnings(balances))
	report.NetIncome = BuildProfitAndLoss(balances).NetIncome

	st.Totals["opening"] = report.Opening
	st.Totals["net_income"] = report.NetIncome
	st.Totals["other_movements"] = report.OtherMovements
	st.Totals["closing"] = report.Closing
	st.EquityChange = &report
}

func (b *Builder) trialBalance(st *Statement, balances []AccountBalance) {
	tb := BuildTrialBalance(balances)
	for _, acc := range balances {
		st.put(acc.Type, acc.Code, acc.Closing())
	}
	st.Totals["debit"] = tb.TotalDebit
	st.Totals["credit"] = tb.TotalCredit
	st.Totals["opening"] = tb.TotalOpening
	st.Totals["closing"] = tb.TotalClosing
	st.TrialBalance = &tb
}
