package reports

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledgertest"
	"github.com/odyssey-erp/odyssey-ledger/internal/store"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memstore"
)

type statementFixture struct {
	store   *memstore.Store
	poster  *ledger.Poster
	builder *Builder
	jan     domain.Period
	feb     domain.Period
	seq     int
}

func newStatementFixture(t *testing.T) *statementFixture {
	t.Helper()
	st := ledgertest.Seed(t)
	f := &statementFixture{
		store:   st,
		poster:  ledger.NewPoster(st, nil, nil, ledger.Config{}),
		builder: NewBuilder(st, Config{CashCategories: []string{"CASH"}}),
		jan:     ledgertest.Period(t, st, ledgertest.Date(2024, time.January, 1)),
		feb:     ledgertest.Period(t, st, ledgertest.Date(2024, time.February, 1)),
	}
	f.post(t, time.January, 2, ledgertest.Cash, ledgertest.Capital, "10000")
	f.post(t, time.January, 10, ledgertest.Cash, ledgertest.Sales, "3000")
	f.post(t, time.January, 15, ledgertest.Supplies, ledgertest.Cash, "500")
	f.post(t, time.January, 20, ledgertest.Equipment, ledgertest.Payable, "2000")
	return f
}

func (f *statementFixture) post(t *testing.T, m time.Month, day int, debit, credit, amount string) {
	t.Helper()
	f.seq++
	_, err := f.poster.Post(context.Background(), ledger.PostingInput{
		Transaction: domain.Transaction{ReferenceNo: fmt.Sprintf("RPT-%d", f.seq)},
		Entry:       ledgertest.Entry(ledgertest.Date(2024, m, day), debit, credit, amount),
	})
	require.NoError(t, err)
}

func (f *statementFixture) build(t *testing.T, period domain.Period, typ StatementType) Statement {
	t.Helper()
	st, err := f.builder.Build(context.Background(), period.ID, typ)
	require.NoError(t, err)
	require.Equal(t, typ, st.Type)
	return st
}

func TestIncomeStatementForPeriod(t *testing.T) {
	f := newStatementFixture(t)
	f.post(t, time.February, 3, ledgertest.Cash, ledgertest.Sales, "1000")

	st := f.build(t, f.jan, StatementIncome)
	requireAmount(t, "3000", st.Sections[domain.AccountTypeRevenue][ledgertest.Sales])
	requireAmount(t, "500", st.Sections[domain.AccountTypeExpense][ledgertest.Supplies])
	requireAmount(t, "2500", st.Totals["net_income"])
	require.NotContains(t, st.Sections, domain.AccountTypeAsset)

	st = f.build(t, f.feb, StatementIncome)
	requireAmount(t, "1000", st.Totals["net_income"])
}

func TestBalanceSheetIncludesUnclosedEarnings(t *testing.T) {
	f := newStatementFixture(t)

	st := f.build(t, f.jan, StatementBalanceSheet)
	requireAmount(t, "12500", st.Sections[domain.AccountTypeAsset][ledgertest.Cash])
	requireAmount(t, "14500", st.Totals["assets"])
	requireAmount(t, "2000", st.Totals["liabilities"])
	requireAmount(t, "2500", st.Totals["unclosed_earnings"])
	requireAmount(t, "12500", st.Totals["equity"])
	require.True(t, st.BalanceSheet.Balanced())
}

func TestStatementsAfterClosingEntries(t *testing.T) {
	f := newStatementFixture(t)
	mgr := periods.NewManager(f.store, f.poster, nil, nil, nil, periods.Config{RetainedEarningsCode: ledgertest.RetainedEarnings})
	_, err := mgr.Close(context.Background(), periods.CloseInput{PeriodID: f.jan.ID, EmitClosingEntries: true})
	require.NoError(t, err)
	f.jan.Status = domain.PeriodClosed

	income := f.build(t, f.jan, StatementIncome)
	requireAmount(t, "2500", income.Totals["net_income"])

	bs := f.build(t, f.jan, StatementBalanceSheet)
	requireAmount(t, "2500", bs.Sections[domain.AccountTypeEquity][ledgertest.RetainedEarnings])
	requireAmount(t, "0", bs.Totals["unclosed_earnings"])
	requireAmount(t, "12500", bs.Totals["equity"])
	require.True(t, bs.BalanceSheet.Balanced())

	eq := f.build(t, f.jan, StatementEquityChange)
	requireAmount(t, "0", eq.Totals["opening"])
	requireAmount(t, "2500", eq.Totals["net_income"])
	requireAmount(t, "10000", eq.Totals["other_movements"])
	requireAmount(t, "12500", eq.Totals["closing"])
}

func TestCashFlowAndEquityChange(t *testing.T) {
	f := newStatementFixture(t)
	f.post(t, time.February, 3, ledgertest.Cash, ledgertest.Sales, "1000")
	f.post(t, time.February, 4, ledgertest.Payable, ledgertest.Cash, "400")

	cf := f.build(t, f.feb, StatementCashFlow)
	requireAmount(t, "12500", cf.Totals["opening_cash"])
	requireAmount(t, "600", cf.Totals["net_change"])
	requireAmount(t, "13100", cf.Totals["closing_cash"])
	require.Len(t, cf.Sections[domain.AccountTypeAsset], 1)

	eq := f.build(t, f.feb, StatementEquityChange)
	requireAmount(t, "12500", eq.Totals["opening"])
	requireAmount(t, "1000", eq.Totals["net_income"])
	requireAmount(t, "0", eq.Totals["other_movements"])
	requireAmount(t, "13500", eq.Totals["closing"])
	require.True(t, eq.Totals["closing"].Equal(eq.Totals["opening"].Add(eq.Totals["net_income"]).Add(eq.Totals["other_movements"])))
}

func TestTrialBalanceStatement(t *testing.T) {
	f := newStatementFixture(t)

	st := f.build(t, f.jan, StatementTrialBalance)
	requireAmount(t, "15500", st.Totals["debit"])
	requireAmount(t, "15500", st.Totals["credit"])
	requireAmount(t, "0", st.Totals["closing"])
	require.NotNil(t, st.TrialBalance)
}

func TestBuildRejectsClosingPeriod(t *testing.T) {
	f := newStatementFixture(t)
	err := f.store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.LockPeriod(ctx, f.feb.ID); err != nil {
			return err
		}
		return tx.UpdatePeriodStatus(ctx, f.feb.ID, domain.PeriodClosing, nil)
	})
	require.NoError(t, err)

	_, err = f.builder.Build(context.Background(), f.feb.ID, StatementIncome)
	require.ErrorIs(t, err, domain.ErrIncompletePeriod)

	_, err = f.builder.Build(context.Background(), f.jan.ID, "ratios")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}
