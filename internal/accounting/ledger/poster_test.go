package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledgertest"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/store"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memstore"
)

func amt(s string) decimal.Decimal { return domain.MustAmount(s) }

func jan(day int) time.Time { return ledgertest.Date(2024, time.January, day) }

func post(t *testing.T, p *Poster, ref string, entry domain.JournalEntry) PostingResult {
	t.Helper()
	res, err := p.Post(context.Background(), PostingInput{
		Transaction: domain.Transaction{ReferenceNo: ref, CreatedBy: "tester"},
		Entry:       entry,
	})
	require.NoError(t, err)
	return res
}

type outcomes struct {
	mu   sync.Mutex
	seen map[string]int
}

func (o *outcomes) ObservePosting(outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen[outcome]++
}

func TestPostWritesRowsAndBalances(t *testing.T) {
	st := ledgertest.Seed(t)
	p := NewPoster(st, nil, nil, Config{})
	rec := &outcomes{seen: map[string]int{}}
	p.WithRecorder(rec)

	res := post(t, p, "INV-1", ledgertest.Entry(jan(5), ledgertest.Cash, ledgertest.Sales, "150.2500"))
	require.True(t, res.Transaction.Posted)
	require.NotNil(t, res.Transaction.PostedAt)
	require.Equal(t, res.Entry.ID, res.Transaction.JournalEntryID)
	require.Len(t, res.Rows, 2)
	require.True(t, res.Transaction.Amount.Equal(amt("150.25")))
	require.True(t, res.Balances[ledgertest.Cash].Equal(amt("150.25")))
	require.True(t, res.Balances[ledgertest.Sales].Equal(amt("150.25")))

	post(t, p, "INV-2", ledgertest.Entry(jan(6), ledgertest.Supplies, ledgertest.Cash, "50"))
	rows, err := p.Rows(context.Background(), ledgertest.Cash, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.True(t, rows[1].RunningBalance.Equal(amt("100.25")))

	bal, err := p.BalanceAsOf(context.Background(), ledgertest.Cash, jan(5))
	require.NoError(t, err)
	require.True(t, bal.Equal(amt("150.25")))
	require.Equal(t, 2, rec.seen["posted"])
}

func TestPostDuplicateReferenceLeavesLedgerUnchanged(t *testing.T) {
	st := ledgertest.Seed(t)
	p := NewPoster(st, nil, nil, Config{})
	entry := ledgertest.Entry(jan(5), ledgertest.Cash, ledgertest.Capital, "1000")
	post(t, p, "CAP-1", entry)
	rows := st.RowCount()

	_, err := p.Post(context.Background(), PostingInput{
		Transaction: domain.Transaction{ReferenceNo: "CAP-1"},
		Entry:       entry,
	})
	require.ErrorIs(t, err, domain.ErrAlreadyPosted)
	require.Equal(t, "duplicate", Outcome(err))
	require.Equal(t, rows, st.RowCount())

	bal, err := p.BalanceAsOf(context.Background(), ledgertest.Cash, jan(31))
	require.NoError(t, err)
	require.True(t, bal.Equal(amt("1000")))
}

func TestPostRejectsClosedPeriod(t *testing.T) {
	st := ledgertest.Seed(t)
	p := NewPoster(st, nil, nil, Config{})
	post(t, p, "A-1", ledgertest.Entry(jan(5), ledgertest.Cash, ledgertest.Capital, "10"))

	period := ledgertest.Period(t, st, jan(1))
	err := st.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.LockPeriod(ctx, period.ID); err != nil {
			return err
		}
		closedAt := time.Now()
		return tx.UpdatePeriodStatus(ctx, period.ID, domain.PeriodClosed, &closedAt)
	})
	require.NoError(t, err)

	before, err := p.Rows(context.Background(), ledgertest.Cash, time.Time{}, time.Time{})
	require.NoError(t, err)

	_, err = p.Post(context.Background(), PostingInput{
		Transaction: domain.Transaction{ReferenceNo: "A-2"},
		Entry:       ledgertest.Entry(jan(20), ledgertest.Cash, ledgertest.Capital, "10"),
	})
	require.ErrorIs(t, err, domain.ErrValidation)
	require.ErrorIs(t, err, domain.ErrPeriodClosed)
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, domain.ReasonPeriodClosed, verr.Reason)

	after, err := p.Rows(context.Background(), ledgertest.Cash, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, after, len(before))

	_, err = p.Post(context.Background(), PostingInput{
		Transaction: domain.Transaction{ReferenceNo: "A-3"},
		Entry:       ledgertest.Entry(ledgertest.Date(2025, time.March, 1), ledgertest.Cash, ledgertest.Capital, "10"),
	})
	require.ErrorIs(t, err, domain.ErrPeriodClosed)
}

func TestPostAcceptsBackdatedEntries(t *testing.T) {
	st := ledgertest.Seed(t)
	p := NewPoster(st, nil, nil, Config{})
	ctx := context.Background()
	post(t, p, "S-1", ledgertest.Entry(jan(10), ledgertest.Cash, ledgertest.Sales, "100"))
	post(t, p, "S-2", ledgertest.Entry(ledgertest.Date(2024, time.February, 3), ledgertest.Cash, ledgertest.Sales, "50"))

	res := post(t, p, "S-3", ledgertest.Entry(jan(20), ledgertest.Supplies, ledgertest.Cash, "30"))
	// The snapshot is the balance as of the entry date; the running total
	// includes the later February row.
	require.True(t, res.Rows[1].RunningBalance.Equal(amt("70")), res.Rows[1].RunningBalance.String())
	require.True(t, res.Balances[ledgertest.Cash].Equal(amt("120")))

	// Same-day postings are ordered by insertion.
	res = post(t, p, "S-4", ledgertest.Entry(jan(10), ledgertest.Cash, ledgertest.Sales, "5"))
	require.True(t, res.Rows[0].RunningBalance.Equal(amt("105")))

	for _, tc := range []struct {
		date time.Time
		want string
	}{
		{jan(9), "0"},
		{jan(10), "105"},
		{jan(20), "75"},
		{ledgertest.Date(2024, time.February, 3), "125"},
	} {
		got, err := p.BalanceAsOf(ctx, ledgertest.Cash, tc.date)
		require.NoError(t, err)
		require.True(t, got.Equal(amt(tc.want)), "%s: %s", tc.date.Format(time.DateOnly), got)
	}

	report, err := p.VerifyLedger(ctx)
	require.NoError(t, err)
	require.True(t, report.Balanced(), "%v", report.Mismatches)
}

func TestVerifyAccountDetectsBackdatedSnapshotDrift(t *testing.T) {
	st := ledgertest.Seed(t)
	p := NewPoster(st, nil, nil, Config{})
	post(t, p, "D-1", ledgertest.Entry(jan(15), ledgertest.Cash, ledgertest.Capital, "40"))

	// A backdated row that claims the later row's balance is caught even
	// though the account total still folds correctly.
	err := st.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		acc, err := tx.AccountByCode(ctx, ledgertest.Cash)
		if err != nil {
			return err
		}
		bal, err := tx.LockAccountBalances(ctx, []int64{acc.ID})
		if err != nil {
			return err
		}
		_, err = tx.AppendLedgerRows(ctx, []domain.LedgerRow{{
			AccountID: acc.ID, AccountCode: acc.Code, PostingDate: jan(2),
			Debit: amt("10"), Credit: decimal.Zero, RunningBalance: amt("50"),
		}})
		if err != nil {
			return err
		}
		updated := bal[acc.ID]
		updated.Balance = amt("50")
		return tx.SaveAccountBalances(ctx, []domain.AccountBalance{updated})
	})
	require.NoError(t, err)

	var ierr *IntegrityError
	require.ErrorAs(t, p.VerifyAccount(context.Background(), ledgertest.Cash), &ierr)
	require.True(t, ierr.Expected.Equal(amt("10")))
	require.True(t, ierr.Stored.Equal(amt("50")))
}

func TestBalanceAsOfMatchesLatestSnapshot(t *testing.T) {
	st := ledgertest.Seed(t)
	p := NewPoster(st, nil, nil, Config{})
	rng := rand.New(rand.NewPCG(7, 11))
	codes := []string{ledgertest.Cash, ledgertest.Receivable, ledgertest.Payable, ledgertest.Sales, ledgertest.Supplies}

	day := 1
	for i := 0; i < 120; i++ {
		if rng.IntN(3) == 0 && day < 31 {
			day++
		}
		debit := codes[rng.IntN(len(codes))]
		credit := codes[rng.IntN(len(codes))]
		for credit == debit {
			credit = codes[rng.IntN(len(codes))]
		}
		amount := decimal.New(rng.Int64N(1_000_000)+1, -domain.Scale).String()
		post(t, p, fmt.Sprintf("R-%d", i), ledgertest.Entry(jan(day), debit, credit, amount))
	}

	ctx := context.Background()
	for _, code := range codes {
		rows, err := p.Rows(ctx, code, time.Time{}, time.Time{})
		require.NoError(t, err)
		for d := 0; d <= 31; d++ {
			asOf := jan(1).AddDate(0, 0, d-1)
			want := decimal.Zero
			for _, row := range rows {
				if !row.PostingDate.After(asOf) {
					want = row.RunningBalance
				}
			}
			got, err := p.BalanceAsOf(ctx, code, asOf)
			require.NoError(t, err)
			require.True(t, got.Equal(want), "%s as of %s: want %s got %s", code, asOf.Format(time.DateOnly), want, got)
		}
		require.NoError(t, p.VerifyAccount(ctx, code))
	}
	report, err := p.VerifyLedger(ctx)
	require.NoError(t, err)
	require.True(t, report.Balanced(), "%v", report.Mismatches)
	require.Equal(t, 240, report.Rows)
}

// failingStore fails every balance save to simulate a storage error after
// rows were staged.
type failingStore struct {
	*memstore.Store
}

type failingTx struct {
	store.Tx
}

func (f failingStore) WithTx(ctx context.Context, fn func(context.Context, store.Tx) error) error {
	return f.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, failingTx{Tx: tx})
	})
}

func (failingTx) SaveAccountBalances(context.Context, []domain.AccountBalance) error {
	return errors.New("disk full")
}

func TestStorageFailureLeavesNoRows(t *testing.T) {
	st := ledgertest.Seed(t)
	p := NewPoster(failingStore{Store: st}, nil, nil, Config{})

	_, err := p.Post(context.Background(), PostingInput{
		Transaction: domain.Transaction{ReferenceNo: "F-1"},
		Entry:       ledgertest.Entry(jan(5), ledgertest.Cash, ledgertest.Capital, "10"),
	})
	require.ErrorIs(t, err, domain.ErrStorageFailure)
	require.Equal(t, "error", Outcome(err))
	require.Zero(t, st.RowCount())

	_, err = st.TransactionByReference(context.Background(), "F-1")
	require.ErrorIs(t, err, domain.ErrNotFound)

	// The identical request succeeds once storage recovers.
	healthy := NewPoster(st, nil, nil, Config{})
	post(t, healthy, "F-1", ledgertest.Entry(jan(5), ledgertest.Cash, ledgertest.Capital, "10"))
	require.Equal(t, 2, st.RowCount())
}

func TestConcurrentPostingsStayBalanced(t *testing.T) {
	st := ledgertest.Seed(t)
	p := NewPoster(st, nil, nil, Config{MaxAttempts: 200})
	pairs := [][2]string{
		{ledgertest.Cash, ledgertest.Sales},
		{ledgertest.Supplies, ledgertest.Cash},
		{ledgertest.Receivable, ledgertest.Sales},
		{ledgertest.Inventory, ledgertest.Payable},
	}

	const workers = 40
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pair := pairs[i%len(pairs)]
			_, err := p.Post(context.Background(), PostingInput{
				Transaction: domain.Transaction{ReferenceNo: fmt.Sprintf("C-%d", i)},
				Entry:       ledgertest.Entry(jan(15), pair[0], pair[1], "12.5"),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	report, err := p.VerifyLedger(context.Background())
	require.NoError(t, err)
	require.True(t, report.Balanced(), "%v", report.Mismatches)
	require.Equal(t, workers*2, report.Rows)
	require.True(t, report.TotalDebit.Equal(amt("500")))

	cash, err := p.BalanceAsOf(context.Background(), ledgertest.Cash, jan(31))
	require.NoError(t, err)
	require.True(t, cash.IsZero(), cash.String())
}

func TestReverseSwapsSides(t *testing.T) {
	st := ledgertest.Seed(t)
	p := NewPoster(st, nil, nil, Config{})
	original := post(t, p, "INV-9", ledgertest.Entry(jan(5), ledgertest.Receivable, ledgertest.Sales, "300"))

	res, err := p.Reverse(context.Background(), ReverseInput{EntryID: original.Entry.ID, Date: jan(8), CreatedBy: "auditor"})
	require.NoError(t, err)
	require.Equal(t, "REV-INV-9", res.Transaction.ReferenceNo)
	require.Equal(t, domain.EntryReversing, res.Entry.Type)
	require.NotNil(t, res.Entry.ReversalOf)
	require.Equal(t, original.Entry.ID, *res.Entry.ReversalOf)
	require.True(t, res.Balances[ledgertest.Receivable].IsZero())
	require.True(t, res.Balances[ledgertest.Sales].IsZero())

	_, err = p.Reverse(context.Background(), ReverseInput{EntryID: original.Entry.ID, Date: jan(9)})
	require.ErrorIs(t, err, domain.ErrAlreadyPosted)

	_, err = p.Reverse(context.Background(), ReverseInput{EntryID: 999})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPostRequiresReferenceAndDate(t *testing.T) {
	st := ledgertest.Seed(t)
	p := NewPoster(st, nil, nil, Config{})

	_, err := p.Post(context.Background(), PostingInput{Entry: ledgertest.Entry(jan(5), ledgertest.Cash, ledgertest.Capital, "1")})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = p.Post(context.Background(), PostingInput{
		Transaction: domain.Transaction{ReferenceNo: "NO-DATE"},
		Entry:       ledgertest.Entry(time.Time{}, ledgertest.Cash, ledgertest.Capital, "1"),
	})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestVerifyAccountDetectsTampering(t *testing.T) {
	st := ledgertest.Seed(t)
	p := NewPoster(st, nil, nil, Config{})
	post(t, p, "T-1", ledgertest.Entry(jan(5), ledgertest.Cash, ledgertest.Capital, "10"))

	acc, err := st.AccountByCode(context.Background(), ledgertest.Cash)
	require.NoError(t, err)
	err = st.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		balances, err := tx.LockAccountBalances(ctx, []int64{acc.ID})
		if err != nil {
			return err
		}
		bal := balances[acc.ID]
		bal.Balance = amt("11")
		return tx.SaveAccountBalances(ctx, []domain.AccountBalance{bal})
	})
	require.NoError(t, err)

	err = p.VerifyAccount(context.Background(), ledgertest.Cash)
	require.ErrorIs(t, err, ErrIntegrity)
	report, err := p.VerifyLedger(context.Background())
	require.NoError(t, err)
	require.False(t, report.Balanced())
	require.Len(t, report.Mismatches, 1)
}

type failingAudit struct{}

func (failingAudit) Record(context.Context, shared.AuditLog) error {
	return errors.New("audit_logs unavailable")
}

func TestPostLogsAuditFailure(t *testing.T) {
	st := ledgertest.Seed(t)
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	p := NewPoster(st, failingAudit{}, logger, Config{})

	res := post(t, p, "AUD-1", ledgertest.Entry(jan(5), ledgertest.Cash, ledgertest.Capital, "10"))
	require.True(t, res.Transaction.Posted)
	require.Contains(t, buf.String(), "audit record")
	require.Contains(t, buf.String(), "action=journal.post")
	require.Contains(t, buf.String(), "audit_logs unavailable")
}
