package memstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledgertest"
	"github.com/odyssey-erp/odyssey-ledger/internal/store"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memstore"
)

func cashID(t *testing.T, st *memstore.Store) int64 {
	t.Helper()
	acc, err := st.AccountByCode(context.Background(), ledgertest.Cash)
	require.NoError(t, err)
	return acc.ID
}

func bump(ctx context.Context, tx store.Tx, id int64, amount string) error {
	locked, err := tx.LockAccountBalances(ctx, []int64{id})
	if err != nil {
		return err
	}
	bal := locked[id]
	bal.Balance = bal.Balance.Add(domain.MustAmount(amount))
	return tx.SaveAccountBalances(ctx, []domain.AccountBalance{bal})
}

func TestCommitDetectsStaleBalance(t *testing.T) {
	st := ledgertest.Seed(t)
	ctx := context.Background()
	id := cashID(t, st)

	err := st.WithTx(ctx, func(ctx context.Context, outer store.Tx) error {
		locked, err := outer.LockAccountBalances(ctx, []int64{id})
		if err != nil {
			return err
		}
		// A competing writer commits first.
		require.NoError(t, st.WithTx(ctx, func(ctx context.Context, inner store.Tx) error {
			return bump(ctx, inner, id, "5")
		}))
		bal := locked[id]
		bal.Balance = bal.Balance.Add(domain.MustAmount("7"))
		return outer.SaveAccountBalances(ctx, []domain.AccountBalance{bal})
	})
	require.ErrorIs(t, err, domain.ErrConcurrencyConflict)
	require.True(t, domain.Retryable(err))

	bal, err := st.AccountBalance(ctx, id)
	require.NoError(t, err)
	require.True(t, bal.Balance.Equal(domain.MustAmount("5")))
	require.Equal(t, int64(1), bal.Version)
}

func TestRetryRecoversFromConflict(t *testing.T) {
	st := ledgertest.Seed(t)
	ctx := context.Background()
	id := cashID(t, st)

	calls := 0
	err := store.Retry(ctx, 3, func(ctx context.Context) error {
		calls++
		return st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			if err := bump(ctx, tx, id, "1"); err != nil {
				return err
			}
			if calls == 1 {
				return st.WithTx(ctx, func(ctx context.Context, inner store.Tx) error {
					return bump(ctx, inner, id, "10")
				})
			}
			return nil
		})
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)

	bal, err := st.AccountBalance(ctx, id)
	require.NoError(t, err)
	require.True(t, bal.Balance.Equal(domain.MustAmount("11")))
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := store.Retry(context.Background(), 5, func(context.Context) error {
		calls++
		return domain.ErrPeriodClosed
	})
	require.ErrorIs(t, err, domain.ErrPeriodClosed)
	require.Equal(t, 1, calls)
}

func TestFailedTxLeavesNoTrace(t *testing.T) {
	st := ledgertest.Seed(t)
	ctx := context.Background()
	id := cashID(t, st)

	err := st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := bump(ctx, tx, id, "99"); err != nil {
			return err
		}
		_, err := tx.AppendLedgerRows(ctx, []domain.LedgerRow{{AccountID: id, Debit: domain.MustAmount("99")}})
		if err != nil {
			return err
		}
		return domain.ErrInvalidInput
	})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	require.Zero(t, st.RowCount())

	bal, err := st.AccountBalance(ctx, id)
	require.NoError(t, err)
	require.True(t, bal.Balance.IsZero())
}

func TestUniqueCodesAndReferences(t *testing.T) {
	st := ledgertest.Seed(t)
	ctx := context.Background()

	err := st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertAccount(ctx, &domain.Account{Code: ledgertest.Cash, Name: "Duplicate", Type: domain.AccountTypeAsset})
	})
	require.ErrorIs(t, err, domain.ErrConflict)

	err = st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertCategory(ctx, &domain.Category{Code: "CASH", Name: "Again", Type: domain.AccountTypeAsset})
	})
	require.ErrorIs(t, err, domain.ErrConflict)

	insertRef := func(ref string) error {
		return st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.InsertTransaction(ctx, &domain.Transaction{ReferenceNo: ref})
		})
	}
	require.NoError(t, insertRef("INV-1"))
	require.ErrorIs(t, insertRef("INV-1"), domain.ErrAlreadyPosted)

	txn, err := st.TransactionByReference(ctx, "INV-1")
	require.NoError(t, err)
	require.False(t, txn.Posted)
	_, err = st.TransactionByReference(ctx, "INV-2")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSaveWithoutLockIsRejected(t *testing.T) {
	st := ledgertest.Seed(t)
	id := cashID(t, st)

	err := st.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.SaveAccountBalances(ctx, []domain.AccountBalance{{AccountID: id}})
	})
	require.Error(t, err)
}

func TestCancelledContextAbortsCommit(t *testing.T) {
	st := ledgertest.Seed(t)
	id := cashID(t, st)
	ctx, cancel := context.WithCancel(context.Background())

	err := st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := bump(ctx, tx, id, "3"); err != nil {
			return err
		}
		cancel()
		return nil
	})
	require.ErrorIs(t, err, domain.ErrStorageFailure)

	bal, err := st.AccountBalance(context.Background(), id)
	require.NoError(t, err)
	require.True(t, bal.Balance.IsZero())
}
