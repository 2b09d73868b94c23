package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type stubTx struct {
	pgx.Tx
	execs     []string
	commitErr error
	committed bool
	rolled    bool
}

func (t *stubTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	t.execs = append(t.execs, sql)
	return pgconn.CommandTag{}, nil
}

func (t *stubTx) Commit(context.Context) error {
	t.committed = t.commitErr == nil
	return t.commitErr
}

func (t *stubTx) Rollback(context.Context) error {
	if !t.committed {
		t.rolled = true
	}
	return nil
}

type stubBeginner struct {
	tx   *stubTx
	opts pgx.TxOptions
	err  error
}

func (b *stubBeginner) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	b.opts = opts
	if b.err != nil {
		return nil, b.err
	}
	return b.tx, nil
}

func TestWithTxCommitsAtRepeatableRead(t *testing.T) {
	b := &stubBeginner{tx: &stubTx{}}
	err := WithTx(context.Background(), b, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, "UPDATE account_balances SET balance = 0")
		return err
	})
	require.NoError(t, err)
	require.Equal(t, pgx.RepeatableRead, b.opts.IsoLevel)
	require.True(t, b.tx.committed)
	require.False(t, b.tx.rolled)
	require.Equal(t, []string{"UPDATE account_balances SET balance = 0"}, b.tx.execs)
}

func TestWithTxRollsBackAndReturnsFnError(t *testing.T) {
	b := &stubBeginner{tx: &stubTx{}}
	sentinel := errors.New("unbalanced")
	err := WithTx(context.Background(), b, func(context.Context, pgx.Tx) error { return sentinel })
	require.Same(t, sentinel, err)
	require.True(t, b.tx.rolled)
}

func TestWithTxOptions(t *testing.T) {
	b := &stubBeginner{tx: &stubTx{}}
	err := WithTx(context.Background(), b, func(context.Context, pgx.Tx) error { return nil },
		Isolation(pgx.ReadCommitted), AdvisoryLock(42))
	require.NoError(t, err)
	require.Equal(t, pgx.ReadCommitted, b.opts.IsoLevel)
	require.Equal(t, []string{"SELECT pg_advisory_xact_lock($1)"}, b.tx.execs)
}

func TestWithTxWrapsBeginAndCommitFailures(t *testing.T) {
	noop := func(context.Context, pgx.Tx) error { return nil }

	err := WithTx(context.Background(), &stubBeginner{err: errors.New("pool closed")}, noop)
	require.ErrorContains(t, err, "begin tx: pool closed")

	serialization := &pgconn.PgError{Code: "40001"}
	err = WithTx(context.Background(), &stubBeginner{tx: &stubTx{commitErr: serialization}}, noop)
	require.ErrorContains(t, err, "commit tx")
	require.ErrorIs(t, err, serialization)
}
