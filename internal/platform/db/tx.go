package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Beginner starts transactions. *pgxpool.Pool and *pgx.Conn satisfy it.
type Beginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

type txConfig struct {
	opts     pgx.TxOptions
	lockKey  int64
	withLock bool
}

// TxOption adjusts how WithTx opens a transaction.
type TxOption func(*txConfig)

// Isolation overrides the default REPEATABLE READ level.
func Isolation(level pgx.TxIsoLevel) TxOption {
	return func(c *txConfig) { c.opts.IsoLevel = level }
}

// AdvisoryLock takes pg_advisory_xact_lock(key) before fn runs, serialising
// every transaction that uses the same key until commit or rollback.
func AdvisoryLock(key int64) TxOption {
	return func(c *txConfig) {
		c.lockKey = key
		c.withLock = true
	}
}

// WithTx runs fn in a transaction and commits when it returns nil. Errors from
// fn are returned unwrapped so callers can classify driver errors themselves.
func WithTx(ctx context.Context, db Beginner, fn func(context.Context, pgx.Tx) error, opts ...TxOption) error {
	cfg := txConfig{opts: pgx.TxOptions{IsoLevel: pgx.RepeatableRead}}
	for _, opt := range opts {
		opt(&cfg)
	}

	tx, err := db.BeginTx(ctx, cfg.opts)
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if cfg.withLock {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", cfg.lockKey); err != nil {
			return fmt.Errorf("platform/db: advisory lock %d: %w", cfg.lockKey, err)
		}
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}
	return nil
}
