// Package pgstore persists the ledger in PostgreSQL. Every unit of work runs
// at REPEATABLE READ; balances, items and assets are locked FOR UPDATE in id
// order and periods FOR SHARE, so serialization failures and deadlocks surface
// as domain.ErrConcurrencyConflict and the caller retries from validation.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/store"
)

//go:embed schema.sql
var schema string

// Schema returns the DDL applied by Migrate.
func Schema() string { return schema }

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a PostgreSQL store.Store.
type Store struct {
	queries
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{queries: queries{q: pool}, pool: pool}
}

// migrateLockKey serialises Migrate across processes sharing a database.
const migrateLockKey int64 = 0x6f647973

// Migrate applies the embedded schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	err := db.WithTx(ctx, s.pool, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, schema)
		return err
	}, db.Isolation(pgx.ReadCommitted), db.AdvisoryLock(migrateLockKey))
	if err != nil {
		return fmt.Errorf("pgstore: migrate: %w", err)
	}
	return nil
}

// Ping checks connectivity for health probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// WithTx runs fn inside a repeatable-read transaction.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, store.Tx) error) error {
	err := db.WithTx(ctx, s.pool, func(ctx context.Context, pgtx pgx.Tx) error {
		return fn(ctx, newTx(pgtx))
	})
	return mapErr("commit", err)
}

// Unique constraints that carry domain meaning.
const (
	constraintReference   = "uq_transactions_reference"
	constraintDepreciated = "uq_depreciation_asset_period"
)

// mapErr folds driver errors into the ledger taxonomy.
func mapErr(op string, err error) error {
	if err == nil || domain.Known(err) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%s: %w", op, domain.ErrConcurrencyConflict)
		case "23505":
			switch pgErr.ConstraintName {
			case constraintReference:
				return fmt.Errorf("%s: %w", op, domain.ErrAlreadyPosted)
			case constraintDepreciated:
				return fmt.Errorf("%s: %w", op, domain.ErrAlreadyDepreciated)
			}
			return fmt.Errorf("%s %s: %w", op, pgErr.ConstraintName, domain.ErrConflict)
		case "23503":
			return fmt.Errorf("%s %s: %w", op, pgErr.ConstraintName, domain.ErrNotFound)
		case "23514", "22P02", "22003":
			return fmt.Errorf("%s: %s: %w", op, pgErr.Message, domain.ErrInvalidInput)
		}
	}
	return domain.NewStorageError(op, err)
}
