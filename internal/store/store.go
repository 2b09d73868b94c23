// Package store defines the transactional storage boundary of the ledger.
// Implementations live in memstore (in-process) and pgstore (PostgreSQL).
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
)

// Reader exposes committed state. Reads outside a transaction may observe a
// slightly stale snapshot; every write path re-checks under Tx.
type Reader interface {
	CategoryByCode(ctx context.Context, code string) (domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	AccountByCode(ctx context.Context, code string) (domain.Account, error)
	AccountByID(ctx context.Context, id int64) (domain.Account, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	AccountBalance(ctx context.Context, accountID int64) (domain.AccountBalance, error)
	HasLedgerRows(ctx context.Context, accountID int64) (bool, error)
	LedgerRows(ctx context.Context, filter domain.LedgerFilter) ([]domain.LedgerRow, error)

	TransactionByReference(ctx context.Context, ref string) (domain.Transaction, error)
	JournalEntryByID(ctx context.Context, id int64) (domain.JournalEntry, error)

	FiscalYearByID(ctx context.Context, id int64) (domain.FiscalYear, error)
	ListFiscalYears(ctx context.Context) ([]domain.FiscalYear, error)
	PeriodByID(ctx context.Context, id int64) (domain.Period, error)
	PeriodForDate(ctx context.Context, date time.Time) (domain.Period, error)
	ListPeriods(ctx context.Context, fiscalYearID int64) ([]domain.Period, error)
	PeriodBalances(ctx context.Context, periodID int64) ([]domain.PeriodBalance, error)

	InventoryItemByID(ctx context.Context, id int64) (domain.InventoryItem, error)
	OpenLots(ctx context.Context, itemID int64) ([]domain.Lot, error)
	InventoryMovements(ctx context.Context, itemID int64) ([]domain.InventoryMovement, error)

	AssetByID(ctx context.Context, id int64) (domain.FixedAsset, error)
	ListActiveAssets(ctx context.Context) ([]domain.FixedAsset, error)
	DepreciationRecords(ctx context.Context, assetID int64) ([]domain.DepreciationRecord, error)
}

// Tx is a unit of work. Writes become visible together on commit or not at all.
// Lock* methods pin the returned version; a concurrent commit touching the same
// record makes the transaction fail with domain.ErrConcurrencyConflict.
type Tx interface {
	Reader

	LockAccountBalances(ctx context.Context, accountIDs []int64) (map[int64]domain.AccountBalance, error)
	LockPeriod(ctx context.Context, id int64) (domain.Period, error)
	LockInventoryItem(ctx context.Context, id int64) (domain.InventoryItem, error)
	LockAsset(ctx context.Context, id int64) (domain.FixedAsset, error)

	InsertCategory(ctx context.Context, category *domain.Category) error
	InsertAccount(ctx context.Context, account *domain.Account) error
	UpdateAccount(ctx context.Context, account domain.Account) error

	InsertTransaction(ctx context.Context, txn *domain.Transaction) error
	MarkTransactionPosted(ctx context.Context, id, entryID int64, at time.Time) error
	InsertJournalEntry(ctx context.Context, entry *domain.JournalEntry) error
	AppendLedgerRows(ctx context.Context, rows []domain.LedgerRow) ([]domain.LedgerRow, error)
	SaveAccountBalances(ctx context.Context, balances []domain.AccountBalance) error

	InsertFiscalYear(ctx context.Context, year *domain.FiscalYear) error
	MarkFiscalYearClosed(ctx context.Context, id int64) error
	InsertPeriod(ctx context.Context, period *domain.Period) error
	UpdatePeriodStatus(ctx context.Context, id int64, status domain.PeriodStatus, closedAt *time.Time) error
	InsertPeriodBalances(ctx context.Context, balances []domain.PeriodBalance) error

	InsertInventoryItem(ctx context.Context, item *domain.InventoryItem) error
	UpdateInventoryItem(ctx context.Context, item domain.InventoryItem) error
	InsertLot(ctx context.Context, lot *domain.Lot) error
	UpdateLotRemaining(ctx context.Context, lotID int64, remaining decimal.Decimal) error
	InsertMovement(ctx context.Context, movement *domain.InventoryMovement) error

	InsertAsset(ctx context.Context, asset *domain.FixedAsset) error
	UpdateAsset(ctx context.Context, asset domain.FixedAsset) error
	InsertDepreciationRecord(ctx context.Context, record *domain.DepreciationRecord) error
}

// Store is the single transactional storage interface.
type Store interface {
	Reader
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
}
