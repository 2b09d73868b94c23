// Package memstore keeps the ledger in process memory. Transactions buffer
// their writes and commit them under a single lock after checking the versions
// of every record they locked, so racing writers to the same account, period,
// item or asset lose with domain.ErrConcurrencyConflict instead of blocking.
package memstore

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
	"github.com/odyssey-erp/odyssey-ledger/internal/store"
)

// Store is an in-memory store.Store.
type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	ids struct {
		category, account, txn, entry, item, row atomic.Int64
		year, period, invItem, lot, movement     atomic.Int64
		asset, record                            atomic.Int64
	}

	categories     map[string]domain.Category
	accounts       map[int64]domain.Account
	accountCodes   map[string]int64
	balances       map[int64]domain.AccountBalance
	rows           []domain.LedgerRow
	transactions   map[int64]domain.Transaction
	txnRefs        map[string]int64
	entries        map[int64]domain.JournalEntry
	years          map[int64]domain.FiscalYear
	periods        map[int64]domain.Period
	periodBalances map[int64][]domain.PeriodBalance
	items          map[int64]domain.InventoryItem
	itemCodes      map[string]int64
	lots           map[int64]domain.Lot
	movements      []domain.InventoryMovement
	assets         map[int64]domain.FixedAsset
	assetCodes     map[string]int64
	records        []domain.DepreciationRecord
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		now:            func() time.Time { return time.Now().UTC() },
		categories:     make(map[string]domain.Category),
		accounts:       make(map[int64]domain.Account),
		accountCodes:   make(map[string]int64),
		balances:       make(map[int64]domain.AccountBalance),
		transactions:   make(map[int64]domain.Transaction),
		txnRefs:        make(map[string]int64),
		entries:        make(map[int64]domain.JournalEntry),
		years:          make(map[int64]domain.FiscalYear),
		periods:        make(map[int64]domain.Period),
		periodBalances: make(map[int64][]domain.PeriodBalance),
		items:          make(map[int64]domain.InventoryItem),
		itemCodes:      make(map[string]int64),
		lots:           make(map[int64]domain.Lot),
		assets:         make(map[int64]domain.FixedAsset),
		assetCodes:     make(map[string]int64),
	}
}

// WithNow overrides the clock used for created-at stamps.
func (s *Store) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithTx runs fn against a buffered transaction and commits on success.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, store.Tx) error) error {
	t := newTx(s)
	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return domain.NewStorageError("commit", err)
	}
	return s.commit(t)
}

func (s *Store) commit(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, version := range t.balanceVersions {
		if s.balances[id].Version != version {
			return domain.ErrConcurrencyConflict
		}
	}
	for id, version := range t.periodVersions {
		if s.periods[id].Version != version {
			return domain.ErrConcurrencyConflict
		}
	}
	for id, version := range t.itemVersions {
		if s.items[id].Version != version {
			return domain.ErrConcurrencyConflict
		}
	}
	for id, version := range t.assetVersions {
		if s.assets[id].Version != version {
			return domain.ErrConcurrencyConflict
		}
	}
	for _, check := range t.checks {
		if err := check(s); err != nil {
			return err
		}
	}
	for _, apply := range t.applies {
		apply(s)
	}
	return nil
}

// RowCount returns the number of ledger rows.
func (s *Store) RowCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func (s *Store) CategoryByCode(ctx context.Context, code string) (domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cat, ok := s.categories[code]
	if !ok {
		return domain.Category{}, domain.ErrNotFound
	}
	return cat, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Category, 0, len(s.categories))
	for _, cat := range s.categories {
		out = append(out, cat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Store) AccountByCode(ctx context.Context, code string) (domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.accountCodes[code]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return s.accounts[id], nil
}

func (s *Store) AccountByID(ctx context.Context, id int64) (domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return acc, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Store) AccountBalance(ctx context.Context, accountID int64) (domain.AccountBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.accounts[accountID]; !ok {
		return domain.AccountBalance{}, domain.ErrNotFound
	}
	bal, ok := s.balances[accountID]
	if !ok {
		return domain.AccountBalance{AccountID: accountID}, nil
	}
	return bal, nil
}

func (s *Store) HasLedgerRows(ctx context.Context, accountID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, row := range s.rows {
		if row.AccountID == accountID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) LedgerRows(ctx context.Context, filter domain.LedgerFilter) ([]domain.LedgerRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.LedgerRow, 0)
	for _, row := range s.rows {
		if filter.Match(row) {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return domain.RowLess(out[i], out[j]) })
	return out, nil
}

func (s *Store) TransactionByReference(ctx context.Context, ref string) (domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.txnRefs[ref]
	if !ok {
		return domain.Transaction{}, domain.ErrNotFound
	}
	return s.transactions[id], nil
}

func (s *Store) JournalEntryByID(ctx context.Context, id int64) (domain.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[id]
	if !ok {
		return domain.JournalEntry{}, domain.ErrNotFound
	}
	return cloneEntry(entry), nil
}

func (s *Store) FiscalYearByID(ctx context.Context, id int64) (domain.FiscalYear, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	year, ok := s.years[id]
	if !ok {
		return domain.FiscalYear{}, domain.ErrNotFound
	}
	return year, nil
}

func (s *Store) ListFiscalYears(ctx context.Context) ([]domain.FiscalYear, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.FiscalYear, 0, len(s.years))
	for _, year := range s.years {
		out = append(out, year)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (s *Store) PeriodByID(ctx context.Context, id int64) (domain.Period, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	period, ok := s.periods[id]
	if !ok {
		return domain.Period{}, domain.ErrNotFound
	}
	return period, nil
}

func (s *Store) PeriodForDate(ctx context.Context, date time.Time) (domain.Period, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, period := range s.periods {
		if period.Contains(date) {
			return period, nil
		}
	}
	return domain.Period{}, domain.ErrNotFound
}

func (s *Store) ListPeriods(ctx context.Context, fiscalYearID int64) ([]domain.Period, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Period, 0)
	for _, period := range s.periods {
		if fiscalYearID == 0 || period.FiscalYearID == fiscalYearID {
			out = append(out, period)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (s *Store) PeriodBalances(ctx context.Context, periodID int64) ([]domain.PeriodBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.periodBalances[periodID]
	out := make([]domain.PeriodBalance, len(src))
	copy(out, src)
	return out, nil
}

func (s *Store) InventoryItemByID(ctx context.Context, id int64) (domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return domain.InventoryItem{}, domain.ErrNotFound
	}
	return item, nil
}

func (s *Store) OpenLots(ctx context.Context, itemID int64) ([]domain.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Lot, 0)
	for _, lot := range s.lots {
		if lot.ItemID == itemID && lot.Remaining.IsPositive() {
			out = append(out, lot)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

func (s *Store) InventoryMovements(ctx context.Context, itemID int64) ([]domain.InventoryMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.InventoryMovement, 0)
	for _, mv := range s.movements {
		if mv.ItemID == itemID {
			out = append(out, cloneMovement(mv))
		}
	}
	return out, nil
}

func (s *Store) AssetByID(ctx context.Context, id int64) (domain.FixedAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	asset, ok := s.assets[id]
	if !ok {
		return domain.FixedAsset{}, domain.ErrNotFound
	}
	return asset, nil
}

func (s *Store) ListActiveAssets(ctx context.Context) ([]domain.FixedAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.FixedAsset, 0)
	for _, asset := range s.assets {
		if asset.IsActive {
			out = append(out, asset)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DepreciationRecords(ctx context.Context, assetID int64) ([]domain.DepreciationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.DepreciationRecord, 0)
	for _, rec := range s.records {
		if rec.AssetID == assetID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func cloneEntry(entry domain.JournalEntry) domain.JournalEntry {
	items := make([]domain.JournalItem, len(entry.Items))
	copy(items, entry.Items)
	entry.Items = items
	return entry
}

func cloneMovement(mv domain.InventoryMovement) domain.InventoryMovement {
	lots := make([]domain.LotConsumption, len(mv.Lots))
	copy(lots, mv.Lots)
	mv.Lots = lots
	return mv
}
