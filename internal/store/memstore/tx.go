package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
)

// tx reads committed state and buffers writes until commit.
type tx struct {
	*Store

	balanceVersions map[int64]int64
	periodVersions  map[int64]int64
	itemVersions    map[int64]int64
	assetVersions   map[int64]int64

	checks  []func(*Store) error
	applies []func(*Store)
}

func newTx(s *Store) *tx {
	return &tx{
		Store:           s,
		balanceVersions: make(map[int64]int64),
		periodVersions:  make(map[int64]int64),
		itemVersions:    make(map[int64]int64),
		assetVersions:   make(map[int64]int64),
	}
}

func (t *tx) check(fn func(*Store) error) { t.checks = append(t.checks, fn) }
func (t *tx) apply(fn func(*Store))       { t.applies = append(t.applies, fn) }

func (t *tx) LockAccountBalances(ctx context.Context, accountIDs []int64) (map[int64]domain.AccountBalance, error) {
	ids := append([]int64(nil), accountIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[int64]domain.AccountBalance, len(ids))
	for _, id := range ids {
		if _, ok := t.accounts[id]; !ok {
			return nil, fmt.Errorf("account %d: %w", id, domain.ErrNotFound)
		}
		bal, ok := t.balances[id]
		if !ok {
			bal = domain.AccountBalance{AccountID: id}
		}
		if prev, seen := t.balanceVersions[id]; seen && prev != bal.Version {
			return nil, domain.ErrConcurrencyConflict
		}
		t.balanceVersions[id] = bal.Version
		out[id] = bal
	}
	return out, nil
}

func (t *tx) LockPeriod(ctx context.Context, id int64) (domain.Period, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	period, ok := t.periods[id]
	if !ok {
		return domain.Period{}, domain.ErrNotFound
	}
	if prev, seen := t.periodVersions[id]; seen && prev != period.Version {
		return domain.Period{}, domain.ErrConcurrencyConflict
	}
	t.periodVersions[id] = period.Version
	return period, nil
}

func (t *tx) LockInventoryItem(ctx context.Context, id int64) (domain.InventoryItem, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	item, ok := t.items[id]
	if !ok {
		return domain.InventoryItem{}, domain.ErrNotFound
	}
	if prev, seen := t.itemVersions[id]; seen && prev != item.Version {
		return domain.InventoryItem{}, domain.ErrConcurrencyConflict
	}
	t.itemVersions[id] = item.Version
	return item, nil
}

func (t *tx) LockAsset(ctx context.Context, id int64) (domain.FixedAsset, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	asset, ok := t.assets[id]
	if !ok {
		return domain.FixedAsset{}, domain.ErrNotFound
	}
	if prev, seen := t.assetVersions[id]; seen && prev != asset.Version {
		return domain.FixedAsset{}, domain.ErrConcurrencyConflict
	}
	t.assetVersions[id] = asset.Version
	return asset, nil
}

func (t *tx) InsertCategory(ctx context.Context, category *domain.Category) error {
	category.ID = t.ids.category.Add(1)
	category.CreatedAt = t.now()
	c := *category
	t.check(func(s *Store) error {
		if _, exists := s.categories[c.Code]; exists {
			return fmt.Errorf("category %q: %w", c.Code, domain.ErrConflict)
		}
		return nil
	})
	t.apply(func(s *Store) { s.categories[c.Code] = c })
	return nil
}

func (t *tx) InsertAccount(ctx context.Context, account *domain.Account) error {
	now := t.now()
	account.ID = t.ids.account.Add(1)
	account.CreatedAt = now
	account.UpdatedAt = now
	a := *account
	t.check(func(s *Store) error {
		if _, exists := s.accountCodes[a.Code]; exists {
			return fmt.Errorf("account %q: %w", a.Code, domain.ErrConflict)
		}
		return nil
	})
	t.apply(func(s *Store) {
		s.accounts[a.ID] = a
		s.accountCodes[a.Code] = a.ID
		s.balances[a.ID] = domain.AccountBalance{AccountID: a.ID}
	})
	return nil
}

func (t *tx) UpdateAccount(ctx context.Context, account domain.Account) error {
	account.UpdatedAt = t.now()
	t.check(func(s *Store) error {
		if _, ok := s.accounts[account.ID]; !ok {
			return domain.ErrNotFound
		}
		return nil
	})
	t.apply(func(s *Store) { s.accounts[account.ID] = account })
	return nil
}

func (t *tx) InsertTransaction(ctx context.Context, txn *domain.Transaction) error {
	txn.ID = t.ids.txn.Add(1)
	txn.CreatedAt = t.now()
	c := *txn
	t.check(func(s *Store) error {
		if _, exists := s.txnRefs[c.ReferenceNo]; exists {
			return fmt.Errorf("reference %q: %w", c.ReferenceNo, domain.ErrAlreadyPosted)
		}
		return nil
	})
	t.apply(func(s *Store) {
		s.transactions[c.ID] = c
		s.txnRefs[c.ReferenceNo] = c.ID
	})
	return nil
}

func (t *tx) MarkTransactionPosted(ctx context.Context, id, entryID int64, at time.Time) error {
	t.apply(func(s *Store) {
		txn := s.transactions[id]
		txn.Posted = true
		txn.PostedAt = &at
		txn.JournalEntryID = entryID
		s.transactions[id] = txn
	})
	return nil
}

func (t *tx) InsertJournalEntry(ctx context.Context, entry *domain.JournalEntry) error {
	entry.ID = t.ids.entry.Add(1)
	entry.CreatedAt = t.now()
	for i := range entry.Items {
		entry.Items[i].ID = t.ids.item.Add(1)
		entry.Items[i].EntryID = entry.ID
	}
	c := cloneEntry(*entry)
	t.apply(func(s *Store) { s.entries[c.ID] = c })
	return nil
}

func (t *tx) AppendLedgerRows(ctx context.Context, rows []domain.LedgerRow) ([]domain.LedgerRow, error) {
	out := make([]domain.LedgerRow, len(rows))
	now := t.now()
	for i, row := range rows {
		row.ID = t.ids.row.Add(1)
		row.Seq = row.ID
		row.CreatedAt = now
		out[i] = row
	}
	staged := append([]domain.LedgerRow(nil), out...)
	t.apply(func(s *Store) { s.rows = append(s.rows, staged...) })
	return out, nil
}

func (t *tx) SaveAccountBalances(ctx context.Context, balances []domain.AccountBalance) error {
	for _, bal := range balances {
		if _, locked := t.balanceVersions[bal.AccountID]; !locked {
			return fmt.Errorf("memstore: balance %d saved without lock", bal.AccountID)
		}
	}
	staged := append([]domain.AccountBalance(nil), balances...)
	t.apply(func(s *Store) {
		for _, bal := range staged {
			bal.Version = s.balances[bal.AccountID].Version + 1
			s.balances[bal.AccountID] = bal
		}
	})
	return nil
}

func (t *tx) InsertFiscalYear(ctx context.Context, year *domain.FiscalYear) error {
	year.ID = t.ids.year.Add(1)
	year.CreatedAt = t.now()
	y := *year
	t.check(func(s *Store) error {
		for _, existing := range s.years {
			if existing.Code == y.Code {
				return fmt.Errorf("fiscal year %q: %w", y.Code, domain.ErrConflict)
			}
			if existing.Overlaps(y) {
				return fmt.Errorf("fiscal year %q overlaps %q: %w", y.Code, existing.Code, domain.ErrPeriodOverlap)
			}
		}
		return nil
	})
	t.apply(func(s *Store) { s.years[y.ID] = y })
	return nil
}

func (t *tx) MarkFiscalYearClosed(ctx context.Context, id int64) error {
	t.apply(func(s *Store) {
		year := s.years[id]
		year.IsClosed = true
		s.years[id] = year
	})
	return nil
}

func (t *tx) InsertPeriod(ctx context.Context, period *domain.Period) error {
	period.ID = t.ids.period.Add(1)
	p := *period
	t.apply(func(s *Store) { s.periods[p.ID] = p })
	return nil
}

func (t *tx) UpdatePeriodStatus(ctx context.Context, id int64, status domain.PeriodStatus, closedAt *time.Time) error {
	if _, locked := t.periodVersions[id]; !locked {
		return fmt.Errorf("memstore: period %d updated without lock", id)
	}
	t.apply(func(s *Store) {
		period := s.periods[id]
		period.Status = status
		period.ClosedAt = closedAt
		period.Version++
		s.periods[id] = period
	})
	return nil
}

func (t *tx) InsertPeriodBalances(ctx context.Context, balances []domain.PeriodBalance) error {
	staged := append([]domain.PeriodBalance(nil), balances...)
	t.apply(func(s *Store) {
		for _, bal := range staged {
			s.periodBalances[bal.PeriodID] = append(s.periodBalances[bal.PeriodID], bal)
		}
	})
	return nil
}

func (t *tx) InsertInventoryItem(ctx context.Context, item *domain.InventoryItem) error {
	item.ID = t.ids.invItem.Add(1)
	item.CreatedAt = t.now()
	it := *item
	t.check(func(s *Store) error {
		if _, exists := s.itemCodes[it.Code]; exists {
			return fmt.Errorf("item %q: %w", it.Code, domain.ErrConflict)
		}
		return nil
	})
	t.apply(func(s *Store) {
		s.items[it.ID] = it
		s.itemCodes[it.Code] = it.ID
	})
	return nil
}

func (t *tx) UpdateInventoryItem(ctx context.Context, item domain.InventoryItem) error {
	if _, locked := t.itemVersions[item.ID]; !locked {
		return fmt.Errorf("memstore: item %d updated without lock", item.ID)
	}
	t.apply(func(s *Store) {
		item.Version = s.items[item.ID].Version + 1
		s.items[item.ID] = item
	})
	return nil
}

func (t *tx) InsertLot(ctx context.Context, lot *domain.Lot) error {
	lot.ID = t.ids.lot.Add(1)
	lot.Seq = lot.ID
	l := *lot
	t.apply(func(s *Store) { s.lots[l.ID] = l })
	return nil
}

func (t *tx) UpdateLotRemaining(ctx context.Context, lotID int64, remaining decimal.Decimal) error {
	t.apply(func(s *Store) {
		lot := s.lots[lotID]
		lot.Remaining = remaining
		s.lots[lotID] = lot
	})
	return nil
}

func (t *tx) InsertMovement(ctx context.Context, movement *domain.InventoryMovement) error {
	movement.ID = t.ids.movement.Add(1)
	movement.CreatedAt = t.now()
	mv := cloneMovement(*movement)
	t.apply(func(s *Store) { s.movements = append(s.movements, mv) })
	return nil
}

func (t *tx) InsertAsset(ctx context.Context, asset *domain.FixedAsset) error {
	asset.ID = t.ids.asset.Add(1)
	asset.CreatedAt = t.now()
	a := *asset
	t.check(func(s *Store) error {
		if _, exists := s.assetCodes[a.Code]; exists {
			return fmt.Errorf("asset %q: %w", a.Code, domain.ErrConflict)
		}
		return nil
	})
	t.apply(func(s *Store) {
		s.assets[a.ID] = a
		s.assetCodes[a.Code] = a.ID
	})
	return nil
}

func (t *tx) UpdateAsset(ctx context.Context, asset domain.FixedAsset) error {
	if _, locked := t.assetVersions[asset.ID]; !locked {
		return fmt.Errorf("memstore: asset %d updated without lock", asset.ID)
	}
	t.apply(func(s *Store) {
		asset.Version = s.assets[asset.ID].Version + 1
		s.assets[asset.ID] = asset
	})
	return nil
}

func (t *tx) InsertDepreciationRecord(ctx context.Context, record *domain.DepreciationRecord) error {
	record.ID = t.ids.record.Add(1)
	record.CreatedAt = t.now()
	r := *record
	t.check(func(s *Store) error {
		for _, existing := range s.records {
			if existing.AssetID == r.AssetID && domain.MonthKey(existing.PeriodEnd) == domain.MonthKey(r.PeriodEnd) {
				return fmt.Errorf("asset %d period %s: %w", r.AssetID, domain.MonthKey(r.PeriodEnd), domain.ErrAlreadyDepreciated)
			}
		}
		return nil
	})
	t.apply(func(s *Store) { s.records = append(s.records, r) })
	return nil
}
