package pgstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
	"github.com/odyssey-erp/odyssey-ledger/internal/store"
)

type tx struct {
	queries
	pgtx pgx.Tx
}

func newTx(pgtx pgx.Tx) *tx {
	return &tx{queries: queries{q: pgtx}, pgtx: pgtx}
}

var _ store.Tx = (*tx)(nil)

func (t *tx) exec(ctx context.Context, op, sql string, args ...any) error {
	tag, err := t.q.Exec(ctx, sql, args...)
	if err != nil {
		return mapErr(op, err)
	}
	if tag.RowsAffected() == 0 && (tag.Update() || tag.Delete()) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return nil
}

func (t *tx) LockAccountBalances(ctx context.Context, accountIDs []int64) (map[int64]domain.AccountBalance, error) {
	ids := slices.Clone(accountIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	locked, err := many(ctx, t.q, "lock balances", scanBalance,
		`SELECT account_id, balance, last_posting_date, version FROM account_balances
WHERE account_id = ANY($1) ORDER BY account_id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]domain.AccountBalance, len(locked))
	for _, bal := range locked {
		out[bal.AccountID] = bal
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, fmt.Errorf("account %d: %w", id, domain.ErrNotFound)
		}
	}
	return out, nil
}

func (t *tx) LockPeriod(ctx context.Context, id int64) (domain.Period, error) {
	return one(ctx, t.q, "lock period", scanPeriod,
		`SELECT `+periodColumns+` FROM accounting_periods WHERE id = $1 FOR SHARE`, id)
}

func (t *tx) LockInventoryItem(ctx context.Context, id int64) (domain.InventoryItem, error) {
	return one(ctx, t.q, "lock item", scanItem,
		`SELECT `+itemColumns+` FROM inventory_items WHERE id = $1 FOR UPDATE`, id)
}

func (t *tx) LockAsset(ctx context.Context, id int64) (domain.FixedAsset, error) {
	return one(ctx, t.q, "lock asset", scanAsset,
		`SELECT `+assetColumns+` FROM fixed_assets WHERE id = $1 FOR UPDATE`, id)
}

func (t *tx) InsertCategory(ctx context.Context, c *domain.Category) error {
	err := t.q.QueryRow(ctx, `INSERT INTO account_categories (code, name, type) VALUES ($1,$2,$3) RETURNING id, created_at`,
		c.Code, c.Name, c.Type).Scan(&c.ID, &c.CreatedAt)
	return mapErr("insert category", err)
}

func (t *tx) InsertAccount(ctx context.Context, a *domain.Account) error {
	err := t.q.QueryRow(ctx, `INSERT INTO accounts (code, name, description, category_code, type, normal_balance, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id, created_at, updated_at`,
		a.Code, a.Name, a.Description, a.CategoryCode, a.Type, a.NormalBalance, a.IsActive).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return mapErr("insert account", err)
	}
	return t.exec(ctx, "insert account balance", `INSERT INTO account_balances (account_id) VALUES ($1)`, a.ID)
}

func (t *tx) UpdateAccount(ctx context.Context, a domain.Account) error {
	return t.exec(ctx, "update account", `UPDATE accounts SET name = $2, description = $3, normal_balance = $4, is_active = $5, updated_at = NOW()
WHERE id = $1`, a.ID, a.Name, a.Description, a.NormalBalance, a.IsActive)
}

func (t *tx) InsertTransaction(ctx context.Context, txn *domain.Transaction) error {
	err := t.q.QueryRow(ctx, `INSERT INTO transactions (reference_no, type, date, amount, description, created_by)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at`,
		txn.ReferenceNo, txn.Type, domain.DateOnly(txn.Date), txn.Amount, txn.Description, txn.CreatedBy).Scan(&txn.ID, &txn.CreatedAt)
	return mapErr("insert transaction", err)
}

func (t *tx) MarkTransactionPosted(ctx context.Context, id, entryID int64, at time.Time) error {
	return t.exec(ctx, "mark transaction posted",
		`UPDATE transactions SET posted = TRUE, posted_at = $2, journal_entry_id = $3 WHERE id = $1`, id, at, entryID)
}

func (t *tx) InsertJournalEntry(ctx context.Context, e *domain.JournalEntry) error {
	err := t.q.QueryRow(ctx, `INSERT INTO journal_entries (transaction_id, date, reference_no, description, type, reversal_of, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id, created_at`,
		e.TransactionID, domain.DateOnly(e.Date), e.ReferenceNo, e.Description, e.Type, e.ReversalOf, e.CreatedBy).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return mapErr("insert journal entry", err)
	}
	batch := &pgx.Batch{}
	for _, item := range e.Items {
		batch.Queue(`INSERT INTO journal_items (entry_id, account_id, account_code, description, debit, credit)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`, e.ID, item.AccountID, item.AccountCode, item.Description, item.Debit, item.Credit)
	}
	return t.sendBatch(ctx, "insert journal items", batch, func(i int, row pgx.Row) error {
		e.Items[i].EntryID = e.ID
		return row.Scan(&e.Items[i].ID)
	})
}

func (t *tx) AppendLedgerRows(ctx context.Context, rows []domain.LedgerRow) ([]domain.LedgerRow, error) {
	out := slices.Clone(rows)
	batch := &pgx.Batch{}
	for _, r := range out {
		batch.Queue(`INSERT INTO ledger_rows (account_id, account_code, entry_id, item_id, entry_type, posting_date, debit, credit, running_balance)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id, created_at`,
			r.AccountID, r.AccountCode, r.EntryID, r.ItemID, r.EntryType, domain.DateOnly(r.PostingDate), r.Debit, r.Credit, r.RunningBalance)
	}
	err := t.sendBatch(ctx, "append ledger rows", batch, func(i int, row pgx.Row) error {
		if err := row.Scan(&out[i].ID, &out[i].CreatedAt); err != nil {
			return err
		}
		out[i].Seq = out[i].ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (t *tx) SaveAccountBalances(ctx context.Context, balances []domain.AccountBalance) error {
	batch := &pgx.Batch{}
	for _, b := range balances {
		var last *time.Time
		if !b.LastPostingDate.IsZero() {
			d := domain.DateOnly(b.LastPostingDate)
			last = &d
		}
		batch.Queue(`UPDATE account_balances SET balance = $2, last_posting_date = $3, version = version + 1
WHERE account_id = $1 AND version = $4`, b.AccountID, b.Balance, last, b.Version)
	}
	results := t.pgtx.SendBatch(ctx, batch)
	defer results.Close()
	for range balances {
		tag, err := results.Exec()
		if err != nil {
			return mapErr("save balances", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("save balances: %w", domain.ErrConcurrencyConflict)
		}
	}
	return mapErr("save balances", results.Close())
}

func (t *tx) InsertFiscalYear(ctx context.Context, y *domain.FiscalYear) error {
	var clash string
	err := t.q.QueryRow(ctx, `SELECT code FROM fiscal_years WHERE start_date <= $2 AND end_date >= $1 LIMIT 1`,
		domain.DateOnly(y.StartDate), domain.DateOnly(y.EndDate)).Scan(&clash)
	switch {
	case err == nil:
		return fmt.Errorf("fiscal year %q overlaps %q: %w", y.Code, clash, domain.ErrPeriodOverlap)
	case !errors.Is(err, pgx.ErrNoRows):
		return mapErr("check fiscal year overlap", err)
	}
	err = t.q.QueryRow(ctx, `INSERT INTO fiscal_years (code, name, start_date, end_date) VALUES ($1,$2,$3,$4) RETURNING id, created_at`,
		y.Code, y.Name, domain.DateOnly(y.StartDate), domain.DateOnly(y.EndDate)).Scan(&y.ID, &y.CreatedAt)
	return mapErr("insert fiscal year", err)
}

func (t *tx) MarkFiscalYearClosed(ctx context.Context, id int64) error {
	return t.exec(ctx, "close fiscal year", `UPDATE fiscal_years SET is_closed = TRUE WHERE id = $1`, id)
}

func (t *tx) InsertPeriod(ctx context.Context, p *domain.Period) error {
	if p.Status == "" {
		p.Status = domain.PeriodOpen
	}
	err := t.q.QueryRow(ctx, `INSERT INTO accounting_periods (fiscal_year_id, code, start_date, end_date, status)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, p.FiscalYearID, p.Code, domain.DateOnly(p.StartDate), domain.DateOnly(p.EndDate), p.Status).Scan(&p.ID)
	return mapErr("insert period", err)
}

func (t *tx) UpdatePeriodStatus(ctx context.Context, id int64, status domain.PeriodStatus, closedAt *time.Time) error {
	return t.exec(ctx, "update period status",
		`UPDATE accounting_periods SET status = $2, closed_at = $3, version = version + 1 WHERE id = $1`, id, status, closedAt)
}

func (t *tx) InsertPeriodBalances(ctx context.Context, balances []domain.PeriodBalance) error {
	if len(balances) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, b := range balances {
		batch.Queue(`INSERT INTO period_balances (period_id, account_id, account_code, balance) VALUES ($1,$2,$3,$4)`,
			b.PeriodID, b.AccountID, b.AccountCode, b.Balance)
	}
	results := t.pgtx.SendBatch(ctx, batch)
	defer results.Close()
	for range balances {
		if _, err := results.Exec(); err != nil {
			return mapErr("insert period balances", err)
		}
	}
	return mapErr("insert period balances", results.Close())
}

func (t *tx) InsertInventoryItem(ctx context.Context, i *domain.InventoryItem) error {
	err := t.q.QueryRow(ctx, `INSERT INTO inventory_items (code, name, unit, method, inventory_account_code, on_hand, total_value)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id, created_at`,
		i.Code, i.Name, i.Unit, i.Method, i.InventoryAccountCode, i.OnHand, i.TotalValue).Scan(&i.ID, &i.CreatedAt)
	return mapErr("insert inventory item", err)
}

func (t *tx) UpdateInventoryItem(ctx context.Context, i domain.InventoryItem) error {
	return t.exec(ctx, "update inventory item",
		`UPDATE inventory_items SET on_hand = $2, total_value = $3, version = version + 1 WHERE id = $1`, i.ID, i.OnHand, i.TotalValue)
}

func (t *tx) InsertLot(ctx context.Context, l *domain.Lot) error {
	err := t.q.QueryRow(ctx, `INSERT INTO inventory_lots (item_id, movement_id, date, quantity, remaining, unit_cost)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`, l.ItemID, l.MovementID, domain.DateOnly(l.Date), l.Quantity, l.Remaining, l.UnitCost).Scan(&l.ID)
	if err != nil {
		return mapErr("insert lot", err)
	}
	l.Seq = l.ID
	return nil
}

func (t *tx) UpdateLotRemaining(ctx context.Context, lotID int64, remaining decimal.Decimal) error {
	return t.exec(ctx, "update lot", `UPDATE inventory_lots SET remaining = $2 WHERE id = $1`, lotID, remaining)
}

func (t *tx) InsertMovement(ctx context.Context, m *domain.InventoryMovement) error {
	var entryID *int64
	if m.JournalEntryID != 0 {
		entryID = &m.JournalEntryID
	}
	lots := m.Lots
	if lots == nil {
		lots = []domain.LotConsumption{}
	}
	err := t.q.QueryRow(ctx, `INSERT INTO inventory_movements (item_id, date, type, quantity, unit_cost, total_cost, reference_no, journal_entry_id, created_by, lots)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id, created_at`,
		m.ItemID, domain.DateOnly(m.Date), m.Type, m.Quantity, m.UnitCost, m.TotalCost, m.ReferenceNo, entryID, m.CreatedBy, lots).
		Scan(&m.ID, &m.CreatedAt)
	return mapErr("insert movement", err)
}

func (t *tx) InsertAsset(ctx context.Context, a *domain.FixedAsset) error {
	err := t.q.QueryRow(ctx, `INSERT INTO fixed_assets (code, name, method, annual_rate, acquisition_date, acquisition_cost, salvage_value,
useful_life_months, current_value, accumulated_depreciation, expense_account_code, accumulated_account_code, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13) RETURNING id, created_at`,
		a.Code, a.Name, a.Method, a.AnnualRate, domain.DateOnly(a.AcquisitionDate), a.AcquisitionCost, a.SalvageValue,
		a.UsefulLifeMonths, a.CurrentValue, a.AccumulatedDepreciation, a.ExpenseAccountCode, a.AccumulatedAccountCode, a.IsActive).
		Scan(&a.ID, &a.CreatedAt)
	return mapErr("insert asset", err)
}

func (t *tx) UpdateAsset(ctx context.Context, a domain.FixedAsset) error {
	return t.exec(ctx, "update asset", `UPDATE fixed_assets SET current_value = $2, accumulated_depreciation = $3, is_active = $4,
version = version + 1 WHERE id = $1`, a.ID, a.CurrentValue, a.AccumulatedDepreciation, a.IsActive)
}

func (t *tx) InsertDepreciationRecord(ctx context.Context, r *domain.DepreciationRecord) error {
	err := t.q.QueryRow(ctx, `INSERT INTO depreciation_records (asset_id, period_end, amount, accumulated, remaining, journal_entry_id)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at`,
		r.AssetID, domain.DateOnly(r.PeriodEnd), r.Amount, r.Accumulated, r.Remaining, r.JournalEntryID).Scan(&r.ID, &r.CreatedAt)
	return mapErr("insert depreciation record", err)
}

func (t *tx) sendBatch(ctx context.Context, op string, batch *pgx.Batch, scan func(i int, row pgx.Row) error) error {
	if batch.Len() == 0 {
		return nil
	}
	results := t.pgtx.SendBatch(ctx, batch)
	defer results.Close()
	for i := 0; i < batch.Len(); i++ {
		if err := scan(i, results.QueryRow()); err != nil {
			return mapErr(op, err)
		}
	}
	return mapErr(op, results.Close())
}
