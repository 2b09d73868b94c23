package pgstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
)

// queries implements store.Reader against either the pool or a transaction.
type queries struct {
	q querier
}

const (
	categoryColumns = `id, code, name, type, created_at`
	accountColumns  = `id, code, name, description, category_code, type, normal_balance, is_active, created_at, updated_at`
	txnColumns      = `id, reference_no, type, date, amount, description, created_by, posted, posted_at, journal_entry_id, created_at`
	entryColumns    = `id, transaction_id, date, reference_no, description, type, reversal_of, created_by, created_at`
	rowColumns      = `id, account_id, account_code, entry_id, item_id, entry_type, posting_date, debit, credit, running_balance, created_at`
	yearColumns     = `id, code, name, start_date, end_date, is_closed, created_at`
	periodColumns   = `id, fiscal_year_id, code, start_date, end_date, status, closed_at, version`
	itemColumns     = `id, code, name, unit, method, inventory_account_code, on_hand, total_value, version, created_at`
	lotColumns      = `id, item_id, movement_id, date, quantity, remaining, unit_cost`
	movementColumns = `id, item_id, date, type, quantity, unit_cost, total_cost, reference_no, journal_entry_id, created_by, lots, created_at`
	assetColumns    = `id, code, name, method, annual_rate, acquisition_date, acquisition_cost, salvage_value, useful_life_months,
current_value, accumulated_depreciation, expense_account_code, accumulated_account_code, is_active, version, created_at`
	recordColumns = `id, asset_id, period_end, amount, accumulated, remaining, journal_entry_id, created_at`
)

func scanCategory(row pgx.Row) (domain.Category, error) {
	var c domain.Category
	err := row.Scan(&c.ID, &c.Code, &c.Name, &c.Type, &c.CreatedAt)
	return c, err
}

func scanAccount(row pgx.Row) (domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Description, &a.CategoryCode, &a.Type, &a.NormalBalance, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func scanBalance(row pgx.Row) (domain.AccountBalance, error) {
	var (
		b    domain.AccountBalance
		last *time.Time
	)
	if err := row.Scan(&b.AccountID, &b.Balance, &last, &b.Version); err != nil {
		return domain.AccountBalance{}, err
	}
	if last != nil {
		b.LastPostingDate = domain.DateOnly(*last)
	}
	return b, nil
}

func scanTransaction(row pgx.Row) (domain.Transaction, error) {
	var (
		t       domain.Transaction
		entryID *int64
	)
	if err := row.Scan(&t.ID, &t.ReferenceNo, &t.Type, &t.Date, &t.Amount, &t.Description, &t.CreatedBy, &t.Posted, &t.PostedAt, &entryID, &t.CreatedAt); err != nil {
		return domain.Transaction{}, err
	}
	if entryID != nil {
		t.JournalEntryID = *entryID
	}
	return t, nil
}

func scanRow(row pgx.Row) (domain.LedgerRow, error) {
	var r domain.LedgerRow
	if err := row.Scan(&r.ID, &r.AccountID, &r.AccountCode, &r.EntryID, &r.ItemID, &r.EntryType, &r.PostingDate, &r.Debit, &r.Credit, &r.RunningBalance, &r.CreatedAt); err != nil {
		return domain.LedgerRow{}, err
	}
	r.Seq = r.ID
	return r, nil
}

func scanYear(row pgx.Row) (domain.FiscalYear, error) {
	var y domain.FiscalYear
	err := row.Scan(&y.ID, &y.Code, &y.Name, &y.StartDate, &y.EndDate, &y.IsClosed, &y.CreatedAt)
	return y, err
}

func scanPeriod(row pgx.Row) (domain.Period, error) {
	var p domain.Period
	err := row.Scan(&p.ID, &p.FiscalYearID, &p.Code, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedAt, &p.Version)
	return p, err
}

func scanItem(row pgx.Row) (domain.InventoryItem, error) {
	var i domain.InventoryItem
	err := row.Scan(&i.ID, &i.Code, &i.Name, &i.Unit, &i.Method, &i.InventoryAccountCode, &i.OnHand, &i.TotalValue, &i.Version, &i.CreatedAt)
	return i, err
}

func scanLot(row pgx.Row) (domain.Lot, error) {
	var l domain.Lot
	if err := row.Scan(&l.ID, &l.ItemID, &l.MovementID, &l.Date, &l.Quantity, &l.Remaining, &l.UnitCost); err != nil {
		return domain.Lot{}, err
	}
	l.Seq = l.ID
	return l, nil
}

func scanMovement(row pgx.Row) (domain.InventoryMovement, error) {
	var (
		m       domain.InventoryMovement
		entryID *int64
	)
	if err := row.Scan(&m.ID, &m.ItemID, &m.Date, &m.Type, &m.Quantity, &m.UnitCost, &m.TotalCost, &m.ReferenceNo, &entryID, &m.CreatedBy, &m.Lots, &m.CreatedAt); err != nil {
		return domain.InventoryMovement{}, err
	}
	if entryID != nil {
		m.JournalEntryID = *entryID
	}
	return m, nil
}

func scanAsset(row pgx.Row) (domain.FixedAsset, error) {
	var a domain.FixedAsset
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Method, &a.AnnualRate, &a.AcquisitionDate, &a.AcquisitionCost, &a.SalvageValue,
		&a.UsefulLifeMonths, &a.CurrentValue, &a.AccumulatedDepreciation, &a.ExpenseAccountCode, &a.AccumulatedAccountCode,
		&a.IsActive, &a.Version, &a.CreatedAt)
	return a, err
}

func scanRecord(row pgx.Row) (domain.DepreciationRecord, error) {
	var r domain.DepreciationRecord
	err := row.Scan(&r.ID, &r.AssetID, &r.PeriodEnd, &r.Amount, &r.Accumulated, &r.Remaining, &r.JournalEntryID, &r.CreatedAt)
	return r, err
}

// one runs a single-row query and maps its error.
func one[T any](ctx context.Context, q querier, op string, scan func(pgx.Row) (T, error), sql string, args ...any) (T, error) {
	v, err := scan(q.QueryRow(ctx, sql, args...))
	if err != nil {
		var zero T
		return zero, mapErr(op, err)
	}
	return v, nil
}

// many collects every row of a query.
func many[T any](ctx context.Context, q querier, op string, scan func(pgx.Row) (T, error), sql string, args ...any) ([]T, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, mapErr(op, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(op, err)
	}
	return out, nil
}

func (r queries) CategoryByCode(ctx context.Context, code string) (domain.Category, error) {
	return one(ctx, r.q, "category by code", scanCategory,
		`SELECT `+categoryColumns+` FROM account_categories WHERE code = $1`, code)
}

func (r queries) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return many(ctx, r.q, "list categories", scanCategory,
		`SELECT `+categoryColumns+` FROM account_categories ORDER BY code`)
}

func (r queries) AccountByCode(ctx context.Context, code string) (domain.Account, error) {
	return one(ctx, r.q, "account by code", scanAccount,
		`SELECT `+accountColumns+` FROM accounts WHERE code = $1`, code)
}

func (r queries) AccountByID(ctx context.Context, id int64) (domain.Account, error) {
	return one(ctx, r.q, "account by id", scanAccount,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

func (r queries) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	return many(ctx, r.q, "list accounts", scanAccount,
		`SELECT `+accountColumns+` FROM accounts ORDER BY code`)
}

func (r queries) AccountBalance(ctx context.Context, accountID int64) (domain.AccountBalance, error) {
	return one(ctx, r.q, "account balance", scanBalance,
		`SELECT account_id, balance, last_posting_date, version FROM account_balances WHERE account_id = $1`, accountID)
}

func (r queries) HasLedgerRows(ctx context.Context, accountID int64) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ledger_rows WHERE account_id = $1)`, accountID).Scan(&exists)
	if err != nil {
		return false, mapErr("has ledger rows", err)
	}
	return exists, nil
}

func (r queries) LedgerRows(ctx context.Context, filter domain.LedgerFilter) ([]domain.LedgerRow, error) {
	var (
		where []string
		args  []any
	)
	if filter.AccountID != 0 {
		args = append(args, filter.AccountID)
		where = append(where, fmt.Sprintf("account_id = $%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, domain.DateOnly(filter.From))
		where = append(where, fmt.Sprintf("posting_date >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, domain.DateOnly(filter.To))
		where = append(where, fmt.Sprintf("posting_date <= $%d", len(args)))
	}
	sql := `SELECT ` + rowColumns + ` FROM ledger_rows`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY posting_date, id`
	return many(ctx, r.q, "ledger rows", scanRow, sql, args...)
}

func (r queries) TransactionByReference(ctx context.Context, ref string) (domain.Transaction, error) {
	return one(ctx, r.q, "transaction by reference", scanTransaction,
		`SELECT `+txnColumns+` FROM transactions WHERE reference_no = $1`, ref)
}

func (r queries) JournalEntryByID(ctx context.Context, id int64) (domain.JournalEntry, error) {
	var e domain.JournalEntry
	err := r.q.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id = $1`, id).
		Scan(&e.ID, &e.TransactionID, &e.Date, &e.ReferenceNo, &e.Description, &e.Type, &e.ReversalOf, &e.CreatedBy, &e.CreatedAt)
	if err != nil {
		return domain.JournalEntry{}, mapErr("journal entry", err)
	}
	items, err := many(ctx, r.q, "journal items", func(row pgx.Row) (domain.JournalItem, error) {
		var it domain.JournalItem
		err := row.Scan(&it.ID, &it.EntryID, &it.AccountID, &it.AccountCode, &it.Description, &it.Debit, &it.Credit)
		return it, err
	}, `SELECT id, entry_id, account_id, account_code, description, debit, credit FROM journal_items WHERE entry_id = $1 ORDER BY id`, id)
	if err != nil {
		return domain.JournalEntry{}, err
	}
	e.Items = items
	return e, nil
}

func (r queries) FiscalYearByID(ctx context.Context, id int64) (domain.FiscalYear, error) {
	return one(ctx, r.q, "fiscal year", scanYear,
		`SELECT `+yearColumns+` FROM fiscal_years WHERE id = $1`, id)
}

func (r queries) ListFiscalYears(ctx context.Context) ([]domain.FiscalYear, error) {
	return many(ctx, r.q, "list fiscal years", scanYear,
		`SELECT `+yearColumns+` FROM fiscal_years ORDER BY start_date`)
}

func (r queries) PeriodByID(ctx context.Context, id int64) (domain.Period, error) {
	return one(ctx, r.q, "period", scanPeriod,
		`SELECT `+periodColumns+` FROM accounting_periods WHERE id = $1`, id)
}

func (r queries) PeriodForDate(ctx context.Context, date time.Time) (domain.Period, error) {
	return one(ctx, r.q, "period for date", scanPeriod,
		`SELECT `+periodColumns+` FROM accounting_periods WHERE start_date <= $1 AND end_date >= $1 ORDER BY start_date LIMIT 1`,
		domain.DateOnly(date))
}

func (r queries) ListPeriods(ctx context.Context, fiscalYearID int64) ([]domain.Period, error) {
	return many(ctx, r.q, "list periods", scanPeriod,
		`SELECT `+periodColumns+` FROM accounting_periods WHERE fiscal_year_id = $1 ORDER BY start_date`, fiscalYearID)
}

func (r queries) PeriodBalances(ctx context.Context, periodID int64) ([]domain.PeriodBalance, error) {
	return many(ctx, r.q, "period balances", func(row pgx.Row) (domain.PeriodBalance, error) {
		var b domain.PeriodBalance
		err := row.Scan(&b.PeriodID, &b.AccountID, &b.AccountCode, &b.Balance)
		return b, err
	}, `SELECT period_id, account_id, account_code, balance FROM period_balances WHERE period_id = $1 ORDER BY account_code`, periodID)
}

func (r queries) InventoryItemByID(ctx context.Context, id int64) (domain.InventoryItem, error) {
	return one(ctx, r.q, "inventory item", scanItem,
		`SELECT `+itemColumns+` FROM inventory_items WHERE id = $1`, id)
}

func (r queries) OpenLots(ctx context.Context, itemID int64) ([]domain.Lot, error) {
	return many(ctx, r.q, "open lots", scanLot,
		`SELECT `+lotColumns+` FROM inventory_lots WHERE item_id = $1 AND remaining > 0 ORDER BY date, id`, itemID)
}

func (r queries) InventoryMovements(ctx context.Context, itemID int64) ([]domain.InventoryMovement, error) {
	return many(ctx, r.q, "inventory movements", scanMovement,
		`SELECT `+movementColumns+` FROM inventory_movements WHERE item_id = $1 ORDER BY id`, itemID)
}

func (r queries) AssetByID(ctx context.Context, id int64) (domain.FixedAsset, error) {
	return one(ctx, r.q, "asset", scanAsset,
		`SELECT `+assetColumns+` FROM fixed_assets WHERE id = $1`, id)
}

func (r queries) ListActiveAssets(ctx context.Context) ([]domain.FixedAsset, error) {
	return many(ctx, r.q, "active assets", scanAsset,
		`SELECT `+assetColumns+` FROM fixed_assets WHERE is_active ORDER BY id`)
}

func (r queries) DepreciationRecords(ctx context.Context, assetID int64) ([]domain.DepreciationRecord, error) {
	return many(ctx, r.q, "depreciation records", scanRecord,
		`SELECT `+recordColumns+` FROM depreciation_records WHERE asset_id = $1 ORDER BY period_end`, assetID)
}
