// Package assets registers fixed assets and runs their periodic depreciation.
package assets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/lock"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/store"
)

// PostingPort posts the depreciation entry inside the run's transaction.
type PostingPort interface {
	PostInTx(ctx context.Context, tx store.Tx, in ledger.PostingInput) (ledger.PostingResult, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Config tunes the scheduler.
type Config struct {
	Concurrency int
	LockTTL     time.Duration
	MaxAttempts int
}

// Scheduler computes and posts depreciation.
type Scheduler struct {
	store  store.Store
	poster PostingPort
	locker lock.Locker
	audit  AuditPort
	logger *slog.Logger
	cfg    Config
	now    func() time.Time
}

// NewScheduler wires the scheduler. A nil locker falls back to an in-process one.
func NewScheduler(st store.Store, poster PostingPort, locker lock.Locker, audit AuditPort, logger *slog.Logger, cfg Config) *Scheduler {
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = store.DefaultAttempts
	}
	return &Scheduler{store: st, poster: poster, locker: locker, audit: audit, logger: logger, cfg: cfg, now: time.Now}
}

// AssetInput registers a fixed asset.
type AssetInput struct {
	Code                   string
	Name                   string
	Method                 domain.DepreciationMethod
	AnnualRate             decimal.Decimal
	AcquisitionDate        time.Time
	AcquisitionCost        decimal.Decimal
	SalvageValue           decimal.Decimal
	UsefulLifeMonths       int
	ExpenseAccountCode     string
	AccumulatedAccountCode string
	CreatedBy              string
}

// RegisterAsset validates and stores a new active asset.
func (s *Scheduler) RegisterAsset(ctx context.Context, in AssetInput) (domain.FixedAsset, error) {
	asset := domain.FixedAsset{
		Code:                    strings.TrimSpace(in.Code),
		Name:                    strings.TrimSpace(in.Name),
		Method:                  in.Method,
		AnnualRate:              in.AnnualRate,
		AcquisitionDate:         domain.DateOnly(in.AcquisitionDate),
		AcquisitionCost:         in.AcquisitionCost,
		SalvageValue:            in.SalvageValue,
		UsefulLifeMonths:        in.UsefulLifeMonths,
		CurrentValue:            in.AcquisitionCost,
		AccumulatedDepreciation: decimal.Zero,
		ExpenseAccountCode:      strings.TrimSpace(in.ExpenseAccountCode),
		AccumulatedAccountCode:  strings.TrimSpace(in.AccumulatedAccountCode),
		IsActive:                true,
	}
	if err := validateAsset(asset); err != nil {
		return domain.FixedAsset{}, err
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		expense, err := tx.AccountByCode(ctx, asset.ExpenseAccountCode)
		if err != nil {
			return fmt.Errorf("expense account %q: %w", asset.ExpenseAccountCode, err)
		}
		if expense.Type != domain.AccountTypeExpense {
			return fmt.Errorf("%w: account %q is not an expense account", domain.ErrInvalidInput, expense.Code)
		}
		if _, err := tx.AccountByCode(ctx, asset.AccumulatedAccountCode); err != nil {
			return fmt.Errorf("accumulated depreciation account %q: %w", asset.AccumulatedAccountCode, err)
		}
		return tx.InsertAsset(ctx, &asset)
	})
	if err != nil {
		return domain.FixedAsset{}, domain.NewStorageError("register asset", err)
	}
	s.record(ctx, in.CreatedBy, "asset.register", asset.Code, map[string]any{"method": string(asset.Method)})
	return asset, nil
}

func validateAsset(a domain.FixedAsset) error {
	switch {
	case a.Code == "" || a.Name == "":
		return fmt.Errorf("%w: asset code and name required", domain.ErrInvalidInput)
	case a.AcquisitionDate.IsZero():
		return fmt.Errorf("%w: acquisition date required", domain.ErrInvalidInput)
	case !a.AcquisitionCost.IsPositive() || !domain.WithinScale(a.AcquisitionCost):
		return fmt.Errorf("%w: acquisition cost must be positive", domain.ErrInvalidInput)
	case a.SalvageValue.IsNegative() || a.SalvageValue.GreaterThan(a.AcquisitionCost):
		return fmt.Errorf("%w: salvage value must be between zero and cost", domain.ErrInvalidInput)
	}
	if _, err := methodFor(a.Method); err != nil {
		return err
	}
	if a.Method == domain.DepreciationStraightLine && a.UsefulLifeMonths <= 0 {
		return fmt.Errorf("%w: straight line requires useful life months", domain.ErrInvalidInput)
	}
	if a.Method == domain.DepreciationReducingBalance && (!a.AnnualRate.IsPositive() || a.AnnualRate.GreaterThan(decimal.NewFromInt(100))) {
		return fmt.Errorf("%w: reducing balance requires an annual rate in (0, 100]", domain.ErrInvalidInput)
	}
	return nil
}

// Reference is the posting reference of an asset's run for the month of periodEnd.
func Reference(assetCode string, periodEnd time.Time) string {
	return fmt.Sprintf("DEP-%s-%s", assetCode, periodEnd.UTC().Format("200601"))
}

// RunPeriod depreciates one asset for the month containing periodEnd. It writes
// one record and posts Dr expense / Cr accumulated depreciation atomically.
func (s *Scheduler) RunPeriod(ctx context.Context, assetID int64, periodEnd time.Time, creator string) (domain.DepreciationRecord, error) {
	if periodEnd.IsZero() {
		return domain.DepreciationRecord{}, fmt.Errorf("%w: period end required", domain.ErrInvalidInput)
	}
	periodEnd = domain.MonthEnd(periodEnd)

	release, err := s.locker.Acquire(ctx, shared.AssetLockKey(assetID), s.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return domain.DepreciationRecord{}, fmt.Errorf("asset %d run in progress: %w", assetID, domain.ErrConcurrencyConflict)
		}
		return domain.DepreciationRecord{}, domain.NewStorageError("acquire asset lock", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("release asset lock", slog.Int64("asset_id", assetID), slog.Any("error", err))
		}
	}()

	var record domain.DepreciationRecord
	var asset domain.FixedAsset
	err = store.Retry(ctx, s.cfg.MaxAttempts, func(ctx context.Context) error {
		return s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			current, err := tx.LockAsset(ctx, assetID)
			if err != nil {
				return fmt.Errorf("asset %d: %w", assetID, err)
			}
			if !current.IsActive {
				return fmt.Errorf("asset %s: %w", current.Code, domain.ErrAssetRetired)
			}
			if periodEnd.Before(domain.MonthEnd(current.AcquisitionDate)) {
				return fmt.Errorf("%w: period %s precedes acquisition", domain.ErrInvalidInput, domain.MonthKey(periodEnd))
			}
			history, err := tx.DepreciationRecords(ctx, current.ID)
			if err != nil {
				return err
			}
			month := domain.MonthKey(periodEnd)
			for _, rec := range history {
				if domain.MonthKey(rec.PeriodEnd) == month {
					return fmt.Errorf("asset %s period %s: %w", current.Code, month, domain.ErrAlreadyDepreciated)
				}
			}
			impl, err := methodFor(current.Method)
			if err != nil {
				return err
			}
			amount := impl.charge(current, len(history))
			if !amount.IsPositive() {
				return fmt.Errorf("asset %s fully depreciated: %w", current.Code, domain.ErrAlreadyDepreciated)
			}

			posting, err := s.poster.PostInTx(ctx, tx, ledger.PostingInput{
				Transaction: domain.Transaction{
					ReferenceNo: Reference(current.Code, periodEnd),
					Type:        "depreciation",
					Description: fmt.Sprintf("Depreciation %s %s", current.Code, month),
					CreatedBy:   creator,
				},
				Entry: domain.JournalEntry{
					Date: periodEnd,
					Type: domain.EntryAdjustment,
					Items: []domain.JournalItem{
						{AccountCode: current.ExpenseAccountCode, Debit: amount, Credit: decimal.Zero},
						{AccountCode: current.AccumulatedAccountCode, Debit: decimal.Zero, Credit: amount},
					},
				},
			})
			if err != nil {
				if errors.Is(err, domain.ErrAlreadyPosted) {
					return fmt.Errorf("asset %s period %s: %w", current.Code, month, domain.ErrAlreadyDepreciated)
				}
				return err
			}

			current.AccumulatedDepreciation = current.AccumulatedDepreciation.Add(amount)
			current.CurrentValue = current.AcquisitionCost.Sub(current.AccumulatedDepreciation)
			if err := tx.UpdateAsset(ctx, current); err != nil {
				return err
			}
			rec := domain.DepreciationRecord{
				AssetID:        current.ID,
				PeriodEnd:      periodEnd,
				Amount:         amount,
				Accumulated:    current.AccumulatedDepreciation,
				Remaining:      current.CurrentValue,
				JournalEntryID: posting.Entry.ID,
			}
			if err := tx.InsertDepreciationRecord(ctx, &rec); err != nil {
				return err
			}
			record, asset = rec, current
			return nil
		})
	})
	if err != nil {
		return domain.DepreciationRecord{}, domain.NewStorageError("run depreciation", err)
	}
	s.logger.Info("asset depreciated",
		slog.String("asset", asset.Code),
		slog.String("period", domain.MonthKey(periodEnd)),
		slog.String("amount", record.Amount.StringFixed(domain.Scale)),
	)
	s.record(ctx, creator, "asset.depreciate", asset.Code, map[string]any{
		"period": domain.MonthKey(periodEnd),
		"amount": record.Amount.StringFixed(domain.Scale),
	})
	return record, nil
}

// BatchResult reports a batch run per asset.
type BatchResult struct {
	Records  []domain.DepreciationRecord
	Skipped  []string
	Failures map[string]error
}

// RunBatch depreciates every active asset for the month with bounded
// parallelism. Each asset commits on its own; failures are collected per
// asset code and never undo other assets. Assets already depreciated for the
// month or fully depreciated are reported as skipped.
func (s *Scheduler) RunBatch(ctx context.Context, periodEnd time.Time, creator string) (BatchResult, error) {
	active, err := s.store.ListActiveAssets(ctx)
	if err != nil {
		return BatchResult{}, domain.NewStorageError("list assets", err)
	}
	result := BatchResult{Failures: make(map[string]error)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, asset := range active {
		g.Go(func() error {
			rec, err := s.RunPeriod(gctx, asset.ID, periodEnd, creator)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.Records = append(result.Records, rec)
			case errors.Is(err, domain.ErrAlreadyDepreciated):
				result.Skipped = append(result.Skipped, asset.Code)
			default:
				result.Failures[asset.Code] = err
			}
			return nil
		})
	}
	_ = g.Wait()
	if len(result.Failures) > 0 {
		s.logger.Warn("depreciation batch incomplete",
			slog.String("period", domain.MonthKey(periodEnd)),
			slog.Int("failed", len(result.Failures)),
		)
	}
	return result, ctx.Err()
}

// Retire deactivates the asset; later runs fail with domain.ErrAssetRetired.
func (s *Scheduler) Retire(ctx context.Context, assetID int64, actor string) (domain.FixedAsset, error) {
	var asset domain.FixedAsset
	err := store.Retry(ctx, s.cfg.MaxAttempts, func(ctx context.Context) error {
		return s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			current, err := tx.LockAsset(ctx, assetID)
			if err != nil {
				return fmt.Errorf("asset %d: %w", assetID, err)
			}
			if !current.IsActive {
				return fmt.Errorf("asset %s: %w", current.Code, domain.ErrAssetRetired)
			}
			current.IsActive = false
			if err := tx.UpdateAsset(ctx, current); err != nil {
				return err
			}
			asset = current
			return nil
		})
	})
	if err != nil {
		return domain.FixedAsset{}, domain.NewStorageError("retire asset", err)
	}
	s.record(ctx, actor, "asset.retire", asset.Code, nil)
	return asset, nil
}

// Asset returns one asset.
func (s *Scheduler) Asset(ctx context.Context, assetID int64) (domain.FixedAsset, error) {
	return s.store.AssetByID(ctx, assetID)
}

// Records lists an asset's depreciation history.
func (s *Scheduler) Records(ctx context.Context, assetID int64) ([]domain.DepreciationRecord, error) {
	if _, err := s.store.AssetByID(ctx, assetID); err != nil {
		return nil, fmt.Errorf("asset %d: %w", assetID, err)
	}
	return s.store.DepreciationRecords(ctx, assetID)
}

func (s *Scheduler) record(ctx context.Context, actor, action, code string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   "fixed_asset",
		EntityID: code,
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "audit record", slog.String("action", action), slog.Any("error", err))
	}
}
