// Package inventory values stock movements with FIFO, LIFO or weighted
// average cost and posts their ledger impact in the same transaction.
package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/store"
)

// PostingPort posts journal entries inside an inventory transaction.
type PostingPort interface {
	PostInTx(ctx context.Context, tx store.Tx, in ledger.PostingInput) (ledger.PostingResult, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	MaxAttempts int
}

// Service coordinates inventory operations.
type Service struct {
	store    store.Store
	poster   PostingPort
	audit    AuditPort
	logger   *slog.Logger
	attempts int
	now      func() time.Time
}

// NewService builds Service.
func NewService(st store.Store, poster PostingPort, audit AuditPort, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = store.DefaultAttempts
	}
	return &Service{store: st, poster: poster, audit: audit, logger: logger, attempts: attempts, now: time.Now}
}

// RegisterItem adds a stocked item. The valuation method is fixed here.
func (s *Service) RegisterItem(ctx context.Context, in ItemInput) (domain.InventoryItem, error) {
	if _, err := strategyFor(in.Method); err != nil {
		return domain.InventoryItem{}, err
	}
	item := domain.InventoryItem{
		Code:                 strings.TrimSpace(in.Code),
		Name:                 strings.TrimSpace(in.Name),
		Unit:                 strings.TrimSpace(in.Unit),
		Method:               in.Method,
		InventoryAccountCode: strings.TrimSpace(in.InventoryAccountCode),
		OnHand:               decimal.Zero,
		TotalValue:           decimal.Zero,
	}
	if item.Code == "" || item.Name == "" {
		return domain.InventoryItem{}, fmt.Errorf("%w: item code and name required", domain.ErrInvalidInput)
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		acc, err := tx.AccountByCode(ctx, item.InventoryAccountCode)
		if err != nil {
			return fmt.Errorf("inventory account %q: %w", item.InventoryAccountCode, err)
		}
		if acc.Type != domain.AccountTypeAsset {
			return fmt.Errorf("%w: inventory account %q must be an asset", domain.ErrInvalidInput, acc.Code)
		}
		return tx.InsertInventoryItem(ctx, &item)
	})
	if err != nil {
		return domain.InventoryItem{}, domain.NewStorageError("register item", err)
	}
	s.record(ctx, in.CreatedBy, "inventory.item.register", item.Code, map[string]any{"method": string(item.Method)})
	return item, nil
}

// ValueOutbound costs qty of the item as of date without writing anything.
// Quantities above the available stock yield *domain.InsufficientStockError.
func (s *Service) ValueOutbound(ctx context.Context, itemID int64, date time.Time, qty decimal.Decimal) (Valuation, error) {
	if err := checkQuantity(qty); err != nil {
		return Valuation{}, err
	}
	item, err := s.store.InventoryItemByID(ctx, itemID)
	if err != nil {
		return Valuation{}, fmt.Errorf("item %d: %w", itemID, err)
	}
	pos, err := positionAsOf(ctx, s.store, item, date)
	if err != nil {
		return Valuation{}, err
	}
	return value(pos, qty)
}

// positionAsOf loads what a strategy needs to cost an outbound dated date:
// open lots received on or before it, or for the average method the
// quantity and value rebuilt from movements dated on or before it.
func positionAsOf(ctx context.Context, r store.Reader, item domain.InventoryItem, date time.Time) (position, error) {
	strat, err := strategyFor(item.Method)
	if err != nil {
		return position{}, err
	}
	cutoff := domain.DateOnly(date)
	if !strat.usesLots() {
		history, err := r.InventoryMovements(ctx, item.ID)
		if err != nil {
			return position{}, domain.NewStorageError("inventory movements", err)
		}
		return position{item: averageAsOf(item, history, cutoff), current: item}, nil
	}
	lots, err := r.OpenLots(ctx, item.ID)
	if err != nil {
		return position{}, domain.NewStorageError("open lots", err)
	}
	eligible := make([]domain.Lot, 0, len(lots))
	for _, lot := range lots {
		if !lot.Date.After(cutoff) {
			eligible = append(eligible, lot)
		}
	}
	return position{item: item, lots: eligible, current: item}, nil
}

func value(pos position, qty decimal.Decimal) (Valuation, error) {
	strat, err := strategyFor(pos.item.Method)
	if err != nil {
		return Valuation{}, err
	}
	return strat.issue(pos, qty)
}

// Receive records a purchase or production receipt: the movement, a new lot
// for lot-based methods, the item position and Dr inventory / Cr offset.
func (s *Service) Receive(ctx context.Context, in InboundInput) (MovementResult, error) {
	if !in.Type.Valid() || !in.Type.Inbound() {
		return MovementResult{}, fmt.Errorf("%w: %q is not inbound", ErrInvalidMovement, in.Type)
	}
	if err := checkQuantity(in.Quantity); err != nil {
		return MovementResult{}, err
	}
	if !in.UnitCost.IsPositive() || !domain.WithinScale(in.UnitCost) {
		return MovementResult{}, ErrInvalidUnitCost
	}
	in.Date = domain.DateOnly(in.Date)
	in.ReferenceNo = reference(in.ReferenceNo)

	var result MovementResult
	err := store.Retry(ctx, s.attempts, func(ctx context.Context) error {
		return s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			item, err := tx.LockInventoryItem(ctx, in.ItemID)
			if err != nil {
				return fmt.Errorf("item %d: %w", in.ItemID, err)
			}
			strat, err := strategyFor(item.Method)
			if err != nil {
				return err
			}
			updated, cost := receive(item, in.Quantity, in.UnitCost)

			posting, err := s.poster.PostInTx(ctx, tx, ledger.PostingInput{
				Transaction: domain.Transaction{
					ReferenceNo: in.ReferenceNo,
					Type:        string(in.Type),
					Description: fmt.Sprintf("%s %s %s", in.Type, in.Quantity.String(), item.Code),
					CreatedBy:   in.CreatedBy,
				},
				Entry: domain.JournalEntry{
					Date: in.Date,
					Items: []domain.JournalItem{
						{AccountCode: item.InventoryAccountCode, Debit: cost, Credit: decimal.Zero},
						{AccountCode: in.OffsetAccountCode, Debit: decimal.Zero, Credit: cost},
					},
				},
			})
			if err != nil {
				return err
			}

			mv := domain.InventoryMovement{
				ItemID:         item.ID,
				Date:           in.Date,
				Type:           in.Type,
				Quantity:       in.Quantity,
				UnitCost:       in.UnitCost,
				TotalCost:      cost,
				ReferenceNo:    in.ReferenceNo,
				JournalEntryID: posting.Entry.ID,
				CreatedBy:      in.CreatedBy,
			}
			if err := tx.InsertMovement(ctx, &mv); err != nil {
				return err
			}
			if strat.usesLots() {
				lot := domain.Lot{
					ItemID:     item.ID,
					MovementID: mv.ID,
					Date:       in.Date,
					Quantity:   in.Quantity,
					Remaining:  in.Quantity,
					UnitCost:   in.UnitCost,
				}
				if err := tx.InsertLot(ctx, &lot); err != nil {
					return err
				}
			}
			if err := tx.UpdateInventoryItem(ctx, updated); err != nil {
				return err
			}
			entry := posting.Entry
			result = MovementResult{Movement: mv, Item: updated, Entry: &entry}
			return nil
		})
	})
	if err != nil {
		return MovementResult{}, domain.NewStorageError("receive", err)
	}
	s.record(ctx, in.CreatedBy, "inventory.receive", result.Movement.ReferenceNo, map[string]any{
		"item_id":  in.ItemID,
		"quantity": in.Quantity.String(),
		"cost":     result.Movement.TotalCost.StringFixed(domain.Scale),
	})
	return result, nil
}

// Issue records a consumption or sale: it values the quantity, consumes lots,
// updates the item and posts Dr offset / Cr inventory. Insufficient stock
// writes nothing.
func (s *Service) Issue(ctx context.Context, in OutboundInput) (MovementResult, error) {
	if !in.Type.Valid() || in.Type.Inbound() {
		return MovementResult{}, fmt.Errorf("%w: %q is not outbound", ErrInvalidMovement, in.Type)
	}
	if err := checkQuantity(in.Quantity); err != nil {
		return MovementResult{}, err
	}
	in.Date = domain.DateOnly(in.Date)
	in.ReferenceNo = reference(in.ReferenceNo)

	var result MovementResult
	err := store.Retry(ctx, s.attempts, func(ctx context.Context) error {
		return s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			item, err := tx.LockInventoryItem(ctx, in.ItemID)
			if err != nil {
				return fmt.Errorf("item %d: %w", in.ItemID, err)
			}
			pos, err := positionAsOf(ctx, tx, item, in.Date)
			if err != nil {
				return err
			}
			valuation, err := value(pos, in.Quantity)
			if err != nil {
				return err
			}

			var entry *domain.JournalEntry
			if valuation.TotalCost.IsPositive() {
				posting, err := s.poster.PostInTx(ctx, tx, ledger.PostingInput{
					Transaction: domain.Transaction{
						ReferenceNo: in.ReferenceNo,
						Type:        string(in.Type),
						Description: fmt.Sprintf("%s %s %s", in.Type, in.Quantity.String(), item.Code),
						CreatedBy:   in.CreatedBy,
					},
					Entry: domain.JournalEntry{
						Date: in.Date,
						Items: []domain.JournalItem{
							{AccountCode: in.OffsetAccountCode, Debit: valuation.TotalCost, Credit: decimal.Zero},
							{AccountCode: item.InventoryAccountCode, Debit: decimal.Zero, Credit: valuation.TotalCost},
						},
					},
				})
				if err != nil {
					return err
				}
				entry = &posting.Entry
			}

			mv := domain.InventoryMovement{
				ItemID:      item.ID,
				Date:        in.Date,
				Type:        in.Type,
				Quantity:    in.Quantity.Neg(),
				UnitCost:    valuation.UnitCost,
				TotalCost:   valuation.TotalCost,
				ReferenceNo: in.ReferenceNo,
				CreatedBy:   in.CreatedBy,
				Lots:        valuation.LotsConsumed,
			}
			if entry != nil {
				mv.JournalEntryID = entry.ID
			}
			if err := tx.InsertMovement(ctx, &mv); err != nil {
				return err
			}
			remaining := make(map[int64]decimal.Decimal, len(pos.lots))
			for _, lot := range pos.lots {
				remaining[lot.ID] = lot.Remaining
			}
			for _, used := range valuation.LotsConsumed {
				if err := tx.UpdateLotRemaining(ctx, used.LotID, remaining[used.LotID].Sub(used.Quantity)); err != nil {
					return err
				}
			}
			updated := release(item, valuation)
			if err := tx.UpdateInventoryItem(ctx, updated); err != nil {
				return err
			}
			v := valuation
			result = MovementResult{Movement: mv, Item: updated, Valuation: &v, Entry: entry}
			return nil
		})
	})
	if err != nil {
		return MovementResult{}, domain.NewStorageError("issue", err)
	}
	s.record(ctx, in.CreatedBy, "inventory.issue", result.Movement.ReferenceNo, map[string]any{
		"item_id":  in.ItemID,
		"quantity": in.Quantity.String(),
		"cost":     result.Movement.TotalCost.StringFixed(domain.Scale),
	})
	return result, nil
}

// Item returns the item with its current position.
func (s *Service) Item(ctx context.Context, itemID int64) (domain.InventoryItem, error) {
	return s.store.InventoryItemByID(ctx, itemID)
}

// Movements lists the item's movement history.
func (s *Service) Movements(ctx context.Context, itemID int64) ([]domain.InventoryMovement, error) {
	return s.store.InventoryMovements(ctx, itemID)
}

func checkQuantity(qty decimal.Decimal) error {
	if !qty.IsPositive() || !domain.WithinScale(qty) {
		return ErrInvalidQuantity
	}
	return nil
}

func reference(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "INV-" + uuid.NewString()
	}
	return ref
}

func (s *Service) record(ctx context.Context, actor, action, id string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   "inventory",
		EntityID: id,
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "audit record", slog.String("action", action), slog.Any("error", err))
	}
}
