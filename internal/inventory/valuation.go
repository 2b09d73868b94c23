package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
)

// position is an item's stock as seen by a valuation strategy at the
// valuation date. current is the item as it stands now.
type position struct {
	item    domain.InventoryItem
	lots    []domain.Lot // oldest first
	current domain.InventoryItem
}

// strategy costs outbound quantities and absorbs inbound ones.
type strategy interface {
	method() domain.ValuationMethod
	usesLots() bool
	issue(pos position, qty decimal.Decimal) (Valuation, error)
}

var strategies = map[domain.ValuationMethod]strategy{
	domain.ValuationFIFO:    fifo{},
	domain.ValuationLIFO:    lifo{},
	domain.ValuationAverage: average{},
}

func strategyFor(m domain.ValuationMethod) (strategy, error) {
	s, ok := strategies[m]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, m)
	}
	return s, nil
}

type fifo struct{}

func (fifo) method() domain.ValuationMethod { return domain.ValuationFIFO }
func (fifo) usesLots() bool                 { return true }

func (f fifo) issue(pos position, qty decimal.Decimal) (Valuation, error) {
	v, err := consumeLots(f.method(), pos.item.ID, pos.lots, qty)
	if err != nil {
		return Valuation{}, err
	}
	return settle(pos.current, v), nil
}

type lifo struct{}

func (lifo) method() domain.ValuationMethod { return domain.ValuationLIFO }
func (lifo) usesLots() bool                 { return true }

func (l lifo) issue(pos position, qty decimal.Decimal) (Valuation, error) {
	reversed := make([]domain.Lot, len(pos.lots))
	for i, lot := range pos.lots {
		reversed[len(pos.lots)-1-i] = lot
	}
	v, err := consumeLots(l.method(), pos.item.ID, reversed, qty)
	if err != nil {
		return Valuation{}, err
	}
	return settle(pos.current, v), nil
}

func consumeLots(m domain.ValuationMethod, itemID int64, lots []domain.Lot, qty decimal.Decimal) (Valuation, error) {
	available := decimal.Zero
	for _, lot := range lots {
		available = available.Add(lot.Remaining)
	}
	if available.LessThan(qty) {
		return Valuation{}, &domain.InsufficientStockError{ItemID: itemID, Requested: qty, Available: available}
	}
	out := Valuation{Method: m, Quantity: qty, TotalCost: decimal.Zero}
	left := qty
	for _, lot := range lots {
		if !left.IsPositive() {
			break
		}
		if !lot.Remaining.IsPositive() {
			continue
		}
		take := decimal.Min(lot.Remaining, left)
		cost := domain.Round(take.Mul(lot.UnitCost))
		out.LotsConsumed = append(out.LotsConsumed, domain.LotConsumption{
			LotID:    lot.ID,
			Quantity: take,
			UnitCost: lot.UnitCost,
			Cost:     cost,
		})
		out.TotalCost = out.TotalCost.Add(cost)
		left = left.Sub(take)
	}
	out.UnitCost = domain.Round(out.TotalCost.Div(qty))
	return out, nil
}

type average struct{}

func (average) method() domain.ValuationMethod { return domain.ValuationAverage }
func (average) usesLots() bool                 { return false }

func (a average) issue(pos position, qty decimal.Decimal) (Valuation, error) {
	onHand := pos.item.OnHand
	// Stock issued after the valuation date is no longer available either.
	available := decimal.Min(onHand, pos.current.OnHand)
	if available.LessThan(qty) {
		return Valuation{}, &domain.InsufficientStockError{ItemID: pos.item.ID, Requested: qty, Available: available}
	}
	total := pos.item.TotalValue
	if !qty.Equal(onHand) {
		total = domain.Round(pos.item.TotalValue.Mul(qty).Div(onHand))
	}
	return Valuation{
		Method:    a.method(),
		Quantity:  qty,
		UnitCost:  domain.Round(total.Div(qty)),
		TotalCost: total,
	}, nil
}

// averageAsOf rebuilds on-hand quantity and value from the movements dated on
// or before cutoff, in insertion order. Without later movements the stored
// position is already the answer.
func averageAsOf(item domain.InventoryItem, history []domain.InventoryMovement, cutoff time.Time) domain.InventoryItem {
	later := false
	for _, mv := range history {
		if mv.Date.After(cutoff) {
			later = true
			break
		}
	}
	if !later {
		return item
	}
	item.OnHand, item.TotalValue = decimal.Zero, decimal.Zero
	for _, mv := range history {
		if mv.Date.After(cutoff) {
			continue
		}
		item.OnHand = item.OnHand.Add(mv.Quantity)
		if mv.Quantity.IsNegative() {
			item.TotalValue = item.TotalValue.Sub(mv.TotalCost)
		} else {
			item.TotalValue = item.TotalValue.Add(mv.TotalCost)
		}
	}
	return item
}

// receive returns the item position after an inbound of qty at unitCost.
// The average cost is implied by TotalValue / OnHand, which recomputes
// (existing value + incoming value) / (existing qty + incoming qty).
func receive(item domain.InventoryItem, qty, unitCost decimal.Decimal) (domain.InventoryItem, decimal.Decimal) {
	value := domain.Round(qty.Mul(unitCost))
	item.OnHand = item.OnHand.Add(qty)
	item.TotalValue = item.TotalValue.Add(value)
	return item, value
}

// settle charges the whole remaining value when an issue empties the item,
// absorbing per-lot rounding so the item and its ledger account stay equal.
func settle(item domain.InventoryItem, v Valuation) Valuation {
	if v.Quantity.Equal(item.OnHand) && !v.TotalCost.Equal(item.TotalValue) {
		v.TotalCost = item.TotalValue
		v.UnitCost = domain.Round(v.TotalCost.Div(v.Quantity))
	}
	return v
}

// release returns the item position after an outbound valuation.
func release(item domain.InventoryItem, v Valuation) domain.InventoryItem {
	item.OnHand = item.OnHand.Sub(v.Quantity)
	item.TotalValue = item.TotalValue.Sub(v.TotalCost)
	return item
}
