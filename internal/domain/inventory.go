package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ValuationMethod selects how outbound movements are costed.
type ValuationMethod string

const (
	ValuationFIFO    ValuationMethod = "fifo"
	ValuationLIFO    ValuationMethod = "lifo"
	ValuationAverage ValuationMethod = "average"
)

// Valid reports whether m is a supported valuation method.
func (m ValuationMethod) Valid() bool {
	switch m {
	case ValuationFIFO, ValuationLIFO, ValuationAverage:
		return true
	}
	return false
}

// MovementType is the business reason for a stock movement.
type MovementType string

const (
	MovementPurchase    MovementType = "purchase"
	MovementProduction  MovementType = "production"
	MovementConsumption MovementType = "consumption"
	MovementSale        MovementType = "sale"
)

// Inbound reports whether the movement adds stock.
func (t MovementType) Inbound() bool {
	return t == MovementPurchase || t == MovementProduction
}

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementPurchase, MovementProduction, MovementConsumption, MovementSale:
		return true
	}
	return false
}

// InventoryItem is a stocked item with its running position.
type InventoryItem struct {
	ID                   int64
	Code                 string
	Name                 string
	Unit                 string
	Method               ValuationMethod
	InventoryAccountCode string
	OnHand               decimal.Decimal
	TotalValue           decimal.Decimal
	Version              int64
	CreatedAt            time.Time
}

// UnitCost is the current average cost of the on-hand quantity.
func (i InventoryItem) UnitCost() decimal.Decimal {
	if i.OnHand.IsZero() {
		return decimal.Zero
	}
	return Round(i.TotalValue.Div(i.OnHand))
}

// Lot is a received quantity at a single unit cost.
type Lot struct {
	ID         int64
	ItemID     int64
	MovementID int64
	Date       time.Time
	Seq        int64
	Quantity   decimal.Decimal
	Remaining  decimal.Decimal
	UnitCost   decimal.Decimal
}

// LotConsumption records how much of a lot an outbound movement used.
type LotConsumption struct {
	LotID    int64
	Quantity decimal.Decimal
	UnitCost decimal.Decimal
	Cost     decimal.Decimal
}

// InventoryMovement is a signed stock movement. Outbound quantities are negative.
type InventoryMovement struct {
	ID             int64
	ItemID         int64
	Date           time.Time
	Type           MovementType
	Quantity       decimal.Decimal
	UnitCost       decimal.Decimal
	TotalCost      decimal.Decimal
	ReferenceNo    string
	JournalEntryID int64
	CreatedBy      string
	Lots           []LotConsumption
	CreatedAt      time.Time
}
