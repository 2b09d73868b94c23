package inventory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
)

var (
	// ErrInvalidQuantity indicates a non-positive or over-precise quantity.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
	// ErrInvalidUnitCost indicates a non-positive inbound unit cost.
	ErrInvalidUnitCost = errors.New("inventory: unit cost must be positive")
	// ErrInvalidMovement indicates a movement type that does not match the operation.
	ErrInvalidMovement = errors.New("inventory: invalid movement type")
	// ErrUnsupportedMethod indicates an unknown valuation method.
	ErrUnsupportedMethod = errors.New("inventory: unsupported valuation method")
)

// ItemInput registers a stocked item.
type ItemInput struct {
	Code                 string
	Name                 string
	Unit                 string
	Method               domain.ValuationMethod
	InventoryAccountCode string
	CreatedBy            string
}

// InboundInput describes a purchase or production receipt.
type InboundInput struct {
	ItemID            int64
	Date              time.Time
	Type              domain.MovementType
	Quantity          decimal.Decimal
	UnitCost          decimal.Decimal
	OffsetAccountCode string
	ReferenceNo       string
	CreatedBy         string
}

// OutboundInput describes a consumption or sale issue.
type OutboundInput struct {
	ItemID            int64
	Date              time.Time
	Type              domain.MovementType
	Quantity          decimal.Decimal
	OffsetAccountCode string
	ReferenceNo       string
	CreatedBy         string
}

// Valuation is the cost of an outbound quantity.
type Valuation struct {
	Method       domain.ValuationMethod
	Quantity     decimal.Decimal
	UnitCost     decimal.Decimal
	TotalCost    decimal.Decimal
	LotsConsumed []domain.LotConsumption
}

// MovementResult is the committed outcome of a receipt or issue.
type MovementResult struct {
	Movement  domain.InventoryMovement
	Item      domain.InventoryItem
	Valuation *Valuation
	Entry     *domain.JournalEntry
}
