package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DepreciationMethod selects the periodic depreciation formula.
type DepreciationMethod string

const (
	DepreciationStraightLine    DepreciationMethod = "straight_line"
	DepreciationReducingBalance DepreciationMethod = "reducing_balance"
)

// Valid reports whether m is a supported method.
func (m DepreciationMethod) Valid() bool {
	return m == DepreciationStraightLine || m == DepreciationReducingBalance
}

// FixedAsset is a depreciable asset. CurrentValue = AcquisitionCost - AccumulatedDepreciation.
type FixedAsset struct {
	ID                      int64
	Code                    string
	Name                    string
	Method                  DepreciationMethod
	AnnualRate              decimal.Decimal
	AcquisitionDate         time.Time
	AcquisitionCost         decimal.Decimal
	SalvageValue            decimal.Decimal
	UsefulLifeMonths        int
	CurrentValue            decimal.Decimal
	AccumulatedDepreciation decimal.Decimal
	ExpenseAccountCode      string
	AccumulatedAccountCode  string
	IsActive                bool
	Version                 int64
	CreatedAt               time.Time
}

// Depreciable is the total amount that may be depreciated over the asset's life.
func (a FixedAsset) Depreciable() decimal.Decimal {
	return a.AcquisitionCost.Sub(a.SalvageValue)
}

// DepreciationRecord is one period's depreciation charge for an asset.
type DepreciationRecord struct {
	ID             int64
	AssetID        int64
	PeriodEnd      time.Time
	Amount         decimal.Decimal
	Accumulated    decimal.Decimal
	Remaining      decimal.Decimal
	JournalEntryID int64
	CreatedAt      time.Time
}
