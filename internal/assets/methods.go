package assets

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
)

var monthsPerYear = decimal.NewFromInt(12)

// method computes one period's charge. priorRuns counts the records already
// written for the asset. The result is never more than the remaining
// depreciable value; zero means the asset is fully depreciated.
type method interface {
	charge(asset domain.FixedAsset, priorRuns int) decimal.Decimal
}

var methods = map[domain.DepreciationMethod]method{
	domain.DepreciationStraightLine:    straightLine{},
	domain.DepreciationReducingBalance: reducingBalance{},
}

func methodFor(m domain.DepreciationMethod) (method, error) {
	impl, ok := methods[m]
	if !ok {
		return nil, fmt.Errorf("%w: depreciation method %q", domain.ErrInvalidInput, m)
	}
	return impl, nil
}

// remaining is what may still be charged before reaching salvage.
func remaining(asset domain.FixedAsset) decimal.Decimal {
	left := asset.CurrentValue.Sub(asset.SalvageValue)
	if left.IsNegative() {
		return decimal.Zero
	}
	return left
}

type straightLine struct{}

// charge spreads cost - salvage evenly over the useful life. The final month
// absorbs rounding so the total lands exactly on the depreciable amount.
func (straightLine) charge(asset domain.FixedAsset, priorRuns int) decimal.Decimal {
	left := remaining(asset)
	if !left.IsPositive() || asset.UsefulLifeMonths <= 0 {
		return decimal.Zero
	}
	if priorRuns+1 >= asset.UsefulLifeMonths {
		return left
	}
	monthly := domain.Round(asset.Depreciable().Div(decimal.NewFromInt(int64(asset.UsefulLifeMonths))))
	return decimal.Min(monthly, left)
}

type reducingBalance struct{}

// charge applies the monthly share of the annual percentage rate to the
// current value, truncated at salvage.
func (reducingBalance) charge(asset domain.FixedAsset, _ int) decimal.Decimal {
	left := remaining(asset)
	if !left.IsPositive() {
		return decimal.Zero
	}
	rate := asset.AnnualRate.Div(decimal.NewFromInt(100)).Div(monthsPerYear)
	amount := domain.Round(asset.CurrentValue.Mul(rate))
	return decimal.Min(amount, left)
}
