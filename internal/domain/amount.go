// Package domain holds the ledger records shared by every engine: accounts,
// journals, ledger rows, periods, inventory and fixed assets.
package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits kept for amounts and quantities.
const Scale int32 = 4

// Round rounds d to Scale fractional digits, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// WithinScale reports whether d carries no more than Scale fractional digits.
func WithinScale(d decimal.Decimal) bool {
	return d.Equal(d.Round(Scale))
}

// ParseAmount parses a decimal string and rejects values finer than Scale.
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q: %v", ErrInvalidInput, raw, err)
	}
	if !WithinScale(d) {
		return decimal.Zero, fmt.Errorf("%w: amount %q exceeds %d fractional digits", ErrInvalidInput, raw, Scale)
	}
	return d, nil
}

// Sum adds the values.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// MustAmount parses raw and panics on failure. Intended for constants and tests.
func MustAmount(raw string) decimal.Decimal {
	d, err := ParseAmount(raw)
	if err != nil {
		panic(err)
	}
	return d
}
