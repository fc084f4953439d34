// Package quant holds the integer value types shared by the ledger and the
// market. All amounts are base units; decimals only matter at the edges.
package quant

import (
	"fmt"
	"math"
	"math/big"
	"strconv"

	"github.com/shopspring/decimal"
)

// Amount is a non-negative quantity of ledger base units.
type Amount uint64

// MaxAmount is the largest balance the ledger will hold. It is bounded by
// int64 so every balance fits a SQLite INTEGER column.
const MaxAmount Amount = math.MaxInt64

// String returns the base-unit representation.
func (a Amount) String() string {
	return strconv.FormatUint(uint64(a), 10)
}

// Decimal converts base units to a human value with the given decimals.
func (a Amount) Decimal(decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(a)), -decimals)
}

// Format renders a with exactly decimals fractional digits.
func (a Amount) Format(decimals int32) string {
	return a.Decimal(decimals).StringFixed(decimals)
}

// ParseAmount parses a human value ("12.5") into base units.
// Values with more precision than decimals are rejected, never rounded.
func ParseAmount(s string, decimals int32) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("parse amount %q: negative", s)
	}
	units := d.Shift(decimals)
	if !units.IsInteger() {
		return 0, fmt.Errorf("parse amount %q: more than %d decimals", s, decimals)
	}
	if units.GreaterThan(decimal.NewFromInt(int64(MaxAmount))) {
		return 0, fmt.Errorf("parse amount %q: exceeds maximum", s)
	}
	return Amount(units.BigInt().Uint64()), nil
}
