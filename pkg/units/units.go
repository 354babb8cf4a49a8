// Package units converts between smallest-unit integer amounts and human-readable decimals.
package units

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimals is the precision of every ledger in the engine
const Decimals int32 = 18

// ToDecimal scales a smallest-unit amount down by decimals
func ToDecimal(v *big.Int, decimals int32) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -decimals)
}

// FromDecimal scales d up to smallest units. Fractions finer than one unit are rejected.
func FromDecimal(d decimal.Decimal, decimals int32) (*big.Int, error) {
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%s has more than %d decimal places", d.String(), decimals)
	}
	return scaled.BigInt(), nil
}

// Parse reads a human amount such as "1.5" into smallest units
func Parse(s string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("invalid amount %q: negative", s)
	}
	return FromDecimal(d, decimals)
}

// Format renders an 18-decimal amount truncated to places
func Format(v *big.Int, places int32) string {
	return ToDecimal(v, Decimals).Truncate(places).String()
}

// FormatRat renders a ratio such as a spot price with the given precision
func FormatRat(r *big.Rat, places int) string {
	if r == nil {
		return "0"
	}
	d, err := decimal.NewFromString(r.FloatString(places))
	if err != nil {
		return r.FloatString(places)
	}
	return d.String()
}

// Percent renders value/denominator as a percentage, e.g. Percent(1000, 100000) = "1"
func Percent(value, denominator uint64) string {
	if denominator == 0 {
		return "0"
	}
	return decimal.NewFromInt(int64(value)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(denominator))).
		String()
}
