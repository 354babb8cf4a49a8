package domain

import (
	"fmt"
	"math/big"
)

const (
	// BPS is the basis-point denominator used for weights, thresholds and max-hold
	BPS = 10_000
	// TaxDenominator is the denominator for tax rates: a rate of 1000 is 1%
	TaxDenominator = 100_000
)

var (
	Big0     = big.NewInt(0)
	Big1     = big.NewInt(1)
	Big2     = big.NewInt(2)
	BigBPS   = big.NewInt(BPS)
	BigTaxDn = big.NewInt(TaxDenominator)
	// Ether is 10^18, the display unit for 18-decimal tokens
	Ether = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

// E18 returns n * 10^18
func E18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), Ether)
}

// MustAmount parses a base-10 integer string, panicking on malformed input.
// Meant for constants and tests.
func MustAmount(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic(fmt.Sprintf("invalid amount %q", s))
	}
	return v
}

// ParseAmount parses a base-10 non-negative integer string
func ParseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, Errorf(ErrInvalidParameter, "amount %q", s)
	}
	return v, nil
}

// MulDiv returns floor(a * b / d)
func MulDiv(a, b, d *big.Int) *big.Int {
	n := new(big.Int).Mul(a, b)
	return n.Quo(n, d)
}

// MulDivUp returns ceil(a * b / d)
func MulDivUp(a, b, d *big.Int) *big.Int {
	return CeilDiv(new(big.Int).Mul(a, b), d)
}

// CeilDiv returns ceil(n / d) for non-negative n and positive d
func CeilDiv(n, d *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(n, d, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, Big1)
	}
	return q
}

// IsPositive reports whether v is non-nil and > 0
func IsPositive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}

// IsZero reports whether v is nil or 0
func IsZero(v *big.Int) bool {
	return v == nil || v.Sign() == 0
}

// Copy returns a fresh copy of v; nil becomes 0
func Copy(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// Bps returns floor(amount * bps / BPS)
func Bps(amount *big.Int, bps uint64) *big.Int {
	return MulDiv(amount, new(big.Int).SetUint64(bps), BigBPS)
}
