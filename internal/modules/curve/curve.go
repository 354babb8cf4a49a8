// Package curve implements the bonding-curve pricing strategies a reserve pool can be
// configured with. Every strategy rounds in the pool's favour: outputs are floored,
// required inputs are ceiled.
package curve

import (
	"fmt"
	"math/big"

	"github.com/aristath/launchpad/internal/domain"
)

// Kind names a curve strategy
type Kind string

const (
	KindVirtualReserve  Kind = "virtual_reserve"
	KindConstantProduct Kind = "constant_product"
	KindQuadratic       Kind = "quadratic"
)

// Reserves is the pool's two-sided reserve as the curve sees it
type Reserves struct {
	Token *big.Int
	Base  *big.Int
}

// Copy returns a deep copy
func (r Reserves) Copy() Reserves {
	return Reserves{Token: domain.Copy(r.Token), Base: domain.Copy(r.Base)}
}

// Curve prices trades against a pool's reserves
type Curve interface {
	Kind() Kind
	// TokenOut quotes a buy: tokens received for baseIn
	TokenOut(r Reserves, baseIn *big.Int) (*big.Int, error)
	// BaseOut quotes a sell: base received for tokenIn
	BaseOut(r Reserves, tokenIn *big.Int) (*big.Int, error)
	// BaseIn is the minimum base that buys at least tokenOut
	BaseIn(r Reserves, tokenOut *big.Int) (*big.Int, error)
	// TokenIn is the minimum token amount that sells for at least baseOut
	TokenIn(r Reserves, baseOut *big.Int) (*big.Int, error)
	// SpotPrice is the marginal price in base per token
	SpotPrice(r Reserves) *big.Rat
	// Verify checks that moving from before to after kept the invariant within rounding
	Verify(before, after Reserves) error
}

// Params configures a curve
type Params struct {
	Kind Kind `json:"kind" yaml:"kind" validate:"required,oneof=virtual_reserve constant_product quadratic"`
	// VirtualOffset (K) for the virtual-reserve curve, or the price constant for quadratic
	VirtualOffset *big.Int `json:"virtual_offset" yaml:"virtual_offset"`
	// ImpactMultiplier (m) for the virtual-reserve curve
	ImpactMultiplier *big.Int `json:"impact_multiplier" yaml:"impact_multiplier"`
	// LinearBootstrap prices the very first buy linearly at baseIn*Rt/(K*m)
	LinearBootstrap bool `json:"linear_bootstrap" yaml:"linear_bootstrap"`
}

// New builds the curve described by p
func New(p Params) (Curve, error) {
	switch p.Kind {
	case KindVirtualReserve:
		return NewVirtualReserve(p.VirtualOffset, p.ImpactMultiplier, p.LinearBootstrap)
	case KindConstantProduct:
		return ConstantProduct{}, nil
	case KindQuadratic:
		return NewQuadratic(p.VirtualOffset)
	default:
		return nil, domain.Errorf(domain.ErrInvalidParameter, "unknown curve kind %q", p.Kind)
	}
}

func validateReserves(r Reserves) error {
	if !domain.IsPositive(r.Token) {
		return domain.Errorf(domain.ErrUninitialized, "token reserve is empty")
	}
	if r.Base == nil || r.Base.Sign() < 0 {
		return domain.Errorf(domain.ErrUninitialized, "base reserve is unset")
	}
	return nil
}

func requirePositive(name string, v *big.Int) error {
	if !domain.IsPositive(v) {
		return domain.Errorf(domain.ErrZeroAmount, "%s", name)
	}
	return nil
}

// productInvariant checks Rt*VB for a constant-product style curve with virtual base vb(r).
// The product may only grow, and by less than one unit of either reserve.
func productInvariant(before, after Reserves, vb func(*big.Int) *big.Int) error {
	k0 := new(big.Int).Mul(before.Token, vb(before.Base))
	afterVB := vb(after.Base)
	k1 := new(big.Int).Mul(after.Token, afterVB)

	if k1.Cmp(k0) < 0 {
		return domain.Errorf(domain.ErrInvariantViolated, "product decreased: %s -> %s", k0, k1)
	}
	tolerance := new(big.Int).Add(after.Token, afterVB)
	if growth := new(big.Int).Sub(k1, k0); growth.Cmp(tolerance) > 0 {
		return domain.Errorf(domain.ErrInvariantViolated, "product grew by %s, tolerance %s", growth, tolerance)
	}
	return nil
}

func (k Kind) String() string { return string(k) }

// Describe renders the curve for logs
func Describe(c Curve) string {
	switch v := c.(type) {
	case *VirtualReserve:
		return fmt.Sprintf("%s(K=%s, m=%s, linearBootstrap=%t)", v.Kind(), v.offset, v.multiplier, v.linearBootstrap)
	case *Quadratic:
		return fmt.Sprintf("%s(K=%s)", v.Kind(), v.k)
	default:
		return c.Kind().String()
	}
}
