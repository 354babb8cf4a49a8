package curve

import (
	"math/big"

	"github.com/aristath/launchpad/internal/domain"
)

// VirtualReserve is the authoritative launch curve. The pool prices against a virtual
// base reserve VB = Rb + K*m, so trades follow Rt * VB = const:
//
//	buy:  tokenOut = baseIn * Rt / (VB + baseIn)
//	sell: VB' = ceil(Rt * VB / (Rt + tokenIn)), baseOut = VB - VB'
//
// At Rb == 0 the buy formula reduces to baseIn*Rt / (K*m + baseIn). With linearBootstrap
// the first buy is priced at the flat rate baseIn*Rt / (K*m) instead.
type VirtualReserve struct {
	offset          *big.Int
	multiplier      *big.Int
	scaledOffset    *big.Int
	linearBootstrap bool
}

// NewVirtualReserve creates a virtual-reserve curve with offset K and impact multiplier m
func NewVirtualReserve(offset, multiplier *big.Int, linearBootstrap bool) (*VirtualReserve, error) {
	if !domain.IsPositive(offset) {
		return nil, domain.Errorf(domain.ErrInvalidParameter, "virtual offset must be positive")
	}
	if !domain.IsPositive(multiplier) {
		return nil, domain.Errorf(domain.ErrInvalidParameter, "impact multiplier must be positive")
	}
	return &VirtualReserve{
		offset:          new(big.Int).Set(offset),
		multiplier:      new(big.Int).Set(multiplier),
		scaledOffset:    new(big.Int).Mul(offset, multiplier),
		linearBootstrap: linearBootstrap,
	}, nil
}

func (c *VirtualReserve) Kind() Kind { return KindVirtualReserve }

// Offset returns K
func (c *VirtualReserve) Offset() *big.Int { return new(big.Int).Set(c.offset) }

// Multiplier returns m
func (c *VirtualReserve) Multiplier() *big.Int { return new(big.Int).Set(c.multiplier) }

func (c *VirtualReserve) virtualBase(base *big.Int) *big.Int {
	return new(big.Int).Add(base, c.scaledOffset)
}

func (c *VirtualReserve) bootstrapping(r Reserves) bool {
	return c.linearBootstrap && r.Base.Sign() == 0
}

func (c *VirtualReserve) TokenOut(r Reserves, baseIn *big.Int) (*big.Int, error) {
	if err := validateReserves(r); err != nil {
		return nil, err
	}
	if err := requirePositive("base in", baseIn); err != nil {
		return nil, err
	}

	var out *big.Int
	if c.bootstrapping(r) {
		out = domain.MulDiv(baseIn, r.Token, c.scaledOffset)
	} else {
		out = domain.MulDiv(baseIn, r.Token, new(big.Int).Add(c.virtualBase(r.Base), baseIn))
	}
	if out.Cmp(r.Token) >= 0 {
		return nil, domain.Errorf(domain.ErrInsufficientLiquidity, "buy drains token reserve")
	}
	return out, nil
}

func (c *VirtualReserve) BaseOut(r Reserves, tokenIn *big.Int) (*big.Int, error) {
	if err := validateReserves(r); err != nil {
		return nil, err
	}
	if err := requirePositive("token in", tokenIn); err != nil {
		return nil, err
	}

	vb := c.virtualBase(r.Base)
	// multiply first, single ceil division: the pool keeps the rounding unit
	newVB := domain.MulDivUp(r.Token, vb, new(big.Int).Add(r.Token, tokenIn))
	out := new(big.Int).Sub(vb, newVB)
	if out.Cmp(r.Base) > 0 {
		return nil, domain.Errorf(domain.ErrInsufficientLiquidity, "sell pays %s, base reserve %s", out, r.Base)
	}
	return out, nil
}

func (c *VirtualReserve) BaseIn(r Reserves, tokenOut *big.Int) (*big.Int, error) {
	if err := validateReserves(r); err != nil {
		return nil, err
	}
	if err := requirePositive("token out", tokenOut); err != nil {
		return nil, err
	}
	if tokenOut.Cmp(r.Token) >= 0 {
		return nil, domain.Errorf(domain.ErrInsufficientLiquidity, "requested %s of %s tokens", tokenOut, r.Token)
	}

	if c.bootstrapping(r) {
		return domain.MulDivUp(tokenOut, c.scaledOffset, r.Token), nil
	}
	return domain.MulDivUp(tokenOut, c.virtualBase(r.Base), new(big.Int).Sub(r.Token, tokenOut)), nil
}

func (c *VirtualReserve) TokenIn(r Reserves, baseOut *big.Int) (*big.Int, error) {
	if err := validateReserves(r); err != nil {
		return nil, err
	}
	if err := requirePositive("base out", baseOut); err != nil {
		return nil, err
	}
	if baseOut.Cmp(r.Base) > 0 {
		return nil, domain.Errorf(domain.ErrInsufficientLiquidity, "requested %s of %s base", baseOut, r.Base)
	}

	vb := c.virtualBase(r.Base)
	return domain.MulDivUp(r.Token, baseOut, new(big.Int).Sub(vb, baseOut)), nil
}

func (c *VirtualReserve) SpotPrice(r Reserves) *big.Rat {
	if !domain.IsPositive(r.Token) {
		return new(big.Rat)
	}
	return new(big.Rat).SetFrac(c.virtualBase(domain.Copy(r.Base)), r.Token)
}

func (c *VirtualReserve) Verify(before, after Reserves) error {
	if c.bootstrapping(before) {
		return nil
	}
	return productInvariant(before, after, c.virtualBase)
}
