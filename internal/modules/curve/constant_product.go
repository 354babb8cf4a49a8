package curve

import (
	"math/big"

	"github.com/aristath/launchpad/internal/domain"
)

// ConstantProduct is the plain x*y=k curve with no virtual offset. It cannot price
// against an empty base reserve, so pools using it must be seeded two-sided.
type ConstantProduct struct{}

func (ConstantProduct) Kind() Kind { return KindConstantProduct }

func identity(base *big.Int) *big.Int { return base }

func (ConstantProduct) check(r Reserves) error {
	if err := validateReserves(r); err != nil {
		return err
	}
	if r.Base.Sign() == 0 {
		return domain.Errorf(domain.ErrUninitialized, "constant product needs base liquidity")
	}
	return nil
}

func (c ConstantProduct) TokenOut(r Reserves, baseIn *big.Int) (*big.Int, error) {
	if err := c.check(r); err != nil {
		return nil, err
	}
	if err := requirePositive("base in", baseIn); err != nil {
		return nil, err
	}
	return domain.MulDiv(baseIn, r.Token, new(big.Int).Add(r.Base, baseIn)), nil
}

func (c ConstantProduct) BaseOut(r Reserves, tokenIn *big.Int) (*big.Int, error) {
	if err := c.check(r); err != nil {
		return nil, err
	}
	if err := requirePositive("token in", tokenIn); err != nil {
		return nil, err
	}
	newBase := domain.MulDivUp(r.Token, r.Base, new(big.Int).Add(r.Token, tokenIn))
	return newBase.Sub(r.Base, newBase), nil
}

func (c ConstantProduct) BaseIn(r Reserves, tokenOut *big.Int) (*big.Int, error) {
	if err := c.check(r); err != nil {
		return nil, err
	}
	if err := requirePositive("token out", tokenOut); err != nil {
		return nil, err
	}
	if tokenOut.Cmp(r.Token) >= 0 {
		return nil, domain.Errorf(domain.ErrInsufficientLiquidity, "requested %s of %s tokens", tokenOut, r.Token)
	}
	return domain.MulDivUp(tokenOut, r.Base, new(big.Int).Sub(r.Token, tokenOut)), nil
}

func (c ConstantProduct) TokenIn(r Reserves, baseOut *big.Int) (*big.Int, error) {
	if err := c.check(r); err != nil {
		return nil, err
	}
	if err := requirePositive("base out", baseOut); err != nil {
		return nil, err
	}
	if baseOut.Cmp(r.Base) >= 0 {
		return nil, domain.Errorf(domain.ErrInsufficientLiquidity, "requested %s of %s base", baseOut, r.Base)
	}
	return domain.MulDivUp(r.Token, baseOut, new(big.Int).Sub(r.Base, baseOut)), nil
}

func (ConstantProduct) SpotPrice(r Reserves) *big.Rat {
	if !domain.IsPositive(r.Token) || r.Base == nil {
		return new(big.Rat)
	}
	return new(big.Rat).SetFrac(r.Base, r.Token)
}

func (ConstantProduct) Verify(before, after Reserves) error {
	return productInvariant(before, after, identity)
}
