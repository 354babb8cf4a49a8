package curve

import (
	"math/big"

	"github.com/aristath/launchpad/internal/domain"
)

// Quadratic prices each token at K / Rt^2, so the marginal price rises as the token
// reserve drains. Integrating the price gives closed forms:
//
//	buy:  tokenOut = b*Rt^2 / (K + b*Rt)      baseIn  = ceil(K*t / (Rt*(Rt-t)))
//	sell: baseOut  = K*t / (Rt*(Rt+t))        tokenIn = ceil(b*Rt^2 / (K - b*Rt))
//
// The conserved quantity is Rb - K/Rt.
type Quadratic struct {
	k *big.Int
}

// NewQuadratic creates a quadratic curve with price constant k
func NewQuadratic(k *big.Int) (*Quadratic, error) {
	if !domain.IsPositive(k) {
		return nil, domain.Errorf(domain.ErrInvalidParameter, "quadratic constant must be positive")
	}
	return &Quadratic{k: new(big.Int).Set(k)}, nil
}

func (c *Quadratic) Kind() Kind { return KindQuadratic }

func (c *Quadratic) TokenOut(r Reserves, baseIn *big.Int) (*big.Int, error) {
	if err := validateReserves(r); err != nil {
		return nil, err
	}
	if err := requirePositive("base in", baseIn); err != nil {
		return nil, err
	}
	rt2 := new(big.Int).Mul(r.Token, r.Token)
	den := new(big.Int).Mul(baseIn, r.Token)
	den.Add(den, c.k)
	return domain.MulDiv(baseIn, rt2, den), nil
}

func (c *Quadratic) BaseOut(r Reserves, tokenIn *big.Int) (*big.Int, error) {
	if err := validateReserves(r); err != nil {
		return nil, err
	}
	if err := requirePositive("token in", tokenIn); err != nil {
		return nil, err
	}
	den := new(big.Int).Add(r.Token, tokenIn)
	den.Mul(den, r.Token)
	out := domain.MulDiv(c.k, tokenIn, den)
	if out.Cmp(r.Base) > 0 {
		return nil, domain.Errorf(domain.ErrInsufficientLiquidity, "sell pays %s, base reserve %s", out, r.Base)
	}
	return out, nil
}

func (c *Quadratic) BaseIn(r Reserves, tokenOut *big.Int) (*big.Int, error) {
	if err := validateReserves(r); err != nil {
		return nil, err
	}
	if err := requirePositive("token out", tokenOut); err != nil {
		return nil, err
	}
	if tokenOut.Cmp(r.Token) >= 0 {
		return nil, domain.Errorf(domain.ErrInsufficientLiquidity, "requested %s of %s tokens", tokenOut, r.Token)
	}
	den := new(big.Int).Sub(r.Token, tokenOut)
	den.Mul(den, r.Token)
	return domain.MulDivUp(c.k, tokenOut, den), nil
}

func (c *Quadratic) TokenIn(r Reserves, baseOut *big.Int) (*big.Int, error) {
	if err := validateReserves(r); err != nil {
		return nil, err
	}
	if err := requirePositive("base out", baseOut); err != nil {
		return nil, err
	}
	if baseOut.Cmp(r.Base) > 0 {
		return nil, domain.Errorf(domain.ErrInsufficientLiquidity, "requested %s of %s base", baseOut, r.Base)
	}
	// the curve pays at most K/Rt however many tokens are sold
	den := new(big.Int).Mul(baseOut, r.Token)
	den.Sub(c.k, den)
	if den.Sign() <= 0 {
		return nil, domain.Errorf(domain.ErrInsufficientLiquidity, "base out %s beyond curve limit", baseOut)
	}
	rt2 := new(big.Int).Mul(r.Token, r.Token)
	return domain.MulDivUp(baseOut, rt2, den), nil
}

func (c *Quadratic) SpotPrice(r Reserves) *big.Rat {
	if !domain.IsPositive(r.Token) {
		return new(big.Rat)
	}
	return new(big.Rat).SetFrac(c.k, new(big.Int).Mul(r.Token, r.Token))
}

func (c *Quadratic) invariant(r Reserves) *big.Rat {
	inv := new(big.Rat).SetInt(r.Base)
	return inv.Sub(inv, new(big.Rat).SetFrac(c.k, r.Token))
}

// Verify allows growth of at most one base unit plus the price of one token unit
func (c *Quadratic) Verify(before, after Reserves) error {
	if !domain.IsPositive(before.Token) || !domain.IsPositive(after.Token) {
		return domain.Errorf(domain.ErrInvariantViolated, "empty token reserve")
	}
	i0 := c.invariant(before)
	i1 := c.invariant(after)
	if i1.Cmp(i0) < 0 {
		return domain.Errorf(domain.ErrInvariantViolated, "invariant decreased: %s -> %s", i0.FloatString(6), i1.FloatString(6))
	}

	tolerance := new(big.Rat).SetInt64(1)
	if after.Token.Cmp(domain.Big1) > 0 {
		den := new(big.Int).Sub(after.Token, domain.Big1)
		den.Mul(den, after.Token)
		tolerance.Add(tolerance, new(big.Rat).SetFrac(c.k, den))
	}
	growth := new(big.Rat).Sub(i1, i0)
	if growth.Cmp(tolerance) > 0 {
		return domain.Errorf(domain.ErrInvariantViolated, "invariant grew by %s", growth.FloatString(6))
	}
	return nil
}
