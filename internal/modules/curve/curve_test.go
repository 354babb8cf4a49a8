package curve

import (
	"fmt"
	"math/big"
	"math/rand"
	"testing"

	"github.com/aristath/launchpad/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedReserves() Reserves {
	return Reserves{Token: domain.E18(1_000_000), Base: big.NewInt(0)}
}

func newVirtual(t *testing.T, linear bool) *VirtualReserve {
	t.Helper()
	c, err := NewVirtualReserve(domain.E18(5_000), big.NewInt(5), linear)
	require.NoError(t, err)
	return c
}

func TestVirtualReserve_SeedScenario(t *testing.T) {
	c := newVirtual(t, false)
	r := seedReserves()
	baseIn := domain.E18(10)

	out, err := c.TokenOut(r, baseIn)
	require.NoError(t, err)

	// 10e18 * 1_000_000e18 / ((0 + 5_000e18) * 5 + 10e18)
	den := new(big.Int).Mul(domain.E18(5_000), big.NewInt(5))
	den.Add(den, baseIn)
	want := new(big.Int).Mul(baseIn, domain.E18(1_000_000))
	want.Quo(want, den)
	assert.Equal(t, want.String(), out.String())

	after := Reserves{Token: new(big.Int).Sub(r.Token, out), Base: baseIn}
	require.NoError(t, c.Verify(r, after))
}

func TestVirtualReserve_LinearBootstrap(t *testing.T) {
	c := newVirtual(t, true)
	r := seedReserves()
	baseIn := domain.E18(10)

	out, err := c.TokenOut(r, baseIn)
	require.NoError(t, err)
	// flat rate: 10e18 * 1_000_000e18 / 25_000e18 = 400e18
	assert.Equal(t, domain.E18(400).String(), out.String())

	in, err := c.BaseIn(r, out)
	require.NoError(t, err)
	assert.Equal(t, baseIn.String(), in.String())

	// the invariant is not checked across the bootstrap trade
	after := Reserves{Token: new(big.Int).Sub(r.Token, out), Base: baseIn}
	assert.NoError(t, c.Verify(r, after))

	// once base is present the general formula applies
	next, err := c.TokenOut(after, baseIn)
	require.NoError(t, err)
	assert.True(t, next.Cmp(out) < 0)
}

func TestVirtualReserve_ParamsValidation(t *testing.T) {
	_, err := NewVirtualReserve(big.NewInt(0), big.NewInt(1), false)
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
	_, err = NewVirtualReserve(big.NewInt(1), nil, false)
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)

	_, err = New(Params{Kind: "bogus"})
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
}

func curves(t *testing.T) map[string]struct {
	curve    Curve
	reserves Reserves
} {
	t.Helper()
	quad, err := NewQuadratic(new(big.Int).Mul(domain.E18(1_000_000), domain.E18(1_000_000)))
	require.NoError(t, err)
	return map[string]struct {
		curve    Curve
		reserves Reserves
	}{
		"virtual reserve": {newVirtual(t, false), Reserves{Token: domain.E18(900_000), Base: domain.E18(2_000)}},
		"constant product": {ConstantProduct{}, Reserves{Token: domain.E18(900_000), Base: domain.E18(2_000)}},
		"quadratic":        {quad, Reserves{Token: domain.E18(900_000), Base: domain.E18(2_000)}},
	}
}

func TestCurves_MonotonicImpact(t *testing.T) {
	for name, tc := range curves(t) {
		t.Run(name, func(t *testing.T) {
			a := domain.E18(1)
			b := domain.E18(50)
			outA, err := tc.curve.TokenOut(tc.reserves, a)
			require.NoError(t, err)
			outB, err := tc.curve.TokenOut(tc.reserves, b)
			require.NoError(t, err)

			// outA/a > outB/b  <=>  outA*b > outB*a
			lhs := new(big.Int).Mul(outA, b)
			rhs := new(big.Int).Mul(outB, a)
			assert.Equal(t, 1, lhs.Cmp(rhs))
		})
	}
}

func TestCurves_RoundTripNeverProfits(t *testing.T) {
	// every size stays under 10% of the 2,000 base in reserve
	sizes := []int64{1, 7, 50, 150, 199}
	for name, tc := range curves(t) {
		for _, size := range sizes {
			t.Run(fmt.Sprintf("%s/%d", name, size), func(t *testing.T) {
				baseIn := domain.E18(size)
				tokens, err := tc.curve.TokenOut(tc.reserves, baseIn)
				require.NoError(t, err)

				after := Reserves{
					Token: new(big.Int).Sub(tc.reserves.Token, tokens),
					Base:  new(big.Int).Add(tc.reserves.Base, baseIn),
				}
				back, err := tc.curve.BaseOut(after, tokens)
				require.NoError(t, err)
				assert.True(t, back.Cmp(baseIn) <= 0, "got %s back for %s", back, baseIn)

				// tax-free loss is only rounding
				loss := new(big.Int).Sub(baseIn, back)
				assert.True(t, loss.Cmp(big.NewInt(1_000_000)) < 0, "loss %s", loss)
			})
		}
	}
}

func TestCurves_InvariantHoldsAcrossRandomSwaps(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for name, tc := range curves(t) {
		t.Run(name, func(t *testing.T) {
			r := tc.reserves.Copy()
			for i := 0; i < 200; i++ {
				amount := new(big.Int).Mul(big.NewInt(rng.Int63n(1_000)+1), domain.Ether)
				amount.Add(amount, big.NewInt(rng.Int63n(1_000_000)))

				next := r.Copy()
				if rng.Intn(2) == 0 {
					out, err := tc.curve.TokenOut(r, amount)
					require.NoError(t, err)
					next.Token.Sub(next.Token, out)
					next.Base.Add(next.Base, amount)
				} else {
					amount.Mul(amount, big.NewInt(10))
					out, err := tc.curve.BaseOut(r, amount)
					if err != nil {
						assert.ErrorIs(t, err, domain.ErrInsufficientLiquidity)
						continue
					}
					next.Token.Add(next.Token, amount)
					next.Base.Sub(next.Base, out)
				}
				require.NoError(t, tc.curve.Verify(r, next), "step %d", i)
				r = next
			}
		})
	}
}

func TestCurves_ExactOutInversesAreMinimal(t *testing.T) {
	for name, tc := range curves(t) {
		t.Run(name, func(t *testing.T) {
			r := tc.reserves
			for _, want := range []*big.Int{big.NewInt(1), domain.E18(3), domain.MustAmount("123456789012345678901")} {
				baseIn, err := tc.curve.BaseIn(r, want)
				require.NoError(t, err)
				got, err := tc.curve.TokenOut(r, baseIn)
				require.NoError(t, err)
				assert.True(t, got.Cmp(want) >= 0, "buy: %s < %s", got, want)
				if baseIn.Cmp(domain.Big1) > 0 {
					less, err := tc.curve.TokenOut(r, new(big.Int).Sub(baseIn, domain.Big1))
					require.NoError(t, err)
					assert.True(t, less.Cmp(want) < 0, "buy input not minimal")
				}
			}

			for _, want := range []*big.Int{big.NewInt(1), domain.E18(1), domain.MustAmount("9876543210987654321")} {
				tokenIn, err := tc.curve.TokenIn(r, want)
				require.NoError(t, err)
				got, err := tc.curve.BaseOut(r, tokenIn)
				require.NoError(t, err)
				assert.True(t, got.Cmp(want) >= 0, "sell: %s < %s", got, want)
				if tokenIn.Cmp(domain.Big1) > 0 {
					less, err := tc.curve.BaseOut(r, new(big.Int).Sub(tokenIn, domain.Big1))
					require.NoError(t, err)
					assert.True(t, less.Cmp(want) < 0, "sell input not minimal")
				}
			}
		})
	}
}

func TestCurves_RejectBadInput(t *testing.T) {
	for name, tc := range curves(t) {
		t.Run(name, func(t *testing.T) {
			_, err := tc.curve.TokenOut(tc.reserves, big.NewInt(0))
			assert.ErrorIs(t, err, domain.ErrZeroAmount)

			_, err = tc.curve.BaseIn(tc.reserves, tc.reserves.Token)
			assert.ErrorIs(t, err, domain.ErrInsufficientLiquidity)

			_, err = tc.curve.TokenIn(tc.reserves, new(big.Int).Add(tc.reserves.Base, domain.Big1))
			assert.ErrorIs(t, err, domain.ErrInsufficientLiquidity)

			_, err = tc.curve.TokenOut(Reserves{Token: big.NewInt(0), Base: big.NewInt(0)}, domain.E18(1))
			assert.ErrorIs(t, err, domain.ErrUninitialized)
		})
	}
}

func TestConstantProduct_NeedsBaseLiquidity(t *testing.T) {
	_, err := ConstantProduct{}.TokenOut(seedReserves(), domain.E18(1))
	assert.ErrorIs(t, err, domain.ErrUninitialized)
}

func TestQuadratic_ClosedForms(t *testing.T) {
	k := domain.MustAmount("1000000000000000000000000000000000000000000000000")
	c, err := NewQuadratic(k)
	require.NoError(t, err)
	r := Reserves{Token: domain.E18(1_000_000), Base: big.NewInt(0)}

	b := domain.E18(2)
	out, err := c.TokenOut(r, b)
	require.NoError(t, err)

	rt2 := new(big.Int).Mul(r.Token, r.Token)
	want := new(big.Int).Mul(b, rt2)
	want.Quo(want, new(big.Int).Add(k, new(big.Int).Mul(b, r.Token)))
	assert.Equal(t, want.String(), out.String())

	// spot price rises after the buy
	after := Reserves{Token: new(big.Int).Sub(r.Token, out), Base: b}
	assert.Equal(t, 1, c.SpotPrice(after).Cmp(c.SpotPrice(r)))
	require.NoError(t, c.Verify(r, after))

	// draining more base than reserved is rejected
	_, err = c.BaseOut(after, new(big.Int).Mul(out, big.NewInt(2)))
	assert.ErrorIs(t, err, domain.ErrInsufficientLiquidity)
}

func TestVerify_RejectsValueLeak(t *testing.T) {
	c := newVirtual(t, false)
	before := Reserves{Token: domain.E18(900_000), Base: domain.E18(2_000)}
	leaked := Reserves{Token: domain.E18(899_000), Base: domain.E18(2_000)}
	assert.ErrorIs(t, c.Verify(before, leaked), domain.ErrInvariantViolated)

	gifted := Reserves{Token: domain.E18(901_000), Base: domain.E18(2_000)}
	assert.ErrorIs(t, c.Verify(before, gifted), domain.ErrInvariantViolated)
}
