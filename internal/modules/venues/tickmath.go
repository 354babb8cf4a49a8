package venues

import (
	"math/big"

	"github.com/aristath/launchpad/internal/domain"
)

// Tick bounds of concentrated liquidity pools
const (
	MinTick int32 = -887272
	MaxTick int32 = 887272
)

var (
	// Q96 is the fixed-point scale of sqrt prices
	Q96 = new(big.Int).Lsh(big.NewInt(1), 96)

	// MinSqrtRatio is the sqrt price at MinTick
	MinSqrtRatio = big.NewInt(4295128739)

	// MaxSqrtRatio is the sqrt price at MaxTick
	MaxSqrtRatio, _ = new(big.Int).SetString("1461446703485210103287273052203988822378723970342", 10)

	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// tickSpacings maps each enabled fee tier to its tick spacing
var tickSpacings = map[uint32]int32{
	100:   1,
	500:   10,
	3000:  60,
	10000: 200,
}

// TickSpacing returns the spacing of an enabled fee tier
func TickSpacing(fee uint32) (int32, bool) {
	s, ok := tickSpacings[fee]
	return s, ok
}

// FullRangeTicks returns the widest tick range usable at spacing
func FullRangeTicks(spacing int32) (int32, int32) {
	upper := MaxTick / spacing * spacing
	return -upper, upper
}

// sqrt(1.0001^-(2^i)) in Q128, for each bit i of the absolute tick
var tickRatios = []string{
	"fffcb933bd6fad37aa2d162d1a594001",
	"fff97272373d413259a46990580e213a",
	"fff2e50f5f656932ef12357cf3c7fdcc",
	"ffe5caca7e10e4e61c3624eaa0941cd0",
	"ffcb9843d60f6159c9db58835c926644",
	"ff973b41fa98c081472e6896dfb254c0",
	"ff2ea16466c96a3843ec78b326b52861",
	"fe5dee046a99a2a811c461f1969c3053",
	"fcbe86c7900a88aedcffc83b479aa3a4",
	"f987a7253ac413176f2b074cf7815e54",
	"f3392b0822b70005940c7a398e4b70f3",
	"e7159475a2c29b7443b29c7fa6e889d9",
	"d097f3bdfd2022b8845ad8f792aa5825",
	"a9f746462d870fdf8a65dc1f90e061e5",
	"70d869a156d2a1b890bb3df62baf32f7",
	"31be135f97d08fd981231505542fcfa6",
	"9aa508b5b7a84e1c677de54f3e99bc9",
	"5d6af8dedb81196699c329225ee604",
	"2216e584f5fa1ea926041bedfe98",
	"48a170391f7dc42444e8fa2",
}

var tickRatioInts = func() []*big.Int {
	out := make([]*big.Int, len(tickRatios))
	for i, h := range tickRatios {
		v, ok := new(big.Int).SetString(h, 16)
		if !ok {
			panic("bad tick ratio " + h)
		}
		out[i] = v
	}
	return out
}()

// SqrtRatioAtTick returns sqrt(1.0001^tick) * 2^96, rounded up, bit-exact with
// the on-chain tick math
func SqrtRatioAtTick(tick int32) *big.Int {
	if tick < MinTick || tick > MaxTick {
		panic("tick out of range")
	}
	abs := int64(tick)
	if abs < 0 {
		abs = -abs
	}

	ratio := new(big.Int).Lsh(big.NewInt(1), 128)
	if abs&1 != 0 {
		ratio.Set(tickRatioInts[0])
	}
	for i := 1; i < len(tickRatioInts); i++ {
		if abs&(1<<uint(i)) != 0 {
			ratio.Mul(ratio, tickRatioInts[i])
			ratio.Rsh(ratio, 128)
		}
	}
	if tick > 0 {
		ratio.Quo(maxUint256, ratio)
	}

	rem := new(big.Int).And(ratio, big.NewInt(0xffffffff))
	ratio.Rsh(ratio, 32)
	if rem.Sign() != 0 {
		ratio.Add(ratio, big.NewInt(1))
	}
	return ratio
}

// EncodeSqrtPriceX96 returns sqrt(amount1 / amount0) * 2^96, rounded down
func EncodeSqrtPriceX96(amount0, amount1 *big.Int) *big.Int {
	n := new(big.Int).Lsh(amount1, 192)
	n.Quo(n, amount0)
	return n.Sqrt(n)
}

// liquidityForAmounts is the largest liquidity amount0/amount1 can back between
// sqrtA and sqrtB at price sqrtP
func liquidityForAmounts(sqrtP, sqrtA, sqrtB, amount0, amount1 *big.Int) *big.Int {
	switch {
	case sqrtP.Cmp(sqrtA) <= 0:
		return liquidityForAmount0(sqrtA, sqrtB, amount0)
	case sqrtP.Cmp(sqrtB) < 0:
		l0 := liquidityForAmount0(sqrtP, sqrtB, amount0)
		l1 := liquidityForAmount1(sqrtA, sqrtP, amount1)
		if l0.Cmp(l1) < 0 {
			return l0
		}
		return l1
	default:
		return liquidityForAmount1(sqrtA, sqrtB, amount1)
	}
}

func liquidityForAmount0(sqrtA, sqrtB, amount0 *big.Int) *big.Int {
	intermediate := new(big.Int).Mul(sqrtA, sqrtB)
	intermediate.Quo(intermediate, Q96)
	n := new(big.Int).Mul(amount0, intermediate)
	return n.Quo(n, new(big.Int).Sub(sqrtB, sqrtA))
}

func liquidityForAmount1(sqrtA, sqrtB, amount1 *big.Int) *big.Int {
	n := new(big.Int).Mul(amount1, Q96)
	return n.Quo(n, new(big.Int).Sub(sqrtB, sqrtA))
}

// amountsForLiquidity returns the token amounts a position of liquidity needs,
// rounded up
func amountsForLiquidity(sqrtP, sqrtA, sqrtB, liquidity *big.Int) (*big.Int, *big.Int) {
	switch {
	case sqrtP.Cmp(sqrtA) <= 0:
		return amount0Delta(sqrtA, sqrtB, liquidity), new(big.Int)
	case sqrtP.Cmp(sqrtB) < 0:
		return amount0Delta(sqrtP, sqrtB, liquidity), amount1Delta(sqrtA, sqrtP, liquidity)
	default:
		return new(big.Int), amount1Delta(sqrtA, sqrtB, liquidity)
	}
}

func amount0Delta(sqrtA, sqrtB, liquidity *big.Int) *big.Int {
	n := new(big.Int).Lsh(liquidity, 96)
	n.Mul(n, new(big.Int).Sub(sqrtB, sqrtA))
	return domain.CeilDiv(domain.CeilDiv(n, sqrtB), sqrtA)
}

func amount1Delta(sqrtA, sqrtB, liquidity *big.Int) *big.Int {
	n := new(big.Int).Mul(liquidity, new(big.Int).Sub(sqrtB, sqrtA))
	return domain.CeilDiv(n, Q96)
}
