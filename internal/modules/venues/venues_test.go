package venues

import (
	"errors"
	"math/big"
	"testing"

	"github.com/aristath/launchpad/internal/domain"
	"github.com/aristath/launchpad/internal/modules/token"
	"github.com/aristath/launchpad/internal/state"
	testingpkg "github.com/aristath/launchpad/internal/testing"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tokenA       = common.HexToAddress("0x1001")
	tokenB       = common.HexToAddress("0x2001")
	provider     = common.HexToAddress("0x6001")
	classicAddr  = common.HexToAddress("0xd001")
	clAddr       = common.HexToAddress("0xd002")
	solidlyAddr  = common.HexToAddress("0xd003")
	errScripted  = errors.New("scripted failure")
	unlimitedAmt = new(big.Int).Lsh(big.NewInt(1), 200)
)

type venueFixture struct {
	journal  *state.Journal
	ledgers  *token.Registry
	a        *token.Token
	b        *token.Token
	classic  *ClassicAMM
	cl       *ConcentratedAMM
	solidly  *SolidlyAMM
	registry *Registry
}

func newVenueFixture(t *testing.T) *venueFixture {
	t.Helper()
	j := state.NewJournal()
	ledgers := token.NewRegistry(j)
	a, err := ledgers.Add(token.Config{Address: tokenA, Name: "A", Symbol: "A", Supply: domain.E18(1_000_000), Holder: provider})
	require.NoError(t, err)
	b, err := ledgers.Add(token.Config{Address: tokenB, Name: "B", Symbol: "B", Supply: domain.E18(1_000_000), Holder: provider})
	require.NoError(t, err)

	log := testingpkg.NewTestLogger()
	f := &venueFixture{
		journal: j,
		ledgers: ledgers,
		a:       a,
		b:       b,
		classic: NewClassicAMM(j, ledgers, classicAddr, log),
		cl:      NewConcentratedAMM(j, ledgers, clAddr, log),
		solidly: NewSolidlyAMM(j, ledgers, solidlyAddr, log),
	}
	f.registry, err = NewRegistry(f.classic, f.cl, f.solidly)
	require.NoError(t, err)

	for _, venue := range []common.Address{classicAddr, clAddr, solidlyAddr} {
		require.NoError(t, a.Approve(provider, venue, unlimitedAmt))
		require.NoError(t, b.Approve(provider, venue, unlimitedAmt))
	}
	return f
}

func params(pool common.Address, amountA, amountB *big.Int) LiquidityParams {
	return LiquidityParams{
		Caller:  provider,
		Pool:    pool,
		TokenA:  tokenA,
		TokenB:  tokenB,
		AmountA: amountA,
		AmountB: amountB,
		To:      provider,
	}
}

func TestSqrtRatioAtTick_MatchesKnownBounds(t *testing.T) {
	assert.Equal(t, Q96.String(), SqrtRatioAtTick(0).String())
	assert.Equal(t, MinSqrtRatio.String(), SqrtRatioAtTick(MinTick).String())
	assert.Equal(t, MaxSqrtRatio.String(), SqrtRatioAtTick(MaxTick).String())

	prev := SqrtRatioAtTick(-100)
	for tick := int32(-99); tick <= 100; tick++ {
		next := SqrtRatioAtTick(tick)
		assert.Equal(t, 1, next.Cmp(prev), "tick %d", tick)
		prev = next
	}
}

func TestFullRangeTicks(t *testing.T) {
	testCases := []struct {
		fee   uint32
		upper int32
	}{
		{fee: 100, upper: 887272},
		{fee: 500, upper: 887270},
		{fee: 3000, upper: 887220},
		{fee: 10000, upper: 887200},
	}
	for _, tc := range testCases {
		spacing, ok := TickSpacing(tc.fee)
		require.True(t, ok)
		lower, upper := FullRangeTicks(spacing)
		assert.Equal(t, tc.upper, upper)
		assert.Equal(t, -tc.upper, lower)
	}

	_, ok := TickSpacing(2500)
	assert.False(t, ok)
}

func TestEncodeSqrtPriceX96(t *testing.T) {
	assert.Equal(t, Q96.String(), EncodeSqrtPriceX96(domain.E18(5), domain.E18(5)).String())
	assert.Equal(t, new(big.Int).Mul(Q96, big.NewInt(2)).String(), EncodeSqrtPriceX96(domain.E18(1), domain.E18(4)).String())
}

func TestClassic_CreateIsDeterministicAndIdempotent(t *testing.T) {
	f := newVenueFixture(t)

	pool, created, err := f.classic.CreateOrGetPool(provider, tokenA, tokenB, 0)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := f.classic.CreateOrGetPool(provider, tokenB, tokenA, 10000)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, pool, again, "token order and fee tier do not change the pair")

	other, _, err := f.solidly.CreateOrGetPool(provider, tokenA, tokenB, 0)
	require.NoError(t, err)
	assert.NotEqual(t, pool, other, "pool addresses are salted by factory")

	info, ok := f.classic.Pool(pool)
	require.True(t, ok)
	assert.Equal(t, tokenA, info.Token0)
	assert.Equal(t, ClassicFee, info.FeeTier)

	_, _, err = f.classic.CreateOrGetPool(provider, tokenA, tokenA, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidPath)
	_, _, err = f.classic.CreateOrGetPool(provider, tokenA, common.Address{}, 0)
	assert.ErrorIs(t, err, domain.ErrZeroAddress)
}

func TestClassic_FirstDepositLocksMinimumThenKeepsRatio(t *testing.T) {
	f := newVenueFixture(t)
	pool, _, err := f.classic.CreateOrGetPool(provider, tokenA, tokenB, 0)
	require.NoError(t, err)

	dep, err := f.classic.AddLiquidity(params(pool, domain.E18(1), domain.E18(4)))
	require.NoError(t, err)
	assert.Equal(t, domain.E18(1).String(), dep.UsedA.String())
	assert.Equal(t, domain.E18(4).String(), dep.UsedB.String())
	want := new(big.Int).Sub(domain.E18(2), MinimumLiquidity)
	assert.Equal(t, want.String(), dep.Liquidity.String())
	assert.Equal(t, MinimumLiquidity.String(), f.classic.LiquidityOf(pool, deadShares).String())
	assert.Equal(t, domain.E18(4).String(), f.b.BalanceOf(pool).String())

	// tokenA is oversupplied for the 1:4 ratio, so only a quarter of it is taken
	dep, err = f.classic.AddLiquidity(LiquidityParams{
		Caller: provider, Pool: pool, TokenA: tokenB, TokenB: tokenA,
		AmountA: domain.E18(1), AmountB: domain.E18(1), To: provider,
	})
	require.NoError(t, err)
	assert.Equal(t, "250000000000000000", dep.UsedB.String())
	assert.Equal(t, domain.E18(1).String(), dep.UsedA.String())
	assert.Equal(t, "500000000000000000", dep.Liquidity.String())

	info, _ := f.classic.Pool(pool)
	assert.Equal(t, "1250000000000000000", info.Reserve0.String())
	assert.Equal(t, domain.E18(5).String(), info.Reserve1.String())
	assert.Equal(t, "2500000000000000000", info.Liquidity.String())
}

func TestClassic_MinimumsAndDustDeposits(t *testing.T) {
	f := newVenueFixture(t)
	pool, _, err := f.classic.CreateOrGetPool(provider, tokenA, tokenB, 0)
	require.NoError(t, err)

	_, err = f.classic.AddLiquidity(params(pool, big.NewInt(10), big.NewInt(10)))
	assert.ErrorIs(t, err, domain.ErrInsufficientLiquidity)

	_, err = f.classic.AddLiquidity(params(pool, domain.E18(1), domain.E18(1)))
	require.NoError(t, err)

	p := params(pool, domain.E18(1), domain.E18(2))
	p.MinB = domain.E18(2)
	_, err = f.classic.AddLiquidity(p)
	assert.ErrorIs(t, err, domain.ErrInsufficientOutput)

	_, err = f.classic.AddLiquidity(params(common.HexToAddress("0xbad"), domain.E18(1), domain.E18(1)))
	assert.ErrorIs(t, err, domain.ErrPoolNotFound)
}

func TestClassic_FailedFrameLeavesNoTrace(t *testing.T) {
	f := newVenueFixture(t)

	err := f.journal.Atomic(func() error {
		pool, _, err := f.classic.CreateOrGetPool(provider, tokenA, tokenB, 0)
		require.NoError(t, err)
		_, err = f.classic.AddLiquidity(params(pool, domain.E18(10), domain.E18(10)))
		require.NoError(t, err)
		return errScripted
	})
	require.ErrorIs(t, err, errScripted)

	assert.Empty(t, f.classic.Pools())
	assert.Equal(t, domain.E18(1_000_000).String(), f.a.BalanceOf(provider).String())

	// the same pair can be created again from scratch
	pool, created, err := f.classic.CreateOrGetPool(provider, tokenA, tokenB, 0)
	require.NoError(t, err)
	assert.True(t, created)
	info, _ := f.classic.Pool(pool)
	assert.Equal(t, "0", info.Liquidity.String())
}

func TestClassic_PullWithoutAllowanceFails(t *testing.T) {
	f := newVenueFixture(t)
	require.NoError(t, f.b.Approve(provider, classicAddr, big.NewInt(0)))

	err := f.journal.Atomic(func() error {
		pool, _, err := f.classic.CreateOrGetPool(provider, tokenA, tokenB, 0)
		if err != nil {
			return err
		}
		_, err = f.classic.AddLiquidity(params(pool, domain.E18(1), domain.E18(1)))
		return err
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientAllowance)
	assert.Empty(t, f.classic.Pools())
	assert.Equal(t, domain.E18(1_000_000).String(), f.a.BalanceOf(provider).String())
}

func TestVenue_ReentryFromLedgerHookIsRejected(t *testing.T) {
	f := newVenueFixture(t)
	pool, _, err := f.classic.CreateOrGetPool(provider, tokenA, tokenB, 0)
	require.NoError(t, err)

	f.a.SetHook(func(from, to common.Address, amount *big.Int) error {
		_, _, err := f.classic.CreateOrGetPool(provider, tokenA, common.HexToAddress("0x3001"), 0)
		return err
	})
	err = f.journal.Atomic(func() error {
		_, err := f.classic.AddLiquidity(params(pool, domain.E18(1), domain.E18(1)))
		return err
	})
	assert.ErrorIs(t, err, domain.ErrReentrant)
}

func TestSolidly_StableAndVolatileAreDistinct(t *testing.T) {
	f := newVenueFixture(t)

	volatile, _, err := f.solidly.CreateOrGetPool(provider, tokenA, tokenB, 500)
	require.NoError(t, err)
	stable, created, err := f.solidly.CreateOrGetPair(provider, tokenA, tokenB, true)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, volatile, stable)

	same, created, err := f.solidly.CreateOrGetPair(provider, tokenB, tokenA, false)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, volatile, same)

	info, _ := f.solidly.Pool(volatile)
	assert.False(t, info.Stable)
	assert.Equal(t, SolidlyVolatileFee, info.FeeTier)
	info, _ = f.solidly.Pool(stable)
	assert.True(t, info.Stable)
	assert.Equal(t, SolidlyStableFee, info.FeeTier)

	dep, err := f.solidly.AddLiquidity(params(volatile, domain.E18(3), domain.E18(3)))
	require.NoError(t, err)
	assert.Equal(t, new(big.Int).Sub(domain.E18(3), MinimumLiquidity).String(), dep.Liquidity.String())
}

func TestConcentrated_LifecycleAndFullRangeMint(t *testing.T) {
	f := newVenueFixture(t)

	_, _, err := f.cl.CreateOrGetPool(provider, tokenA, tokenB, 2500)
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)

	pool, created, err := f.cl.CreateOrGetPool(provider, tokenA, tokenB, 3000)
	require.NoError(t, err)
	assert.True(t, created)
	assert.False(t, f.cl.Initialized(pool))

	other, _, err := f.cl.CreateOrGetPool(provider, tokenA, tokenB, 500)
	require.NoError(t, err)
	assert.NotEqual(t, pool, other, "each fee tier is its own pool")

	_, err = f.cl.MintFullRange(params(pool, domain.E18(1), domain.E18(1)))
	assert.ErrorIs(t, err, domain.ErrUninitialized)

	assert.ErrorIs(t, f.cl.Initialize(provider, pool, big.NewInt(1)), domain.ErrInvalidParameter)
	require.NoError(t, f.cl.Initialize(provider, pool, EncodeSqrtPriceX96(domain.E18(1), domain.E18(1))))
	assert.ErrorIs(t, f.cl.Initialize(provider, pool, Q96), domain.ErrAlreadyInit)

	desired := domain.E18(100)
	dep, err := f.cl.AddLiquidity(params(pool, desired, desired))
	require.NoError(t, err)

	tolerance := big.NewInt(1_000_000)
	for _, used := range []*big.Int{dep.UsedA, dep.UsedB} {
		assert.True(t, used.Cmp(desired) <= 0, "used %s", used)
		assert.True(t, new(big.Int).Sub(desired, used).Cmp(tolerance) <= 0, "used %s", used)
	}
	assert.Equal(t, dep.UsedA.String(), f.a.BalanceOf(pool).String())
	assert.Equal(t, dep.Liquidity.String(), f.cl.LiquidityOf(pool, provider).String())

	info, ok := f.cl.Pool(pool)
	require.True(t, ok)
	assert.Equal(t, int32(-887220), info.TickLower)
	assert.Equal(t, int32(887220), info.TickUpper)
	assert.Equal(t, Q96.String(), info.SqrtPriceX96.String())
}

func TestConcentrated_MintTracksSkewedPrice(t *testing.T) {
	f := newVenueFixture(t)
	pool, _, err := f.cl.CreateOrGetPool(provider, tokenA, tokenB, 10000)
	require.NoError(t, err)

	// one A is worth 9 B
	require.NoError(t, f.cl.Initialize(provider, pool, EncodeSqrtPriceX96(domain.E18(1), domain.E18(9))))

	dep, err := f.cl.MintFullRange(params(pool, domain.E18(10), domain.E18(30)))
	require.NoError(t, err)

	// B is the binding side: about 30 B and 30/9 A
	assert.True(t, dep.UsedB.Cmp(domain.E18(30)) <= 0)
	assert.True(t, new(big.Int).Sub(domain.E18(30), dep.UsedB).Cmp(big.NewInt(1_000_000)) <= 0)
	ratio, _ := new(big.Rat).SetFrac(dep.UsedB, dep.UsedA).Float64()
	assert.InDelta(t, 9.0, ratio, 1e-9)
}

func TestRegistry_ResolveAndCheckConfigs(t *testing.T) {
	f := newVenueFixture(t)

	err := f.registry.Register(f.classic)
	assert.ErrorIs(t, err, domain.ErrAlreadyRegistered)

	_, err = f.registry.Get(common.HexToAddress("0xeeee"))
	assert.ErrorIs(t, err, domain.ErrUnknownVenue)

	_, err = f.registry.Resolve(domain.DexConfig{VenueRef: classicAddr, VenueKind: domain.VenueSolidlyAMM, WeightBps: 10000})
	assert.ErrorIs(t, err, domain.ErrVenueKindMismatch)

	good := []domain.DexConfig{
		{VenueRef: classicAddr, VenueKind: domain.VenueClassicAMM, WeightBps: 5000},
		{VenueRef: clAddr, VenueKind: domain.VenueConcentratedAMM, FeeTier: 3000, WeightBps: 3000},
		{VenueRef: solidlyAddr, VenueKind: domain.VenueSolidlyAMM, WeightBps: 2000},
	}
	require.NoError(t, f.registry.CheckConfigs(good))

	badFee := domain.CloneDexConfigs(good)
	badFee[1].FeeTier = 42
	assert.ErrorIs(t, f.registry.CheckConfigs(badFee), domain.ErrInvalidParameter)

	badWeight := domain.CloneDexConfigs(good)
	badWeight[2].WeightBps = 1999
	assert.ErrorIs(t, f.registry.CheckConfigs(badWeight), domain.ErrWeightMismatch)

	assert.Len(t, f.registry.All(), 3)

	pool, _, err := f.solidly.CreateOrGetPool(provider, tokenA, tokenB, 0)
	require.NoError(t, err)
	info, ok := f.registry.FindPool(pool)
	require.True(t, ok)
	assert.Equal(t, solidlyAddr, info.Venue)
}
