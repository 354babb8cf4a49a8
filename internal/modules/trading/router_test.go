package trading

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/aristath/launchpad/internal/domain"
	"github.com/aristath/launchpad/internal/events"
	"github.com/aristath/launchpad/internal/modules/curve"
	"github.com/aristath/launchpad/internal/modules/pool"
	"github.com/aristath/launchpad/internal/modules/token"
	"github.com/aristath/launchpad/internal/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	routerAddr  = common.HexToAddress("0x4001")
	poolAddr    = common.HexToAddress("0x5001")
	trader      = common.HexToAddress("0x7001")
	trader2     = common.HexToAddress("0x7002")
	admin       = common.HexToAddress("0xa001")
	launcher    = common.HexToAddress("0xa002")
	coordinator = common.HexToAddress("0xa003")
	treasury    = common.HexToAddress("0xa004")
	creator     = common.HexToAddress("0xc001")
)

type recorder struct {
	types []events.EventType
	data  []events.EventData
}

func (r *recorder) EmitTyped(t events.EventType, _ string, data events.EventData) {
	r.types = append(r.types, t)
	r.data = append(r.data, data)
}

func (r *recorder) count(t events.EventType) int {
	n := 0
	for _, et := range r.types {
		if et == t {
			n++
		}
	}
	return n
}

type fakeHook struct {
	creator common.Address
	try     func(caller, tok common.Address) (bool, error)
	calls   int
}

func (h *fakeHook) TryGraduate(caller, tok common.Address) (bool, error) {
	h.calls++
	if h.try == nil {
		return false, nil
	}
	return h.try(caller, tok)
}

func (h *fakeHook) Creator(common.Address) (common.Address, bool) {
	return h.creator, h.creator != (common.Address{})
}

type fixture struct {
	host    *state.Host
	clock   *state.ManualClock
	token   *token.Token
	base    *token.Token
	pool    *pool.Pool
	router  *Router
	emitted *recorder
}

// fanout forwards to the recorder and, when set, to a real manager
type fanout struct {
	rec  *recorder
	next events.Emitter
}

func (f fanout) EmitTyped(t events.EventType, module string, data events.EventData) {
	f.rec.EmitTyped(t, module, data)
	if f.next != nil {
		f.next.EmitTyped(t, module, data)
	}
}

func newFixture(t *testing.T, policy domain.TradePolicy) *fixture {
	return newFixtureWith(t, policy, nil)
}

func newFixtureWith(t *testing.T, policy domain.TradePolicy, next events.Emitter) *fixture {
	t.Helper()
	j := state.NewJournal()
	clock := state.NewManualClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	rec := &recorder{}
	emit := fanout{rec: rec, next: next}

	tok, err := token.New(j, token.Config{
		Address: common.HexToAddress("0x1001"), Name: "Agent", Symbol: "AGT",
		Supply: domain.E18(1_000_000), Holder: launcher, GraduationAuthority: coordinator,
	})
	require.NoError(t, err)
	base, err := token.New(j, token.Config{
		Address: common.HexToAddress("0x2001"), Name: "Base", Symbol: "BASE",
		Supply: domain.E18(1_000_000), Holder: trader,
	})
	require.NoError(t, err)

	c, err := curve.NewVirtualReserve(domain.E18(5_000), big.NewInt(5), false)
	require.NoError(t, err)
	p, err := pool.New(j, clock, emit, pool.Config{Address: poolAddr, Token: tok, Base: base, Curve: c, Router: routerAddr}, zerolog.Nop())
	require.NoError(t, err)

	r, err := NewRouter(j, clock, emit, base, RouterConfig{
		Address: routerAddr, Admin: admin, Launcher: launcher, Coordinator: coordinator,
		Treasury: treasury, Policy: policy,
	}, zerolog.Nop())
	require.NoError(t, err)

	f := &fixture{host: state.NewHost(j, clock), clock: clock, token: tok, base: base, pool: p, router: r, emitted: rec}
	f.exec(t, func() error {
		if err := r.RegisterPool(launcher, p); err != nil {
			return err
		}
		if err := tok.Approve(launcher, routerAddr, domain.E18(1_000_000)); err != nil {
			return err
		}
		if _, err := r.AddInitialLiquidity(launcher, tok.Address(), domain.E18(1_000_000), nil, common.Address{}); err != nil {
			return err
		}
		for _, who := range []common.Address{trader, trader2} {
			if err := base.Approve(who, routerAddr, domain.E18(1_000_000)); err != nil {
				return err
			}
			if err := tok.Approve(who, routerAddr, domain.E18(1_000_000)); err != nil {
				return err
			}
		}
		return base.Transfer(trader, trader2, domain.E18(10_000))
	})
	return f
}

func (f *fixture) exec(t *testing.T, fn func() error) {
	t.Helper()
	require.NoError(t, f.host.Execute(fn))
}

func (f *fixture) buy(caller common.Address, amount *big.Int) (*TradeReceipt, error) {
	var receipt *TradeReceipt
	err := f.host.Execute(func() error {
		var err error
		receipt, err = f.router.SwapExactIn(caller, f.base.Address(), f.token.Address(), amount, nil, caller, time.Time{})
		return err
	})
	return receipt, err
}

func (f *fixture) sell(caller common.Address, amount *big.Int) (*TradeReceipt, error) {
	var receipt *TradeReceipt
	err := f.host.Execute(func() error {
		var err error
		receipt, err = f.router.SwapExactIn(caller, f.token.Address(), f.base.Address(), amount, nil, caller, time.Time{})
		return err
	})
	return receipt, err
}

var onePercent = domain.TradePolicy{BuyTaxBps: 1000, SellTaxBps: 1000, MaxHoldBps: domain.BPS}

func TestSwapExactIn_RoundTripWithOnePercentTax(t *testing.T) {
	f := newFixture(t, onePercent)
	start := f.base.BalanceOf(trader)

	bought, err := f.buy(trader, domain.E18(1))
	require.NoError(t, err)
	assert.Equal(t, domain.TradeSideBuy, bought.Side)

	sold, err := f.sell(trader, bought.NetOut)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeSideSell, sold.Side)

	back := new(big.Int).Sub(f.base.BalanceOf(trader), new(big.Int).Sub(start, domain.E18(1)))
	assert.Equal(t, sold.NetOut.String(), back.String())

	low := new(big.Int).Mul(big.NewInt(980), domain.E18(1))
	low.Quo(low, big.NewInt(1000))
	high := new(big.Int).Mul(big.NewInt(981), domain.E18(1))
	high.Quo(high, big.NewInt(1000))
	assert.True(t, back.Cmp(low) >= 0, "returned %s, want >= %s", back, low)
	assert.True(t, back.Cmp(high) <= 0, "returned %s, want <= %s", back, high)
}

func TestSwapExactIn_RoundTripDeficitTracksCompoundedTax(t *testing.T) {
	// the fresh pool prices against 25,000 virtual base; every size stays under 10% of it
	testCases := []struct {
		name string
		in   *big.Int
	}{
		{name: "dust", in: big.NewInt(1_000_000_000_000)},
		{name: "one", in: domain.E18(1)},
		{name: "hundred", in: domain.E18(100)},
		{name: "one percent", in: domain.E18(250)},
		{name: "five percent", in: domain.E18(1_250)},
		{name: "just under ten percent", in: domain.E18(2_400)},
	}

	// 1 - (1 - 1%)^2 in base units of the trade
	keep := new(big.Int).Mul(new(big.Int).Sub(domain.BigTaxDn, big.NewInt(int64(onePercent.BuyTaxBps))),
		new(big.Int).Sub(domain.BigTaxDn, big.NewInt(int64(onePercent.SellTaxBps))))
	whole := new(big.Int).Mul(domain.BigTaxDn, domain.BigTaxDn)

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, onePercent)

			bought, err := f.buy(trader, tc.in)
			require.NoError(t, err)
			sold, err := f.sell(trader, bought.NetOut)
			require.NoError(t, err)

			back := sold.NetOut
			assert.True(t, back.Cmp(tc.in) <= 0, "returned %s for %s", back, tc.in)

			deficit := new(big.Int).Sub(tc.in, back)
			taxed := domain.MulDiv(tc.in, new(big.Int).Sub(whole, keep), whole)
			gap := new(big.Int).Sub(taxed, deficit)
			gap.Abs(gap)
			tolerance := domain.Bps(tc.in, 200)
			assert.True(t, gap.Cmp(tolerance) <= 0, "deficit %s, compounded tax %s", deficit, taxed)

			// tax tokens leave the pool, so impact never adds to the loss beyond rounding
			slack := new(big.Int).Add(taxed, big.NewInt(1_000_000))
			assert.True(t, deficit.Cmp(slack) <= 0, "deficit %s above compounded tax %s", deficit, taxed)
		})
	}
}

func TestSwapExactIn_TaxGoesToCreatorAndTreasury(t *testing.T) {
	f := newFixture(t, onePercent)
	f.router.SetGraduationHook(&fakeHook{creator: creator})

	receipt, err := f.buy(trader, domain.E18(3))
	require.NoError(t, err)

	want := domain.MulDiv(receipt.GrossOut, big.NewInt(1000), domain.BigTaxDn)
	assert.Equal(t, want.String(), receipt.Tax.String())
	assert.Equal(t, new(big.Int).Sub(receipt.GrossOut, want).String(), receipt.NetOut.String())

	assert.Equal(t, receipt.CreatorTax.String(), f.token.BalanceOf(creator).String())
	assert.Equal(t, receipt.PlatformTax.String(), f.token.BalanceOf(treasury).String())
	assert.Equal(t, receipt.NetOut.String(), f.token.BalanceOf(trader).String())
	assert.Equal(t, receipt.Tax.String(), new(big.Int).Add(receipt.CreatorTax, receipt.PlatformTax).String())

	assert.Equal(t, 1, f.emitted.count(events.TradeExecuted))
	assert.Equal(t, 1, f.emitted.count(events.TaxCollected))
}

func TestSplitTax_OddUnitToTreasury(t *testing.T) {
	c, tr := splitTax(big.NewInt(7))
	assert.Equal(t, "3", c.String())
	assert.Equal(t, "4", tr.String())

	c, tr = splitTax(big.NewInt(0))
	assert.Equal(t, "0", c.String())
	assert.Equal(t, "0", tr.String())
}

func TestSwapExactIn_ZeroTaxEmitsNoCollection(t *testing.T) {
	f := newFixture(t, domain.TradePolicy{MaxHoldBps: domain.BPS})
	receipt, err := f.buy(trader, domain.E18(1))
	require.NoError(t, err)
	assert.Equal(t, "0", receipt.Tax.String())
	assert.Equal(t, receipt.GrossOut.String(), receipt.NetOut.String())
	assert.Equal(t, 0, f.emitted.count(events.TaxCollected))
}

func TestMaxHold_BootstrapExceptionThenEnforced(t *testing.T) {
	f := newFixture(t, domain.TradePolicy{MaxHoldBps: 100})
	limit := domain.Bps(f.token.TotalSupply(), 100)

	// the pool is untouched, so the first buyer may exceed the cap
	first, err := f.buy(trader, domain.E18(1_000))
	require.NoError(t, err)
	assert.True(t, first.NetOut.Cmp(limit) > 0)
	assert.False(t, f.pool.Pristine())

	before := f.pool.Snapshot()
	_, err = f.buy(trader2, domain.E18(1_000))
	assert.ErrorIs(t, err, domain.ErrMaxHoldExceeded)
	assert.Equal(t, domain.KindEconomic, domain.KindOf(err))
	assert.Equal(t, before.ReserveBase.String(), f.pool.Snapshot().ReserveBase.String(), "rejected buy must revert")
	assert.Equal(t, "0", f.token.BalanceOf(trader2).String())

	_, err = f.buy(trader2, domain.E18(10))
	require.NoError(t, err)

	_, err = f.buy(trader, domain.E18(1))
	assert.ErrorIs(t, err, domain.ErrMaxHoldExceeded)

	// sells are never capped
	_, err = f.sell(trader, domain.E18(1))
	assert.NoError(t, err)
}

func TestSwapExactIn_SlippageAndDeadline(t *testing.T) {
	f := newFixture(t, onePercent)

	q, err := f.router.GetAmountsOut(f.base.Address(), f.token.Address(), domain.E18(2))
	require.NoError(t, err)

	err = f.host.Execute(func() error {
		_, err := f.router.SwapExactIn(trader, f.base.Address(), f.token.Address(), domain.E18(2),
			new(big.Int).Add(q.NetOut, domain.Big1), trader, time.Time{})
		return err
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientOutput)

	deadline := f.clock.Now().Add(time.Minute)
	f.clock.Advance(2 * time.Minute)
	err = f.host.Execute(func() error {
		_, err := f.router.SwapExactIn(trader, f.base.Address(), f.token.Address(), domain.E18(2), nil, trader, deadline)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrExpired)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	var receipt *TradeReceipt
	f.exec(t, func() error {
		var err error
		receipt, err = f.router.SwapExactIn(trader, f.base.Address(), f.token.Address(), domain.E18(2), q.NetOut, trader, f.clock.Now())
		return err
	})
	assert.Equal(t, q.NetOut.String(), receipt.NetOut.String())
	assert.Equal(t, q.Tax.String(), receipt.Tax.String())
}

func TestResolve_RejectsBadPaths(t *testing.T) {
	f := newFixture(t, onePercent)
	other := common.HexToAddress("0x3001")

	_, err := f.router.GetAmountsOut(f.token.Address(), other, domain.E18(1))
	assert.ErrorIs(t, err, domain.ErrInvalidPath)

	_, err = f.router.GetAmountsOut(f.base.Address(), f.base.Address(), domain.E18(1))
	assert.ErrorIs(t, err, domain.ErrInvalidPath)

	_, err = f.router.GetAmountsOut(f.base.Address(), other, domain.E18(1))
	assert.ErrorIs(t, err, domain.ErrPoolNotFound)

	_, err = f.router.GetAmountsOut(f.base.Address(), f.token.Address(), big.NewInt(0))
	assert.ErrorIs(t, err, domain.ErrZeroAmount)
}

func TestSwapExactOut_MirrorsQuote(t *testing.T) {
	f := newFixture(t, onePercent)
	want := domain.E18(1_000)

	q, err := f.router.GetAmountsIn(f.base.Address(), f.token.Address(), want)
	require.NoError(t, err)
	assert.True(t, q.NetOut.Cmp(want) >= 0)

	// one wei less input no longer covers the requested net output
	less, err := f.router.GetAmountsOut(f.base.Address(), f.token.Address(), new(big.Int).Sub(q.AmountIn, domain.Big1))
	require.NoError(t, err)
	assert.True(t, less.NetOut.Cmp(want) < 0)

	err = f.host.Execute(func() error {
		_, err := f.router.SwapExactOut(trader, f.base.Address(), f.token.Address(), want,
			new(big.Int).Sub(q.AmountIn, domain.Big1), trader, time.Time{})
		return err
	})
	assert.ErrorIs(t, err, domain.ErrExcessiveInput)

	var receipt *TradeReceipt
	f.exec(t, func() error {
		var err error
		receipt, err = f.router.SwapExactOut(trader, f.base.Address(), f.token.Address(), want, q.AmountIn, trader, time.Time{})
		return err
	})
	assert.True(t, receipt.ExactOut)
	assert.Equal(t, q.AmountIn.String(), receipt.AmountIn.String())
	assert.Equal(t, q.NetOut.String(), receipt.NetOut.String())

	// sell side: ask for an exact amount of base back
	baseWant := domain.E18(1)
	sq, err := f.router.GetAmountsIn(f.token.Address(), f.base.Address(), baseWant)
	require.NoError(t, err)
	f.exec(t, func() error {
		var err error
		receipt, err = f.router.SwapExactOut(trader, f.token.Address(), f.base.Address(), baseWant, sq.AmountIn, trader, time.Time{})
		return err
	})
	assert.True(t, receipt.NetOut.Cmp(baseWant) >= 0)
	assert.Equal(t, sq.AmountIn.String(), receipt.AmountIn.String())
}

func TestSwap_RejectsReentryFromLedgerHook(t *testing.T) {
	f := newFixture(t, onePercent)
	var inner error
	f.token.SetHook(func(from, to common.Address, amount *big.Int) error {
		if from != routerAddr || to != trader {
			return nil
		}
		_, inner = f.router.SwapExactIn(trader, f.base.Address(), f.token.Address(), domain.E18(1), nil, trader, time.Time{})
		return inner
	})
	baseBefore := f.base.BalanceOf(trader)

	_, err := f.buy(trader, domain.E18(1))
	assert.ErrorIs(t, err, domain.ErrReentrant)
	assert.ErrorIs(t, inner, domain.ErrReentrant)
	assert.Equal(t, baseBefore.String(), f.base.BalanceOf(trader).String())
	assert.True(t, f.pool.Pristine())
	assert.Equal(t, 0, f.emitted.count(events.TradeExecuted))
}

func TestGraduationHook_RunsAfterGuardRelease(t *testing.T) {
	f := newFixture(t, onePercent)
	manager := common.HexToAddress("0x9001")
	hook := &fakeHook{
		try: func(caller, tok common.Address) (bool, error) {
			assert.Equal(t, routerAddr, caller)
			if _, _, err := f.router.TransferLiquidityToManager(coordinator, tok, manager); err != nil {
				return false, err
			}
			return true, nil
		},
	}
	f.router.SetGraduationHook(hook)

	receipt, err := f.buy(trader, domain.E18(1))
	require.NoError(t, err)
	assert.True(t, receipt.Graduated)
	assert.Equal(t, 1, hook.calls)
	assert.True(t, f.pool.Swept())
	assert.True(t, f.base.BalanceOf(manager).Sign() > 0)

	_, err = f.buy(trader, domain.E18(1))
	assert.ErrorIs(t, err, domain.ErrAlreadyGraduated)
}

func TestGraduationHook_FailureRevertsTrade(t *testing.T) {
	f := newFixture(t, onePercent)
	f.router.SetGraduationHook(&fakeHook{
		try: func(common.Address, common.Address) (bool, error) { return false, errors.New("venue down") },
	})
	before := f.pool.Snapshot()

	_, err := f.buy(trader, domain.E18(1))
	require.Error(t, err)
	assert.Equal(t, before.ReserveToken.String(), f.pool.Snapshot().ReserveToken.String())
	assert.Equal(t, "0", f.token.BalanceOf(trader).String())
}

func TestAdminSurface(t *testing.T) {
	f := newFixture(t, onePercent)

	err := f.host.Execute(func() error { return f.router.SetPolicy(trader, onePercent) })
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	err = f.host.Execute(func() error {
		return f.router.SetPolicy(admin, domain.TradePolicy{BuyTaxBps: domain.TaxDenominator, MaxHoldBps: 1})
	})
	assert.ErrorIs(t, err, domain.ErrPercentageOverCap)

	next := domain.TradePolicy{BuyTaxBps: 2000, SellTaxBps: 500, MaxHoldBps: 300}
	f.exec(t, func() error { return f.router.SetPolicy(admin, next) })
	assert.Equal(t, next, f.router.Policy())
	assert.Equal(t, 1, f.emitted.count(events.PolicyUpdated))

	_, _, err = f.router.TransferLiquidityToManager(admin, f.token.Address(), admin)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.router.SyncPool(trader, f.token.Address())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = f.router.SyncPool(admin, f.token.Address())
	assert.NoError(t, err)

	err = f.host.Execute(func() error { return f.router.RegisterPool(launcher, f.pool) })
	assert.ErrorIs(t, err, domain.ErrAlreadyRegistered)
	assert.Len(t, f.router.Pools(), 1)
}

func TestAddInitialLiquidity_FirstBuyIsTaxFree(t *testing.T) {
	j := state.NewJournal()
	clock := state.NewManualClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	tok, err := token.New(j, token.Config{
		Address: common.HexToAddress("0x1002"), Name: "Agent", Symbol: "AGT",
		Supply: domain.E18(1_000_000), Holder: launcher, GraduationAuthority: coordinator,
	})
	require.NoError(t, err)
	base, err := token.New(j, token.Config{
		Address: common.HexToAddress("0x2002"), Name: "Base", Symbol: "BASE",
		Supply: domain.E18(100), Holder: launcher,
	})
	require.NoError(t, err)
	c, err := curve.NewVirtualReserve(domain.E18(5_000), big.NewInt(5), false)
	require.NoError(t, err)
	p, err := pool.New(j, clock, nil, pool.Config{Address: poolAddr, Token: tok, Base: base, Curve: c, Router: routerAddr}, zerolog.Nop())
	require.NoError(t, err)
	r, err := NewRouter(j, clock, nil, base, RouterConfig{
		Address: routerAddr, Admin: admin, Launcher: launcher, Coordinator: coordinator,
		Treasury: treasury, Policy: domain.TradePolicy{BuyTaxBps: 5000, SellTaxBps: 5000, MaxHoldBps: 1},
	}, zerolog.Nop())
	require.NoError(t, err)
	host := state.NewHost(j, clock)

	var receipt *TradeReceipt
	require.NoError(t, host.Execute(func() error {
		if err := r.RegisterPool(launcher, p); err != nil {
			return err
		}
		if err := tok.Approve(launcher, routerAddr, domain.E18(1_000_000)); err != nil {
			return err
		}
		if err := base.Approve(launcher, routerAddr, domain.E18(10)); err != nil {
			return err
		}
		receipt, err = r.AddInitialLiquidity(launcher, tok.Address(), domain.E18(1_000_000), domain.E18(10), creator)
		return err
	}))

	require.NotNil(t, receipt)
	assert.Equal(t, "0", receipt.Tax.String())
	assert.Equal(t, receipt.NetOut.String(), tok.BalanceOf(creator).String())
	assert.Equal(t, domain.E18(10).String(), p.Snapshot().ReserveBase.String())

	_, err = r.AddInitialLiquidity(trader, tok.Address(), domain.E18(1), nil, common.Address{})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
