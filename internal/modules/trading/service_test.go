package trading

import (
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/aristath/launchpad/internal/domain"
	"github.com/aristath/launchpad/internal/events"
	"github.com/aristath/launchpad/internal/modules/curve"
	"github.com/aristath/launchpad/internal/modules/pool"
	"github.com/aristath/launchpad/internal/modules/token"
	"github.com/aristath/launchpad/internal/state"
	testingpkg "github.com/aristath/launchpad/internal/testing"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serviceFixture struct {
	*fixture
	bus     *events.Bus
	repo    *TradeRepository
	safety  *TradeSafetyService
	service *TradingService
}

func newServiceFixture(t *testing.T, cfg SafetyConfig) *serviceFixture {
	t.Helper()
	log := testingpkg.NewTestLogger()
	bus := events.NewBus(log)
	manager := events.NewManager(bus, log)
	f := newFixtureWith(t, onePercent, manager)

	db, cleanup := testingpkg.NewTestDB(t, "ledger")
	t.Cleanup(cleanup)
	repo := NewTradeRepository(db.Conn(), log)
	t.Cleanup(repo.Attach(bus))

	// trade timestamps come from the bus, so rate checks run on wall time
	safety := NewTradeSafetyService(f.router, repo, state.SystemClock{}, cfg, log)
	service := NewTradingService(f.host, f.router, repo, safety, manager, log)
	return &serviceFixture{fixture: f, bus: bus, repo: repo, safety: safety, service: service}
}

func (sf *serviceFixture) buyRequest(who common.Address, amount string) TradeRequest {
	return TradeRequest{
		Trader:   who.Hex(),
		TokenIn:  sf.base.Address().Hex(),
		TokenOut: sf.token.Address().Hex(),
		Amount:   amount,
		Reason:   "test",
	}
}

func TestExecuteTrade_AutoApprovePersistsTradeAndTax(t *testing.T) {
	sf := newServiceFixture(t, SafetyConfig{})
	fresh := common.HexToAddress("0x7003")
	sf.exec(t, func() error { return sf.base.Transfer(trader, fresh, domain.E18(5)) })

	req := sf.buyRequest(fresh, domain.E18(2).String())
	req.AutoApprove = true

	result, err := sf.service.ExecuteTrade(req)
	require.NoError(t, err)
	require.True(t, result.Success, result.Reason)
	require.NotNil(t, result.Receipt)
	assert.Equal(t, result.Receipt.NetOut.String(), sf.token.BalanceOf(fresh).String())

	history, err := sf.service.GetHistory(sf.token.Address().Hex(), 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, result.Receipt.TradeID, history[0].ID)
	assert.Equal(t, domain.TradeSideBuy, history[0].Side)

	totals, err := sf.service.GetTaxTotals(sf.token.Address().Hex())
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.Equal(t, result.Receipt.Tax.String(), totals[0].Total.String())
}

func TestExecuteTrade_RouterRejectionIsAResultNotAnError(t *testing.T) {
	sf := newServiceFixture(t, SafetyConfig{})
	fresh := common.HexToAddress("0x7003")
	sf.exec(t, func() error { return sf.base.Transfer(trader, fresh, domain.E18(5)) })

	var errorEvents []*events.Event
	sf.bus.Subscribe(events.ErrorOccurred, func(e *events.Event) { errorEvents = append(errorEvents, e) })

	// no allowance granted to the router
	result, err := sf.service.ExecuteTrade(sf.buyRequest(fresh, domain.E18(2).String()))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, domain.ErrInsufficientAllowance.Code, result.Code)
	assert.Equal(t, string(domain.KindEconomic), result.Kind)
	assert.Equal(t, "0", sf.token.BalanceOf(fresh).String())
	require.Len(t, errorEvents, 1)

	history, err := sf.service.GetHistory("", 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestExecuteTrade_SlippageLimitAndExactOut(t *testing.T) {
	sf := newServiceFixture(t, SafetyConfig{})

	q, err := sf.service.Quote(sf.base.Address(), sf.token.Address(), domain.E18(1), false)
	require.NoError(t, err)

	req := sf.buyRequest(trader, domain.E18(1).String())
	req.Limit = q.NetOut.String() + "0"
	result, err := sf.service.ExecuteTrade(req)
	require.NoError(t, err)
	assert.Equal(t, domain.ErrInsufficientOutput.Code, result.Code)

	want := domain.E18(500)
	qIn, err := sf.service.Quote(sf.base.Address(), sf.token.Address(), want, true)
	require.NoError(t, err)

	req = sf.buyRequest(trader, want.String())
	req.ExactOut = true
	req.Limit = qIn.AmountIn.String()
	result, err = sf.service.ExecuteTrade(req)
	require.NoError(t, err)
	require.True(t, result.Success, result.Reason)
	assert.Equal(t, qIn.AmountIn.String(), result.Receipt.AmountIn.String())
	assert.True(t, result.Receipt.NetOut.Cmp(want) >= 0)
}

func TestValidateTrade_Layers(t *testing.T) {
	sf := newServiceFixture(t, SafetyConfig{})
	other := common.HexToAddress("0x3001")

	testCases := []struct {
		name   string
		mutate func(*TradeRequest)
		want   *domain.Error
	}{
		{
			name:   "malformed trader",
			mutate: func(r *TradeRequest) { r.Trader = "not-an-address" },
			want:   domain.ErrInvalidParameter,
		},
		{
			name:   "zero amount",
			mutate: func(r *TradeRequest) { r.Amount = "0" },
			want:   domain.ErrInvalidParameter,
		},
		{
			name:   "same token both sides",
			mutate: func(r *TradeRequest) { r.TokenOut = r.TokenIn },
			want:   domain.ErrInvalidParameter,
		},
		{
			name:   "fractional limit",
			mutate: func(r *TradeRequest) { r.Limit = "999999999999999999999999999999.5" },
			want:   domain.ErrInvalidParameter,
		},
		{
			name:   "negative limit",
			mutate: func(r *TradeRequest) { r.Limit = "-1" },
			want:   domain.ErrInvalidParameter,
		},
		{
			name:   "expired deadline",
			mutate: func(r *TradeRequest) { r.Deadline = time.Now().Add(-time.Hour).Unix() },
			want:   domain.ErrExpired,
		},
		{
			name:   "neither side is base",
			mutate: func(r *TradeRequest) { r.TokenIn = other.Hex() },
			want:   domain.ErrInvalidPath,
		},
		{
			name:   "unknown token",
			mutate: func(r *TradeRequest) { r.TokenOut = other.Hex() },
			want:   domain.ErrPoolNotFound,
		},
		{
			name:   "cannot fund input",
			mutate: func(r *TradeRequest) { r.Amount = domain.E18(2_000_000).String() },
			want:   domain.ErrInsufficientBalance,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := sf.buyRequest(trader, domain.E18(1).String())
			tc.mutate(&req)
			_, err := sf.safety.ValidateTrade(req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	trade, err := sf.safety.ValidateTrade(sf.buyRequest(trader, domain.E18(1).String()))
	require.NoError(t, err)
	assert.Equal(t, domain.TradeSideBuy, trade.Side)
	assert.Equal(t, trader, trade.Recipient)
	assert.Equal(t, sf.base.Address(), trade.InputLedger.Address())

	sell := TradeRequest{Trader: trader.Hex(), TokenIn: sf.token.Address().Hex(), TokenOut: sf.base.Address().Hex(), Amount: "1", ExactOut: true}
	trade, err = sf.safety.ValidateTrade(sell)
	require.NoError(t, err, "exact-out input is priced by the router")
	assert.Equal(t, domain.TradeSideSell, trade.Side)
}

func TestExecuteTrade_MalformedLimitNeverRunsWithoutMinimum(t *testing.T) {
	sf := newServiceFixture(t, SafetyConfig{})
	start := sf.token.BalanceOf(trader)

	req := sf.buyRequest(trader, domain.E18(1).String())
	req.AutoApprove = true
	req.Limit = "999999999999999999999999999999.5"
	result, err := sf.service.ExecuteTrade(req)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, domain.ErrInvalidParameter.Code, result.Code)
	assert.Equal(t, start.String(), sf.token.BalanceOf(trader).String())

	// zero is an explicit "no minimum"
	req.Limit = "0"
	result, err = sf.service.ExecuteTrade(req)
	require.NoError(t, err)
	assert.True(t, result.Success, result.Reason)
}

func TestExecuteTrade_ConcurrentWithPoolAndPolicyWrites(t *testing.T) {
	sf := newServiceFixture(t, SafetyConfig{})
	c, err := curve.NewVirtualReserve(domain.E18(5_000), big.NewInt(5), false)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			req := sf.buyRequest(trader2, domain.E18(1).String())
			req.AutoApprove = true
			result, err := sf.service.ExecuteTrade(req)
			assert.NoError(t, err)
			assert.True(t, result.Success, result.Reason)
			_ = sf.service.Policy()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			p := onePercent
			p.BuyTaxBps = uint64(500 + i)
			assert.NoError(t, sf.service.SetPolicy(admin, p))
			err := sf.host.Execute(func() error {
				j := sf.host.Journal()
				tok, err := token.New(j, token.Config{
					Address: common.BigToAddress(big.NewInt(int64(0x9000 + i))), Name: "Late", Symbol: "LATE",
					Supply: domain.E18(1_000), Holder: launcher, GraduationAuthority: coordinator,
				})
				if err != nil {
					return err
				}
				p, err := pool.New(j, sf.clock, sf.emitted, pool.Config{
					Address: common.BigToAddress(big.NewInt(int64(0x9800 + i))), Token: tok, Base: sf.base, Curve: c, Router: routerAddr,
				}, zerolog.Nop())
				if err != nil {
					return err
				}
				return sf.router.RegisterPool(launcher, p)
			})
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	assert.Equal(t, uint64(549), sf.service.Policy().BuyTaxBps)
	assert.Len(t, sf.router.Pools(), 51)
}

func TestValidateTrade_RateLimit(t *testing.T) {
	sf := newServiceFixture(t, SafetyConfig{MaxTradesPerMinute: 1})

	result, err := sf.service.ExecuteTrade(sf.buyRequest(trader, domain.E18(1).String()))
	require.NoError(t, err)
	require.True(t, result.Success, result.Reason)

	result, err = sf.service.ExecuteTrade(sf.buyRequest(trader, domain.E18(1).String()))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, domain.ErrInvalidParameter.Code, result.Code)

	// other traders are unaffected
	result, err = sf.service.ExecuteTrade(sf.buyRequest(trader2, domain.E18(1).String()))
	require.NoError(t, err)
	assert.True(t, result.Success, result.Reason)
}

func TestSetPolicy_ThroughService(t *testing.T) {
	sf := newServiceFixture(t, SafetyConfig{})

	err := sf.service.SetPolicy(trader, onePercent)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	next := domain.TradePolicy{BuyTaxBps: 500, SellTaxBps: 500, MaxHoldBps: 200}
	require.NoError(t, sf.service.SetPolicy(admin, next))
	assert.Equal(t, next, sf.service.Policy())
}
