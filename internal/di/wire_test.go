package di

import (
	"testing"

	"github.com/aristath/launchpad/internal/config"
	"github.com/aristath/launchpad/internal/domain"
	"github.com/aristath/launchpad/internal/events"
	"github.com/aristath/launchpad/internal/modules/launch"
	"github.com/aristath/launchpad/internal/modules/trading"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	creator = common.HexToAddress("0xc001")
	trader  = common.HexToAddress("0x7001")
)

func loadTestConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("LAUNCHPAD_DATA_DIR", t.TempDir())
	t.Setenv("NETWORK_FILE", "")
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func wireForTest(t *testing.T) (*Container, *JobInstances, *config.Config) {
	t.Helper()
	cfg := loadTestConfig(t)
	container, jobs, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })
	return container, jobs, cfg
}

// fund moves base from the treasury, which holds the whole default allocation
func fund(t *testing.T, c *Container, cfg *config.Config, to common.Address, amount int64) {
	t.Helper()
	require.NoError(t, c.Host.Execute(func() error {
		return c.BaseToken.Transfer(cfg.Accounts.Treasury, to, domain.E18(amount))
	}))
}

func TestWire(t *testing.T) {
	container, jobs, cfg := wireForTest(t)

	assert.NotNil(t, container.LedgerDB)
	assert.NotNil(t, container.TradingService)
	assert.NotNil(t, container.GraduationService)
	assert.NotNil(t, container.AirdropService)
	assert.NotNil(t, container.LaunchService)
	assert.Equal(t, cfg.Accounts.BaseToken, container.BaseToken.Address())
	baseSupply, _, err := cfg.Network.BaseSupply()
	require.NoError(t, err)
	assert.Equal(t, baseSupply.String(), container.BaseToken.TotalSupply().String())
	assert.Len(t, container.VenueRegistry.All(), 3)

	require.NotNil(t, jobs)
	assert.NotNil(t, jobs.ReconcileReserves)
	assert.NotNil(t, jobs.CheckCoreDatabases)
	assert.NotNil(t, jobs.CheckWALCheckpoint)
	assert.Len(t, container.Scheduler.Status(), 3)
}

func TestWire_LaunchAndTradeFlowThroughReadModels(t *testing.T) {
	c, jobs, cfg := wireForTest(t)
	fund(t, c, cfg, creator, 1_000)
	fund(t, c, cfg, trader, 1_000)

	result, err := c.LaunchService.Launch(launch.LaunchRequest{
		Creator:         creator.Hex(),
		Name:            "Agent",
		Symbol:          "AGT",
		InitialPurchase: domain.E18(5).String(),
		DexConfigs: []launch.DexConfigRequest{
			{VenueRef: cfg.Network.Venues[0].Address, VenueKind: string(cfg.Network.Venues[0].Kind), WeightBps: 10000},
		},
		AutoApprove: true,
	})
	require.NoError(t, err)
	require.NotNil(t, result.FirstTrade)

	trade, err := c.TradingService.ExecuteTrade(trading.TradeRequest{
		Trader:      trader.Hex(),
		TokenIn:     cfg.Accounts.BaseToken.Hex(),
		TokenOut:    result.Token.Hex(),
		Amount:      domain.E18(1).String(),
		AutoApprove: true,
	})
	require.NoError(t, err)
	require.True(t, trade.Success, trade.Reason)

	// Trades land in the trade repository through the bus
	history, err := c.TradeRepo.GetByToken(result.Token.Hex(), 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	profile, err := c.ProfileRepo.GetByToken(result.Token.Hex())
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, domain.StatusBonding, profile.Status)

	launched, err := c.EventStore.Count(events.LaunchCompleted)
	require.NoError(t, err)
	assert.Equal(t, 1, launched)

	// The reconcile job sees a clean pool
	require.NoError(t, jobs.ReconcileReserves.Run())
	drift, err := c.EventStore.Count(events.ReserveDriftDetected)
	require.NoError(t, err)
	assert.Zero(t, drift)
}
