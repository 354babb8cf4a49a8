package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aristath/launchpad/internal/domain"
	"github.com/aristath/launchpad/internal/modules/curve"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LAUNCHPAD_DATA_DIR", t.TempDir())
	t.Setenv("NETWORK_FILE", "")
}

func writeNetwork(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "network.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	setupEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(cfg.DataDir))
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, domain.TradePolicy{BuyTaxBps: 1000, SellTaxBps: 1000, MaxHoldBps: 500}, cfg.Policy)
	assert.Equal(t, uint64(2000), cfg.ThresholdBps)
	assert.Equal(t, curve.KindVirtualReserve, cfg.Curve.Kind)
	assert.Equal(t, domain.E18(5000).String(), cfg.Curve.VirtualOffset.String())
	assert.Equal(t, "5", cfg.Curve.ImpactMultiplier.String())
	assert.Equal(t, domain.E18(1_000_000_000).String(), cfg.Launch.InitialSupply.String())
	assert.Len(t, cfg.Network.Venues, 3)
	assert.Equal(t, filepath.Join(cfg.DataDir, "ledger.db"), cfg.LedgerPath())

	supply, balances, err := cfg.Network.BaseSupply()
	require.NoError(t, err)
	assert.Equal(t, supply.String(), balances[cfg.Accounts.Treasury].String())
}

func TestLoad_Overrides(t *testing.T) {
	setupEnv(t)
	t.Setenv("PORT", "9100")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("BUY_TAX_BPS", "0")
	t.Setenv("MAX_HOLD_BPS", "10000")
	t.Setenv("ADMIN_ADDRESS", "0x00000000000000000000000000000000000000ad")
	t.Setenv("CURVE_KIND", "constant_product")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("NETWORK_FILE", writeNetwork(t, `
base:
  name: Wrapped Ether
  symbol: WETH
  allocations:
    - account: "0x0000000000000000000000000000000000007001"
      amount: "1.5"
    - account: "0x0000000000000000000000000000000000007001"
      amount: "2"
    - account: "0x0000000000000000000000000000000000007002"
      amount: "10"
venues:
  - name: uni
    kind: classic_amm
    address: "0x000000000000000000000000000000000000e001"
`))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, uint64(0), cfg.Policy.BuyTaxBps)
	assert.Equal(t, common.HexToAddress("0xad"), cfg.Accounts.Admin)
	assert.Equal(t, curve.KindConstantProduct, cfg.Curve.Kind)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)

	require.Len(t, cfg.Network.Venues, 1)
	assert.Equal(t, common.HexToAddress("0xe001"), cfg.Network.Venues[0].Ref())
	supply, balances, err := cfg.Network.BaseSupply()
	require.NoError(t, err)
	assert.Equal(t, "13500000000000000000", supply.String())
	assert.Equal(t, "3500000000000000000", balances[common.HexToAddress("0x7001")].String())
}

func TestLoad_RejectsBadConfiguration(t *testing.T) {
	testCases := []struct {
		name string
		env  map[string]string
	}{
		{name: "tax at denominator", env: map[string]string{"SELL_TAX_BPS": "100000"}},
		{name: "zero max hold", env: map[string]string{"MAX_HOLD_BPS": "0"}},
		{name: "threshold over bps", env: map[string]string{"GRADUATION_THRESHOLD_BPS": "10001"}},
		{name: "unknown curve", env: map[string]string{"CURVE_KIND": "sigmoid"}},
		{name: "fractional multiplier", env: map[string]string{"CURVE_IMPACT_MULTIPLIER": "1.5"}},
		{name: "bad address", env: map[string]string{"PLATFORM_TREASURY": "treasury"}},
		{name: "router shares launcher", env: map[string]string{"ROUTER_ADDRESS": "0x000000000000000000000000000000000000a002"}},
		{name: "fee eats supply", env: map[string]string{"LAUNCH_PLATFORM_FEE_BPS": "5000", "LAUNCH_AIRDROP_CAP_BPS": "5000"}},
		{name: "unknown log level", env: map[string]string{"LOG_LEVEL": "loud"}},
		{name: "missing network file", env: map[string]string{"NETWORK_FILE": "/nonexistent/network.yaml"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			setupEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadNetwork_Validation(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{name: "no venues", body: "base: {name: B, symbol: B, allocations: [{account: \"0x0000000000000000000000000000000000007001\", amount: \"1\"}]}\nvenues: []\n"},
		{name: "unknown kind", body: "base: {name: B, symbol: B, allocations: [{account: \"0x0000000000000000000000000000000000007001\", amount: \"1\"}]}\nvenues: [{name: v, kind: orderbook, address: \"0x000000000000000000000000000000000000e001\"}]\n"},
		{name: "duplicate venue", body: "base: {name: B, symbol: B, allocations: [{account: \"0x0000000000000000000000000000000000007001\", amount: \"1\"}]}\nvenues: [{name: a, kind: classic_amm, address: \"0x000000000000000000000000000000000000e001\"}, {name: b, kind: solidly_amm, address: \"0x000000000000000000000000000000000000e001\"}]\n"},
		{name: "no allocations", body: "base: {name: B, symbol: B}\nvenues: [{name: v, kind: classic_amm, address: \"0x000000000000000000000000000000000000e001\"}]\n"},
		{name: "sub-unit allocation", body: "base: {name: B, symbol: B, allocations: [{account: \"0x0000000000000000000000000000000000007001\", amount: \"0.0000000000000000001\"}]}\nvenues: [{name: v, kind: classic_amm, address: \"0x000000000000000000000000000000000000e001\"}]\n"},
		{name: "not yaml", body: "venues: [\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadNetwork(writeNetwork(t, tc.body), defaultAccounts)
			assert.Error(t, err)
		})
	}
}
