// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aristath/launchpad/internal/domain"
	"github.com/aristath/launchpad/internal/modules/curve"
	"github.com/aristath/launchpad/pkg/units"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the ledger database (always absolute)
	LogLevel string `validate:"oneof=trace debug info warn error"`
	Port     int    `validate:"min=1,max=65535"`
	DevMode  bool
	// AllowedOrigins for CORS; empty allows every origin in dev mode only
	AllowedOrigins []string
	// RateLimit is the steady request rate per client for write endpoints; zero disables it
	RateLimit      float64 `validate:"gte=0"`
	RateLimitBurst int     `validate:"gte=0"`

	Accounts Accounts
	Policy   domain.TradePolicy
	// ThresholdBps is the reserve ratio, in bps of supply, at or below which a token graduates
	ThresholdBps uint64 `validate:"gt=0,lte=10000"`
	Curve        curve.Params
	Launch       LaunchConfig
	// MaxTradesPerMinute per trader; zero disables the check
	MaxTradesPerMinute int `validate:"gte=0"`

	// NetworkFile is the YAML catalogue of venues and base allocations; empty uses the built-in one
	NetworkFile string
	Network     *Network

	// Cron specs for maintenance jobs
	ReconcileSchedule     string `validate:"required"`
	WALCheckpointSchedule string `validate:"required"`
	// ReconcileAutoSync resyncs drifted pools instead of only reporting them
	ReconcileAutoSync bool
}

// Accounts are the fixed identities the engine runs under
type Accounts struct {
	Admin       common.Address
	Treasury    common.Address
	Router      common.Address
	Launcher    common.Address
	Coordinator common.Address
	Distributor common.Address
	BaseToken   common.Address
}

// LaunchConfig holds the launch economics
type LaunchConfig struct {
	InitialSupply  *big.Int
	PlatformFeeBps uint64 `validate:"lt=10000"`
	AirdropCapBps  uint64 `validate:"lt=10000"`
	PurchaseCapBps uint64 `validate:"gt=0,lt=10000"`
}

var configValidate = validator.New()

// Dev defaults; real deployments override every account
var defaultAccounts = Accounts{
	Admin:       common.HexToAddress("0x000000000000000000000000000000000000a001"),
	Treasury:    common.HexToAddress("0x000000000000000000000000000000000000a004"),
	Router:      common.HexToAddress("0x0000000000000000000000000000000000004001"),
	Launcher:    common.HexToAddress("0x000000000000000000000000000000000000a002"),
	Coordinator: common.HexToAddress("0x000000000000000000000000000000000000a003"),
	Distributor: common.HexToAddress("0x000000000000000000000000000000000000a005"),
	BaseToken:   common.HexToAddress("0x0000000000000000000000000000000000002001"),
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("LAUNCHPAD_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:        absDataDir,
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
		Port:           getEnvAsInt("PORT", 8080),
		DevMode:        getEnvAsBool("DEV_MODE", false),
		AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS"),
		RateLimit:      getEnvAsFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 40),
		Policy: domain.TradePolicy{
			BuyTaxBps:  getEnvAsUint("BUY_TAX_BPS", 1000),
			SellTaxBps: getEnvAsUint("SELL_TAX_BPS", 1000),
			MaxHoldBps: getEnvAsUint("MAX_HOLD_BPS", 500),
		},
		ThresholdBps:          getEnvAsUint("GRADUATION_THRESHOLD_BPS", 2000),
		MaxTradesPerMinute:    getEnvAsInt("MAX_TRADES_PER_MINUTE", 30),
		NetworkFile:           getEnv("NETWORK_FILE", ""),
		ReconcileSchedule:     getEnv("RECONCILE_SCHEDULE", "0 */5 * * * *"),
		WALCheckpointSchedule: getEnv("WAL_CHECKPOINT_SCHEDULE", "0 0 * * * *"),
		ReconcileAutoSync:     getEnvAsBool("RECONCILE_AUTO_SYNC", false),
	}

	if cfg.Accounts, err = loadAccounts(); err != nil {
		return nil, err
	}
	if cfg.Curve, err = loadCurve(); err != nil {
		return nil, err
	}
	if cfg.Launch, err = loadLaunch(); err != nil {
		return nil, err
	}
	if cfg.Network, err = LoadNetwork(cfg.NetworkFile, cfg.Accounts); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadAccounts() (Accounts, error) {
	a := defaultAccounts
	for _, f := range []struct {
		key string
		dst *common.Address
	}{
		{"ADMIN_ADDRESS", &a.Admin},
		{"PLATFORM_TREASURY", &a.Treasury},
		{"ROUTER_ADDRESS", &a.Router},
		{"LAUNCHER_ADDRESS", &a.Launcher},
		{"COORDINATOR_ADDRESS", &a.Coordinator},
		{"DISTRIBUTOR_ADDRESS", &a.Distributor},
		{"BASE_TOKEN_ADDRESS", &a.BaseToken},
	} {
		v := os.Getenv(f.key)
		if v == "" {
			continue
		}
		if !common.IsHexAddress(v) {
			return Accounts{}, fmt.Errorf("%s: %q is not an address", f.key, v)
		}
		*f.dst = common.HexToAddress(v)
	}
	return a, nil
}

func loadCurve() (curve.Params, error) {
	offset, err := units.Parse(getEnv("CURVE_VIRTUAL_OFFSET", "5000"), units.Decimals)
	if err != nil {
		return curve.Params{}, fmt.Errorf("CURVE_VIRTUAL_OFFSET: %w", err)
	}
	multiplier, ok := new(big.Int).SetString(getEnv("CURVE_IMPACT_MULTIPLIER", "5"), 10)
	if !ok {
		return curve.Params{}, fmt.Errorf("CURVE_IMPACT_MULTIPLIER must be an integer")
	}
	return curve.Params{
		Kind:             curve.Kind(getEnv("CURVE_KIND", string(curve.KindVirtualReserve))),
		VirtualOffset:    offset,
		ImpactMultiplier: multiplier,
		LinearBootstrap:  getEnvAsBool("CURVE_LINEAR_BOOTSTRAP", false),
	}, nil
}

func loadLaunch() (LaunchConfig, error) {
	supply, err := units.Parse(getEnv("LAUNCH_INITIAL_SUPPLY", "1000000000"), units.Decimals)
	if err != nil {
		return LaunchConfig{}, fmt.Errorf("LAUNCH_INITIAL_SUPPLY: %w", err)
	}
	return LaunchConfig{
		InitialSupply:  supply,
		PlatformFeeBps: getEnvAsUint("LAUNCH_PLATFORM_FEE_BPS", 100),
		AirdropCapBps:  getEnvAsUint("LAUNCH_AIRDROP_CAP_BPS", 500),
		PurchaseCapBps: getEnvAsUint("LAUNCH_PURCHASE_CAP_BPS", 500),
	}, nil
}

// Validate checks the configuration is internally consistent
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := configValidate.Struct(c.Curve); err != nil {
		return fmt.Errorf("invalid curve: %w", err)
	}
	if _, err := curve.New(c.Curve); err != nil {
		return fmt.Errorf("invalid curve: %w", err)
	}
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("invalid trade policy: %w", err)
	}
	if c.Launch.PlatformFeeBps+c.Launch.AirdropCapBps >= domain.BPS {
		return fmt.Errorf("launch fee and airdrop cap leave nothing to seed")
	}
	if !domain.IsPositive(c.Launch.InitialSupply) {
		return fmt.Errorf("launch initial supply must be positive")
	}

	seen := make(map[common.Address]string)
	for name, addr := range map[string]common.Address{
		"admin":       c.Accounts.Admin,
		"treasury":    c.Accounts.Treasury,
		"router":      c.Accounts.Router,
		"launcher":    c.Accounts.Launcher,
		"coordinator": c.Accounts.Coordinator,
		"distributor": c.Accounts.Distributor,
		"base token":  c.Accounts.BaseToken,
	} {
		if addr == (common.Address{}) {
			return fmt.Errorf("%s address is required", name)
		}
		if other, dup := seen[addr]; dup && name != "admin" && other != "admin" {
			return fmt.Errorf("%s and %s share address %s", name, other, addr.Hex())
		}
		seen[addr] = name
	}
	if c.Network == nil || len(c.Network.Venues) == 0 {
		return fmt.Errorf("at least one venue is required")
	}
	return nil
}

// LedgerPath is where the sqlite ledger database lives
func (c *Config) LedgerPath() string {
	return filepath.Join(c.DataDir, "ledger.db")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsUint(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseUint(value, 10, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
