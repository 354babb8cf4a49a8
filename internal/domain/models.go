// Package domain provides core domain models, interfaces and the error taxonomy.
package domain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// VenueKind identifies the family of external exchange a DexConfig deploys to
type VenueKind string

const (
	// VenueClassicAMM is a constant-product pair venue (UniswapV2 family)
	VenueClassicAMM VenueKind = "classic_amm"
	// VenueConcentratedAMM is a fee-tiered concentrated liquidity venue (UniswapV3 family)
	VenueConcentratedAMM VenueKind = "concentrated_liquidity_amm"
	// VenueSolidlyAMM is a stable/volatile pair venue (Aerodrome/Velodrome family)
	VenueSolidlyAMM VenueKind = "solidly_amm"
)

// ParseVenueKind converts a string into a VenueKind
func ParseVenueKind(s string) (VenueKind, error) {
	switch VenueKind(s) {
	case VenueClassicAMM, VenueConcentratedAMM, VenueSolidlyAMM:
		return VenueKind(s), nil
	}
	return "", Errorf(ErrInvalidParameter, "venue kind %q", s)
}

// DexConfig describes one weighted slice of graduation liquidity
type DexConfig struct {
	VenueRef  common.Address `json:"venue_ref" yaml:"venue_ref"`
	FeeTier   uint32         `json:"fee_tier" yaml:"fee_tier"`
	WeightBps uint32         `json:"weight_bps" yaml:"weight_bps"`
	VenueKind VenueKind      `json:"venue_kind" yaml:"venue_kind"`
}

// ValidateDexConfigs checks that configs are non-empty, carry no zero weight or
// zero venue, and that weights sum to exactly BPS
func ValidateDexConfigs(configs []DexConfig) error {
	if len(configs) == 0 {
		return ErrEmptyDexConfigs
	}
	var total uint64
	for i, c := range configs {
		if c.VenueRef == (common.Address{}) {
			return Errorf(ErrZeroAddress, "dex config %d venue", i)
		}
		if c.WeightBps == 0 {
			return Errorf(ErrZeroWeight, "dex config %d", i)
		}
		if _, err := ParseVenueKind(string(c.VenueKind)); err != nil {
			return err
		}
		total += uint64(c.WeightBps)
	}
	if total != BPS {
		return Errorf(ErrWeightMismatch, "got %d", total)
	}
	return nil
}

// CloneDexConfigs returns a copy of configs
func CloneDexConfigs(configs []DexConfig) []DexConfig {
	if configs == nil {
		return nil
	}
	out := make([]DexConfig, len(configs))
	copy(out, configs)
	return out
}

// GraduationStatus is the one-way lifecycle of a launched token
type GraduationStatus string

const (
	StatusBonding   GraduationStatus = "bonding"
	StatusGraduated GraduationStatus = "graduated"
)

// TradeSide is the direction of a curve trade
type TradeSide string

const (
	// TradeSideBuy spends base asset for launched tokens
	TradeSideBuy TradeSide = "BUY"
	// TradeSideSell spends launched tokens for base asset
	TradeSideSell TradeSide = "SELL"
)

// TradePolicy is the admin-controlled trading policy, read fresh on every trade.
// Tax rates are over TaxDenominator, MaxHoldBps is over BPS.
type TradePolicy struct {
	BuyTaxBps  uint64 `json:"buy_tax_bps"`
	SellTaxBps uint64 `json:"sell_tax_bps"`
	MaxHoldBps uint64 `json:"max_hold_bps"`
}

// Validate checks the policy bounds
func (p TradePolicy) Validate() error {
	if p.BuyTaxBps >= TaxDenominator || p.SellTaxBps >= TaxDenominator {
		return Errorf(ErrPercentageOverCap, "tax must be below %d", TaxDenominator)
	}
	if p.MaxHoldBps == 0 || p.MaxHoldBps > BPS {
		return Errorf(ErrInvalidParameter, "max hold bps %d", p.MaxHoldBps)
	}
	return nil
}

// TaxFor returns the tax rate applied to the given side
func (p TradePolicy) TaxFor(side TradeSide) uint64 {
	if side == TradeSideBuy {
		return p.BuyTaxBps
	}
	return p.SellTaxBps
}

// SortTokens orders two addresses the way pair venues key them
func SortTokens(a, b common.Address) (common.Address, common.Address) {
	if a.Cmp(b) < 0 {
		return a, b
	}
	return b, a
}

// FormatAmount renders a nil-safe amount for logs
func FormatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// String implements fmt.Stringer
func (c DexConfig) String() string {
	return fmt.Sprintf("%s@%s(fee=%d,weight=%d)", c.VenueKind, c.VenueRef.Hex(), c.FeeTier, c.WeightBps)
}
