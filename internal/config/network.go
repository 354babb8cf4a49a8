package config

import (
	"fmt"
	"math/big"
	"os"

	"github.com/aristath/launchpad/internal/domain"
	"github.com/aristath/launchpad/pkg/units"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Network is the catalogue the engine boots with: the base asset and its
// initial holders, and the venues graduation may deploy to.
type Network struct {
	Base   BaseAsset `yaml:"base" validate:"required"`
	Venues []Venue   `yaml:"venues" validate:"required,min=1,dive"`
}

// BaseAsset describes the quote asset every pool trades against
type BaseAsset struct {
	Name        string       `yaml:"name" validate:"required"`
	Symbol      string       `yaml:"symbol" validate:"required,alphanum"`
	Allocations []Allocation `yaml:"allocations" validate:"dive"`
}

// Allocation is a genesis balance of the base asset, in whole units
type Allocation struct {
	Account string `yaml:"account" validate:"required,eth_addr"`
	Amount  string `yaml:"amount" validate:"required,numeric"`
}

// Venue is one graduation venue
type Venue struct {
	Name    string           `yaml:"name" validate:"required"`
	Kind    domain.VenueKind `yaml:"kind" validate:"required,oneof=classic_amm concentrated_liquidity_amm solidly_amm"`
	Address string           `yaml:"address" validate:"required,eth_addr"`
}

// Ref returns the venue's address
func (v Venue) Ref() common.Address {
	return common.HexToAddress(v.Address)
}

// DefaultNetwork is used when no catalogue file is configured: one venue of
// each kind and the whole base supply with the treasury.
func DefaultNetwork(accounts Accounts) *Network {
	return &Network{
		Base: BaseAsset{
			Name:   "Virtual",
			Symbol: "VIRTUAL",
			Allocations: []Allocation{
				{Account: accounts.Treasury.Hex(), Amount: "1000000000"},
			},
		},
		Venues: []Venue{
			{Name: "classic", Kind: domain.VenueClassicAMM, Address: "0x000000000000000000000000000000000000d001"},
			{Name: "concentrated", Kind: domain.VenueConcentratedAMM, Address: "0x000000000000000000000000000000000000d002"},
			{Name: "solidly", Kind: domain.VenueSolidlyAMM, Address: "0x000000000000000000000000000000000000d003"},
		},
	}
}

// LoadNetwork reads the catalogue at path, or returns the default one when path is empty
func LoadNetwork(path string, accounts Accounts) (*Network, error) {
	if path == "" {
		return DefaultNetwork(accounts), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read network file: %w", err)
	}
	var n Network
	if err := yaml.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("failed to parse network file %s: %w", path, err)
	}
	if err := n.Validate(); err != nil {
		return nil, fmt.Errorf("network file %s: %w", path, err)
	}
	return &n, nil
}

// Validate checks field shapes and that venue addresses are unique
func (n *Network) Validate() error {
	if err := configValidate.Struct(n); err != nil {
		return err
	}
	seen := make(map[common.Address]bool, len(n.Venues))
	for _, v := range n.Venues {
		if seen[v.Ref()] {
			return fmt.Errorf("venue %s listed twice", v.Address)
		}
		seen[v.Ref()] = true
	}
	if _, _, err := n.BaseSupply(); err != nil {
		return err
	}
	return nil
}

// BaseSupply converts the allocations to smallest units and sums them
func (n *Network) BaseSupply() (*big.Int, map[common.Address]*big.Int, error) {
	total := new(big.Int)
	balances := make(map[common.Address]*big.Int, len(n.Base.Allocations))
	for _, a := range n.Base.Allocations {
		amount, err := units.Parse(a.Amount, units.Decimals)
		if err != nil {
			return nil, nil, fmt.Errorf("allocation for %s: %w", a.Account, err)
		}
		total.Add(total, amount)
		account := common.HexToAddress(a.Account)
		if prev, ok := balances[account]; ok {
			amount.Add(amount, prev)
		}
		balances[account] = amount
	}
	if total.Sign() == 0 {
		return nil, nil, fmt.Errorf("base asset has no allocations")
	}
	return total, balances, nil
}
