// Package launch composes token creation, pool setup, airdrop, fee skim, seeding
// and the creator's first purchase into one atomic launch.
package launch

import (
	"math/big"
	"strings"

	"github.com/aristath/launchpad/internal/domain"
	"github.com/aristath/launchpad/internal/events"
	"github.com/aristath/launchpad/internal/modules/curve"
	"github.com/aristath/launchpad/internal/modules/pool"
	"github.com/aristath/launchpad/internal/modules/token"
	"github.com/aristath/launchpad/internal/modules/trading"
	"github.com/aristath/launchpad/internal/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultInitialSupply is one billion tokens at 18 decimals
var DefaultInitialSupply = domain.E18(1_000_000_000)

// TokenFactory deploys launched tokens and reserves addresses for their pools
type TokenFactory interface {
	Deploy(deployer common.Address, cfg token.Config) (*token.Token, error)
	NextAddress(deployer common.Address) common.Address
}

// PoolRouter is the router surface a launch uses
type PoolRouter interface {
	Address() common.Address
	Base() domain.Ledger
	RegisterPool(caller common.Address, p *pool.Pool) error
	AddInitialLiquidity(caller, token common.Address, tokenAmount, baseAmount *big.Int, firstBuyer common.Address) (*trading.TradeReceipt, error)
}

// TokenRegistrar is the coordinator surface a launch uses
type TokenRegistrar interface {
	Address() common.Address
	RegisterToken(caller, token, bondingPool, creator common.Address, metadata string, configs []domain.DexConfig) error
}

// AirdropRegistrar is the claim distributor surface a launch uses
type AirdropRegistrar interface {
	Address() common.Address
	Register(caller, token common.Address, merkleRoot common.Hash, claimantCount uint64, amount *big.Int) error
}

// Config holds the orchestrator's identity and launch economics
type Config struct {
	// Address holds each fresh supply until it is distributed
	Address common.Address
	// Treasury receives the platform fee
	Treasury       common.Address
	InitialSupply  *big.Int
	PlatformFeeBps uint64
	AirdropCapBps  uint64
	// PurchaseCapBps caps the creator's first buy, in bps of supply
	PurchaseCapBps uint64
	Curve          curve.Params
}

// Validate checks the launch economics leave something to seed
func (c Config) Validate() error {
	if c.Address == (common.Address{}) || c.Treasury == (common.Address{}) {
		return domain.Errorf(domain.ErrZeroAddress, "launcher and treasury addresses are required")
	}
	if !domain.IsPositive(c.InitialSupply) {
		return domain.Errorf(domain.ErrZeroAmount, "initial supply")
	}
	if c.PurchaseCapBps == 0 || c.PurchaseCapBps >= domain.BPS {
		return domain.Errorf(domain.ErrPercentageOverCap, "purchase cap %d bps", c.PurchaseCapBps)
	}
	if c.PlatformFeeBps+c.AirdropCapBps >= domain.BPS {
		return domain.Errorf(domain.ErrPercentageOverCap, "fee %d + airdrop cap %d bps leave nothing to seed", c.PlatformFeeBps, c.AirdropCapBps)
	}
	if _, err := curve.New(c.Curve); err != nil {
		return err
	}
	return nil
}

// AirdropParams describes an optional airdrop slice. ClaimantCount zero means none.
type AirdropParams struct {
	MerkleRoot    common.Hash `json:"merkle_root"`
	ClaimantCount uint64      `json:"claimant_count"`
	PercentageBps uint64      `json:"percentage_bps"`
}

// Params describes one launch
type Params struct {
	Creator  common.Address
	Name     string
	Symbol   string
	Metadata string
	// InitialPurchase is the base the creator offers for the first buy; only what the cap allows is pulled
	InitialPurchase *big.Int
	DexConfigs      []domain.DexConfig
	Airdrop         AirdropParams
}

// Result describes a completed launch
type Result struct {
	LaunchID        string                `json:"launch_id"`
	Token           common.Address        `json:"token"`
	Pool            common.Address        `json:"pool"`
	Creator         common.Address        `json:"creator"`
	Supply          *big.Int              `json:"supply"`
	AirdropAmount   *big.Int              `json:"airdrop_amount"`
	PlatformFee     *big.Int              `json:"platform_fee"`
	SeedTokens      *big.Int              `json:"seed_tokens"`
	InitialPurchase *big.Int              `json:"initial_purchase"`
	TokensBought    *big.Int              `json:"tokens_bought"`
	FirstTrade      *trading.TradeReceipt `json:"first_trade,omitempty"`
}

// Orchestrator runs launches. It is the launcher capability of the router,
// coordinator and distributor.
type Orchestrator struct {
	journal     *state.Journal
	clock       domain.Clock
	emitter     events.Emitter
	log         zerolog.Logger
	guard       state.Guard
	cfg         Config
	tokens      TokenFactory
	router      PoolRouter
	coordinator TokenRegistrar
	airdrops    AirdropRegistrar
}

// NewOrchestrator creates an orchestrator. airdrops may be nil when no distributor is deployed.
func NewOrchestrator(journal *state.Journal, clock domain.Clock, emitter events.Emitter, tokens TokenFactory, router PoolRouter, coordinator TokenRegistrar, airdrops AirdropRegistrar, cfg Config, log zerolog.Logger) (*Orchestrator, error) {
	if cfg.InitialSupply == nil {
		cfg.InitialSupply = new(big.Int).Set(DefaultInitialSupply)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tokens == nil || router == nil || coordinator == nil {
		return nil, domain.Errorf(domain.ErrInvalidParameter, "token factory, router and coordinator are required")
	}
	return &Orchestrator{
		journal:     journal,
		clock:       clock,
		emitter:     emitter,
		log:         log.With().Str("service", "launch").Logger(),
		cfg:         cfg,
		tokens:      tokens,
		router:      router,
		coordinator: coordinator,
		airdrops:    airdrops,
	}, nil
}

// Address returns the launcher account
func (o *Orchestrator) Address() common.Address { return o.cfg.Address }

// Config returns the launch economics
func (o *Orchestrator) Config() Config {
	out := o.cfg
	out.InitialSupply = domain.Copy(o.cfg.InitialSupply)
	return out
}

func (o *Orchestrator) validate(p Params) error {
	if p.Creator == (common.Address{}) {
		return domain.Errorf(domain.ErrZeroAddress, "creator")
	}
	if strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.Symbol) == "" {
		return domain.Errorf(domain.ErrInvalidParameter, "name and symbol are required")
	}
	if p.InitialPurchase != nil && p.InitialPurchase.Sign() < 0 {
		return domain.Errorf(domain.ErrInvalidParameter, "initial purchase is negative")
	}
	if err := domain.ValidateDexConfigs(p.DexConfigs); err != nil {
		return err
	}
	if p.Airdrop.ClaimantCount > 0 {
		if o.airdrops == nil {
			return domain.Errorf(domain.ErrInvalidParameter, "no claim distributor configured")
		}
		if p.Airdrop.PercentageBps == 0 {
			return domain.Errorf(domain.ErrZeroAmount, "airdrop percentage")
		}
		if p.Airdrop.PercentageBps > o.cfg.AirdropCapBps {
			return domain.Errorf(domain.ErrPercentageOverCap, "airdrop %d bps over cap %d", p.Airdrop.PercentageBps, o.cfg.AirdropCapBps)
		}
	}
	return nil
}

// Launch runs the whole launch sequence for p.Creator. The creator must have
// approved the orchestrator for the base the first buy pulls. Run inside a host
// frame: any failing step unwinds every earlier one.
func (o *Orchestrator) Launch(p Params) (*Result, error) {
	release, err := o.guard.Enter()
	if err != nil {
		return nil, err
	}
	defer release()

	if err := o.validate(p); err != nil {
		return nil, err
	}
	self := o.cfg.Address
	supply := new(big.Int).Set(o.cfg.InitialSupply)

	tok, err := o.tokens.Deploy(self, token.Config{
		Name:                p.Name,
		Symbol:              p.Symbol,
		Supply:              supply,
		Holder:              self,
		GraduationAuthority: o.coordinator.Address(),
	})
	if err != nil {
		return nil, err
	}

	c, err := curve.New(o.cfg.Curve)
	if err != nil {
		return nil, err
	}
	base := o.router.Base()
	bondingPool, err := pool.New(o.journal, o.clock, o.emitter, pool.Config{
		Address: o.tokens.NextAddress(self),
		Token:   tok,
		Base:    base,
		Curve:   c,
		Router:  o.router.Address(),
	}, o.log)
	if err != nil {
		return nil, err
	}
	if err := o.router.RegisterPool(self, bondingPool); err != nil {
		return nil, err
	}
	if err := o.coordinator.RegisterToken(self, tok.Address(), bondingPool.Address(), p.Creator, p.Metadata, p.DexConfigs); err != nil {
		return nil, err
	}

	result := &Result{
		LaunchID:        uuid.NewString(),
		Token:           tok.Address(),
		Pool:            bondingPool.Address(),
		Creator:         p.Creator,
		Supply:          new(big.Int).Set(supply),
		AirdropAmount:   new(big.Int),
		InitialPurchase: new(big.Int),
		TokensBought:    new(big.Int),
	}

	if p.Airdrop.ClaimantCount > 0 {
		result.AirdropAmount = domain.Bps(supply, p.Airdrop.PercentageBps)
		if err := tok.Transfer(self, o.airdrops.Address(), result.AirdropAmount); err != nil {
			return nil, err
		}
		if err := o.airdrops.Register(self, tok.Address(), p.Airdrop.MerkleRoot, p.Airdrop.ClaimantCount, result.AirdropAmount); err != nil {
			return nil, err
		}
	}

	result.PlatformFee = domain.Bps(supply, o.cfg.PlatformFeeBps)
	if err := tok.Transfer(self, o.cfg.Treasury, result.PlatformFee); err != nil {
		return nil, err
	}
	result.SeedTokens = tok.BalanceOf(self)

	purchase, err := o.cappedPurchase(c, result.SeedTokens, p.InitialPurchase, supply)
	if err != nil {
		return nil, err
	}
	if purchase.Sign() > 0 {
		if err := base.TransferFrom(self, p.Creator, self, purchase); err != nil {
			return nil, err
		}
		if err := base.Approve(self, o.router.Address(), purchase); err != nil {
			return nil, err
		}
	}
	if err := tok.Approve(self, o.router.Address(), result.SeedTokens); err != nil {
		return nil, err
	}
	receipt, err := o.router.AddInitialLiquidity(self, tok.Address(), result.SeedTokens, purchase, p.Creator)
	if err != nil {
		return nil, err
	}
	if receipt != nil {
		result.FirstTrade = receipt
		result.InitialPurchase = new(big.Int).Set(receipt.AmountIn)
		result.TokensBought = new(big.Int).Set(receipt.NetOut)
	}

	data := &events.LaunchCompletedData{
		LaunchID:        result.LaunchID,
		Token:           result.Token.Hex(),
		Pool:            result.Pool.Hex(),
		Creator:         p.Creator.Hex(),
		Name:            p.Name,
		Symbol:          p.Symbol,
		Supply:          supply.String(),
		AirdropAmount:   result.AirdropAmount.String(),
		PlatformFee:     result.PlatformFee.String(),
		SeedTokens:      result.SeedTokens.String(),
		InitialPurchase: result.InitialPurchase.String(),
		TokensBought:    result.TokensBought.String(),
	}
	o.journal.OnCommit(func() { o.emit(events.LaunchCompleted, data) })

	o.log.Info().
		Str("launch_id", result.LaunchID).
		Str("token", result.Token.Hex()).
		Str("symbol", p.Symbol).
		Str("creator", p.Creator.Hex()).
		Str("seed_tokens", result.SeedTokens.String()).
		Str("initial_purchase", result.InitialPurchase.String()).
		Str("tokens_bought", result.TokensBought.String()).
		Msg("Token launched")
	return result, nil
}

// cappedPurchase clamps offered base so the first buy takes at most the purchase
// cap of supply. Only the clamped amount is pulled from the creator.
func (o *Orchestrator) cappedPurchase(c curve.Curve, seedTokens, offered, supply *big.Int) (*big.Int, error) {
	if !domain.IsPositive(offered) {
		return new(big.Int), nil
	}
	fresh := curve.Reserves{Token: seedTokens, Base: new(big.Int)}
	limit := domain.Bps(supply, o.cfg.PurchaseCapBps)

	out, err := c.TokenOut(fresh, offered)
	if err == nil && out.Cmp(limit) <= 0 {
		return new(big.Int).Set(offered), nil
	}
	needed, err := c.BaseIn(fresh, limit)
	if err != nil {
		return nil, err
	}
	capped, err := c.TokenOut(fresh, needed)
	if err != nil {
		return nil, err
	}
	if capped.Cmp(limit) > 0 {
		needed.Sub(needed, big.NewInt(1))
	}
	if needed.Cmp(offered) > 0 {
		needed.Set(offered)
	}
	o.log.Debug().
		Str("offered", offered.String()).
		Str("pulled", needed.String()).
		Str("token_cap", limit.String()).
		Msg("First purchase clamped to cap")
	return needed, nil
}

func (o *Orchestrator) emit(t events.EventType, data events.EventData) {
	if o.emitter != nil {
		o.emitter.EmitTyped(t, "launch", data)
	}
}
