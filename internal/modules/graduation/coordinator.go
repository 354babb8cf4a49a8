// Package graduation tracks launched tokens from registration to graduation and
// moves bonding liquidity onto external venues once a token is eligible.
package graduation

import (
	"math/big"
	"sort"
	"time"

	"github.com/aristath/launchpad/internal/domain"
	"github.com/aristath/launchpad/internal/events"
	"github.com/aristath/launchpad/internal/modules/pool"
	"github.com/aristath/launchpad/internal/modules/venues"
	"github.com/aristath/launchpad/internal/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// LiquiditySource is the router surface the coordinator drains at graduation
type LiquiditySource interface {
	Address() common.Address
	Base() domain.Ledger
	Pool(token common.Address) (*pool.Pool, bool)
	TransferLiquidityToManager(caller, token, to common.Address) (*big.Int, *big.Int, error)
}

// VenueResolver maps dex configs to venue adapters
type VenueResolver interface {
	Resolve(cfg domain.DexConfig) (venues.Adapter, error)
	CheckConfigs(configs []domain.DexConfig) error
}

// Config holds the coordinator's identity and capabilities
type Config struct {
	// Address receives swept liquidity and is every launched token's graduation authority
	Address  common.Address
	Admin    common.Address
	Launcher common.Address
	// Treasury receives slicing dust
	Treasury common.Address
	// LiquidityRecipient owns the venue positions; zero means the treasury
	LiquidityRecipient common.Address
	ThresholdBps       uint64
}

// AgentProfile is the coordinator's record of one launched token
type AgentProfile struct {
	Token         common.Address          `json:"token"`
	Creator       common.Address          `json:"creator"`
	Metadata      string                  `json:"metadata"`
	BondingPool   common.Address          `json:"bonding_pool"`
	MainVenuePool common.Address          `json:"main_venue_pool"`
	DexConfigs    []domain.DexConfig      `json:"dex_configs"`
	VenuePools    []common.Address        `json:"venue_pools"`
	Status        domain.GraduationStatus `json:"status"`
	RegisteredAt  time.Time               `json:"registered_at"`
	GraduatedAt   time.Time               `json:"graduated_at,omitempty"`
}

func (p *AgentProfile) clone() AgentProfile {
	out := *p
	out.DexConfigs = domain.CloneDexConfigs(p.DexConfigs)
	out.VenuePools = append([]common.Address(nil), p.VenuePools...)
	return out
}

// Deployment is the liquidity one dex config received at graduation
type Deployment struct {
	Config      domain.DexConfig `json:"config"`
	Pool        common.Address   `json:"pool"`
	Created     bool             `json:"created"`
	TokenAmount *big.Int         `json:"token_amount"`
	BaseAmount  *big.Int         `json:"base_amount"`
	UsedToken   *big.Int         `json:"used_token"`
	UsedBase    *big.Int         `json:"used_base"`
	Liquidity   *big.Int         `json:"liquidity"`
}

// Coordinator owns every AgentProfile. It is the graduation hook of the router.
type Coordinator struct {
	journal *state.Journal
	clock   domain.Clock
	emitter events.Emitter
	log     zerolog.Logger
	guard   state.Guard

	cfg       Config
	threshold uint64
	router    LiquiditySource
	venues    VenueResolver
	profiles  map[common.Address]*AgentProfile
}

// NewCoordinator creates a coordinator draining router into venues
func NewCoordinator(journal *state.Journal, clock domain.Clock, emitter events.Emitter, router LiquiditySource, venueResolver VenueResolver, cfg Config, log zerolog.Logger) (*Coordinator, error) {
	if cfg.Address == (common.Address{}) || cfg.Admin == (common.Address{}) || cfg.Treasury == (common.Address{}) {
		return nil, domain.Errorf(domain.ErrZeroAddress, "coordinator, admin and treasury addresses are required")
	}
	if router == nil || venueResolver == nil {
		return nil, domain.Errorf(domain.ErrInvalidParameter, "router and venues are required")
	}
	if err := validateThreshold(cfg.ThresholdBps); err != nil {
		return nil, err
	}
	if cfg.LiquidityRecipient == (common.Address{}) {
		cfg.LiquidityRecipient = cfg.Treasury
	}
	return &Coordinator{
		journal:   journal,
		clock:     clock,
		emitter:   emitter,
		log:       log.With().Str("service", "graduation").Logger(),
		cfg:       cfg,
		threshold: cfg.ThresholdBps,
		router:    router,
		venues:    venueResolver,
		profiles:  make(map[common.Address]*AgentProfile),
	}, nil
}

func validateThreshold(bps uint64) error {
	if bps == 0 || bps > domain.BPS {
		return domain.Errorf(domain.ErrPercentageOverCap, "graduation threshold %d bps", bps)
	}
	return nil
}

// SetLauncher fills in the launcher capability known only after wiring
func (c *Coordinator) SetLauncher(launcher common.Address) {
	c.cfg.Launcher = launcher
}

// Address returns the coordinator's account
func (c *Coordinator) Address() common.Address { return c.cfg.Address }

// Threshold returns the reserve ratio, in bps of supply, at or below which a token graduates
func (c *Coordinator) Threshold() uint64 { return c.threshold }

// RegisterToken records a freshly launched token. Launcher or admin only, once per token.
func (c *Coordinator) RegisterToken(caller, token, bondingPool, creator common.Address, metadata string, configs []domain.DexConfig) error {
	if caller != c.cfg.Launcher && caller != c.cfg.Admin {
		return domain.Errorf(domain.ErrUnauthorized, "register token by %s", caller.Hex())
	}
	if token == (common.Address{}) || bondingPool == (common.Address{}) || creator == (common.Address{}) {
		return domain.Errorf(domain.ErrZeroAddress, "token, pool and creator are required")
	}
	if _, exists := c.profiles[token]; exists {
		return domain.Errorf(domain.ErrAlreadyRegistered, "token %s", token.Hex())
	}
	if err := c.venues.CheckConfigs(configs); err != nil {
		return err
	}
	p, ok := c.router.Pool(token)
	if !ok || p.Address() != bondingPool {
		return domain.Errorf(domain.ErrPoolNotFound, "router has no pool %s for %s", bondingPool.Hex(), token.Hex())
	}

	profile := &AgentProfile{
		Token:        token,
		Creator:      creator,
		Metadata:     metadata,
		BondingPool:  bondingPool,
		DexConfigs:   domain.CloneDexConfigs(configs),
		Status:       domain.StatusBonding,
		RegisteredAt: c.clock.Now(),
	}
	c.profiles[token] = profile
	c.journal.Record(func() { delete(c.profiles, token) })

	data := &events.TokenRegisteredData{
		Token:      token.Hex(),
		Pool:       bondingPool.Hex(),
		Creator:    creator.Hex(),
		Metadata:   metadata,
		DexConfigs: dexConfigData(configs),
	}
	c.journal.OnCommit(func() { c.emit(events.TokenRegistered, data) })

	c.log.Info().
		Str("token", token.Hex()).
		Str("creator", creator.Hex()).
		Int("venues", len(configs)).
		Msg("Token registered")
	return nil
}

// CheckGraduation reports whether token is eligible and its reserve ratio in bps of supply
func (c *Coordinator) CheckGraduation(token common.Address) (bool, uint64, error) {
	profile, ok := c.profiles[token]
	if !ok {
		return false, 0, domain.Errorf(domain.ErrNotRegistered, "token %s", token.Hex())
	}
	p, ok := c.router.Pool(token)
	if !ok {
		return false, 0, domain.Errorf(domain.ErrPoolNotFound, "no pool for %s", token.Hex())
	}

	supply := p.Token().TotalSupply()
	if supply.Sign() == 0 {
		return false, 0, nil
	}
	reserves := p.Snapshot()
	ratio := domain.MulDiv(reserves.ReserveToken, domain.BigBPS, supply).Uint64()

	ready := profile.Status == domain.StatusBonding && p.Seeded() && !p.Swept() && ratio <= c.threshold
	return ready, ratio, nil
}

// TryGraduate graduates token when it is eligible. Router only; unknown tokens are never eligible.
func (c *Coordinator) TryGraduate(caller, token common.Address) (bool, error) {
	if caller != c.router.Address() {
		return false, domain.Errorf(domain.ErrUnauthorized, "graduation check by %s", caller.Hex())
	}
	if _, ok := c.profiles[token]; !ok {
		return false, nil
	}
	ready, _, err := c.CheckGraduation(token)
	if err != nil || !ready {
		return false, err
	}
	if _, err := c.graduate(token); err != nil {
		return false, err
	}
	return true, nil
}

// Graduate moves token's bonding liquidity onto its venues. Router only.
func (c *Coordinator) Graduate(caller, token common.Address) ([]Deployment, error) {
	if caller != c.router.Address() {
		return nil, domain.Errorf(domain.ErrUnauthorized, "graduate by %s", caller.Hex())
	}
	return c.graduate(token)
}

func (c *Coordinator) graduate(token common.Address) ([]Deployment, error) {
	release, err := c.guard.Enter()
	if err != nil {
		return nil, err
	}
	defer release()

	profile, ok := c.profiles[token]
	if !ok {
		return nil, domain.Errorf(domain.ErrNotRegistered, "token %s", token.Hex())
	}
	if profile.Status == domain.StatusGraduated || len(profile.VenuePools) > 0 {
		return nil, domain.Errorf(domain.ErrAlreadyGraduated, "token %s", token.Hex())
	}
	ready, ratio, err := c.CheckGraduation(token)
	if err != nil {
		return nil, err
	}
	if !ready {
		return nil, domain.Errorf(domain.ErrThresholdNotMet, "ratio %d bps above threshold %d", ratio, c.threshold)
	}
	p, _ := c.router.Pool(token)
	tokenLedger := p.Token()
	base := c.router.Base()

	// the status flips before any liquidity moves; the frame undoes it on failure
	prev := profile.clone()
	profile.Status = domain.StatusGraduated
	profile.GraduatedAt = c.clock.Now()
	c.journal.Record(func() { *profile = prev })

	pulledToken, pulledBase, err := c.router.TransferLiquidityToManager(c.cfg.Address, token, c.cfg.Address)
	if err != nil {
		return nil, err
	}

	deployments := make([]Deployment, 0, len(profile.DexConfigs))
	usedToken, usedBase := new(big.Int), new(big.Int)
	for _, cfg := range profile.DexConfigs {
		d := Deployment{
			Config:      cfg,
			TokenAmount: domain.Bps(pulledToken, uint64(cfg.WeightBps)),
			BaseAmount:  domain.Bps(pulledBase, uint64(cfg.WeightBps)),
		}
		if err := c.deploy(&d, tokenLedger, base); err != nil {
			c.log.Warn().Err(err).Str("token", token.Hex()).Str("venue", cfg.String()).Msg("Venue deployment failed")
			return nil, err
		}
		usedToken.Add(usedToken, d.UsedToken)
		usedBase.Add(usedBase, d.UsedBase)
		deployments = append(deployments, d)
	}

	dustToken := new(big.Int).Sub(pulledToken, usedToken)
	dustBase := new(big.Int).Sub(pulledBase, usedBase)
	if err := tokenLedger.Transfer(c.cfg.Address, c.cfg.Treasury, dustToken); err != nil {
		return nil, err
	}
	if err := base.Transfer(c.cfg.Address, c.cfg.Treasury, dustBase); err != nil {
		return nil, err
	}

	pools := make([]common.Address, len(deployments))
	for i, d := range deployments {
		pools[i] = d.Pool
	}
	profile.VenuePools = pools
	profile.MainVenuePool = pools[0]

	if err := tokenLedger.Graduate(c.cfg.Address, pools); err != nil {
		return nil, err
	}

	data := &events.TokenGraduatedData{
		Token:         token.Hex(),
		BondingPool:   profile.BondingPool.Hex(),
		RatioBps:      ratio,
		PulledToken:   pulledToken.String(),
		PulledBase:    pulledBase.String(),
		DustToken:     dustToken.String(),
		DustBase:      dustBase.String(),
		MainVenuePool: profile.MainVenuePool.Hex(),
		Venues:        deploymentData(deployments),
	}
	c.journal.OnCommit(func() { c.emit(events.TokenGraduated, data) })

	c.log.Info().
		Str("token", token.Hex()).
		Uint64("ratio_bps", ratio).
		Str("pulled_token", pulledToken.String()).
		Str("pulled_base", pulledBase.String()).
		Int("venues", len(deployments)).
		Msg("Token graduated")
	return deployments, nil
}

// deploy places one slice on its venue. Zero minimums: the slice defines the price.
func (c *Coordinator) deploy(d *Deployment, tokenLedger, base domain.Ledger) error {
	adapter, err := c.venues.Resolve(d.Config)
	if err != nil {
		return err
	}
	venue := adapter.Address()
	if err := tokenLedger.Approve(c.cfg.Address, venue, d.TokenAmount); err != nil {
		return err
	}
	if err := base.Approve(c.cfg.Address, venue, d.BaseAmount); err != nil {
		return err
	}

	poolAddr, created, err := adapter.CreateOrGetPool(c.cfg.Address, tokenLedger.Address(), base.Address(), d.Config.FeeTier)
	if err != nil {
		return err
	}
	d.Pool, d.Created = poolAddr, created

	params := venues.LiquidityParams{
		Caller:  c.cfg.Address,
		Pool:    poolAddr,
		TokenA:  tokenLedger.Address(),
		TokenB:  base.Address(),
		AmountA: d.TokenAmount,
		AmountB: d.BaseAmount,
		To:      c.cfg.LiquidityRecipient,
	}

	var dep *venues.Deposit
	if d.Config.VenueKind == domain.VenueConcentratedAMM {
		cl, ok := adapter.(venues.ConcentratedAdapter)
		if !ok {
			return domain.Errorf(domain.ErrVenueKindMismatch, "%s cannot mint full-range positions", venue.Hex())
		}
		if !cl.Initialized(poolAddr) {
			amount0, amount1 := d.TokenAmount, d.BaseAmount
			if base.Address().Cmp(tokenLedger.Address()) < 0 {
				amount0, amount1 = amount1, amount0
			}
			if amount0.Sign() == 0 || amount1.Sign() == 0 {
				return domain.Errorf(domain.ErrZeroAmount, "cannot price an empty slice")
			}
			if err := cl.Initialize(c.cfg.Address, poolAddr, venues.EncodeSqrtPriceX96(amount0, amount1)); err != nil {
				return err
			}
		}
		dep, err = cl.MintFullRange(params)
	} else {
		dep, err = adapter.AddLiquidity(params)
	}
	if err != nil {
		return err
	}
	d.UsedToken, d.UsedBase, d.Liquidity = dep.UsedA, dep.UsedB, dep.Liquidity

	// leftover allowance is revoked
	if err := tokenLedger.Approve(c.cfg.Address, venue, new(big.Int)); err != nil {
		return err
	}
	return base.Approve(c.cfg.Address, venue, new(big.Int))
}

// SetThreshold changes the graduation threshold. Admin only.
func (c *Coordinator) SetThreshold(caller common.Address, bps uint64) error {
	if caller != c.cfg.Admin {
		return domain.Errorf(domain.ErrUnauthorized, "set threshold by %s", caller.Hex())
	}
	if err := validateThreshold(bps); err != nil {
		return err
	}
	before := c.threshold
	c.threshold = bps
	c.journal.Record(func() { c.threshold = before })

	data := &events.ThresholdUpdatedData{Before: before, After: bps}
	c.journal.OnCommit(func() { c.emit(events.ThresholdUpdated, data) })
	return nil
}

// SetDexConfigs replaces token's venue configs. Admin only, before graduation.
func (c *Coordinator) SetDexConfigs(caller, token common.Address, configs []domain.DexConfig) error {
	if caller != c.cfg.Admin {
		return domain.Errorf(domain.ErrUnauthorized, "set dex configs by %s", caller.Hex())
	}
	profile, ok := c.profiles[token]
	if !ok {
		return domain.Errorf(domain.ErrNotRegistered, "token %s", token.Hex())
	}
	if profile.Status == domain.StatusGraduated {
		return domain.Errorf(domain.ErrAlreadyGraduated, "token %s", token.Hex())
	}
	if err := c.venues.CheckConfigs(configs); err != nil {
		return err
	}

	before := profile.DexConfigs
	profile.DexConfigs = domain.CloneDexConfigs(configs)
	c.journal.Record(func() { profile.DexConfigs = before })

	data := &events.DexConfigsUpdatedData{
		Token:  token.Hex(),
		Before: dexConfigData(before),
		After:  dexConfigData(configs),
	}
	c.journal.OnCommit(func() { c.emit(events.DexConfigsUpdated, data) })
	return nil
}

// Profile returns a copy of token's profile
func (c *Coordinator) Profile(token common.Address) (AgentProfile, bool) {
	p, ok := c.profiles[token]
	if !ok {
		return AgentProfile{}, false
	}
	return p.clone(), true
}

// Profiles returns copies of every profile ordered by registration time
func (c *Coordinator) Profiles() []AgentProfile {
	out := make([]AgentProfile, 0, len(c.profiles))
	for _, p := range c.profiles {
		out = append(out, p.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].RegisteredAt.Before(out[j].RegisteredAt)
		}
		return out[i].Token.Cmp(out[j].Token) < 0
	})
	return out
}

// Status returns token's graduation status
func (c *Coordinator) Status(token common.Address) (domain.GraduationStatus, error) {
	p, ok := c.profiles[token]
	if !ok {
		return "", domain.Errorf(domain.ErrNotRegistered, "token %s", token.Hex())
	}
	return p.Status, nil
}

// Creator returns token's creator, who receives half of every tax
func (c *Coordinator) Creator(token common.Address) (common.Address, bool) {
	p, ok := c.profiles[token]
	if !ok {
		return common.Address{}, false
	}
	return p.Creator, true
}

func (c *Coordinator) emit(t events.EventType, data events.EventData) {
	if c.emitter != nil {
		c.emitter.EmitTyped(t, "graduation", data)
	}
}

func dexConfigData(configs []domain.DexConfig) []events.DexConfigData {
	out := make([]events.DexConfigData, len(configs))
	for i, cfg := range configs {
		out[i] = events.DexConfigData{
			VenueRef:  cfg.VenueRef.Hex(),
			VenueKind: string(cfg.VenueKind),
			FeeTier:   cfg.FeeTier,
			WeightBps: cfg.WeightBps,
		}
	}
	return out
}

func deploymentData(deployments []Deployment) []events.VenueDeploymentData {
	out := make([]events.VenueDeploymentData, len(deployments))
	for i, d := range deployments {
		out[i] = events.VenueDeploymentData{
			VenueRef:    d.Config.VenueRef.Hex(),
			VenueKind:   string(d.Config.VenueKind),
			Pool:        d.Pool.Hex(),
			WeightBps:   d.Config.WeightBps,
			TokenAmount: d.TokenAmount.String(),
			BaseAmount:  d.BaseAmount.String(),
			UsedToken:   d.UsedToken.String(),
			UsedBase:    d.UsedBase.String(),
			Liquidity:   d.Liquidity.String(),
			Created:     d.Created,
		}
	}
	return out
}
