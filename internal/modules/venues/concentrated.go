package venues

import (
	"math/big"
	"sort"

	"github.com/aristath/launchpad/internal/domain"
	"github.com/aristath/launchpad/internal/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

type clKey struct {
	token0 common.Address
	token1 common.Address
	fee    uint32
}

type clPool struct {
	address      common.Address
	token0       common.Address
	token1       common.Address
	fee          uint32
	tickLower    int32
	tickUpper    int32
	sqrtPriceX96 *big.Int
	liquidity    *big.Int
	reserve0     *big.Int
	reserve1     *big.Int
	positions    map[common.Address]*big.Int
}

// ConcentratedAMM is a fee-tiered concentrated liquidity venue. Only full-range
// positions are minted, so each pool tracks one range per fee tier.
type ConcentratedAMM struct {
	journal *state.Journal
	ledgers domain.LedgerResolver
	address common.Address
	guard   state.Guard
	pools   map[common.Address]*clPool
	index   map[clKey]common.Address
	log     zerolog.Logger
}

// NewConcentratedAMM creates a concentrated liquidity venue whose factory lives at address
func NewConcentratedAMM(journal *state.Journal, ledgers domain.LedgerResolver, address common.Address, log zerolog.Logger) *ConcentratedAMM {
	return &ConcentratedAMM{
		journal: journal,
		ledgers: ledgers,
		address: address,
		pools:   make(map[common.Address]*clPool),
		index:   make(map[clKey]common.Address),
		log:     log.With().Str("venue", "concentrated_liquidity_amm").Str("factory", address.Hex()).Logger(),
	}
}

// Kind returns domain.VenueConcentratedAMM
func (c *ConcentratedAMM) Kind() domain.VenueKind { return domain.VenueConcentratedAMM }

// Address returns the factory address
func (c *ConcentratedAMM) Address() common.Address { return c.address }

// CreateOrGetPool returns the pool for the pair at feeTier, creating it uninitialized when absent
func (c *ConcentratedAMM) CreateOrGetPool(caller, tokenA, tokenB common.Address, feeTier uint32) (common.Address, bool, error) {
	release, err := c.guard.Enter()
	if err != nil {
		return common.Address{}, false, err
	}
	defer release()

	if caller == (common.Address{}) {
		return common.Address{}, false, domain.ErrZeroAddress
	}
	if err := checkPair(tokenA, tokenB); err != nil {
		return common.Address{}, false, err
	}
	spacing, ok := TickSpacing(feeTier)
	if !ok {
		return common.Address{}, false, domain.Errorf(domain.ErrInvalidParameter, "fee tier %d is not enabled", feeTier)
	}

	token0, token1 := domain.SortTokens(tokenA, tokenB)
	key := clKey{token0: token0, token1: token1, fee: feeTier}
	if addr, ok := c.index[key]; ok {
		return addr, false, nil
	}

	lower, upper := FullRangeTicks(spacing)
	addr := poolAddress(c.address, domain.VenueConcentratedAMM, token0, token1, feeTier, false)
	c.pools[addr] = &clPool{
		address:   addr,
		token0:    token0,
		token1:    token1,
		fee:       feeTier,
		tickLower: lower,
		tickUpper: upper,
		liquidity: new(big.Int),
		reserve0:  new(big.Int),
		reserve1:  new(big.Int),
		positions: make(map[common.Address]*big.Int),
	}
	c.index[key] = addr
	c.journal.Record(func() {
		delete(c.pools, addr)
		delete(c.index, key)
	})

	c.log.Debug().
		Str("pool", addr.Hex()).
		Uint32("fee", feeTier).
		Int32("tick_lower", lower).
		Int32("tick_upper", upper).
		Msg("Pool created")
	return addr, true, nil
}

// Initialized reports whether the pool has a starting price
func (c *ConcentratedAMM) Initialized(pool common.Address) bool {
	p, ok := c.pools[pool]
	return ok && p.sqrtPriceX96 != nil
}

// Initialize sets a new pool's starting sqrt price (Q64.96)
func (c *ConcentratedAMM) Initialize(caller, pool common.Address, sqrtPriceX96 *big.Int) error {
	release, err := c.guard.Enter()
	if err != nil {
		return err
	}
	defer release()

	if caller == (common.Address{}) {
		return domain.ErrZeroAddress
	}
	p, ok := c.pools[pool]
	if !ok {
		return domain.Errorf(domain.ErrPoolNotFound, "pool %s", pool.Hex())
	}
	if p.sqrtPriceX96 != nil {
		return domain.Errorf(domain.ErrAlreadyInit, "pool %s", pool.Hex())
	}
	if sqrtPriceX96 == nil || sqrtPriceX96.Cmp(MinSqrtRatio) < 0 || sqrtPriceX96.Cmp(MaxSqrtRatio) >= 0 {
		return domain.Errorf(domain.ErrInvalidParameter, "sqrt price %s out of range", domain.FormatAmount(sqrtPriceX96))
	}

	p.sqrtPriceX96 = new(big.Int).Set(sqrtPriceX96)
	c.journal.Record(func() { p.sqrtPriceX96 = nil })

	c.log.Debug().Str("pool", pool.Hex()).Str("sqrt_price_x96", sqrtPriceX96.String()).Msg("Pool initialized")
	return nil
}

// AddLiquidity mints a full-range position
func (c *ConcentratedAMM) AddLiquidity(p LiquidityParams) (*Deposit, error) {
	return c.MintFullRange(p)
}

// MintFullRange mints the largest full-range position the desired amounts back
// at the pool's current price
func (c *ConcentratedAMM) MintFullRange(p LiquidityParams) (*Deposit, error) {
	release, err := c.guard.Enter()
	if err != nil {
		return nil, err
	}
	defer release()

	if p.Caller == (common.Address{}) || p.To == (common.Address{}) {
		return nil, domain.ErrZeroAddress
	}
	if err := checkPair(p.TokenA, p.TokenB); err != nil {
		return nil, err
	}
	pool, ok := c.pools[p.Pool]
	if !ok {
		return nil, domain.Errorf(domain.ErrPoolNotFound, "pool %s", p.Pool.Hex())
	}
	if pool.sqrtPriceX96 == nil {
		return nil, domain.Errorf(domain.ErrUninitialized, "pool %s", p.Pool.Hex())
	}

	flipped := p.TokenA != pool.token0
	if (!flipped && p.TokenB != pool.token1) || (flipped && (p.TokenA != pool.token1 || p.TokenB != pool.token0)) {
		return nil, domain.Errorf(domain.ErrInvalidPath, "pool %s does not hold these tokens", p.Pool.Hex())
	}
	desired0, desired1 := orZero(p.AmountA), orZero(p.AmountB)
	min0, min1 := orZero(p.MinA), orZero(p.MinB)
	if flipped {
		desired0, desired1 = desired1, desired0
		min0, min1 = min1, min0
	}

	sqrtA := SqrtRatioAtTick(pool.tickLower)
	sqrtB := SqrtRatioAtTick(pool.tickUpper)
	liquidity := liquidityForAmounts(pool.sqrtPriceX96, sqrtA, sqrtB, desired0, desired1)
	if liquidity.Sign() <= 0 {
		return nil, domain.Errorf(domain.ErrInsufficientLiquidity, "amounts back no liquidity")
	}
	used0, used1 := amountsForLiquidity(pool.sqrtPriceX96, sqrtA, sqrtB, liquidity)
	if used0.Cmp(desired0) > 0 || used1.Cmp(desired1) > 0 {
		return nil, domain.Errorf(domain.ErrInvariantViolated, "mint needs %s/%s of %s/%s", used0, used1, desired0, desired1)
	}
	if used0.Cmp(min0) < 0 || used1.Cmp(min1) < 0 {
		return nil, domain.Errorf(domain.ErrInsufficientOutput, "mint uses %s/%s below minimum %s/%s", used0, used1, min0, min1)
	}

	c.applyMint(pool, p.To, liquidity, used0, used1)

	if err := pull(c.ledgers, c.address, pool.token0, p.Caller, pool.address, used0); err != nil {
		return nil, err
	}
	if err := pull(c.ledgers, c.address, pool.token1, p.Caller, pool.address, used1); err != nil {
		return nil, err
	}

	c.log.Debug().
		Str("pool", pool.address.Hex()).
		Str("amount0", used0.String()).
		Str("amount1", used1.String()).
		Str("liquidity", liquidity.String()).
		Msg("Full-range position minted")

	if flipped {
		used0, used1 = used1, used0
	}
	return &Deposit{UsedA: used0, UsedB: used1, Liquidity: liquidity}, nil
}

func (c *ConcentratedAMM) applyMint(pool *clPool, owner common.Address, liquidity, used0, used1 *big.Int) {
	prevLiquidity, prevR0, prevR1 := pool.liquidity, pool.reserve0, pool.reserve1
	prevPos, had := pool.positions[owner]

	pool.liquidity = new(big.Int).Add(prevLiquidity, liquidity)
	pool.reserve0 = new(big.Int).Add(prevR0, used0)
	pool.reserve1 = new(big.Int).Add(prevR1, used1)
	pool.positions[owner] = new(big.Int).Add(orZero(prevPos), liquidity)

	c.journal.Record(func() {
		pool.liquidity, pool.reserve0, pool.reserve1 = prevLiquidity, prevR0, prevR1
		if had {
			pool.positions[owner] = prevPos
		} else {
			delete(pool.positions, owner)
		}
	})
}

// Pool returns a pool view
func (c *ConcentratedAMM) Pool(addr common.Address) (PoolInfo, bool) {
	p, ok := c.pools[addr]
	if !ok {
		return PoolInfo{}, false
	}
	info := PoolInfo{
		Address:   p.address,
		Venue:     c.address,
		Kind:      domain.VenueConcentratedAMM,
		Token0:    p.token0,
		Token1:    p.token1,
		FeeTier:   p.fee,
		Reserve0:  domain.Copy(p.reserve0),
		Reserve1:  domain.Copy(p.reserve1),
		Liquidity: domain.Copy(p.liquidity),
		TickLower: p.tickLower,
		TickUpper: p.tickUpper,
	}
	if p.sqrtPriceX96 != nil {
		info.SqrtPriceX96 = domain.Copy(p.sqrtPriceX96)
	}
	return info, true
}

// Pools returns every pool sorted by address
func (c *ConcentratedAMM) Pools() []PoolInfo {
	out := make([]PoolInfo, 0, len(c.pools))
	for addr := range c.pools {
		info, _ := c.Pool(addr)
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address.Cmp(out[j].Address) < 0
	})
	return out
}

// LiquidityOf returns owner's full-range position
func (c *ConcentratedAMM) LiquidityOf(pool, owner common.Address) *big.Int {
	p, ok := c.pools[pool]
	if !ok {
		return new(big.Int)
	}
	return domain.Copy(p.positions[owner])
}
