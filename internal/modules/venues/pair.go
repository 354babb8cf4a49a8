package venues

import (
	"math/big"
	"sort"

	"github.com/aristath/launchpad/internal/domain"
	"github.com/aristath/launchpad/internal/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// MinimumLiquidity is locked forever on the first deposit into a pair
var MinimumLiquidity = big.NewInt(1000)

// deadShares holds the locked minimum liquidity
var deadShares = common.HexToAddress("0x000000000000000000000000000000000000dEaD")

type pairKey struct {
	token0 common.Address
	token1 common.Address
	stable bool
}

type pair struct {
	address     common.Address
	token0      common.Address
	token1      common.Address
	stable      bool
	fee         uint32
	reserve0    *big.Int
	reserve1    *big.Int
	totalSupply *big.Int
	shares      map[common.Address]*big.Int
}

// pairBook is the constant-product pair factory shared by the classic and
// Solidly venues
type pairBook struct {
	journal *state.Journal
	ledgers domain.LedgerResolver
	venue   common.Address
	kind    domain.VenueKind
	feeFor  func(stable bool) uint32
	guard   state.Guard
	pairs   map[common.Address]*pair
	index   map[pairKey]common.Address
	log     zerolog.Logger
}

func newPairBook(journal *state.Journal, ledgers domain.LedgerResolver, venue common.Address, kind domain.VenueKind, feeFor func(bool) uint32, log zerolog.Logger) *pairBook {
	return &pairBook{
		journal: journal,
		ledgers: ledgers,
		venue:   venue,
		kind:    kind,
		feeFor:  feeFor,
		pairs:   make(map[common.Address]*pair),
		index:   make(map[pairKey]common.Address),
		log:     log,
	}
}

func (b *pairBook) createOrGet(caller, tokenA, tokenB common.Address, stable bool) (common.Address, bool, error) {
	release, err := b.guard.Enter()
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

	token0, token1 := domain.SortTokens(tokenA, tokenB)
	key := pairKey{token0: token0, token1: token1, stable: stable}
	if addr, ok := b.index[key]; ok {
		return addr, false, nil
	}

	fee := b.feeFor(stable)
	addr := poolAddress(b.venue, b.kind, token0, token1, fee, stable)
	b.pairs[addr] = &pair{
		address:     addr,
		token0:      token0,
		token1:      token1,
		stable:      stable,
		fee:         fee,
		reserve0:    new(big.Int),
		reserve1:    new(big.Int),
		totalSupply: new(big.Int),
		shares:      make(map[common.Address]*big.Int),
	}
	b.index[key] = addr
	b.journal.Record(func() {
		delete(b.pairs, addr)
		delete(b.index, key)
	})

	b.log.Debug().
		Str("pair", addr.Hex()).
		Str("token0", token0.Hex()).
		Str("token1", token1.Hex()).
		Bool("stable", stable).
		Msg("Pair created")
	return addr, true, nil
}

func (b *pairBook) addLiquidity(p LiquidityParams) (*Deposit, error) {
	release, err := b.guard.Enter()
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
	pr, ok := b.pairs[p.Pool]
	if !ok {
		return nil, domain.Errorf(domain.ErrPoolNotFound, "pair %s", p.Pool.Hex())
	}

	flipped := p.TokenA != pr.token0
	if (!flipped && p.TokenB != pr.token1) || (flipped && (p.TokenA != pr.token1 || p.TokenB != pr.token0)) {
		return nil, domain.Errorf(domain.ErrInvalidPath, "pair %s does not hold these tokens", p.Pool.Hex())
	}
	desired0, desired1 := orZero(p.AmountA), orZero(p.AmountB)
	min0, min1 := orZero(p.MinA), orZero(p.MinB)
	if flipped {
		desired0, desired1 = desired1, desired0
		min0, min1 = min1, min0
	}
	if desired0.Sign() <= 0 || desired1.Sign() <= 0 {
		return nil, domain.ErrZeroAmount
	}

	used0, used1, err := optimalAmounts(pr.reserve0, pr.reserve1, desired0, desired1, min0, min1)
	if err != nil {
		return nil, err
	}

	var liquidity *big.Int
	lockMinimum := pr.totalSupply.Sign() == 0
	if lockMinimum {
		liquidity = new(big.Int).Sqrt(new(big.Int).Mul(used0, used1))
		liquidity.Sub(liquidity, MinimumLiquidity)
	} else {
		l0 := domain.MulDiv(used0, pr.totalSupply, pr.reserve0)
		l1 := domain.MulDiv(used1, pr.totalSupply, pr.reserve1)
		liquidity = l0
		if l1.Cmp(l0) < 0 {
			liquidity = l1
		}
	}
	if liquidity.Sign() <= 0 {
		return nil, domain.Errorf(domain.ErrInsufficientLiquidity, "minted %s", liquidity)
	}

	b.setReserves(pr, new(big.Int).Add(pr.reserve0, used0), new(big.Int).Add(pr.reserve1, used1))
	if lockMinimum {
		b.credit(pr, deadShares, MinimumLiquidity)
	}
	b.credit(pr, p.To, liquidity)

	if err := pull(b.ledgers, b.venue, pr.token0, p.Caller, pr.address, used0); err != nil {
		return nil, err
	}
	if err := pull(b.ledgers, b.venue, pr.token1, p.Caller, pr.address, used1); err != nil {
		return nil, err
	}

	b.log.Debug().
		Str("pair", pr.address.Hex()).
		Str("amount0", used0.String()).
		Str("amount1", used1.String()).
		Str("liquidity", liquidity.String()).
		Msg("Liquidity added")

	if flipped {
		used0, used1 = used1, used0
	}
	return &Deposit{UsedA: used0, UsedB: used1, Liquidity: liquidity}, nil
}

// optimalAmounts keeps an existing pair's price: it deposits all of one side and
// the matching amount of the other
func optimalAmounts(reserve0, reserve1, desired0, desired1, min0, min1 *big.Int) (*big.Int, *big.Int, error) {
	if reserve0.Sign() == 0 && reserve1.Sign() == 0 {
		return domain.Copy(desired0), domain.Copy(desired1), nil
	}
	optimal1 := domain.MulDiv(desired0, reserve1, reserve0)
	if optimal1.Cmp(desired1) <= 0 {
		if optimal1.Cmp(min1) < 0 {
			return nil, nil, domain.Errorf(domain.ErrInsufficientOutput, "token1 deposit %s below minimum %s", optimal1, min1)
		}
		return domain.Copy(desired0), optimal1, nil
	}
	optimal0 := domain.MulDiv(desired1, reserve0, reserve1)
	if optimal0.Cmp(min0) < 0 {
		return nil, nil, domain.Errorf(domain.ErrInsufficientOutput, "token0 deposit %s below minimum %s", optimal0, min0)
	}
	return optimal0, domain.Copy(desired1), nil
}

func (b *pairBook) setReserves(pr *pair, r0, r1 *big.Int) {
	prev0, prev1 := pr.reserve0, pr.reserve1
	pr.reserve0, pr.reserve1 = r0, r1
	b.journal.Record(func() {
		pr.reserve0, pr.reserve1 = prev0, prev1
	})
}

func (b *pairBook) credit(pr *pair, owner common.Address, amount *big.Int) {
	prevShare, had := pr.shares[owner]
	prevSupply := pr.totalSupply

	next := new(big.Int).Add(orZero(prevShare), amount)
	pr.shares[owner] = next
	pr.totalSupply = new(big.Int).Add(prevSupply, amount)

	b.journal.Record(func() {
		if had {
			pr.shares[owner] = prevShare
		} else {
			delete(pr.shares, owner)
		}
		pr.totalSupply = prevSupply
	})
}

func (b *pairBook) pool(addr common.Address) (PoolInfo, bool) {
	pr, ok := b.pairs[addr]
	if !ok {
		return PoolInfo{}, false
	}
	return PoolInfo{
		Address:   pr.address,
		Venue:     b.venue,
		Kind:      b.kind,
		Token0:    pr.token0,
		Token1:    pr.token1,
		FeeTier:   pr.fee,
		Stable:    pr.stable,
		Reserve0:  domain.Copy(pr.reserve0),
		Reserve1:  domain.Copy(pr.reserve1),
		Liquidity: domain.Copy(pr.totalSupply),
	}, true
}

func (b *pairBook) liquidityOf(pool, owner common.Address) *big.Int {
	pr, ok := b.pairs[pool]
	if !ok {
		return new(big.Int)
	}
	return domain.Copy(pr.shares[owner])
}

func (b *pairBook) all() []PoolInfo {
	out := make([]PoolInfo, 0, len(b.pairs))
	for addr := range b.pairs {
		info, _ := b.pool(addr)
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address.Cmp(out[j].Address) < 0
	})
	return out
}
