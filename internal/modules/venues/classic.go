package venues

import (
	"math/big"

	"github.com/aristath/launchpad/internal/domain"
	"github.com/aristath/launchpad/internal/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// ClassicFee is the fixed swap fee of classic pairs, in hundredths of a bip
const ClassicFee uint32 = 3000

// ClassicAMM is a constant-product pair venue. Pairs carry one fixed fee, so the
// fee tier of a create call is ignored.
type ClassicAMM struct {
	book *pairBook
}

// NewClassicAMM creates a classic venue whose factory lives at address
func NewClassicAMM(journal *state.Journal, ledgers domain.LedgerResolver, address common.Address, log zerolog.Logger) *ClassicAMM {
	feeFor := func(bool) uint32 { return ClassicFee }
	return &ClassicAMM{
		book: newPairBook(journal, ledgers, address, domain.VenueClassicAMM, feeFor,
			log.With().Str("venue", "classic_amm").Str("factory", address.Hex()).Logger()),
	}
}

// Kind returns domain.VenueClassicAMM
func (c *ClassicAMM) Kind() domain.VenueKind { return domain.VenueClassicAMM }

// Address returns the factory address
func (c *ClassicAMM) Address() common.Address { return c.book.venue }

// CreateOrGetPool returns the pair for tokenA/tokenB, creating it when absent
func (c *ClassicAMM) CreateOrGetPool(caller, tokenA, tokenB common.Address, _ uint32) (common.Address, bool, error) {
	return c.book.createOrGet(caller, tokenA, tokenB, false)
}

// AddLiquidity deposits two-sided liquidity at the pair's current ratio
func (c *ClassicAMM) AddLiquidity(p LiquidityParams) (*Deposit, error) {
	return c.book.addLiquidity(p)
}

// Pool returns a pair view
func (c *ClassicAMM) Pool(addr common.Address) (PoolInfo, bool) { return c.book.pool(addr) }

// Pools returns every pair sorted by address
func (c *ClassicAMM) Pools() []PoolInfo { return c.book.all() }

// LiquidityOf returns owner's pair shares
func (c *ClassicAMM) LiquidityOf(pool, owner common.Address) *big.Int {
	return c.book.liquidityOf(pool, owner)
}
