package venues

import (
	"math/big"

	"github.com/aristath/launchpad/internal/domain"
	"github.com/aristath/launchpad/internal/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// Solidly pair fees, in hundredths of a bip
const (
	SolidlyVolatileFee uint32 = 3000
	SolidlyStableFee   uint32 = 500
)

// SolidlyAMM is a pair venue keyed by (token0, token1, stable). Graduation
// always deploys to volatile pairs; stable pairs exist for other callers.
type SolidlyAMM struct {
	book *pairBook
}

// NewSolidlyAMM creates a Solidly-style venue whose factory lives at address
func NewSolidlyAMM(journal *state.Journal, ledgers domain.LedgerResolver, address common.Address, log zerolog.Logger) *SolidlyAMM {
	feeFor := func(stable bool) uint32 {
		if stable {
			return SolidlyStableFee
		}
		return SolidlyVolatileFee
	}
	return &SolidlyAMM{
		book: newPairBook(journal, ledgers, address, domain.VenueSolidlyAMM, feeFor,
			log.With().Str("venue", "solidly_amm").Str("factory", address.Hex()).Logger()),
	}
}

// Kind returns domain.VenueSolidlyAMM
func (s *SolidlyAMM) Kind() domain.VenueKind { return domain.VenueSolidlyAMM }

// Address returns the factory address
func (s *SolidlyAMM) Address() common.Address { return s.book.venue }

// CreateOrGetPool returns the volatile pair for tokenA/tokenB
func (s *SolidlyAMM) CreateOrGetPool(caller, tokenA, tokenB common.Address, _ uint32) (common.Address, bool, error) {
	return s.book.createOrGet(caller, tokenA, tokenB, false)
}

// CreateOrGetPair returns the pair in the requested mode
func (s *SolidlyAMM) CreateOrGetPair(caller, tokenA, tokenB common.Address, stable bool) (common.Address, bool, error) {
	return s.book.createOrGet(caller, tokenA, tokenB, stable)
}

// AddLiquidity deposits into a pair of either mode
func (s *SolidlyAMM) AddLiquidity(p LiquidityParams) (*Deposit, error) {
	return s.book.addLiquidity(p)
}

// Pool returns a pair view
func (s *SolidlyAMM) Pool(addr common.Address) (PoolInfo, bool) { return s.book.pool(addr) }

// Pools returns every pair sorted by address
func (s *SolidlyAMM) Pools() []PoolInfo { return s.book.all() }

// LiquidityOf returns owner's pair shares
func (s *SolidlyAMM) LiquidityOf(pool, owner common.Address) *big.Int {
	return s.book.liquidityOf(pool, owner)
}
