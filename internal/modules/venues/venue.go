// Package venues provides the external exchange adapters graduation liquidity is
// deployed to: a constant-product pair venue, a fee-tiered concentrated liquidity
// venue and a stable/volatile pair venue. Each adapter keeps an in-memory book of
// the pools it created, journaled so a failed graduation leaves no trace.
package venues

import (
	"encoding/binary"
	"math/big"

	"github.com/aristath/launchpad/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// LiquidityParams describes one liquidity deposit. Amounts are desired maxima;
// the adapter pulls what it uses from Caller, who must have approved the adapter.
type LiquidityParams struct {
	Caller  common.Address
	Pool    common.Address
	TokenA  common.Address
	TokenB  common.Address
	AmountA *big.Int
	AmountB *big.Int
	MinA    *big.Int
	MinB    *big.Int
	To      common.Address
}

// Deposit is what an adapter actually took for a liquidity call
type Deposit struct {
	UsedA     *big.Int
	UsedB     *big.Int
	Liquidity *big.Int
}

// PoolInfo is a read-only view of a venue pool
type PoolInfo struct {
	Address      common.Address   `json:"address"`
	Venue        common.Address   `json:"venue"`
	Kind         domain.VenueKind `json:"kind"`
	Token0       common.Address   `json:"token0"`
	Token1       common.Address   `json:"token1"`
	FeeTier      uint32           `json:"fee_tier"`
	Stable       bool             `json:"stable"`
	Reserve0     *big.Int         `json:"reserve0"`
	Reserve1     *big.Int         `json:"reserve1"`
	Liquidity    *big.Int         `json:"liquidity"`
	SqrtPriceX96 *big.Int         `json:"sqrt_price_x96,omitempty"`
	TickLower    int32            `json:"tick_lower,omitempty"`
	TickUpper    int32            `json:"tick_upper,omitempty"`
}

// Adapter is the surface the graduation coordinator drives
type Adapter interface {
	Kind() domain.VenueKind
	Address() common.Address

	// CreateOrGetPool returns the pool for the pair, creating it when absent
	CreateOrGetPool(caller, tokenA, tokenB common.Address, feeTier uint32) (pool common.Address, created bool, err error)

	// AddLiquidity deposits into an existing pool
	AddLiquidity(p LiquidityParams) (*Deposit, error)

	// Pool returns the view of a pool this venue created
	Pool(addr common.Address) (PoolInfo, bool)

	// LiquidityOf returns owner's position in a pool
	LiquidityOf(pool, owner common.Address) *big.Int
}

// ConcentratedAdapter is a venue whose pools need a starting price before the
// first position can be minted
type ConcentratedAdapter interface {
	Adapter

	// Initialized reports whether the pool has a price
	Initialized(pool common.Address) bool

	// Initialize sets the starting price of a freshly created pool
	Initialize(caller, pool common.Address, sqrtPriceX96 *big.Int) error

	// MintFullRange opens a position across the widest usable tick range
	MintFullRange(p LiquidityParams) (*Deposit, error)
}

// poolAddress derives a pool address the way pair factories do with CREATE2:
// keccak(0xff ++ factory ++ keccak(token0 ++ token1 ++ fee ++ stable) ++ initCodeHash)
func poolAddress(factory common.Address, kind domain.VenueKind, token0, token1 common.Address, fee uint32, stable bool) common.Address {
	var feeBytes [4]byte
	binary.BigEndian.PutUint32(feeBytes[:], fee)
	flag := []byte{0}
	if stable {
		flag[0] = 1
	}
	salt := crypto.Keccak256Hash(token0.Bytes(), token1.Bytes(), feeBytes[:], flag)
	initCodeHash := crypto.Keccak256([]byte(kind))
	return crypto.CreateAddress2(factory, salt, initCodeHash)
}

// checkPair validates the token pair of a create or deposit call
func checkPair(tokenA, tokenB common.Address) error {
	if tokenA == (common.Address{}) || tokenB == (common.Address{}) {
		return domain.ErrZeroAddress
	}
	if tokenA == tokenB {
		return domain.Errorf(domain.ErrInvalidPath, "identical tokens")
	}
	return nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// pull moves amount of a ledger from payer into the pool, spending the venue's allowance
func pull(ledgers domain.LedgerResolver, venue, token, payer, pool common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	ledger, ok := ledgers.Ledger(token)
	if !ok {
		return domain.Errorf(domain.ErrNotRegistered, "ledger %s", token.Hex())
	}
	return ledger.TransferFrom(venue, payer, pool, amount)
}
