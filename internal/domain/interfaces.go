package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger is the fungible-token surface the engine consumes.
// Implementations may carry transfer hooks, so callers must treat every
// transfer as a call into untrusted code.
type Ledger interface {
	Address() common.Address
	Symbol() string
	TotalSupply() *big.Int
	BalanceOf(account common.Address) *big.Int
	Allowance(owner, spender common.Address) *big.Int

	// Transfer moves amount from caller to `to`
	Transfer(caller, to common.Address, amount *big.Int) error

	// TransferFrom moves amount from `from` to `to`, spending caller's allowance
	TransferFrom(caller, from, to common.Address, amount *big.Int) error

	// Approve sets spender's allowance over caller's balance
	Approve(caller, spender common.Address, amount *big.Int) error
}

// LedgerResolver finds the ledger deployed at an address
type LedgerResolver interface {
	Ledger(addr common.Address) (Ledger, bool)
}

// GraduationFlag is the one-way switch a launched token exposes
type GraduationFlag interface {
	Graduated() bool
}

// GraduatableLedger is a launched token: a ledger with a one-way graduation switch
// that only its graduation authority can flip
type GraduatableLedger interface {
	Ledger
	GraduationFlag

	// Graduate flips the token into venue-trading mode, recording the venue pools
	Graduate(caller common.Address, venuePools []common.Address) error
}

// Clock abstracts time for deadline checks and timestamps
type Clock interface {
	Now() time.Time
}
