// Package token provides the in-memory fungible token ledger used for both the
// base asset and launched tokens.
package token

import (
	"math/big"

	"github.com/aristath/launchpad/internal/domain"
	"github.com/aristath/launchpad/internal/state"
	"github.com/ethereum/go-ethereum/common"
)

// Hook is invoked after every balance movement. Returning an error aborts the transfer.
// Hooks model receive callbacks on hook-bearing tokens and are the reentrancy vector
// the engine defends against.
type Hook func(from, to common.Address, amount *big.Int) error

// Config describes a token at creation time
type Config struct {
	Address common.Address
	Name    string
	Symbol  string
	Supply  *big.Int
	Holder  common.Address
	// GraduationAuthority is the only caller allowed to flip the graduation switch.
	// Zero means the token can never graduate (base assets).
	GraduationAuthority common.Address
}

// Token is a fungible ledger with allowances and a one-way graduation switch
type Token struct {
	journal     *state.Journal
	address     common.Address
	name        string
	symbol      string
	totalSupply *big.Int
	balances    map[common.Address]*big.Int
	allowances  map[common.Address]map[common.Address]*big.Int
	hook        Hook

	graduationAuthority common.Address
	graduated           bool
	venuePools          []common.Address
}

var _ domain.GraduatableLedger = (*Token)(nil)

// New creates a token with its whole supply credited to cfg.Holder
func New(journal *state.Journal, cfg Config) (*Token, error) {
	if cfg.Address == (common.Address{}) || cfg.Holder == (common.Address{}) {
		return nil, domain.ErrZeroAddress
	}
	if !domain.IsPositive(cfg.Supply) {
		return nil, domain.Errorf(domain.ErrZeroAmount, "supply")
	}
	t := &Token{
		journal:             journal,
		address:             cfg.Address,
		name:                cfg.Name,
		symbol:              cfg.Symbol,
		totalSupply:         new(big.Int).Set(cfg.Supply),
		balances:            make(map[common.Address]*big.Int),
		allowances:          make(map[common.Address]map[common.Address]*big.Int),
		graduationAuthority: cfg.GraduationAuthority,
	}
	t.balances[cfg.Holder] = new(big.Int).Set(cfg.Supply)
	return t, nil
}

// SetHook installs a transfer hook
func (t *Token) SetHook(h Hook) {
	t.hook = h
}

func (t *Token) Address() common.Address { return t.address }
func (t *Token) Name() string            { return t.name }
func (t *Token) Symbol() string          { return t.symbol }

// TotalSupply returns the fixed supply
func (t *Token) TotalSupply() *big.Int {
	return new(big.Int).Set(t.totalSupply)
}

// BalanceOf returns account's balance
func (t *Token) BalanceOf(account common.Address) *big.Int {
	return domain.Copy(t.balances[account])
}

// Allowance returns how much spender may move from owner
func (t *Token) Allowance(owner, spender common.Address) *big.Int {
	if m, ok := t.allowances[owner]; ok {
		return domain.Copy(m[spender])
	}
	return new(big.Int)
}

// Transfer moves amount from caller to `to`
func (t *Token) Transfer(caller, to common.Address, amount *big.Int) error {
	return t.move(caller, to, amount)
}

// TransferFrom moves amount from `from` to `to`, spending caller's allowance
// unless caller is `from`
func (t *Token) TransferFrom(caller, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return domain.ErrZeroAmount
	}
	if caller != from {
		allowed := t.Allowance(from, caller)
		if allowed.Cmp(amount) < 0 {
			return domain.Errorf(domain.ErrInsufficientAllowance, "%s: %s < %s", t.symbol, allowed, amount)
		}
		t.setAllowance(from, caller, new(big.Int).Sub(allowed, amount))
	}
	return t.move(from, to, amount)
}

// Approve sets spender's allowance over caller's balance
func (t *Token) Approve(caller, spender common.Address, amount *big.Int) error {
	if spender == (common.Address{}) {
		return domain.ErrZeroAddress
	}
	if amount == nil || amount.Sign() < 0 {
		return domain.Errorf(domain.ErrInvalidParameter, "allowance")
	}
	t.setAllowance(caller, spender, amount)
	return nil
}

// Graduated reports whether the one-way switch has been flipped
func (t *Token) Graduated() bool {
	return t.graduated
}

// VenuePools returns the pools recorded at graduation
func (t *Token) VenuePools() []common.Address {
	out := make([]common.Address, len(t.venuePools))
	copy(out, t.venuePools)
	return out
}

// Graduate flips the switch. Only the graduation authority may call it, once.
func (t *Token) Graduate(caller common.Address, venuePools []common.Address) error {
	if t.graduationAuthority == (common.Address{}) || caller != t.graduationAuthority {
		return domain.Errorf(domain.ErrUnauthorized, "graduate %s", t.symbol)
	}
	if t.graduated {
		return domain.ErrAlreadyGraduated
	}
	if len(venuePools) == 0 {
		return domain.Errorf(domain.ErrInvalidParameter, "no venue pools")
	}

	prevPools := t.venuePools
	t.graduated = true
	t.venuePools = append([]common.Address(nil), venuePools...)
	t.journal.Record(func() {
		t.graduated = false
		t.venuePools = prevPools
	})
	return nil
}

func (t *Token) move(from, to common.Address, amount *big.Int) error {
	if to == (common.Address{}) {
		return domain.Errorf(domain.ErrZeroAddress, "%s transfer recipient", t.symbol)
	}
	if amount == nil || amount.Sign() < 0 {
		return domain.ErrZeroAmount
	}
	fromBal := t.BalanceOf(from)
	if fromBal.Cmp(amount) < 0 {
		return domain.Errorf(domain.ErrInsufficientBalance, "%s %s: %s < %s", t.symbol, from.Hex(), fromBal, amount)
	}
	if amount.Sign() == 0 {
		return nil
	}
	t.setBalance(from, new(big.Int).Sub(fromBal, amount))
	t.setBalance(to, new(big.Int).Add(t.BalanceOf(to), amount))

	if t.hook != nil {
		return t.hook(from, to, new(big.Int).Set(amount))
	}
	return nil
}

func (t *Token) setBalance(account common.Address, v *big.Int) {
	prev, had := t.balances[account]
	t.balances[account] = v
	t.journal.Record(func() {
		if had {
			t.balances[account] = prev
		} else {
			delete(t.balances, account)
		}
	})
}

func (t *Token) setAllowance(owner, spender common.Address, v *big.Int) {
	m, ok := t.allowances[owner]
	if !ok {
		m = make(map[common.Address]*big.Int)
		t.allowances[owner] = m
	}
	prev, had := m[spender]
	m[spender] = new(big.Int).Set(v)
	t.journal.Record(func() {
		if had {
			m[spender] = prev
		} else {
			delete(m, spender)
		}
	})
}
