package token

import (
	"sort"

	"github.com/aristath/launchpad/internal/domain"
	"github.com/aristath/launchpad/internal/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Registry deploys tokens at deterministic addresses and looks them up.
// Addresses follow contract-creation derivation: keccak(rlp(deployer, nonce)).
type Registry struct {
	journal *state.Journal
	tokens  map[common.Address]*Token
	nonces  map[common.Address]uint64
}

// NewRegistry creates an empty registry
func NewRegistry(journal *state.Journal) *Registry {
	return &Registry{
		journal: journal,
		tokens:  make(map[common.Address]*Token),
		nonces:  make(map[common.Address]uint64),
	}
}

// NextAddress derives and reserves the next creation address for deployer.
// Pools and venue pairs use it too, so every deployed object gets a unique address.
func (r *Registry) NextAddress(deployer common.Address) common.Address {
	nonce := r.nonces[deployer]
	r.nonces[deployer] = nonce + 1
	r.journal.Record(func() { r.nonces[deployer] = nonce })
	return crypto.CreateAddress(deployer, nonce)
}

// Deploy creates a token at deployer's next address; cfg.Address is ignored
func (r *Registry) Deploy(deployer common.Address, cfg Config) (*Token, error) {
	if deployer == (common.Address{}) {
		return nil, domain.ErrZeroAddress
	}
	cfg.Address = r.NextAddress(deployer)
	return r.Add(cfg)
}

// Add creates a token at cfg.Address
func (r *Registry) Add(cfg Config) (*Token, error) {
	if _, exists := r.tokens[cfg.Address]; exists {
		return nil, domain.Errorf(domain.ErrAlreadyRegistered, "token %s", cfg.Address.Hex())
	}
	t, err := New(r.journal, cfg)
	if err != nil {
		return nil, err
	}
	r.tokens[cfg.Address] = t
	r.journal.Record(func() { delete(r.tokens, cfg.Address) })
	return t, nil
}

// Get returns the token deployed at addr
func (r *Registry) Get(addr common.Address) (*Token, bool) {
	t, ok := r.tokens[addr]
	return t, ok
}

// Ledger resolves any ledger known to the registry, including the base asset
func (r *Registry) Ledger(addr common.Address) (domain.Ledger, bool) {
	t, ok := r.tokens[addr]
	if !ok {
		return nil, false
	}
	return t, true
}

// All returns every token sorted by address
func (r *Registry) All() []*Token {
	out := make([]*Token, 0, len(r.tokens))
	for _, t := range r.tokens {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].address.Cmp(out[j].address) < 0
	})
	return out
}
