// Package airdrop distributes a launched token's airdrop slice to claimants
// proving membership in a merkle tree.
package airdrop

import (
	"math/big"
	"sort"
	"time"

	"github.com/aristath/launchpad/internal/domain"
	"github.com/aristath/launchpad/internal/events"
	"github.com/aristath/launchpad/internal/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// Config holds the distributor's identity and capabilities
type Config struct {
	// Address holds every registered airdrop's tokens
	Address  common.Address
	Admin    common.Address
	Launcher common.Address
}

// Drop is one token's registered airdrop
type Drop struct {
	Token         common.Address `json:"token"`
	MerkleRoot    common.Hash    `json:"merkle_root"`
	ClaimantCount uint64         `json:"claimant_count"`
	Amount        *big.Int       `json:"amount"`
	Claimed       *big.Int       `json:"claimed"`
	ClaimedCount  uint64         `json:"claimed_count"`
	RegisteredAt  time.Time      `json:"registered_at"`
}

type drop struct {
	Drop
	claimed map[uint64]bool
}

// Distributor holds airdropped supply until claimants prove their entitlement
type Distributor struct {
	journal *state.Journal
	ledgers domain.LedgerResolver
	clock   domain.Clock
	emitter events.Emitter
	cfg     Config
	guard   state.Guard
	drops   map[common.Address]*drop
	log     zerolog.Logger
}

// NewDistributor creates a distributor
func NewDistributor(journal *state.Journal, ledgers domain.LedgerResolver, clock domain.Clock, emitter events.Emitter, cfg Config, log zerolog.Logger) (*Distributor, error) {
	if cfg.Address == (common.Address{}) || cfg.Admin == (common.Address{}) {
		return nil, domain.Errorf(domain.ErrZeroAddress, "distributor and admin addresses are required")
	}
	if ledgers == nil {
		return nil, domain.Errorf(domain.ErrInvalidParameter, "ledgers are required")
	}
	return &Distributor{
		journal: journal,
		ledgers: ledgers,
		clock:   clock,
		emitter: emitter,
		cfg:     cfg,
		drops:   make(map[common.Address]*drop),
		log:     log.With().Str("service", "airdrop").Logger(),
	}, nil
}

// Address returns the account that holds airdropped tokens
func (d *Distributor) Address() common.Address { return d.cfg.Address }

// SetLauncher fills in the launcher capability known only after wiring
func (d *Distributor) SetLauncher(launcher common.Address) {
	d.cfg.Launcher = launcher
}

// Register opens token's airdrop. The distributor must already hold amount of token.
// Launcher or admin only, once per token.
func (d *Distributor) Register(caller, token common.Address, merkleRoot common.Hash, claimantCount uint64, amount *big.Int) error {
	if caller != d.cfg.Launcher && caller != d.cfg.Admin {
		return domain.Errorf(domain.ErrUnauthorized, "register airdrop by %s", caller.Hex())
	}
	if token == (common.Address{}) {
		return domain.Errorf(domain.ErrZeroAddress, "airdrop token")
	}
	if merkleRoot == (common.Hash{}) || claimantCount == 0 {
		return domain.Errorf(domain.ErrInvalidParameter, "airdrop needs a merkle root and claimants")
	}
	if !domain.IsPositive(amount) {
		return domain.Errorf(domain.ErrZeroAmount, "airdrop amount")
	}
	if _, exists := d.drops[token]; exists {
		return domain.Errorf(domain.ErrAlreadyRegistered, "airdrop for %s", token.Hex())
	}
	ledger, ok := d.ledgers.Ledger(token)
	if !ok {
		return domain.Errorf(domain.ErrNotRegistered, "ledger %s", token.Hex())
	}
	if held := ledger.BalanceOf(d.cfg.Address); held.Cmp(amount) < 0 {
		return domain.Errorf(domain.ErrInsufficientBalance, "distributor holds %s of %s", held, amount)
	}

	d.drops[token] = &drop{
		Drop: Drop{
			Token:         token,
			MerkleRoot:    merkleRoot,
			ClaimantCount: claimantCount,
			Amount:        domain.Copy(amount),
			Claimed:       new(big.Int),
			RegisteredAt:  d.clock.Now(),
		},
		claimed: make(map[uint64]bool),
	}
	d.journal.Record(func() { delete(d.drops, token) })

	data := &events.AirdropRegisteredData{
		Token:         token.Hex(),
		MerkleRoot:    merkleRoot.Hex(),
		ClaimantCount: claimantCount,
		Amount:        amount.String(),
	}
	d.journal.OnCommit(func() { d.emit(events.AirdropRegistered, data) })

	d.log.Info().
		Str("token", token.Hex()).
		Str("merkle_root", merkleRoot.Hex()).
		Uint64("claimants", claimantCount).
		Str("amount", amount.String()).
		Msg("Airdrop registered")
	return nil
}

// IsClaimed reports whether index has claimed token's airdrop
func (d *Distributor) IsClaimed(token common.Address, index uint64) bool {
	dr, ok := d.drops[token]
	return ok && dr.claimed[index]
}

// Claim pays account its entitlement at index. Anyone may submit a claim; tokens
// always go to the account in the leaf.
func (d *Distributor) Claim(token common.Address, index uint64, account common.Address, amount *big.Int, proof []common.Hash) error {
	release, err := d.guard.Enter()
	if err != nil {
		return err
	}
	defer release()

	dr, ok := d.drops[token]
	if !ok {
		return domain.Errorf(domain.ErrNotRegistered, "airdrop for %s", token.Hex())
	}
	if account == (common.Address{}) {
		return domain.Errorf(domain.ErrZeroAddress, "claim account")
	}
	if !domain.IsPositive(amount) {
		return domain.Errorf(domain.ErrZeroAmount, "claim amount")
	}
	if index >= dr.ClaimantCount {
		return domain.Errorf(domain.ErrInvalidProof, "index %d out of range", index)
	}
	if dr.claimed[index] {
		return domain.Errorf(domain.ErrAlreadyClaimed, "index %d", index)
	}
	if !VerifyProof(proof, dr.MerkleRoot, LeafHash(index, account, amount)) {
		return domain.Errorf(domain.ErrInvalidProof, "index %d", index)
	}
	claimedAfter := new(big.Int).Add(dr.Claimed, amount)
	if claimedAfter.Cmp(dr.Amount) > 0 {
		return domain.Errorf(domain.ErrInsufficientBalance, "claims would exceed airdrop of %s", dr.Amount)
	}

	// claimed before the transfer
	prevClaimed := dr.Claimed
	dr.claimed[index] = true
	dr.Claimed = claimedAfter
	dr.ClaimedCount++
	d.journal.Record(func() {
		delete(dr.claimed, index)
		dr.Claimed = prevClaimed
		dr.ClaimedCount--
	})

	ledger, ok := d.ledgers.Ledger(token)
	if !ok {
		return domain.Errorf(domain.ErrNotRegistered, "ledger %s", token.Hex())
	}
	if err := ledger.Transfer(d.cfg.Address, account, amount); err != nil {
		return err
	}

	data := &events.AirdropClaimedData{
		Token:   token.Hex(),
		Index:   index,
		Account: account.Hex(),
		Amount:  amount.String(),
	}
	d.journal.OnCommit(func() { d.emit(events.AirdropClaimed, data) })

	d.log.Debug().
		Str("token", token.Hex()).
		Uint64("index", index).
		Str("account", account.Hex()).
		Str("amount", amount.String()).
		Msg("Airdrop claimed")
	return nil
}

// Drop returns a copy of token's airdrop
func (d *Distributor) Drop(token common.Address) (Drop, bool) {
	dr, ok := d.drops[token]
	if !ok {
		return Drop{}, false
	}
	return dr.view(), true
}

// Drops returns copies of every airdrop ordered by token
func (d *Distributor) Drops() []Drop {
	out := make([]Drop, 0, len(d.drops))
	for _, dr := range d.drops {
		out = append(out, dr.view())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Token.Cmp(out[j].Token) < 0
	})
	return out
}

func (dr *drop) view() Drop {
	out := dr.Drop
	out.Amount = domain.Copy(dr.Amount)
	out.Claimed = domain.Copy(dr.Claimed)
	return out
}

func (d *Distributor) emit(t events.EventType, data events.EventData) {
	if d.emitter != nil {
		d.emitter.EmitTyped(t, "airdrop", data)
	}
}
