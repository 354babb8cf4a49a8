package airdrop

import (
	"bytes"
	"math/big"

	"github.com/aristath/launchpad/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Leaf is one claimant's entitlement
type Leaf struct {
	Index   uint64         `json:"index" yaml:"index"`
	Account common.Address `json:"account" yaml:"account"`
	Amount  *big.Int       `json:"amount" yaml:"amount"`
}

// LeafHash is keccak256(uint256 index ‖ address account ‖ uint256 amount)
func LeafHash(index uint64, account common.Address, amount *big.Int) common.Hash {
	data := make([]byte, 0, 32+common.AddressLength+32)
	data = append(data, common.LeftPadBytes(new(big.Int).SetUint64(index).Bytes(), 32)...)
	data = append(data, account.Bytes()...)
	data = append(data, common.LeftPadBytes(domain.Copy(amount).Bytes(), 32)...)
	return crypto.Keccak256Hash(data)
}

// hashPair hashes two nodes in sorted order so proofs carry no direction bits
func hashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(a.Bytes(), b.Bytes())
}

// Tree is a merkle tree over leaves in index order. An unpaired node is
// promoted to the next level unchanged.
type Tree struct {
	leaves []Leaf
	levels [][]common.Hash
	total  *big.Int
}

// BuildTree hashes leaves into a tree. Indexes must run 0..n-1 without gaps.
func BuildTree(leaves []Leaf) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, domain.Errorf(domain.ErrInvalidParameter, "no claimants")
	}
	ordered := make([]Leaf, len(leaves))
	total := new(big.Int)
	for _, l := range leaves {
		if l.Index >= uint64(len(leaves)) {
			return nil, domain.Errorf(domain.ErrInvalidParameter, "index %d out of range for %d claimants", l.Index, len(leaves))
		}
		if ordered[l.Index].Amount != nil {
			return nil, domain.Errorf(domain.ErrInvalidParameter, "duplicate index %d", l.Index)
		}
		if l.Account == (common.Address{}) {
			return nil, domain.Errorf(domain.ErrZeroAddress, "claimant %d", l.Index)
		}
		if !domain.IsPositive(l.Amount) {
			return nil, domain.Errorf(domain.ErrZeroAmount, "claimant %d", l.Index)
		}
		ordered[l.Index] = Leaf{Index: l.Index, Account: l.Account, Amount: domain.Copy(l.Amount)}
		total.Add(total, l.Amount)
	}

	level := make([]common.Hash, len(ordered))
	for i, l := range ordered {
		level[i] = LeafHash(l.Index, l.Account, l.Amount)
	}
	levels := [][]common.Hash{level}
	for len(level) > 1 {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, hashPair(level[i], level[i+1]))
			} else {
				next = append(next, level[i])
			}
		}
		levels = append(levels, next)
		level = next
	}
	return &Tree{leaves: ordered, levels: levels, total: total}, nil
}

// Root returns the merkle root
func (t *Tree) Root() common.Hash {
	return t.levels[len(t.levels)-1][0]
}

// Count returns the number of claimants
func (t *Tree) Count() uint64 {
	return uint64(len(t.leaves))
}

// Total returns the sum of every entitlement
func (t *Tree) Total() *big.Int {
	return domain.Copy(t.total)
}

// Leaf returns the leaf at index
func (t *Tree) Leaf(index uint64) (Leaf, bool) {
	if index >= uint64(len(t.leaves)) {
		return Leaf{}, false
	}
	l := t.leaves[index]
	return Leaf{Index: l.Index, Account: l.Account, Amount: domain.Copy(l.Amount)}, true
}

// Proof returns the sibling path from leaf index to the root
func (t *Tree) Proof(index uint64) ([]common.Hash, error) {
	if index >= uint64(len(t.leaves)) {
		return nil, domain.Errorf(domain.ErrInvalidParameter, "index %d out of range", index)
	}
	var proof []common.Hash
	idx := int(index)
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := idx ^ 1
		if sibling < len(level) {
			proof = append(proof, level[sibling])
		}
		idx /= 2
	}
	return proof, nil
}

// VerifyProof reports whether proof links leaf to root
func VerifyProof(proof []common.Hash, root, leaf common.Hash) bool {
	computed := leaf
	for _, p := range proof {
		computed = hashPair(computed, p)
	}
	return computed == root
}
