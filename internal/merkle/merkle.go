// Package merkle builds the snapshot Merkle tree (spec §4.2, component C2):
// deterministic tree construction over ordered leaves with odd-node
// promotion, inclusion-proof generation, and winner-by-cumulative-range
// lookup.
package merkle

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/danvaneijck/chance-staking-operator/internal/errs"
)

// Tree is a built Merkle tree over an ordered, non-empty leaf sequence.
// Levels[0] is the leaf level; the last level holds exactly the root.
type Tree struct {
	Levels [][][32]byte
	Root   [32]byte
}

// NodeHasher computes the domain-separated internal-node hash of two
// children. Injected so this package has no dependency on the hashing
// implementation (crypto.NodeHash satisfies it).
type NodeHasher func(a, b [32]byte) [32]byte

// Build constructs a Merkle tree over leaves (already in the caller's
// canonical order — address-sorted, per spec §4.3). Within a level, adjacent
// leaves are paired and hashed with hasher; a trailing odd leaf is promoted
// unchanged to the next level rather than duplicated.
func Build(leaves [][32]byte, hasher NodeHasher) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, fmt.Errorf("%w: EMPTY_SNAPSHOT", errs.Protocol)
	}

	levels := [][][32]byte{leaves}
	current := leaves
	for len(current) > 1 {
		next := make([][32]byte, 0, (len(current)+1)/2)
		i := 0
		for ; i+1 < len(current); i += 2 {
			next = append(next, hasher(current[i], current[i+1]))
		}
		if i < len(current) {
			// Odd trailing element promoted unchanged.
			next = append(next, current[i])
		}
		levels = append(levels, next)
		current = next
	}

	return &Tree{
		Levels: levels,
		Root:   current[0],
	}, nil
}

// Proof returns the sibling hashes on the path from the leaf at index up to
// the root. When the node at a level is the odd element promoted unchanged,
// no sibling is recorded for that level (spec §4.2).
func (t *Tree) Proof(index int) ([][32]byte, error) {
	if index < 0 || index >= len(t.Levels[0]) {
		return nil, fmt.Errorf("%w: leaf index %d out of range", errs.Protocol, index)
	}

	var proof [][32]byte
	idx := index
	for level := 0; level < len(t.Levels)-1; level++ {
		nodes := t.Levels[level]
		isRight := idx%2 == 1
		var siblingIdx int
		if isRight {
			siblingIdx = idx - 1
		} else {
			siblingIdx = idx + 1
		}
		if siblingIdx < len(nodes) {
			proof = append(proof, nodes[siblingIdx])
		}
		// else: idx was the odd promoted element, no sibling this level.
		idx = idx / 2
	}
	return proof, nil
}

// FindWinnerIndex returns the index i such that starts[i] <= ticket <
// ends[i]. starts/ends must describe contiguous, ascending half-open ranges
// (spec §3's SnapshotEntry invariants). Implemented as a binary search since
// the ranges are sorted and contiguous.
func FindWinnerIndex(starts, ends []*uint256.Int, ticket *uint256.Int) (int, error) {
	lo, hi := 0, len(starts)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		switch {
		case ticket.Cmp(starts[mid]) < 0:
			hi = mid - 1
		case ticket.Cmp(ends[mid]) >= 0:
			lo = mid + 1
		default:
			return mid, nil
		}
	}
	return 0, fmt.Errorf("%w: NO_WINNER", errs.Protocol)
}

// Verify recomputes the root from a leaf hash and its proof and compares it
// to root, using hasher for internal-node combination. Used by tests and by
// any caller wanting to sanity-check a proof before submitting it on-chain.
func Verify(leaf [32]byte, proof [][32]byte, root [32]byte, hasher NodeHasher) bool {
	current := leaf
	for _, sibling := range proof {
		current = hasher(current, sibling)
	}
	return current == root
}
