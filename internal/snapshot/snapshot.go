// Package snapshot builds a deterministic, address-ordered holder snapshot
// with cumulative weight ranges and a Merkle commitment (spec §4.3,
// component C3).
package snapshot

import (
	"context"
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"github.com/danvaneijck/chance-staking-operator/internal/crypto"
	"github.com/danvaneijck/chance-staking-operator/internal/errs"
	"github.com/danvaneijck/chance-staking-operator/internal/merkle"
)

// DenomHolder is a single token holder as read from the bank module (spec
// §3). Zero balances must never appear here; callers filter them before
// constructing a DenomHolder or Build silently drops them.
type DenomHolder struct {
	Address string
	Balance *uint256.Int
}

// SnapshotEntry is one eligible holder's cumulative weight range (spec §3).
type SnapshotEntry struct {
	Address         string
	Balance         *uint256.Int
	CumulativeStart *uint256.Int
	CumulativeEnd   *uint256.Int
}

// Snapshot is the in-memory result of Build: the full entry list, its
// Merkle root, and the total weight (spec §3).
type Snapshot struct {
	Entries     []SnapshotEntry
	MerkleRoot  [32]byte
	TotalWeight *uint256.Int
}

// HolderPage is one page of a paginated holder enumeration.
type HolderPage struct {
	Holders []DenomHolder
	NextKey []byte
}

// HolderSource enumerates a token's holder set page by page. key is the
// opaque pagination token from the previous page's NextKey; pass nil for
// the first page. Implementations query the chain's bank module.
type HolderSource interface {
	Holders(ctx context.Context, denom string, key []byte) (HolderPage, error)
}

// EligibilityFilter optionally excludes a holder from the snapshot (spec
// §4.3's pluggable eligibility predicate, e.g. a minimum stake-age check).
// A nil filter includes every non-zero-balance holder.
type EligibilityFilter func(ctx context.Context, holder DenomHolder) (bool, error)

// Build enumerates every holder of denom via source, applies filter (if
// non-nil), sorts the remainder by address using byte-wise lexicographic
// order, assigns contiguous cumulative ranges, and commits the result to a
// Merkle tree. Two invocations over the same holder multiset always produce
// identical entries, root, and proofs regardless of page/arrival order
// (spec §8 property 2).
func Build(ctx context.Context, source HolderSource, denom string, filter EligibilityFilter) (*Snapshot, error) {
	var holders []DenomHolder

	var key []byte
	for {
		page, err := source.Holders(ctx, denom, key)
		if err != nil {
			return nil, fmt.Errorf("%w: holders query: %v", errs.Transport, err)
		}
		for _, h := range page.Holders {
			if h.Balance == nil || h.Balance.IsZero() {
				continue
			}
			if filter != nil {
				ok, err := filter(ctx, h)
				if err != nil {
					return nil, fmt.Errorf("%w: eligibility filter: %v", errs.Transport, err)
				}
				if !ok {
					continue
				}
			}
			holders = append(holders, h)
		}
		if len(page.NextKey) == 0 {
			break
		}
		key = page.NextKey
	}

	if len(holders) == 0 {
		return nil, fmt.Errorf("%w: EMPTY_SNAPSHOT", errs.Protocol)
	}

	sort.Slice(holders, func(i, j int) bool {
		return holders[i].Address < holders[j].Address
	})

	entries := make([]SnapshotEntry, len(holders))
	leaves := make([][32]byte, len(holders))
	cursor := new(uint256.Int)
	for i, h := range holders {
		start := new(uint256.Int).Set(cursor)
		end := new(uint256.Int).Add(start, h.Balance)
		entries[i] = SnapshotEntry{
			Address:         h.Address,
			Balance:         h.Balance,
			CumulativeStart: start,
			CumulativeEnd:   end,
		}
		leaves[i] = crypto.LeafHash(h.Address, start, end)
		cursor = end
	}

	tree, err := merkle.Build(leaves, crypto.NodeHash)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Entries:     entries,
		MerkleRoot:  tree.Root,
		TotalWeight: cursor,
	}, nil
}

// CumulativeSlices splits a snapshot's entries into parallel start/end
// slices, the shape merkle.FindWinnerIndex expects.
func (s *Snapshot) CumulativeSlices() (starts, ends []*uint256.Int) {
	starts = make([]*uint256.Int, len(s.Entries))
	ends = make([]*uint256.Int, len(s.Entries))
	for i, e := range s.Entries {
		starts[i] = e.CumulativeStart
		ends[i] = e.CumulativeEnd
	}
	return starts, ends
}
