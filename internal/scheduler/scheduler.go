// Package scheduler implements BlockScheduler: the rarest-unassigned,
// least-index block selection policy described in spec.md §4.6, including
// its endgame fallback.
package scheduler

import "github.com/bits-and-blooms/bitset"

// Kind distinguishes the three possible scheduler outcomes.
type Kind int

const (
	// Complete means the local bitmap already has every block.
	Complete Kind = iota
	// PeerHasNothing means the peer holds nothing the local side lacks.
	PeerHasNothing
	// Index means block i was selected; see Decision.Endgame for whether
	// this was a fresh (non-endgame) assignment or an endgame duplicate.
	Index
)

// Decision is the result of one selectBlock call.
type Decision struct {
	Kind    Kind
	Block   uint
	Endgame bool
}

// Select implements selectBlock(local, peer, assigned) from spec.md §4.6.
//
// numBlocks is the transfer's total block count (needed to detect
// Complete, since an empty local bitmap and a zero-block transfer are
// both "nothing set" but only the latter is Complete).
//
// assign is called exactly once, with the transfer's guard held, if and
// only if a fresh (non-endgame) block is selected — this is what keeps
// the read of local/assigned and the write to assigned atomic, per the
// spec's requirement that the pairing happen "under the same guard".
func Select(local, peer, assigned *bitset.BitSet, numBlocks uint, assign func(i uint)) Decision {
	if local.Count() >= numBlocks {
		return Decision{Kind: Complete}
	}

	// peer \ local
	peerMinusLocal := peer.Difference(local)
	if peerMinusLocal.None() {
		return Decision{Kind: PeerHasNothing}
	}

	// (peer \ local) \ assigned
	unassigned := peerMinusLocal.Difference(assigned)
	if i, ok := unassigned.NextSet(0); ok {
		if assign != nil {
			assign(i)
		}
		return Decision{Kind: Index, Block: i, Endgame: false}
	}

	// Endgame: every missing block is already assigned to some worker.
	i, _ := peerMinusLocal.NextSet(0)
	return Decision{Kind: Index, Block: i, Endgame: true}
}
