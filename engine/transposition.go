package engine

import (
	dragon "github.com/dylhunn/dragontoothmg"
)

// ==============================================================
// ==================== TRANSPOSITION TABLE =====================
// ==============================================================

// Bound kinds for stored scores.
const (
	UpperBound uint8 = iota // fail low, real score is at most Score
	LowerBound              // fail high, real score is at least Score
	ExactBound
)

const clusterSize = 4

type TTEntry struct {
	Hash  uint64
	Move  dragon.Move
	Score int32
	Depth int8
	Bound uint8
	gen   uint8
}

// TransTable is a fixed-size hash table of search results, organized
// as clusters of four entries per hash slot. A generation counter is
// bumped once per top-level search so stale entries lose replacement
// priority without ever being scanned wholesale.
type TransTable struct {
	entries  []TTEntry
	clusters uint64
	gen      uint8
}

func NewTransTable(sizeMB int) *TransTable {
	if sizeMB < 1 {
		sizeMB = 1
	}
	entrySize := 24 // rough per-entry footprint, padding included
	count := uint64(sizeMB) * 1024 * 1024 / uint64(entrySize)
	clusters := count / clusterSize
	if clusters == 0 {
		clusters = 1
	}
	return &TransTable{
		entries:  make([]TTEntry, clusters*clusterSize),
		clusters: clusters,
	}
}

func (tt *TransTable) Clear() {
	for i := range tt.entries {
		tt.entries[i] = TTEntry{}
	}
	tt.gen = 0
}

// NextGeneration marks all existing entries as belonging to an older
// search. Called once per top-level Think.
func (tt *TransTable) NextGeneration() {
	tt.gen++
}

// Probe returns the entry stored for hash, if any. A hit refreshes the
// entry's generation so positions still being visited stay resident.
func (tt *TransTable) Probe(hash uint64) (TTEntry, bool) {
	base := (hash % tt.clusters) * clusterSize
	for i := uint64(0); i < clusterSize; i++ {
		e := &tt.entries[base+i]
		if e.Hash == hash {
			e.gen = tt.gen
			return *e, true
		}
	}
	return TTEntry{}, false
}

// Use decides whether a probed entry can cut off the current node and
// returns the score corrected for distance from root. Mate scores are
// stored relative to the entry's node and rebased onto the probing ply.
func (tt *TransTable) Use(e TTEntry, alpha, beta int32, ply int8) (int32, bool) {
	score := scoreFromTT(e.Score, ply)
	switch e.Bound {
	case ExactBound:
		return score, true
	case LowerBound:
		if score >= beta {
			return score, true
		}
	case UpperBound:
		if score <= alpha {
			return score, true
		}
	}
	return 0, false
}

// Store writes a search result. Within the cluster the entry's own slot
// wins, then an empty slot, then a slot from an older generation, then
// the shallowest. An existing same-position entry is only overwritten
// by an equal-or-deeper result or once it has gone stale.
func (tt *TransTable) Store(hash uint64, move dragon.Move, score int32, depth, ply int8, bound uint8) {
	score = scoreToTT(score, ply)
	base := (hash % tt.clusters) * clusterSize

	for i := uint64(0); i < clusterSize; i++ {
		e := &tt.entries[base+i]
		if e.Hash == hash {
			if depth >= e.Depth || e.gen != tt.gen {
				*e = TTEntry{Hash: hash, Move: move, Score: score, Depth: depth, Bound: bound, gen: tt.gen}
			} else if e.Move == EmptyMove {
				e.Move = move
			}
			return
		}
	}

	victim := &tt.entries[base]
	for i := uint64(1); i < clusterSize; i++ {
		e := &tt.entries[base+i]
		if e.Hash == 0 {
			victim = e
			break
		}
		if victimPriority(e, tt.gen) < victimPriority(victim, tt.gen) {
			victim = e
		}
	}
	*victim = TTEntry{Hash: hash, Move: move, Score: score, Depth: depth, Bound: bound, gen: tt.gen}
}

// Lower priority evicts first: empty, then stale generations, then
// shallow depth.
func victimPriority(e *TTEntry, gen uint8) int32 {
	if e.Hash == 0 {
		return -1 << 20
	}
	p := int32(e.Depth)
	if e.gen != gen {
		p -= 1 << 10
	}
	return p
}

// Mate scores are kept as distance-to-mate from the storing node, so a
// hit at a different ply still reports the correct distance from root.
func scoreToTT(score int32, ply int8) int32 {
	if score > Checkmate {
		return score + int32(ply)
	}
	if score < -Checkmate {
		return score - int32(ply)
	}
	return score
}

func scoreFromTT(score int32, ply int8) int32 {
	if score > Checkmate {
		return score - int32(ply)
	}
	if score < -Checkmate {
		return score + int32(ply)
	}
	return score
}
