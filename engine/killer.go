package engine

import (
	dragon "github.com/dylhunn/dragontoothmg"
)

// MaxPly caps the search stack, extensions included.
const MaxPly = 127

// KillerTable remembers the last two quiet moves that caused a beta
// cutoff at each ply.
type KillerTable struct {
	moves [MaxPly + 1][2]dragon.Move
}

func (kt *KillerTable) Insert(move dragon.Move, ply int8) {
	if ply < 0 || int(ply) > MaxPly {
		return
	}
	if kt.moves[ply][0] != move {
		kt.moves[ply][1] = kt.moves[ply][0]
		kt.moves[ply][0] = move
	}
}

func (kt *KillerTable) Slot(move dragon.Move, ply int8) int {
	if ply < 0 || int(ply) > MaxPly {
		return -1
	}
	if kt.moves[ply][0] == move {
		return 0
	}
	if kt.moves[ply][1] == move {
		return 1
	}
	return -1
}

func (kt *KillerTable) Clear() {
	*kt = KillerTable{}
}

// HistoryTable scores quiet moves by side to move and destination
// square. Cutoffs add depth squared; scores accumulate for the whole
// session and are only reset on a new game.
type HistoryTable struct {
	scores [2][64]int32
}

const historyCap = 1 << 20

func sideIndex(whiteToMove bool) int {
	if whiteToMove {
		return 0
	}
	return 1
}

func (ht *HistoryTable) Add(whiteToMove bool, to uint8, depth int8) {
	v := &ht.scores[sideIndex(whiteToMove)][to&63]
	*v += int32(depth) * int32(depth)
	if *v > historyCap {
		*v = historyCap
	}
}

func (ht *HistoryTable) Get(whiteToMove bool, to uint8) int32 {
	return ht.scores[sideIndex(whiteToMove)][to&63]
}

func (ht *HistoryTable) Clear() {
	*ht = HistoryTable{}
}
