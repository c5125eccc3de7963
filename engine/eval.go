package engine

import (
	"math/bits"

	dragon "github.com/dylhunn/dragontoothmg"
)

// ==============================================================
// ==================== STATIC EVALUATION =======================
// ==============================================================

// Material values in centipawns, indexed by dragontoothmg piece type.
var pieceValue = [7]int32{0, 100, 320, 330, 500, 900, 0}

/* PIECE SQUARE TABLES */
// White perspective, index 0 = a1. Black squares are mirrored with sq^56.

var pawnPST = [64]int32{
	0, 0, 0, 0, 0, 0, 0, 0,
	5, 10, 10, -20, -20, 10, 10, 5,
	5, -5, -10, 0, 0, -10, -5, 5,
	0, 0, 0, 20, 20, 0, 0, 0,
	5, 5, 10, 25, 25, 10, 5, 5,
	10, 10, 20, 30, 30, 20, 10, 10,
	50, 50, 50, 50, 50, 50, 50, 50,
	0, 0, 0, 0, 0, 0, 0, 0,
}

var knightPST = [64]int32{
	-50, -40, -30, -30, -30, -30, -40, -50,
	-40, -20, 0, 5, 5, 0, -20, -40,
	-30, 5, 10, 15, 15, 10, 5, -30,
	-30, 0, 15, 20, 20, 15, 0, -30,
	-30, 5, 15, 20, 20, 15, 5, -30,
	-30, 0, 10, 15, 15, 10, 0, -30,
	-40, -20, 0, 0, 0, 0, -20, -40,
	-50, -40, -30, -30, -30, -30, -40, -50,
}

var bishopPST = [64]int32{
	-20, -10, -10, -10, -10, -10, -10, -20,
	-10, 5, 0, 0, 0, 0, 5, -10,
	-10, 10, 10, 10, 10, 10, 10, -10,
	-10, 0, 10, 10, 10, 10, 0, -10,
	-10, 5, 5, 10, 10, 5, 5, -10,
	-10, 0, 5, 10, 10, 5, 0, -10,
	-10, 0, 0, 0, 0, 0, 0, -10,
	-20, -10, -10, -10, -10, -10, -10, -20,
}

var rookPST = [64]int32{
	0, 0, 0, 5, 5, 0, 0, 0,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	5, 10, 10, 10, 10, 10, 10, 5,
	0, 0, 0, 0, 0, 0, 0, 0,
}

var queenPST = [64]int32{
	-20, -10, -10, -5, -5, -10, -10, -20,
	-10, 0, 5, 0, 0, 0, 0, -10,
	-10, 5, 5, 5, 5, 5, 0, -10,
	0, 0, 5, 5, 5, 5, 0, -5,
	-5, 0, 5, 5, 5, 5, 0, -5,
	-10, 0, 5, 5, 5, 5, 0, -10,
	-10, 0, 0, 0, 0, 0, 0, -10,
	-20, -10, -10, -5, -5, -10, -10, -20,
}

var kingPST = [64]int32{
	20, 30, 10, 0, 0, 10, 30, 20,
	20, 20, 0, 0, 0, 0, 20, 20,
	-10, -20, -20, -20, -20, -20, -20, -10,
	-20, -30, -30, -40, -40, -30, -30, -20,
	-30, -40, -40, -50, -50, -40, -40, -30,
	-30, -40, -40, -50, -50, -40, -40, -30,
	-30, -40, -40, -50, -50, -40, -40, -30,
	-30, -40, -40, -50, -50, -40, -40, -30,
}

var pstByPiece = [7]*[64]int32{
	nil, &pawnPST, &knightPST, &bishopPST, &rookPST, &queenPST, &kingPST,
}

// Evaluate scores the position from the side to move's perspective.
// Terminal positions short-circuit: mate returns the mate sentinel,
// stalemate and insufficient material return the draw score. The same
// board always yields the same score; no state is touched.
func Evaluate(b *dragon.Board) int32 {
	return evalWithMoves(b, b.GenerateLegalMoves())
}

func sideScore(bbs *dragon.Bitboards, mirror bool) int32 {
	var total int32
	total += pieceScore(bbs.Pawns, dragon.Pawn, mirror)
	total += pieceScore(bbs.Knights, dragon.Knight, mirror)
	total += pieceScore(bbs.Bishops, dragon.Bishop, mirror)
	total += pieceScore(bbs.Rooks, dragon.Rook, mirror)
	total += pieceScore(bbs.Queens, dragon.Queen, mirror)
	total += pieceScore(bbs.Kings, dragon.King, mirror)
	return total
}

func pieceScore(bb uint64, piece dragon.Piece, mirror bool) int32 {
	pst := pstByPiece[piece]
	var total int32
	for bb != 0 {
		sq := bits.TrailingZeros64(bb)
		bb &= bb - 1
		if mirror {
			sq ^= 56
		}
		total += pieceValue[piece] + pst[sq]
	}
	return total
}

// InsufficientMaterial reports bare kings or king plus a single minor
// piece on either side. Anything with pawns, rooks or queens can still
// be won.
func InsufficientMaterial(b *dragon.Board) bool {
	if b.White.Pawns|b.Black.Pawns|b.White.Rooks|b.Black.Rooks|b.White.Queens|b.Black.Queens != 0 {
		return false
	}
	minors := bits.OnesCount64(b.White.Knights|b.White.Bishops) +
		bits.OnesCount64(b.Black.Knights|b.Black.Bishops)
	return minors <= 1
}

// nonPawnMaterial sums knight-through-queen material for the side to
// move. Used by the null move zugzwang guard.
func nonPawnMaterial(b *dragon.Board) int32 {
	bbs := &b.White
	if !b.Wtomove {
		bbs = &b.Black
	}
	return int32(bits.OnesCount64(bbs.Knights))*pieceValue[dragon.Knight] +
		int32(bits.OnesCount64(bbs.Bishops))*pieceValue[dragon.Bishop] +
		int32(bits.OnesCount64(bbs.Rooks))*pieceValue[dragon.Rook] +
		int32(bits.OnesCount64(bbs.Queens))*pieceValue[dragon.Queen]
}
