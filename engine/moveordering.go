package engine

import (
	dragon "github.com/dylhunn/dragontoothmg"
)

// ==============================================================
// ====================== MOVE ORDERING =========================
// ==============================================================

// Ordering tiers. Within a tier, MVV-LVA or history breaks ties.
const (
	ttMoveScore     int32 = 30000
	captureOffset   int32 = 20000
	promotionOffset int32 = 19000
	killerScore     int32 = 15000
	checkBonus      int32 = 12000
	historyMax      int32 = 9999
)

// mvvLva[victim][attacker]: most valuable victim first, least valuable
// attacker breaking ties.
var mvvLva = [7][7]int32{
	{},                          // no victim
	{0, 15, 14, 13, 12, 11, 10}, // pawn
	{0, 25, 24, 23, 22, 21, 20}, // knight
	{0, 35, 34, 33, 32, 31, 30}, // bishop
	{0, 45, 44, 43, 42, 41, 40}, // rook
	{0, 55, 54, 53, 52, 51, 50}, // queen
	{},                          // king, never captured
}

type scoredMove struct {
	move     dragon.Move
	score    int32
	captured dragon.Piece
	check    bool
}

type moveList struct {
	moves []scoredMove
}

func pieceTypeAt(bbs *dragon.Bitboards, sq uint8) dragon.Piece {
	mask := uint64(1) << (sq & 63)
	switch {
	case bbs.Pawns&mask != 0:
		return dragon.Pawn
	case bbs.Knights&mask != 0:
		return dragon.Knight
	case bbs.Bishops&mask != 0:
		return dragon.Bishop
	case bbs.Rooks&mask != 0:
		return dragon.Rook
	case bbs.Queens&mask != 0:
		return dragon.Queen
	case bbs.Kings&mask != 0:
		return dragon.King
	}
	return dragon.Nothing
}

// capturedPiece returns what move takes off the board, Nothing for a
// quiet move. En passant shows up as a pawn moving diagonally onto an
// empty square.
func capturedPiece(b *dragon.Board, move dragon.Move) dragon.Piece {
	us, them := &b.White, &b.Black
	if !b.Wtomove {
		us, them = &b.Black, &b.White
	}
	if victim := pieceTypeAt(them, move.To()); victim != dragon.Nothing {
		return victim
	}
	if pieceTypeAt(us, move.From()) == dragon.Pawn && move.From()%8 != move.To()%8 {
		return dragon.Pawn
	}
	return dragon.Nothing
}

// givesCheck plays the move and asks whether the opponent's king is
// attacked afterward.
func givesCheck(b *dragon.Board, move dragon.Move) bool {
	unapply := b.Apply(move)
	check := b.OurKingInCheck()
	unapply()
	return check
}

// scoreMoves ranks a full legal move list for the main search: the
// hash move first, then captures by MVV-LVA, promotions, killers at
// this ply, quiet checking moves, and finally quiets by history.
func (s *Session) scoreMoves(b *dragon.Board, moves []dragon.Move, ply int8, ttMove dragon.Move) moveList {
	us, them := &b.White, &b.Black
	if !b.Wtomove {
		us, them = &b.Black, &b.White
	}
	list := moveList{moves: make([]scoredMove, len(moves))}
	for i, move := range moves {
		sm := &list.moves[i]
		sm.move = move

		victim := pieceTypeAt(them, move.To())
		attacker := pieceTypeAt(us, move.From())
		if victim == dragon.Nothing && attacker == dragon.Pawn && move.From()%8 != move.To()%8 {
			victim = dragon.Pawn
		}
		sm.captured = victim

		promo := move.Promote()
		quiet := victim == dragon.Nothing && promo == dragon.Nothing
		if quiet {
			sm.check = givesCheck(b, move)
		}

		switch {
		case move == ttMove && ttMove != EmptyMove:
			sm.score = ttMoveScore
		case victim != dragon.Nothing:
			sm.score = captureOffset + mvvLva[victim][attacker]
			if promo != dragon.Nothing {
				sm.score += pieceValue[promo] / 100
			}
		case promo != dragon.Nothing:
			sm.score = promotionOffset + pieceValue[promo]/100
		case s.killers.Slot(move, ply) == 0:
			sm.score = killerScore
		case s.killers.Slot(move, ply) == 1:
			sm.score = killerScore - 1
		case sm.check:
			sm.score = checkBonus
		default:
			h := s.history.Get(b.Wtomove, move.To())
			if h > historyMax {
				h = historyMax
			}
			sm.score = h
		}
	}
	return list
}

// scoreNoisyMoves keeps only captures and promotions, ranked by
// MVV-LVA, for quiescence.
func scoreNoisyMoves(b *dragon.Board, moves []dragon.Move) moveList {
	us, them := &b.White, &b.Black
	if !b.Wtomove {
		us, them = &b.Black, &b.White
	}
	list := moveList{moves: make([]scoredMove, 0, len(moves))}
	for _, move := range moves {
		victim := pieceTypeAt(them, move.To())
		attacker := pieceTypeAt(us, move.From())
		if victim == dragon.Nothing && attacker == dragon.Pawn && move.From()%8 != move.To()%8 {
			victim = dragon.Pawn
		}
		promo := move.Promote()
		if victim == dragon.Nothing && promo == dragon.Nothing {
			continue
		}
		score := captureOffset + mvvLva[victim][attacker]
		if promo != dragon.Nothing {
			score = promotionOffset + pieceValue[promo]/100
			if victim != dragon.Nothing {
				score = captureOffset + mvvLva[victim][attacker] + pieceValue[promo]/100
			}
		}
		list.moves = append(list.moves, scoredMove{move: move, score: score, captured: victim})
	}
	return list
}

// orderNextMove selection-sorts the highest remaining score into
// position index, so ordering work is only paid for moves actually
// searched.
func orderNextMove(list *moveList, index int) {
	best := index
	for i := index + 1; i < len(list.moves); i++ {
		if list.moves[i].score > list.moves[best].score {
			best = i
		}
	}
	list.moves[index], list.moves[best] = list.moves[best], list.moves[index]
}
