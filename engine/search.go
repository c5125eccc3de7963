package engine

import (
	"strings"
	"sync/atomic"
	"time"

	dragon "github.com/dylhunn/dragontoothmg"
)

// ==============================================================
// ========================== SEARCH ============================
// ==============================================================

const (
	MaxScore  int32 = 32500
	Checkmate int32 = 20000 // scores beyond this are mate-in-N
	DrawScore int32 = 0
	MaxDepth  int8  = 64
)

// MateValue is what static evaluation reports for a mated side; search
// refines it to an exact distance from root.
const MateValue = MaxScore - int32(MaxPly)

const EmptyMove dragon.Move = 0

// Speculative pruning toggles. All on for play; the test harness turns
// them off to compare against a plain negamax.
var (
	UseNullMove         = true
	UseFutility         = true
	UseLMR              = true
	UseMoveCountPruning = true
)

const (
	nullMoveMinDepth    = 3
	nullMoveReduction   = 2
	nullMoveMaterialMin = 500 // skip null move near zugzwang territory
	futilityMargin      = 200
	deltaMargin         = 150
	lmrMinDepth         = 3
	lmrMoveIndex        = 4
	moveCountMinDepth   = 3
	moveCountIndex      = 6
	stopCheckInterval   = 4095
)

// Control is the cancellation token threaded through the search. Stop
// requests and deadline expiry both latch the same flag; a latched
// search unwinds returning meaningless scores the caller must discard.
type Control struct {
	stopped  atomic.Bool
	deadline time.Time
}

func (c *Control) Stop()         { c.stopped.Store(true) }
func (c *Control) Stopped() bool { return c.stopped.Load() }

// arm installs the deadline for a search without touching the stop
// flag. A stop that raced the search launch must still cancel it, so
// only clear may drop the flag, and only the caller that owns the
// search lifecycle gets to call it.
func (c *Control) arm(deadline time.Time) {
	c.deadline = deadline
}

func (c *Control) clear() {
	c.stopped.Store(false)
	c.deadline = time.Time{}
}

func (c *Control) checkDeadline() {
	if !c.deadline.IsZero() && time.Now().After(c.deadline) {
		c.stopped.Store(true)
	}
}

func (s *Session) tick() bool {
	s.nodes++
	if s.nodes&stopCheckInterval == 0 {
		s.ctl.checkDeadline()
	}
	return s.ctl.Stopped()
}

func (s *Session) alphabeta(b *dragon.Board, alpha, beta int32, depth, ply int8, isPV bool) int32 {
	if s.tick() {
		return 0
	}
	if ply >= MaxPly {
		return Evaluate(b)
	}

	// Mate distance pruning: no line from here can beat a mate already
	// proven closer to the root.
	if alpha < -MaxScore+int32(ply) {
		alpha = -MaxScore + int32(ply)
	}
	if beta > MaxScore-int32(ply)-1 {
		beta = MaxScore - int32(ply) - 1
	}
	if alpha >= beta {
		return alpha
	}

	if ply > 0 {
		if s.isRepetition(b) || b.Halfmoveclock >= 100 || InsufficientMaterial(b) {
			return DrawScore
		}
	}

	inCheck := b.OurKingInCheck()
	if inCheck {
		depth++ // check extension
	}
	if depth <= 0 {
		return s.quiescence(b, alpha, beta, ply)
	}

	key := b.Hash()
	ttMove := EmptyMove
	if entry, hit := s.TT.Probe(key); hit {
		ttMove = entry.Move
		if !isPV && entry.Depth >= depth {
			if score, usable := s.TT.Use(entry, alpha, beta, ply); usable {
				return score
			}
		}
	}

	if UseNullMove && !isPV && !inCheck && ply > 0 && depth >= nullMoveMinDepth &&
		nonPawnMaterial(b) > nullMoveMaterialMin {
		if undo, ok := s.tryNullMove(b); ok {
			score := -s.alphabeta(b, -beta, -beta+1, depth-1-nullMoveReduction, ply+1, false)
			undo()
			if s.ctl.Stopped() {
				return 0
			}
			if score >= beta && score < Checkmate {
				return beta
			}
		}
	}

	moves := b.GenerateLegalMoves()
	if len(moves) == 0 {
		if inCheck {
			return -MaxScore + int32(ply)
		}
		return DrawScore
	}

	list := s.scoreMoves(b, moves, ply, ttMove)
	var staticEval int32
	staticEvalKnown := false

	bestScore := -MaxScore
	bestMove := EmptyMove
	bound := UpperBound

	s.push(key)
	defer s.pop()

	for i := 0; i < len(list.moves); i++ {
		orderNextMove(&list, i)
		sm := list.moves[i]
		quiet := sm.captured == dragon.Nothing && sm.move.Promote() == dragon.Nothing && !sm.check

		// Speculative skips, never before one move has been searched.
		if quiet && !inCheck && bestScore > -Checkmate {
			if UseFutility && depth == 1 {
				if !staticEvalKnown {
					staticEval = Evaluate(b)
					staticEvalKnown = true
				}
				if staticEval+futilityMargin <= alpha {
					continue
				}
			}
			if UseMoveCountPruning && !isPV && depth >= moveCountMinDepth && i >= moveCountIndex {
				continue
			}
		}

		unapply := b.Apply(sm.move)
		var score int32
		if i == 0 {
			score = -s.alphabeta(b, -beta, -alpha, depth-1, ply+1, isPV)
		} else {
			var reduction int8
			if UseLMR && !isPV && quiet && !inCheck && depth >= lmrMinDepth && i >= lmrMoveIndex {
				reduction = 1
				if i >= 2*lmrMoveIndex {
					reduction = 2
				}
				if depth-1-reduction < 1 {
					reduction = depth - 2
				}
			}
			score = -s.alphabeta(b, -alpha-1, -alpha, depth-1-reduction, ply+1, false)
			if score > alpha && reduction > 0 {
				score = -s.alphabeta(b, -alpha-1, -alpha, depth-1, ply+1, false)
			}
			if score > alpha && score < beta {
				score = -s.alphabeta(b, -beta, -alpha, depth-1, ply+1, isPV)
			}
		}
		unapply()
		if s.ctl.Stopped() {
			return 0
		}

		if score > bestScore {
			bestScore = score
			bestMove = sm.move
		}
		if score > alpha {
			alpha = score
			bound = ExactBound
		}
		if alpha >= beta {
			bound = LowerBound
			if quiet {
				s.killers.Insert(sm.move, ply)
				s.history.Add(b.Wtomove, sm.move.To(), depth)
			}
			break
		}
	}

	s.TT.Store(key, bestMove, bestScore, depth, ply, bound)
	return bestScore
}

// quiescence settles tactical noise before trusting the static score:
// only captures and promotions are searched, or every evasion while in
// check.
func (s *Session) quiescence(b *dragon.Board, alpha, beta int32, ply int8) int32 {
	if s.tick() {
		return 0
	}

	moves := b.GenerateLegalMoves()
	inCheck := b.OurKingInCheck()
	if len(moves) == 0 {
		if inCheck {
			return -MaxScore + int32(ply)
		}
		return DrawScore
	}
	if ply >= MaxPly {
		return evalWithMoves(b, moves)
	}

	standPat := -MaxScore
	var list moveList
	if inCheck {
		list = s.scoreMoves(b, moves, ply, EmptyMove)
	} else {
		standPat = evalWithMoves(b, moves)
		if standPat >= beta {
			return beta
		}
		if standPat > alpha {
			alpha = standPat
		}
		list = scoreNoisyMoves(b, moves)
	}

	for i := 0; i < len(list.moves); i++ {
		orderNextMove(&list, i)
		sm := list.moves[i]

		if !inCheck {
			// Delta pruning: even winning this material cleanly would
			// leave us below alpha.
			gain := pieceValue[sm.captured]
			if promo := sm.move.Promote(); promo != dragon.Nothing {
				gain += pieceValue[promo] - pieceValue[dragon.Pawn]
			}
			if standPat+gain+deltaMargin <= alpha {
				continue
			}
		}

		unapply := b.Apply(sm.move)
		score := -s.quiescence(b, -beta, -alpha, ply+1)
		unapply()
		if s.ctl.Stopped() {
			return 0
		}
		if score >= beta {
			return beta
		}
		if score > alpha {
			alpha = score
		}
	}
	return alpha
}

// rootSearch runs one fixed-depth pass over the root moves. No pruning
// happens at the root; every move gets at least a null-window look.
// A latched stop returns EmptyMove and the caller keeps the previous
// iteration's answer.
func (s *Session) rootSearch(b *dragon.Board, depth int8, alpha, beta int32) (int32, dragon.Move) {
	moves := b.GenerateLegalMoves()
	if len(moves) == 0 {
		if b.OurKingInCheck() {
			return -MaxScore, EmptyMove
		}
		return DrawScore, EmptyMove
	}

	key := b.Hash()
	ttMove := EmptyMove
	if entry, hit := s.TT.Probe(key); hit {
		ttMove = entry.Move
	}
	list := s.scoreMoves(b, moves, 0, ttMove)

	alphaOrig := alpha
	bestScore := -MaxScore
	bestMove := EmptyMove

	s.push(key)
	defer s.pop()

	for i := 0; i < len(list.moves); i++ {
		orderNextMove(&list, i)
		move := list.moves[i].move

		unapply := b.Apply(move)
		var score int32
		if i == 0 {
			score = -s.alphabeta(b, -beta, -alpha, depth-1, 1, true)
		} else {
			score = -s.alphabeta(b, -alpha-1, -alpha, depth-1, 1, false)
			if score > alpha && score < beta {
				score = -s.alphabeta(b, -beta, -alpha, depth-1, 1, true)
			}
		}
		unapply()
		if s.ctl.Stopped() {
			return 0, EmptyMove
		}

		if score > bestScore {
			bestScore = score
			bestMove = move
		}
		if score > alpha {
			alpha = score
		}
		if alpha >= beta {
			break
		}
	}

	bound := ExactBound
	if bestScore <= alphaOrig {
		bound = UpperBound
	} else if bestScore >= beta {
		bound = LowerBound
	}
	s.TT.Store(key, bestMove, bestScore, depth, 0, bound)
	return bestScore, bestMove
}

// PrincipalVariation reconstructs the expected line by walking stored
// hash moves from the root, stopping on a miss, an illegal move, or a
// repeated position.
func (s *Session) PrincipalVariation(b *dragon.Board, depth int8) []dragon.Move {
	pos := *b
	seen := make(map[uint64]bool)
	var pv []dragon.Move
	for int8(len(pv)) < depth {
		key := pos.Hash()
		if seen[key] {
			break
		}
		seen[key] = true
		entry, hit := s.TT.Probe(key)
		if !hit || entry.Move == EmptyMove {
			break
		}
		legal := false
		for _, m := range pos.GenerateLegalMoves() {
			if m == entry.Move {
				legal = true
				break
			}
		}
		if !legal {
			break
		}
		pv = append(pv, entry.Move)
		pos.Apply(entry.Move)
	}
	return pv
}

// tryNullMove hands the turn to the opponent by rewriting the side to
// move and clearing en passant through a FEN round trip. Any parser
// panic is swallowed and the search simply proceeds without the
// optimization.
func (s *Session) tryNullMove(b *dragon.Board) (undo func(), ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Debug().Interface("cause", r).Msg("null move rejected")
			undo, ok = nil, false
		}
	}()
	fields := strings.Fields(b.ToFen())
	if len(fields) < 4 {
		return nil, false
	}
	if b.Wtomove {
		fields[1] = "b"
	} else {
		fields[1] = "w"
	}
	fields[3] = "-"
	prev := *b
	*b = dragon.ParseFen(strings.Join(fields, " "))
	return func() { *b = prev }, true
}

// evalWithMoves is Evaluate for callers that already generated the
// legal moves of the position.
func evalWithMoves(b *dragon.Board, moves []dragon.Move) int32 {
	if len(moves) == 0 {
		if b.OurKingInCheck() {
			return -MateValue
		}
		return DrawScore
	}
	if InsufficientMaterial(b) {
		return DrawScore
	}
	score := sideScore(&b.White, false) - sideScore(&b.Black, true)
	if !b.Wtomove {
		score = -score
	}
	score += int32(len(moves)) / 4
	return score
}

func (s *Session) push(key uint64) {
	s.stack = append(s.stack, key)
}

func (s *Session) pop() {
	s.stack = s.stack[:len(s.stack)-1]
}

// isRepetition counts how often this position already occurred in the
// game history plus the current search line. Two prior occurrences
// make this one a draw.
func (s *Session) isRepetition(b *dragon.Board) bool {
	key := b.Hash()
	count := s.gameHist[key]
	for _, k := range s.stack {
		if k == key {
			count++
		}
	}
	return count >= 2
}
