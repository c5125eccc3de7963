package engine

import (
	"time"

	dragon "github.com/dylhunn/dragontoothmg"
	"golang.org/x/exp/slices"
)

// ==============================================================
// ===================== SEARCH SCHEDULING ======================
// ==============================================================

// Limits bounds one Think call. Depth and MoveTime may be combined;
// with neither set a default depth applies.
type Limits struct {
	Depth    int           // iterative deepening cap, 0 picks the default
	Rollouts int           // refinement rollout cap, 0 means time-budget only
	MoveTime time.Duration // wall clock budget, 0 means depth-limited
}

// Progress is reported after every completed deepening iteration.
type Progress struct {
	Depth int
	Score int32
	Nodes uint64
	NPS   uint64
	PV    []dragon.Move
}

// Result is the final answer of a Think call. Move is EmptyMove only
// when the position has no legal moves at all.
type Result struct {
	Move     dragon.Move
	Score    int32
	Depth    int
	Nodes    uint64
	PV       []dragon.Move
	Rollouts int
}

const (
	DefaultDepth     = 8
	aspirationWindow = int32(35)
	aspirationMin    = int8(3) // shallower iterations use the full window

	schedulerSafety   = 30 * time.Millisecond
	refinerShare      = 5 // a fifth of the budget is held back for refinement
	minRefinerReserve = 40 * time.Millisecond
	maxRefinerReserve = 2 * time.Second

	firstSampleGrowth = 4
	minGrowthRatio    = 2.0
	maxGrowthRatio    = 6.0
)

// Think runs iterative deepening over the session position, deciding
// before each iteration whether its predicted cost still fits the
// budget, then spends whatever is left on statistical refinement of
// the root choice. It never returns an illegal move and it never
// overshoots MoveTime by more than the safety margin.
func (s *Session) Think(lim Limits, progress func(Progress)) Result {
	b := &s.board
	start := time.Now()

	maxDepth := lim.Depth
	if maxDepth <= 0 {
		maxDepth = DefaultDepth
	}
	if maxDepth > int(MaxDepth) {
		maxDepth = int(MaxDepth)
	}

	var deadline time.Time
	var reserve time.Duration
	if lim.MoveTime > 0 {
		deadline = start.Add(lim.MoveTime)
		reserve = lim.MoveTime / refinerShare
		if reserve < minRefinerReserve {
			reserve = minRefinerReserve
		}
		if reserve > maxRefinerReserve {
			reserve = maxRefinerReserve
		}
		if lim.Depth <= 0 {
			maxDepth = int(MaxDepth) // purely time-driven
		}
	}

	s.ctl.arm(deadline)
	s.TT.NextGeneration()
	s.nodes = 0
	s.stack = s.stack[:0]

	if len(b.GenerateLegalMoves()) == 0 {
		score := DrawScore
		if b.OurKingInCheck() {
			score = -MaxScore
		}
		return Result{Move: EmptyMove, Score: score}
	}

	var best Result
	guess := Evaluate(b)
	var prevDur, lastDur time.Duration

	for depth := 1; depth <= maxDepth; depth++ {
		if !deadline.IsZero() && depth > 1 {
			predicted := predictNextCost(prevDur, lastDur)
			if time.Now().Add(predicted + reserve).After(deadline) {
				s.log.Debug().Int("depth", depth).Dur("predicted", predicted).
					Msg("next iteration does not fit the budget")
				break
			}
		}

		iterStart := time.Now()
		score, move, ok := s.searchWithAspiration(b, int8(depth), guess)
		if !ok {
			break // stopped mid-iteration, previous answer stands
		}
		prevDur, lastDur = lastDur, time.Since(iterStart)
		guess = score

		pv := s.PrincipalVariation(b, int8(depth))
		if len(pv) == 0 && move != EmptyMove {
			pv = []dragon.Move{move}
		}
		best = Result{Move: move, Score: score, Depth: depth, Nodes: s.nodes, PV: pv}

		if progress != nil {
			progress(Progress{
				Depth: depth,
				Score: score,
				Nodes: s.nodes,
				NPS:   nodesPerSecond(s.nodes, time.Since(start)),
				PV:    pv,
			})
		}
		if score > Checkmate || score < -Checkmate {
			break // mate proven, deeper iterations cannot improve it
		}
	}

	if wantRefinement(lim) && (deadline.IsZero() || time.Until(deadline) > schedulerSafety) {
		rollouts := lim.Rollouts
		if rollouts <= 0 {
			rollouts = int(^uint(0) >> 1) // bounded by the deadline instead
		}
		if move, n, ok := s.refine(b, deadline, rollouts, best.Move); ok {
			best.Move = move
			best.Rollouts = n
		}
	}

	if best.Move == EmptyMove {
		best.Move = DefaultMove(b)
	}
	best.Nodes = s.nodes
	return best
}

func wantRefinement(lim Limits) bool {
	return lim.Rollouts > 0 || lim.MoveTime > 0
}

// searchWithAspiration wraps rootSearch in a widening window around
// the previous iteration's score. A fail doubles the window and
// recenters it on the failing score; the full window is the last
// resort and is always accepted.
func (s *Session) searchWithAspiration(b *dragon.Board, depth int8, guess int32) (int32, dragon.Move, bool) {
	alpha, beta := -MaxScore, MaxScore
	window := aspirationWindow
	if depth >= aspirationMin {
		alpha, beta = guess-window, guess+window
	}
	for {
		score, move := s.rootSearch(b, depth, alpha, beta)
		if s.ctl.Stopped() {
			return 0, EmptyMove, false
		}
		if score > alpha && score < beta {
			return score, move, true
		}
		if alpha <= -MaxScore && beta >= MaxScore {
			return score, move, true
		}
		window *= 2
		alpha, beta = score-window, score+window
		if window >= MaxScore/2 || alpha < -MaxScore {
			alpha = -MaxScore
		}
		if window >= MaxScore/2 || beta > MaxScore {
			beta = MaxScore
		}
	}
}

// predictNextCost estimates the next iteration from the growth ratio
// of the last two. With a single sample the minimum assumption is a
// fourfold blowup.
func predictNextCost(prev, last time.Duration) time.Duration {
	if last <= 0 {
		return 0
	}
	if prev <= 0 {
		return last * firstSampleGrowth
	}
	ratio := float64(last) / float64(prev)
	if ratio < minGrowthRatio {
		ratio = minGrowthRatio
	}
	if ratio > maxGrowthRatio {
		ratio = maxGrowthRatio
	}
	return time.Duration(float64(last) * ratio)
}

func nodesPerSecond(nodes uint64, elapsed time.Duration) uint64 {
	if elapsed <= 0 {
		return nodes
	}
	return uint64(float64(nodes) / elapsed.Seconds())
}

// DefaultMove is the deterministic last-resort move: the biggest
// capture first, then checking moves, then the alphabetically smallest
// move string. Same position, same answer, on every host.
func DefaultMove(b *dragon.Board) dragon.Move {
	moves := b.GenerateLegalMoves()
	if len(moves) == 0 {
		return EmptyMove
	}
	type rankedMove struct {
		move   dragon.Move
		victim int32
		check  bool
		uci    string
	}
	ranked := make([]rankedMove, len(moves))
	for i, m := range moves {
		ranked[i] = rankedMove{
			move:   m,
			victim: pieceValue[capturedPiece(b, m)],
			check:  givesCheck(b, m),
			uci:    m.String(),
		}
	}
	slices.SortFunc(ranked, func(x, y rankedMove) bool {
		if x.victim != y.victim {
			return x.victim > y.victim
		}
		if x.check != y.check {
			return x.check
		}
		return x.uci < y.uci
	})
	return ranked[0].move
}
