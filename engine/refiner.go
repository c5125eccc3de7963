package engine

import (
	"math"
	"time"

	dragon "github.com/dylhunn/dragontoothmg"
)

// ==============================================================
// ================== STATISTICAL REFINEMENT ====================
// ==============================================================

const (
	rolloutPlies      = 8
	explorationWeight = 1.2
	refinerSafety     = 20 * time.Millisecond
	valueScale        = 600.0 // centipawns mapped through tanh
)

type rootArm struct {
	move   dragon.Move
	prior  float64
	visits int
	total  float64
}

// refine spends leftover budget sampling root moves with short greedy
// playouts, guided by a softmax prior over tactical weight. Selection
// balances observed mean value against prior times an exploration term
// that decays with visits. The result only replaces fallback when at
// least one arm was actually sampled.
func (s *Session) refine(b *dragon.Board, deadline time.Time, maxRollouts int, fallback dragon.Move) (dragon.Move, int, bool) {
	moves := b.GenerateLegalMoves()
	if len(moves) == 0 {
		return EmptyMove, 0, false
	}
	if len(moves) == 1 {
		return moves[0], 0, true
	}

	arms := make([]rootArm, len(moves))
	var expSum float64
	for i, m := range moves {
		w := 0.0
		if victim := capturedPiece(b, m); victim != dragon.Nothing {
			w += float64(pieceValue[victim]) / 100
		}
		if promo := m.Promote(); promo != dragon.Nothing {
			w += float64(pieceValue[promo]) / 100
		}
		if givesCheck(b, m) {
			w += 1.5
		}
		e := math.Exp(w / 2)
		expSum += e
		arms[i] = rootArm{move: m, prior: e}
	}
	for i := range arms {
		arms[i].prior /= expSum
	}

	done := 0
	for done < maxRollouts {
		if s.ctl.Stopped() {
			break
		}
		if !deadline.IsZero() && time.Until(deadline) < refinerSafety {
			break
		}
		arm := selectArm(arms, done)
		unapply := b.Apply(arm.move)
		value := -s.rollout(b, rolloutPlies)
		unapply()
		arm.visits++
		arm.total += value
		done++
	}

	best := -1
	for i := range arms {
		if arms[i].visits == 0 {
			continue
		}
		if best < 0 || mean(&arms[i]) > mean(&arms[best]) {
			best = i
		}
	}
	if best < 0 {
		return fallback, done, fallback != EmptyMove
	}
	s.log.Debug().Int("rollouts", done).Str("move", moveString(arms[best].move)).
		Msg("refinement finished")
	return arms[best].move, done, true
}

func mean(a *rootArm) float64 {
	if a.visits == 0 {
		return 0
	}
	return a.total / float64(a.visits)
}

func selectArm(arms []rootArm, totalVisits int) *rootArm {
	lnTotal := math.Log(float64(1 + totalVisits))
	bestIdx := 0
	bestVal := math.Inf(-1)
	for i := range arms {
		a := &arms[i]
		u := mean(a) + explorationWeight*a.prior*math.Sqrt(lnTotal)/float64(1+a.visits)
		if u > bestVal {
			bestVal = u
			bestIdx = i
		}
	}
	return &arms[bestIdx]
}

// rollout plays a short forcing line, captures first and the hottest
// history square otherwise, then maps the static score into [-1, 1]
// from the perspective of the side to move at entry.
func (s *Session) rollout(b *dragon.Board, plies int) float64 {
	undos := make([]func(), 0, plies)
	parity := 1.0
	for i := 0; i < plies; i++ {
		moves := b.GenerateLegalMoves()
		if len(moves) == 0 {
			break
		}
		pick := s.rolloutPolicy(b, moves)
		undos = append(undos, b.Apply(pick))
		parity = -parity
	}
	score := Evaluate(b)
	for i := len(undos) - 1; i >= 0; i-- {
		undos[i]()
	}
	return parity * math.Tanh(float64(score)/valueScale)
}

func (s *Session) rolloutPolicy(b *dragon.Board, moves []dragon.Move) dragon.Move {
	noisy := scoreNoisyMoves(b, moves)
	if len(noisy.moves) > 0 {
		orderNextMove(&noisy, 0)
		return noisy.moves[0].move
	}
	best := moves[0]
	bestScore := s.history.Get(b.Wtomove, best.To())
	for _, m := range moves[1:] {
		sc := s.history.Get(b.Wtomove, m.To())
		if sc > bestScore || (sc == bestScore && moveString(m) < moveString(best)) {
			best = m
			bestScore = sc
		}
	}
	return best
}

func moveString(m dragon.Move) string {
	return m.String()
}
