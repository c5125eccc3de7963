package engine

import (
	"errors"
	"fmt"
	"strings"

	dragon "github.com/dylhunn/dragontoothmg"
	"github.com/rs/zerolog"
)

// ==============================================================
// ======================== SESSION =============================
// ==============================================================

var (
	ErrBadFEN        = errors.New("malformed fen")
	ErrIllegalMove   = errors.New("illegal move")
	ErrUnknownEngine = errors.New("unknown engine")
)

// Session owns everything one game needs: the position, the
// transposition table, killer and history heuristics, the repetition
// record, and the cancellation token. Nothing is global; two sessions
// never share state.
type Session struct {
	TT       *TransTable
	killers  KillerTable
	history  HistoryTable
	board    dragon.Board
	gameHist map[uint64]int // positions seen earlier in the game
	stack    []uint64       // positions on the current search path
	nodes    uint64
	ctl      Control
	log      zerolog.Logger
}

func NewSession(ttSizeMB int, log zerolog.Logger) *Session {
	s := &Session{
		TT:       NewTransTable(ttSizeMB),
		gameHist: make(map[uint64]int),
		log:      log,
	}
	s.board = dragon.ParseFen(dragon.Startpos)
	return s
}

// NewGame wipes everything learned from the previous game.
func (s *Session) NewGame() {
	s.TT.Clear()
	s.killers.Clear()
	s.history.Clear()
	s.gameHist = make(map[uint64]int)
	s.board = dragon.ParseFen(dragon.Startpos)
	s.ctl.clear()
}

// SetPosition replaces the session position. The move list is replayed
// from the given FEN and recorded for repetition detection. On any
// error the previous position is left untouched.
func (s *Session) SetPosition(fen string, moves []string) error {
	board, err := parseFen(fen)
	if err != nil {
		return err
	}
	hist := make(map[uint64]int)
	for _, text := range moves {
		hist[board.Hash()]++
		move, err := matchMove(&board, text)
		if err != nil {
			return err
		}
		board.Apply(move)
	}
	s.board = board
	s.gameHist = hist
	return nil
}

// Board exposes the current position, mainly for benchmarks and tests.
func (s *Session) Board() *dragon.Board {
	return &s.board
}

// Stop latches the cancellation token of the running search. Safe to
// call from any goroutine, idempotent. The latch holds until ClearStop,
// so a stop issued just before a search begins still cancels it.
func (s *Session) Stop() {
	s.ctl.Stop()
}

// ClearStop rearms the session for the next search. The front end calls
// it before launching the search goroutine, in the same goroutine that
// handles stop commands; from then on any stop belongs to the new
// search and cannot be lost.
func (s *Session) ClearStop() {
	s.ctl.clear()
}

// BestMoveNow returns the deterministic fallback move for the current
// position without searching, "0000" if the game is over.
func (s *Session) BestMoveNow() string {
	return EncodeMove(DefaultMove(&s.board))
}

func EncodeMove(m dragon.Move) string {
	if m == EmptyMove {
		return "0000"
	}
	return m.String()
}

func parseFen(fen string) (board dragon.Board, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %q", ErrBadFEN, fen)
		}
	}()
	if len(strings.Fields(fen)) != 6 {
		return board, fmt.Errorf("%w: want 6 fields: %q", ErrBadFEN, fen)
	}
	return dragon.ParseFen(fen), nil
}

func matchMove(b *dragon.Board, text string) (dragon.Move, error) {
	parsed, perr := dragon.ParseMove(text)
	for _, m := range b.GenerateLegalMoves() {
		if m.String() == text {
			return m, nil
		}
		if perr == nil && m == parsed {
			return m, nil
		}
	}
	return EmptyMove, fmt.Errorf("%w: %s", ErrIllegalMove, text)
}

// Driver is what a protocol front end needs from an engine. Session is
// the only implementation today; alternatives register themselves in
// NewDriver at compile time.
type Driver interface {
	NewGame()
	SetPosition(fen string, moves []string) error
	Think(lim Limits, progress func(Progress)) Result
	Stop()
	ClearStop()
	BestMoveNow() string
}

var _ Driver = (*Session)(nil)

func NewDriver(name string, ttSizeMB int, log zerolog.Logger) (Driver, error) {
	switch name {
	case "", "alphabeta":
		return NewSession(ttSizeMB, log), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
}
