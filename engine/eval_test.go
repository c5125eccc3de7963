package engine

import (
	"testing"

	dragon "github.com/dylhunn/dragontoothmg"
)

func TestEvaluateDeterministic(t *testing.T) {
	fens := []string{
		dragon.Startpos,
		"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
		"8/2k5/8/8/8/3K4/4P3/8 w - - 0 1",
	}
	for _, fen := range fens {
		b := dragon.ParseFen(fen)
		before := b.ToFen()
		first := Evaluate(&b)
		for i := 0; i < 3; i++ {
			if got := Evaluate(&b); got != first {
				t.Fatalf("fen %q: eval drifted from %d to %d", fen, first, got)
			}
		}
		if after := b.ToFen(); after != before {
			t.Fatalf("fen %q: evaluation mutated the board to %q", fen, after)
		}
	}
}

func TestEvaluateStalemateIsDraw(t *testing.T) {
	b := dragon.ParseFen("7k/5Q2/6K1/8/8/8/8/8 b - - 0 1")
	if got := Evaluate(&b); got != DrawScore {
		t.Fatalf("stalemate eval = %d, want %d", got, DrawScore)
	}
}

func TestEvaluateCheckmateIsMateSentinel(t *testing.T) {
	b := dragon.ParseFen("R5k1/5ppp/8/8/8/8/5PPP/6K1 b - - 1 1")
	got := Evaluate(&b)
	if got >= -Checkmate {
		t.Fatalf("checkmated side eval = %d, want below %d", got, -Checkmate)
	}
}

func TestEvaluateInsufficientMaterial(t *testing.T) {
	fens := []string{
		"8/4k3/8/8/8/8/3K4/8 w - - 0 1",  // bare kings
		"8/4k3/8/8/8/8/2NK4/8 b - - 0 1", // lone knight
		"8/4kb2/8/8/8/8/3K4/8 w - - 0 1", // lone bishop
	}
	for _, fen := range fens {
		b := dragon.ParseFen(fen)
		if got := Evaluate(&b); got != DrawScore {
			t.Fatalf("fen %q: eval = %d, want draw", fen, got)
		}
	}
	b := dragon.ParseFen("8/4k3/8/8/8/8/3KP3/8 w - - 0 1")
	if got := Evaluate(&b); got == DrawScore {
		t.Fatalf("king and pawn scored as a dead draw")
	}
}

func TestEvaluateMaterialSign(t *testing.T) {
	// Black is missing the a8 rook and it is black to move.
	b := dragon.ParseFen("1nbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR b KQk - 0 1")
	if got := Evaluate(&b); got >= 0 {
		t.Fatalf("side down a rook scored %d, want negative", got)
	}
}

func TestNonPawnMaterial(t *testing.T) {
	b := dragon.ParseFen(dragon.Startpos)
	want := 2*pieceValue[dragon.Knight] + 2*pieceValue[dragon.Bishop] +
		2*pieceValue[dragon.Rook] + pieceValue[dragon.Queen]
	if got := nonPawnMaterial(&b); got != want {
		t.Fatalf("startpos non-pawn material = %d, want %d", got, want)
	}
}
