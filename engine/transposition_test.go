package engine

import (
	"testing"

	dragon "github.com/dylhunn/dragontoothmg"
)

func mustMove(t *testing.T, s string) dragon.Move {
	t.Helper()
	m, err := dragon.ParseMove(s)
	if err != nil {
		t.Fatalf("bad move %q: %v", s, err)
	}
	return m
}

func TestStoreProbeRoundTrip(t *testing.T) {
	tt := NewTransTable(1)
	move := mustMove(t, "e2e4")
	tt.Store(0xdeadbeef, move, 42, 5, 0, ExactBound)

	e, ok := tt.Probe(0xdeadbeef)
	if !ok {
		t.Fatalf("stored entry not found")
	}
	if e.Move != move || e.Score != 42 || e.Depth != 5 || e.Bound != ExactBound {
		t.Fatalf("round trip mangled the entry: %+v", e)
	}
	if _, ok := tt.Probe(0xfeedface); ok {
		t.Fatalf("probe invented an entry")
	}
}

func TestShallowerResultDoesNotReplace(t *testing.T) {
	tt := NewTransTable(1)
	tt.Store(1, mustMove(t, "e2e4"), 42, 5, 0, ExactBound)
	tt.Store(1, mustMove(t, "d2d4"), 7, 3, 0, ExactBound)

	e, _ := tt.Probe(1)
	if e.Score != 42 || e.Depth != 5 {
		t.Fatalf("shallow result overwrote a deeper one: %+v", e)
	}

	tt.Store(1, mustMove(t, "d2d4"), 7, 7, 0, ExactBound)
	e, _ = tt.Probe(1)
	if e.Score != 7 || e.Depth != 7 {
		t.Fatalf("deeper result was not stored: %+v", e)
	}
}

func TestStaleGenerationIsReplaced(t *testing.T) {
	tt := NewTransTable(1)
	tt.Store(1, mustMove(t, "e2e4"), 42, 9, 0, ExactBound)
	tt.NextGeneration()
	tt.Store(1, mustMove(t, "d2d4"), 7, 1, 0, ExactBound)

	e, _ := tt.Probe(1)
	if e.Score != 7 || e.Depth != 1 {
		t.Fatalf("stale entry survived a new-generation store: %+v", e)
	}
}

func TestMateScoreRebasedAcrossPlies(t *testing.T) {
	tt := NewTransTable(1)
	// Mate scored 10 plies out from the root, found at ply 3.
	tt.Store(1, mustMove(t, "e2e4"), MaxScore-10, 8, 3, ExactBound)

	e, ok := tt.Probe(1)
	if !ok {
		t.Fatalf("entry not found")
	}
	score, usable := tt.Use(e, -MaxScore, MaxScore, 5)
	if !usable {
		t.Fatalf("exact entry not usable")
	}
	if want := MaxScore - 12; score != want {
		t.Fatalf("rebased mate score = %d, want %d", score, want)
	}
}

func TestUseRespectsBounds(t *testing.T) {
	tt := NewTransTable(1)
	move := mustMove(t, "e2e4")

	tt.Store(1, move, 100, 5, 0, LowerBound)
	e, _ := tt.Probe(1)
	if _, usable := tt.Use(e, -50, 50, 0); !usable {
		t.Fatalf("lower bound above beta should cut off")
	}
	if _, usable := tt.Use(e, -50, 200, 0); usable {
		t.Fatalf("lower bound inside the window must not cut off")
	}

	tt.Store(2, move, -100, 5, 0, UpperBound)
	e, _ = tt.Probe(2)
	if _, usable := tt.Use(e, -50, 50, 0); !usable {
		t.Fatalf("upper bound below alpha should cut off")
	}
	if _, usable := tt.Use(e, -200, 50, 0); usable {
		t.Fatalf("upper bound inside the window must not cut off")
	}
}
