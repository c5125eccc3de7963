package bridge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// scriptWorker stands in for an engine process. Its handle function
// sees every line the bridge sends and may script replies; a worker
// with no handler plays dead.
type scriptWorker struct {
	out    chan string
	closed chan struct{}
	handle func(line string)

	mu     sync.Mutex
	sent   []string
	killed bool
}

func newScriptWorker() *scriptWorker {
	return &scriptWorker{
		out:    make(chan string, 64),
		closed: make(chan struct{}),
	}
}

func (w *scriptWorker) send(line string) error {
	w.mu.Lock()
	w.sent = append(w.sent, line)
	w.mu.Unlock()
	if w.handle != nil {
		w.handle(line)
	}
	return nil
}

func (w *scriptWorker) lines() <-chan string  { return w.out }
func (w *scriptWorker) done() <-chan struct{} { return w.closed }

func (w *scriptWorker) kill() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.killed {
		return
	}
	w.killed = true
	close(w.closed)
	close(w.out)
}

func (w *scriptWorker) countSent(prefix string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, line := range w.sent {
		if strings.HasPrefix(line, prefix) {
			n++
		}
	}
	return n
}

func obedient() *scriptWorker {
	w := newScriptWorker()
	w.handle = func(line string) {
		switch {
		case line == "uci":
			w.out <- "id name scripted"
			w.out <- "uciok"
		case line == "isready":
			w.out <- "readyok"
		case strings.HasPrefix(line, "go"):
			w.out <- "info depth 1 nodes 10 nps 100 score cp 12 pv e2e4"
			w.out <- "bestmove e2e4"
		case line == "stop":
			w.out <- "bestmove 0000"
		case line == "quit":
			w.kill()
		}
	}
	return w
}

func newTestBridge(spawn func() (worker, error)) *Bridge {
	br := New(Config{
		Command:          []string{"scripted"},
		HandshakeTimeout: 50 * time.Millisecond,
		ReadyTimeout:     50 * time.Millisecond,
		StopThrottle:     100 * time.Millisecond,
		DrainTimeout:     30 * time.Millisecond,
		Logger:           zerolog.Nop(),
	})
	br.spawn = spawn
	return br
}

func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("event stream never closed, got %v", events)
		}
	}
}

func TestHandshakeRestartsOnce(t *testing.T) {
	var workers []*scriptWorker
	br := newTestBridge(func() (worker, error) {
		w := newScriptWorker() // deaf, never answers the handshake
		if len(workers) == 1 {
			w = obedient()
		}
		workers = append(workers, w)
		return w, nil
	})

	if err := br.Start(context.Background()); err != nil {
		t.Fatalf("start after one restart: %v", err)
	}
	if len(workers) != 2 {
		t.Fatalf("spawned %d workers, want 2", len(workers))
	}
	if !workers[0].killed {
		t.Fatalf("unresponsive worker was not killed")
	}
}

func TestHandshakeGivesUpAfterOneRestart(t *testing.T) {
	spawned := 0
	br := newTestBridge(func() (worker, error) {
		spawned++
		return newScriptWorker(), nil // always deaf
	})

	err := br.Start(context.Background())
	if !errors.Is(err, ErrHandshake) {
		t.Fatalf("err = %v, want handshake failure", err)
	}
	if spawned != 2 {
		t.Fatalf("spawned %d workers, want exactly 2", spawned)
	}
}

func TestAbortThrottlesRepeatedStops(t *testing.T) {
	w := obedient()
	br := newTestBridge(func() (worker, error) { return w, nil })
	if err := br.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	br.Abort()
	br.Abort() // within the throttle window, must be dropped
	if got := w.countSent("stop"); got != 1 {
		t.Fatalf("worker saw %d stop commands, want 1", got)
	}
}

func TestSearchEventStream(t *testing.T) {
	w := obedient()
	br := newTestBridge(func() (worker, error) { return w, nil })

	events := collect(t, br.Search(context.Background(), SearchRequest{FEN: "startpos", Depth: 1}))
	if len(events) != 3 {
		t.Fatalf("got %d events %v, want info+bestmove+done", len(events), events)
	}

	info := events[0]
	if info.Type != EventInfo || info.Depth != 1 || info.Nodes != 10 || info.NPS != 100 {
		t.Fatalf("bad info event: %+v", info)
	}
	if info.ScoreCP == nil || *info.ScoreCP != 12 {
		t.Fatalf("bad info score: %+v", info)
	}
	if len(info.PV) != 1 || info.PV[0] != "e2e4" {
		t.Fatalf("bad info pv: %+v", info)
	}
	if events[1].Type != EventBestMove || events[1].Move != "e2e4" {
		t.Fatalf("bad bestmove event: %+v", events[1])
	}
	if events[2].Type != EventDone {
		t.Fatalf("bad final event: %+v", events[2])
	}
}

func TestSearchReportsWorkerDeath(t *testing.T) {
	w := newScriptWorker()
	w.handle = func(line string) {
		switch {
		case line == "uci":
			w.out <- "uciok"
		case line == "isready":
			w.out <- "readyok"
		case strings.HasPrefix(line, "go"):
			w.out <- "info depth 1 nodes 10 nps 100 score cp 12 pv e2e4"
			w.kill()
		}
	}
	br := newTestBridge(func() (worker, error) { return w, nil })

	events := collect(t, br.Search(context.Background(), SearchRequest{FEN: "startpos", Depth: 1}))
	last := events[len(events)-1]
	if last.Type != EventError || last.Message != ErrWorkerDead.Error() {
		t.Fatalf("death not reported: %+v", last)
	}
	if !strings.Contains(last.Text, "info depth 1") {
		t.Fatalf("post-mortem is missing recent output: %q", last.Text)
	}
}

func TestIsReadyRestartsUnresponsiveWorker(t *testing.T) {
	var workers []*scriptWorker
	br := newTestBridge(func() (worker, error) {
		w := obedient()
		if len(workers) == 0 {
			// First worker handshakes fine but ignores pings.
			w = newScriptWorker()
			w.handle = func(line string) {
				if line == "uci" {
					w.out <- "uciok"
				}
			}
		}
		workers = append(workers, w)
		return w, nil
	})

	ctx := context.Background()
	if err := br.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := br.IsReady(ctx); err != nil {
		t.Fatalf("isready after restart: %v", err)
	}
	if len(workers) != 2 {
		t.Fatalf("spawned %d workers, want 2", len(workers))
	}
	if !workers[0].killed {
		t.Fatalf("unresponsive worker was not killed")
	}
}

func TestSearchValidatesRequests(t *testing.T) {
	cases := []SearchRequest{
		{FEN: "not a real fen", Depth: 3},
		{FEN: "startpos", Moves: []string{"e9x9"}, Depth: 3},
		{FEN: "startpos"}, // neither depth nor movetime
	}
	for _, req := range cases {
		br := newTestBridge(func() (worker, error) {
			return nil, errors.New("spawn must not be reached")
		})
		events := collect(t, br.Search(context.Background(), req))
		if len(events) != 1 || events[0].Type != EventError {
			t.Fatalf("request %+v: events %v, want a single error", req, events)
		}
		if !strings.Contains(events[0].Message, ErrBadRequest.Error()) {
			t.Fatalf("request %+v: unexpected message %q", req, events[0].Message)
		}
	}
}

func TestNewGame(t *testing.T) {
	w := obedient()
	br := newTestBridge(func() (worker, error) { return w, nil })

	if err := br.NewGame(context.Background()); err != nil {
		t.Fatalf("newgame: %v", err)
	}
	if got := w.countSent("ucinewgame"); got != 1 {
		t.Fatalf("worker saw %d ucinewgame commands, want 1", got)
	}
}

func TestKilledWorkerReapedWithUnreadOutput(t *testing.T) {
	// cat echoes everything back; nobody reads, so the stdout pump
	// fills its buffer and blocks. Kill must still reap the process.
	w, err := startExecWorker([]string{"cat"}, zerolog.Nop())
	if err != nil {
		t.Skipf("cannot start cat: %v", err)
	}
	for i := 0; i < 200; i++ {
		if err := w.send("ping"); err != nil {
			break
		}
	}
	w.kill()
	select {
	case <-w.done():
	case <-time.After(2 * time.Second):
		t.Fatalf("killed worker with unread output was never reaped")
	}
}

func TestParseInfo(t *testing.T) {
	ev := parseInfo("info depth 3 nodes 1234 nps 99 score cp -20 pv e2e4 e7e5")
	if ev.Depth != 3 || ev.Nodes != 1234 || ev.NPS != 99 {
		t.Fatalf("bad counters: %+v", ev)
	}
	if ev.ScoreCP == nil || *ev.ScoreCP != -20 || ev.Mate != nil {
		t.Fatalf("bad score: %+v", ev)
	}
	if len(ev.PV) != 2 || ev.PV[0] != "e2e4" || ev.PV[1] != "e7e5" {
		t.Fatalf("bad pv: %+v", ev)
	}

	ev = parseInfo("info depth 5 score mate -3")
	if ev.Mate == nil || *ev.Mate != -3 || ev.ScoreCP != nil {
		t.Fatalf("bad mate score: %+v", ev)
	}

	ev = parseInfo("info string something went sideways")
	if ev.Text != "something went sideways" {
		t.Fatalf("bad string payload: %+v", ev)
	}
}
