// Package bridge supervises an engine worker process and exposes its
// line protocol as typed events. It owns the process lifecycle:
// handshake with bounded waits, a single automatic restart when the
// worker goes quiet, throttled stop requests, and post-mortem output
// capture when the process dies mid-search.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrWorkerDead = errors.New("worker process died")
	ErrHandshake  = errors.New("worker handshake failed")
	ErrNotReady   = errors.New("worker not ready")
	ErrBadRequest = errors.New("bad search request")

	errTimeout = errors.New("read timed out")
)

type Config struct {
	Command          []string
	HandshakeTimeout time.Duration // uci -> uciok, default 3s
	ReadyTimeout     time.Duration // isready -> readyok, default 2s
	StopThrottle     time.Duration // minimum gap between stops, default 100ms
	DrainTimeout     time.Duration // wait for bestmove after a lone stop, default 800ms
	Logger           zerolog.Logger
}

func (c *Config) setDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 3 * time.Second
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = 2 * time.Second
	}
	if c.StopThrottle <= 0 {
		c.StopThrottle = 100 * time.Millisecond
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 800 * time.Millisecond
	}
}

const (
	readySlice   = 250 * time.Millisecond
	searchSlice  = 5 * time.Second
	tailCapacity = 50
)

type Bridge struct {
	cfg   Config
	spawn func() (worker, error)

	mu       sync.Mutex // lifecycle, current worker, stop throttle
	w        worker
	lastStop time.Time

	// readMu serializes every read of worker stdout. Whoever holds it
	// owns the stream; Abort only drains when it can take the lock.
	readMu       sync.Mutex
	searchActive atomic.Bool

	tailMu sync.Mutex
	tail   []string
}

func New(cfg Config) *Bridge {
	cfg.setDefaults()
	br := &Bridge{cfg: cfg}
	br.spawn = func() (worker, error) {
		return startExecWorker(cfg.Command, cfg.Logger)
	}
	return br
}

// Start makes sure a handshaken worker is running. A handshake timeout
// earns exactly one respawn before the error becomes the caller's
// problem.
func (br *Bridge) Start(ctx context.Context) error {
	br.mu.Lock()
	defer br.mu.Unlock()
	return br.ensureStartedLocked(ctx)
}

func (br *Bridge) ensureStartedLocked(ctx context.Context) error {
	if br.w != nil {
		select {
		case <-br.w.done():
			br.w = nil
		default:
			return nil
		}
	}
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		w, err := br.spawn()
		if err != nil {
			return fmt.Errorf("spawn worker: %w", err)
		}
		if err := br.handshake(ctx, w); err != nil {
			w.kill()
			lastErr = err
			br.cfg.Logger.Warn().Err(err).Int("attempt", attempt).Msg("handshake failed")
			continue
		}
		br.w = w
		return nil
	}
	return fmt.Errorf("%w: %v", ErrHandshake, lastErr)
}

// handshake runs before the worker is published, so it may read the
// line channel directly.
func (br *Bridge) handshake(ctx context.Context, w worker) error {
	if err := w.send("uci"); err != nil {
		return err
	}
	timeout := time.After(br.cfg.HandshakeTimeout)
	for {
		select {
		case line, ok := <-w.lines():
			if !ok {
				return ErrWorkerDead
			}
			br.recordLine(line)
			if strings.TrimSpace(line) == "uciok" {
				return nil
			}
		case <-timeout:
			return fmt.Errorf("no uciok within %v", br.cfg.HandshakeTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// IsReady pings the worker and waits for readyok. An unresponsive
// worker is killed and respawned once; failing again is terminal.
func (br *Bridge) IsReady(ctx context.Context) error {
	for attempt := 1; attempt <= 2; attempt++ {
		br.mu.Lock()
		err := br.ensureStartedLocked(ctx)
		w := br.w
		br.mu.Unlock()
		if err != nil {
			return err
		}

		if err := w.send("isready"); err == nil {
			deadline := time.Now().Add(br.cfg.ReadyTimeout)
			for time.Now().Before(deadline) {
				slice := readySlice
				if remaining := time.Until(deadline); remaining < slice {
					slice = remaining
				}
				line, err := br.readLine(w, slice)
				if errors.Is(err, errTimeout) {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					continue
				}
				if err != nil {
					break
				}
				if strings.TrimSpace(line) == "readyok" {
					return nil
				}
			}
		}
		br.cfg.Logger.Warn().Int("attempt", attempt).Msg("worker unresponsive, restarting")
		br.killWorker()
	}
	return ErrNotReady
}

// NewGame resets the worker's session state.
func (br *Bridge) NewGame(ctx context.Context) error {
	if err := br.Start(ctx); err != nil {
		return err
	}
	br.mu.Lock()
	w := br.w
	br.mu.Unlock()
	if w == nil {
		return ErrWorkerDead
	}
	if err := w.send("ucinewgame"); err != nil {
		return err
	}
	return br.IsReady(ctx)
}

// Abort asks the worker to stop searching. Repeated aborts within the
// throttle window are dropped. The bestmove acknowledgment is drained
// only when no search loop holds the stream; an active reader will
// consume it as part of its own shutdown.
func (br *Bridge) Abort() {
	br.mu.Lock()
	w := br.w
	if w == nil {
		br.mu.Unlock()
		return
	}
	if time.Since(br.lastStop) < br.cfg.StopThrottle {
		br.mu.Unlock()
		br.cfg.Logger.Debug().Msg("stop throttled")
		return
	}
	br.lastStop = time.Now()
	br.mu.Unlock()

	if err := w.send("stop"); err != nil {
		return
	}
	if br.searchActive.Load() {
		return
	}
	if !br.readMu.TryLock() {
		return
	}
	defer br.readMu.Unlock()
	deadline := time.Now().Add(br.cfg.DrainTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		select {
		case line, ok := <-w.lines():
			if !ok {
				return
			}
			br.recordLine(line)
			if strings.HasPrefix(strings.TrimSpace(line), "bestmove") {
				return
			}
		case <-time.After(remaining):
			return
		}
	}
}

// SearchRequest describes one search. Depth and MoveTime are
// alternatives; Rollouts rides along with Depth.
type SearchRequest struct {
	FEN      string
	Moves    []string
	Depth    int
	Rollouts int
	MoveTime time.Duration
}

var moveRe = regexp.MustCompile(`^[a-h][1-8][a-h][1-8][nbrq]?$`)

func (req *SearchRequest) validate() error {
	if req.FEN != "" && req.FEN != "startpos" && len(strings.Fields(req.FEN)) != 6 {
		return fmt.Errorf("%w: fen %q", ErrBadRequest, req.FEN)
	}
	for _, m := range req.Moves {
		if !moveRe.MatchString(m) {
			return fmt.Errorf("%w: move %q", ErrBadRequest, m)
		}
	}
	if req.Depth <= 0 && req.MoveTime <= 0 {
		return fmt.Errorf("%w: needs depth or movetime", ErrBadRequest)
	}
	return nil
}

func (req *SearchRequest) positionCommand() string {
	var sb strings.Builder
	sb.WriteString("position ")
	if req.FEN == "" || req.FEN == "startpos" {
		sb.WriteString("startpos")
	} else {
		sb.WriteString("fen ")
		sb.WriteString(req.FEN)
	}
	if len(req.Moves) > 0 {
		sb.WriteString(" moves ")
		sb.WriteString(strings.Join(req.Moves, " "))
	}
	return sb.String()
}

func (req *SearchRequest) goCommand() string {
	if req.MoveTime > 0 {
		return fmt.Sprintf("go movetime %d", req.MoveTime.Milliseconds())
	}
	if req.Rollouts > 0 {
		return fmt.Sprintf("go depth %d rollouts %d", req.Depth, req.Rollouts)
	}
	return fmt.Sprintf("go depth %d", req.Depth)
}

// Search streams worker output for one search as events. The channel
// closes after a done or error event. Canceling ctx aborts the worker
// search and closes the stream.
func (br *Bridge) Search(ctx context.Context, req SearchRequest) <-chan Event {
	events := make(chan Event, 16)
	go br.runSearch(ctx, req, events)
	return events
}

func (br *Bridge) runSearch(ctx context.Context, req SearchRequest, events chan<- Event) {
	defer close(events)
	fail := func(err error) {
		events <- Event{Type: EventError, Message: err.Error()}
	}

	if err := req.validate(); err != nil {
		fail(err)
		return
	}
	if err := br.Start(ctx); err != nil {
		fail(err)
		return
	}
	// The worker may still be busy with an earlier search.
	br.Abort()

	w, err := br.preparePosition(ctx, req)
	if err != nil {
		fail(err)
		return
	}
	if err := w.send(req.goCommand()); err != nil {
		fail(err)
		return
	}

	br.searchActive.Store(true)
	defer br.searchActive.Store(false)

	for {
		if ctx.Err() != nil {
			br.Abort()
			return
		}
		line, err := br.readLine(w, searchSlice)
		if errors.Is(err, errTimeout) {
			continue
		}
		if err != nil {
			events <- Event{
				Type:    EventError,
				Message: ErrWorkerDead.Error(),
				Text:    strings.Join(br.lastLines(), "\n"),
			}
			return
		}
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "info string "):
			events <- Event{Type: EventInfo, Text: strings.TrimPrefix(trimmed, "info string ")}
		case strings.HasPrefix(trimmed, "info"):
			events <- parseInfo(trimmed)
		case strings.HasPrefix(trimmed, "bestmove"):
			move := "0000"
			if fields := strings.Fields(trimmed); len(fields) > 1 {
				move = fields[1]
			}
			events <- Event{Type: EventBestMove, Move: move}
			events <- Event{Type: EventDone}
			return
		}
	}
}

// preparePosition sends the position and confirms readiness. If the
// readiness probe had to restart the worker, the fresh process lost
// the position, so it is sent again and confirmed once more.
func (br *Bridge) preparePosition(ctx context.Context, req SearchRequest) (worker, error) {
	for attempt := 1; attempt <= 2; attempt++ {
		br.mu.Lock()
		w := br.w
		br.mu.Unlock()
		if w == nil {
			return nil, ErrWorkerDead
		}
		if err := w.send(req.positionCommand()); err != nil {
			return nil, err
		}
		if err := br.IsReady(ctx); err != nil {
			return nil, err
		}
		br.mu.Lock()
		same := br.w == w
		br.mu.Unlock()
		if same {
			return w, nil
		}
	}
	return nil, ErrNotReady
}

// Close shuts the worker down, politely first.
func (br *Bridge) Close() error {
	br.mu.Lock()
	w := br.w
	br.w = nil
	br.mu.Unlock()
	if w == nil {
		return nil
	}
	_ = w.send("quit")
	select {
	case <-w.done():
	case <-time.After(500 * time.Millisecond):
		w.kill()
	}
	return nil
}

func (br *Bridge) killWorker() {
	br.mu.Lock()
	defer br.mu.Unlock()
	if br.w != nil {
		br.w.kill()
		br.w = nil
	}
}

// readLine hands out lines from worker stdout under the read lock.
func (br *Bridge) readLine(w worker, timeout time.Duration) (string, error) {
	br.readMu.Lock()
	defer br.readMu.Unlock()
	select {
	case line, ok := <-w.lines():
		if !ok {
			return "", ErrWorkerDead
		}
		br.recordLine(line)
		return line, nil
	case <-time.After(timeout):
		return "", errTimeout
	}
}

func (br *Bridge) recordLine(line string) {
	br.tailMu.Lock()
	defer br.tailMu.Unlock()
	br.tail = append(br.tail, line)
	if len(br.tail) > tailCapacity {
		br.tail = br.tail[len(br.tail)-tailCapacity:]
	}
}

// lastLines is the recent worker output, kept for post-mortems.
func (br *Bridge) lastLines() []string {
	br.tailMu.Lock()
	defer br.tailMu.Unlock()
	return append([]string(nil), br.tail...)
}
