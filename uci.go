package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	dragon "github.com/dylhunn/dragontoothmg"

	"rookery/engine"
	"rookery/logx"
)

const ttSizeMB = 128

func main() {
	uciLoop(os.Stdin, os.Stdout)
}

func uciLoop(in io.Reader, out io.Writer) {
	log := logx.NewLogger(os.Stderr)
	driver, err := engine.NewDriver("alphabeta", ttSizeMB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("no engine available")
	}

	// One search goroutine at a time; stop latches its token and the
	// goroutine itself prints the single bestmove on the way out.
	var wg sync.WaitGroup
	stopSearch := func() {
		driver.Stop()
		wg.Wait()
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		tokens := strings.Fields(line)
		if len(tokens) == 0 { // ignore blank lines
			continue
		}
		switch strings.ToLower(tokens[0]) {
		case "uci":
			fmt.Fprintln(out, "id name Rookery 0.3")
			fmt.Fprintln(out, "id author the rookery authors")
			fmt.Fprintln(out, "uciok")
		case "isready":
			fmt.Fprintln(out, "readyok")
		case "ucinewgame":
			stopSearch()
			driver.NewGame()
		case "position":
			stopSearch()
			fen, moves, err := parsePosition(tokens)
			if err != nil {
				fmt.Fprintln(out, "info string Malformed position command:", err)
				continue
			}
			if err := driver.SetPosition(fen, moves); err != nil {
				fmt.Fprintln(out, "info string Position rejected:", err)
			}
		case "go":
			stopSearch()
			lim, err := parseGoLine(tokens)
			if err != nil {
				fmt.Fprintln(out, "info string Malformed go command:", err)
				continue
			}
			// Rearm here, in the command loop: a stop that raced an
			// earlier search is spent, and any stop read after this
			// line targets the search launched below.
			driver.ClearStop()
			wg.Add(1)
			go func() {
				defer wg.Done()
				res := driver.Think(lim, func(p engine.Progress) {
					fmt.Fprintln(out, progressLine(p))
				})
				fmt.Fprintln(out, "bestmove", engine.EncodeMove(res.Move))
			}()
		case "stop":
			stopSearch()
		case "quit":
			stopSearch()
			return
		default:
			fmt.Fprintln(out, "info string Unknown command:", tokens[0])
		}
	}
}

func parsePosition(tokens []string) (fen string, moves []string, err error) {
	if len(tokens) < 2 {
		return "", nil, fmt.Errorf("want startpos or fen")
	}
	rest := 2
	switch tokens[1] {
	case "startpos":
		fen = dragon.Startpos
	case "fen":
		if len(tokens) < 8 {
			return "", nil, fmt.Errorf("fen needs 6 fields")
		}
		fen = strings.Join(tokens[2:8], " ")
		rest = 8
	default:
		return "", nil, fmt.Errorf("unexpected token %q", tokens[1])
	}
	if rest < len(tokens) {
		if tokens[rest] != "moves" {
			return "", nil, fmt.Errorf("unexpected token %q", tokens[rest])
		}
		moves = tokens[rest+1:]
	}
	return fen, moves, nil
}

func parseGoLine(tokens []string) (engine.Limits, error) {
	var lim engine.Limits
	for i := 1; i < len(tokens); i++ {
		switch strings.ToLower(tokens[i]) {
		case "depth":
			i++
			if i >= len(tokens) {
				return lim, fmt.Errorf("depth needs a value")
			}
			n, err := strconv.Atoi(tokens[i])
			if err != nil || n < 1 {
				return lim, fmt.Errorf("bad depth %q", tokens[i])
			}
			lim.Depth = n
		case "rollouts":
			i++
			if i >= len(tokens) {
				return lim, fmt.Errorf("rollouts needs a value")
			}
			n, err := strconv.Atoi(tokens[i])
			if err != nil || n < 0 {
				return lim, fmt.Errorf("bad rollouts %q", tokens[i])
			}
			lim.Rollouts = n
		case "movetime":
			i++
			if i >= len(tokens) {
				return lim, fmt.Errorf("movetime needs a value")
			}
			n, err := strconv.Atoi(tokens[i])
			if err != nil || n < 1 {
				return lim, fmt.Errorf("bad movetime %q", tokens[i])
			}
			lim.MoveTime = time.Duration(n) * time.Millisecond
		case "infinite":
			lim.Depth = int(engine.MaxDepth)
		default:
			return lim, fmt.Errorf("unknown option %q", tokens[i])
		}
	}
	return lim, nil
}

func progressLine(p engine.Progress) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "info depth %d nodes %d nps %d score %s", p.Depth, p.Nodes, p.NPS, scoreString(p.Score))
	if len(p.PV) > 0 {
		sb.WriteString(" pv")
		for _, m := range p.PV {
			sb.WriteString(" ")
			sb.WriteString(engine.EncodeMove(m))
		}
	}
	return sb.String()
}

func scoreString(score int32) string {
	if score > engine.Checkmate {
		plies := engine.MaxScore - score
		return fmt.Sprintf("mate %d", (plies+1)/2)
	}
	if score < -engine.Checkmate {
		plies := engine.MaxScore + score
		return fmt.Sprintf("mate -%d", (plies+1)/2)
	}
	return fmt.Sprintf("cp %d", score)
}
