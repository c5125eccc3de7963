// Command bridge supervises an engine worker and runs one search over
// it, printing the event stream as JSON lines. Useful for poking at
// the bridge without a client in front of it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"rookery/bridge"
	"rookery/logx"
)

func main() {
	engineCmd := flag.String("engine", "./rookery", "worker command line")
	fen := flag.String("fen", "startpos", "position to search")
	moves := flag.String("moves", "", "space separated moves after the position")
	depth := flag.Int("depth", 6, "search depth")
	rollouts := flag.Int("rollouts", 0, "refinement rollouts")
	movetime := flag.Int("movetime", 0, "time budget in ms (overrides depth)")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall deadline")
	flag.Parse()

	log := logx.NewLogger(os.Stderr)

	br := bridge.New(bridge.Config{
		Command: strings.Fields(*engineCmd),
		Logger:  log,
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := br.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("could not start worker")
	}

	req := bridge.SearchRequest{
		FEN:      *fen,
		Depth:    *depth,
		Rollouts: *rollouts,
		MoveTime: time.Duration(*movetime) * time.Millisecond,
	}
	if *moves != "" {
		req.Moves = strings.Fields(*moves)
	}

	exitCode := 0
	for ev := range br.Search(ctx, req) {
		line, err := json.Marshal(ev)
		if err != nil {
			log.Error().Err(err).Msg("could not encode event")
			continue
		}
		fmt.Println(string(line))
		if ev.Type == bridge.EventError {
			exitCode = 1
		}
	}
	if err := br.Close(); err != nil {
		log.Warn().Err(err).Msg("worker shutdown")
	}
	os.Exit(exitCode)
}
