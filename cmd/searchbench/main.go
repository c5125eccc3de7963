package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	dragon "github.com/dylhunn/dragontoothmg"
	"github.com/rs/zerolog"

	"rookery/engine"
)

func main() {
	// --- Flags ---
	depthFlag := flag.Int("depth", 8, "search depth in plies")
	repeatFlag := flag.Int("repeat", 1, "number of searches to run")
	fenFlag := flag.String("fen", "", "FEN to search (empty = startpos)")
	rolloutsFlag := flag.Int("rollouts", 0, "refinement rollouts after the search")
	movetimeFlag := flag.Int("movetime", 0, "time budget per search in ms (0 = depth only)")
	ttFlag := flag.Int("tt", 128, "transposition table size in MB")
	cpuProfile := flag.String("cpuprofile", "", "write CPU profile to file")
	memProfile := flag.String("memprofile", "", "write memory profile (heap) to file")
	flag.Parse()

	if *depthFlag <= 0 {
		log.Fatalf("depth must be positive, got %d", *depthFlag)
	}

	// --- Optional CPU profiling setup ---
	if *cpuProfile != "" {
		cpuFile, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatalf("could not create CPU profile: %v", err)
		}
		if err := pprof.StartCPUProfile(cpuFile); err != nil {
			log.Fatalf("could not start CPU profile: %v", err)
		}
		defer func() {
			pprof.StopCPUProfile()
			cpuFile.Close()
		}()
	}

	fen := dragon.Startpos
	if *fenFlag != "" {
		fen = *fenFlag
	}

	lim := engine.Limits{
		Depth:    *depthFlag,
		Rollouts: *rolloutsFlag,
		MoveTime: time.Duration(*movetimeFlag) * time.Millisecond,
	}

	fmt.Printf("searchbench: fen=%q depth=%d rollouts=%d movetime=%dms repeat=%d\n",
		fen, lim.Depth, lim.Rollouts, *movetimeFlag, *repeatFlag)

	startAll := time.Now()
	for i := 0; i < *repeatFlag; i++ {
		// Fresh session for each run, nothing carries over.
		session := engine.NewSession(*ttFlag, zerolog.Nop())
		if err := session.SetPosition(fen, nil); err != nil {
			log.Fatalf("bad fen: %v", err)
		}

		iterStart := time.Now()
		res := session.Think(lim, nil)
		iterElapsed := time.Since(iterStart)

		fmt.Printf("iteration %d: bestmove %s depth=%d nodes=%d rollouts=%d time=%v\n",
			i+1, engine.EncodeMove(res.Move), res.Depth, res.Nodes, res.Rollouts, iterElapsed)
	}
	fmt.Printf("total time: %v\n", time.Since(startAll))

	// --- Optional heap profile at the end ---
	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			log.Fatalf("could not create memory profile: %v", err)
		}
		defer f.Close()

		runtime.GC() // get up-to-date heap info
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatalf("could not write memory profile: %v", err)
		}
	}
}
