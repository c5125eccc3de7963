package bridge

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// worker is one engine process. lines() closes when the process stops
// producing output, which is how readers learn about its death.
type worker interface {
	send(line string) error
	lines() <-chan string
	kill()
	done() <-chan struct{}
}

type execWorker struct {
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	out      chan string
	closed   chan struct{}
	quit     chan struct{}
	killOnce sync.Once
}

func startExecWorker(command []string, log zerolog.Logger) (worker, error) {
	if len(command) == 0 {
		return nil, errors.New("empty worker command")
	}
	cmd := exec.Command(command[0], command[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}
	log.Info().Int("pid", cmd.Process.Pid).Strs("command", command).Msg("worker started")

	w := &execWorker{
		cmd:    cmd,
		stdin:  stdin,
		out:    make(chan string, 64),
		closed: make(chan struct{}),
		quit:   make(chan struct{}),
	}
	var g errgroup.Group
	g.Go(func() error {
		sc := bufio.NewScanner(stdout)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			// A killed worker may leave unread lines behind; quit
			// unblocks the pump so the process still gets reaped.
			select {
			case w.out <- sc.Text():
			case <-w.quit:
				close(w.out)
				return nil
			}
		}
		close(w.out)
		return sc.Err()
	})
	g.Go(func() error {
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			log.Debug().Str("stream", "stderr").Msg(sc.Text())
		}
		return sc.Err()
	})
	go func() {
		_ = g.Wait()
		err := cmd.Wait()
		log.Info().Int("pid", cmd.Process.Pid).AnErr("exit", err).Msg("worker exited")
		close(w.closed)
	}()
	return w, nil
}

func (w *execWorker) send(line string) error {
	_, err := io.WriteString(w.stdin, line+"\n")
	return err
}

func (w *execWorker) lines() <-chan string { return w.out }

func (w *execWorker) done() <-chan struct{} { return w.closed }

func (w *execWorker) kill() {
	w.killOnce.Do(func() { close(w.quit) })
	if w.cmd.Process != nil {
		_ = w.cmd.Process.Kill()
	}
}
