// Package worker implements PAGI's multi-process worker model: the master
// process binds the listening socket once, then forks N worker processes
// that each inherit it via ExtraFiles (the classic Unix FD-handoff pattern
// a graceful-restart tool uses to hand a live listener to a freshly exec'd
// child). Each worker process serves its own connections with a
// goroutine-per-connection model rather than a single-threaded scheduler.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	envWorkerFlag = "PAGI_WORKER"
	envListenerFD = "PAGI_LISTENER_FD"
	listenerFD    = 3 // first ExtraFile after stdin/stdout/stderr
)

// IsWorkerProcess reports whether the current process was exec'd by a
// Supervisor as a worker (vs. being the master / a single-process run).
func IsWorkerProcess() bool {
	return os.Getenv(envWorkerFlag) == "1"
}

// InheritedListener reconstructs the listener passed down via ExtraFiles.
// Only valid when IsWorkerProcess() is true.
func InheritedListener() (net.Listener, error) {
	f := os.NewFile(uintptr(listenerFD), "pagi-listener")
	if f == nil {
		return nil, fmt.Errorf("worker: inherited fd %d is not open", listenerFD)
	}
	ln, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("worker: reconstruct listener: %w", err)
	}
	return ln, nil
}

// Supervisor owns the bound listener and a pool of worker processes.
type Supervisor struct {
	listener *net.TCPListener
	count    int
	logger   *slog.Logger

	respawnLimiter *rate.Limiter

	mu      sync.Mutex
	workers map[int]*exec.Cmd
}

// NewSupervisor binds addr and prepares to run count worker processes.
// Respawns share one pool-wide limit of one per second, with a burst of
// count; the limit is not tracked per worker slot.
func NewSupervisor(addr string, count int, logger *slog.Logger) (*Supervisor, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}
	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return nil, err
	}
	return &Supervisor{
		listener:       ln,
		count:          count,
		logger:         logger,
		respawnLimiter: rate.NewLimiter(rate.Every(time.Second), count),
		workers:        make(map[int]*exec.Cmd),
	}, nil
}

// Run launches count worker processes and supervises them until ctx is
// cancelled, at which point every worker receives SIGINT and Run waits for
// them to exit (bounded by gracePeriod, after which they are killed).
func (s *Supervisor) Run(ctx context.Context, gracePeriod time.Duration) error {
	lf, err := s.listener.File()
	if err != nil {
		return fmt.Errorf("supervisor: dup listener fd: %w", err)
	}
	defer lf.Close()

	exited := make(chan int, s.count)
	for i := 0; i < s.count; i++ {
		if err := s.spawn(lf, exited); err != nil {
			return fmt.Errorf("supervisor: spawn worker %d: %w", i, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			s.terminateAll(gracePeriod)
			return nil
		case pid := <-exited:
			s.mu.Lock()
			delete(s.workers, pid)
			s.mu.Unlock()
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if err := s.respawnLimiter.Wait(ctx); err != nil {
				return nil
			}
			s.logger.Warn("worker exited, respawning", "pid", pid)
			if err := s.spawn(lf, exited); err != nil {
				s.logger.Error("failed to respawn worker", "error", err)
			}
		}
	}
}

func (s *Supervisor) spawn(lf *os.File, exited chan<- int) error {
	cmd := exec.Command(os.Args[0], os.Args[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), envWorkerFlag+"=1")
	cmd.ExtraFiles = []*os.File{lf}

	if err := cmd.Start(); err != nil {
		return err
	}

	s.mu.Lock()
	s.workers[cmd.Process.Pid] = cmd
	s.mu.Unlock()

	go func() {
		_ = cmd.Wait()
		exited <- cmd.Process.Pid
	}()
	return nil
}

func (s *Supervisor) terminateAll(gracePeriod time.Duration) {
	s.mu.Lock()
	cmds := make([]*exec.Cmd, 0, len(s.workers))
	for _, cmd := range s.workers {
		cmds = append(cmds, cmd)
	}
	s.mu.Unlock()

	for _, cmd := range cmds {
		_ = cmd.Process.Signal(os.Interrupt)
	}

	done := make(chan struct{})
	go func() {
		for _, cmd := range cmds {
			_ = cmd.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(gracePeriod):
		for _, cmd := range cmds {
			_ = cmd.Process.Kill()
		}
	}
}
