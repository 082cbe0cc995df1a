package worker

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pagi-dev/pagi/internal/conn"
)

// ConnFactory builds a conn.Connection for one accepted net.Conn. It is the
// worker's seam into the HTTP/WebSocket/SSE machinery in package conn.
type ConnFactory func(net.Conn) *conn.Connection

// Process runs one worker's accept loop: it serves connections until ctx is
// cancelled or, when maxRequests > 0, until that many HTTP conversations
// have completed, after which it stops accepting and drains in-flight
// connections before returning. The budget is checked after each accepted
// connection, so one further connection is accepted and served before the
// listener closes.
type Process struct {
	listener    net.Listener
	factory     ConnFactory
	maxRequests int64
	logger      *slog.Logger

	served atomic.Int64
	wg     sync.WaitGroup
}

func NewProcess(listener net.Listener, factory ConnFactory, maxRequests int64, logger *slog.Logger) *Process {
	return &Process{listener: listener, factory: factory, maxRequests: maxRequests, logger: logger}
}

// Serve accepts connections until ctx is cancelled or the per-process
// request budget is exhausted. In the latter case, on the first Accept that
// returns after exhaustion, it closes its own listener and returns once
// in-flight connections drain (that accepted connection included), so the caller's
// process exits and a supervisor sees it as an ordinary worker exit to
// respawn rather than having to signal it externally.
func (p *Process) Serve(ctx context.Context) {
	go func() {
		<-ctx.Done()
		_ = p.listener.Close()
	}()

	for {
		netConn, err := p.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}
			p.logger.Warn("accept error", "error", err)
			continue
		}
		p.wg.Add(1)
		go p.handle(ctx, netConn)

		if p.ShouldRespawnSoon() {
			p.logger.Info("worker request budget exhausted, closing listener", "served", p.served.Load())
			_ = p.listener.Close()
			break
		}
	}
	p.wg.Wait()
}

func (p *Process) handle(ctx context.Context, netConn net.Conn) {
	defer p.wg.Done()
	c := p.factory(netConn)
	c.Serve(ctx)
}

// ShouldRespawnSoon reports whether this process has reached its configured
// max_requests budget, the signal Serve uses to stop accepting and the
// caller's process loop uses to know a respawn is imminent rather than an
// unexpected exit.
func (p *Process) ShouldRespawnSoon() bool {
	if p.maxRequests <= 0 {
		return false
	}
	return p.served.Load() >= p.maxRequests
}

// RecordRequest is called by the access logger hook once per completed HTTP
// conversation so the process can track its own budget.
func (p *Process) RecordRequest() { p.served.Add(1) }

// WaitGraceful blocks until all in-flight connections finish or the grace
// period elapses.
func (p *Process) WaitGraceful(grace time.Duration) {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
	}
}
