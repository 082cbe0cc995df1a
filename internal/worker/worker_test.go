package worker

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagi-dev/pagi/internal/conn"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProcessStopsAcceptingAfterMaxRequests(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()

	p := NewProcess(ln, func(netConn net.Conn) *conn.Connection {
		netConn.Close()
		return conn.New(netConn, conn.Options{})
	}, 1, discardLogger())

	done := make(chan struct{})
	go func() {
		p.Serve(context.Background())
		close(done)
	}()

	p.RecordRequest()
	assert.True(t, p.ShouldRespawnSoon())

	// One more accepted connection is what Serve's loop checks the budget
	// against; it should close its own listener and return on its own,
	// with no external cancellation needed.
	extra, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	extra.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not self-exit after exhausting the request budget")
	}
}

func TestProcessWaitGracefulReturnsOnTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	p := NewProcess(ln, func(netConn net.Conn) *conn.Connection {
		return conn.New(netConn, conn.Options{})
	}, 0, discardLogger())

	start := time.Now()
	p.WaitGraceful(50 * time.Millisecond)
	assert.Less(t, time.Since(start), time.Second)
}

func TestIsWorkerProcess(t *testing.T) {
	t.Setenv(envWorkerFlag, "")
	assert.False(t, IsWorkerProcess())
	t.Setenv(envWorkerFlag, "1")
	assert.True(t, IsWorkerProcess())
}
