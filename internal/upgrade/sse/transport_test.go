package sse

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagi-dev/pagi/pagi"
)

func tickerApp(ctx context.Context, scope *pagi.Scope, receive pagi.Receiver, send pagi.Sender) error {
	if _, err := receive.Receive(ctx); err != nil {
		return err
	}
	if err := send.Send(ctx, pagi.SSEStartEvent{}); err != nil {
		return err
	}
	if err := send.Send(ctx, pagi.SSESendEvent{Data: "1", HasData: true, Event: "tick", HasEvent: true}); err != nil {
		return err
	}
	return nil
}

func TestSSEHandlerFramesEvents(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	bw := bufio.NewWriter(serverConn)
	scope := &pagi.Scope{Type: pagi.TypeSSE, Path: "/events"}

	done := make(chan error, 1)
	go func() {
		done <- Handler{}.Serve(context.Background(), serverConn, bw, scope, tickerApp)
	}()

	br := bufio.NewReader(clientConn)
	statusLine, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, statusLine, "200")

	var headers []string
	for {
		line, err := br.ReadString('\n')
		require.NoError(t, err)
		if line == "\r\n" {
			break
		}
		headers = append(headers, line)
	}
	joined := strings.Join(headers, "")
	assert.Contains(t, joined, "text/event-stream")
	assert.Contains(t, joined, "no-cache")

	eventLine, _ := br.ReadString('\n')
	assert.Contains(t, eventLine, "event: tick")
	dataLine, _ := br.ReadString('\n')
	assert.Contains(t, dataLine, "data: 1")

	clientConn.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not return after client close")
	}
}
