// Package sse drives a negotiated Server-Sent Events scope: it forces the
// mandatory text/event-stream response headers, frames each outbound event
// per the EventSource wire format, and detects peer disconnects with a
// background reader bound to the request's connection lifetime.
package sse

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/pagi-dev/pagi/pagi"
)

// Handler implements conn.SSEHandler.
type Handler struct{}

func (Handler) Serve(ctx context.Context, netConn net.Conn, bw *bufio.Writer, scope *pagi.Scope, app pagi.Application) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	peerGone := make(chan struct{})
	go watchForPeerClose(netConn, peerGone, cancel)

	conv := &conversation{bw: bw, ctx: ctx, peerGone: peerGone}
	err := app(ctx, scope, conv, conv)
	_ = bw.Flush()
	return err
}

// watchForPeerClose blocks on a one-byte read; any result (EOF, RST, or
// unexpected data we don't expect on an SSE request stream) means the peer
// is no longer listening, so the conversation's context is cancelled.
func watchForPeerClose(netConn net.Conn, done chan struct{}, cancel context.CancelFunc) {
	defer close(done)
	buf := make([]byte, 1)
	_, _ = netConn.Read(buf)
	cancel()
}

type conversation struct {
	bw          *bufio.Writer
	ctx         context.Context
	peerGone    chan struct{}
	startSent   bool
	connectSent bool
}

func (c *conversation) Receive(ctx context.Context) (pagi.Event, error) {
	if !c.connectSent {
		c.connectSent = true
		return pagi.SSEConnectEvent{}, nil
	}
	select {
	case <-c.peerGone:
		return pagi.SSEDisconnectEvent{}, nil
	case <-ctx.Done():
		return pagi.SSEDisconnectEvent{}, nil
	}
}

func (c *conversation) Send(ctx context.Context, ev pagi.Event) error {
	switch e := ev.(type) {
	case pagi.SSEStartEvent:
		return c.start(e)
	case pagi.SSESendEvent:
		return c.send(e)
	default:
		return pagi.NewError(pagi.KindInvalidState, fmt.Errorf("unexpected event %T on sse scope", ev))
	}
}

func (c *conversation) start(e pagi.SSEStartEvent) error {
	if c.startSent {
		return pagi.NewError(pagi.KindInvalidState, fmt.Errorf("sse.start sent more than once"))
	}
	c.startSent = true

	status := e.Status
	if status == 0 {
		status = 200
	}
	fmt.Fprintf(c.bw, "HTTP/1.1 %d %s\r\n", status, statusTextFallback(status))

	wroteContentType, wroteCacheControl, wroteConnection := false, false, false
	for _, h := range e.Headers {
		switch h.Name {
		case "content-type":
			wroteContentType = true
		case "cache-control":
			wroteCacheControl = true
		case "connection":
			wroteConnection = true
		}
		fmt.Fprintf(c.bw, "%s: %s\r\n", h.Name, h.Value)
	}
	// These three are mandatory: each is added when the application did not
	// supply it; an application-supplied value is written as given.
	if !wroteContentType {
		c.bw.WriteString("content-type: text/event-stream\r\n")
	}
	if !wroteCacheControl {
		c.bw.WriteString("cache-control: no-cache\r\n")
	}
	if !wroteConnection {
		c.bw.WriteString("connection: keep-alive\r\n")
	}
	c.bw.WriteString("\r\n")
	if err := c.bw.Flush(); err != nil {
		return pagi.NewError(pagi.KindIOError, err)
	}
	return nil
}

// send writes one EventSource record: an optional id/event/retry field
// followed by one "data:" line per newline-delimited segment of Data, and a
// blank line terminator.
func (c *conversation) send(e pagi.SSESendEvent) error {
	if !c.startSent {
		return pagi.NewError(pagi.KindInvalidState, fmt.Errorf("sse.send before sse.start"))
	}
	var buf strings.Builder
	if e.HasID {
		fmt.Fprintf(&buf, "id: %s\n", e.ID)
	}
	if e.HasEvent {
		fmt.Fprintf(&buf, "event: %s\n", e.Event)
	}
	if e.HasRetry {
		fmt.Fprintf(&buf, "retry: %s\n", strconv.Itoa(e.Retry))
	}
	if e.HasData {
		for _, line := range strings.Split(e.Data, "\n") {
			fmt.Fprintf(&buf, "data: %s\n", line)
		}
	}
	buf.WriteString("\n")
	if _, err := c.bw.WriteString(buf.String()); err != nil {
		return pagi.NewError(pagi.KindIOError, err)
	}
	if err := c.bw.Flush(); err != nil {
		return pagi.NewError(pagi.KindIOError, err)
	}
	return nil
}

func statusTextFallback(code int) string {
	if code == 200 {
		return "OK"
	}
	return "Status"
}
