// Package websocket upgrades a negotiated websocket Scope into a full-duplex
// PAGI conversation. It reuses gorilla/websocket's RFC 6455 handshake and
// frame codec by feeding it a minimal http.Hijacker shim over the net.Conn
// the connection state machine already owns, rather than reimplementing
// masking and frame parsing.
//
// The application is invoked exactly once, synchronously, the same way it
// is for an HTTP conversation: it drives its own receive/send loop, and the
// real RFC 6455 handshake (and the Sec-WebSocket-Accept computation) only
// happens the moment the application sends websocket.accept.
package websocket

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pagi-dev/pagi/pagi"
)

// Upgrader adapts gorilla's websocket.Upgrader to PAGI's connection
// lifecycle, implementing conn.WebSocketUpgrader.
type Upgrader struct {
	MaxFrameSize int64
}

// Ping/pong timings for the keepalive pump.
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// hijackShim is a one-shot http.ResponseWriter/http.Hijacker: it never
// buffers a response itself, it exists only so websocket.Upgrader can call
// Hijack() and take over the connection's already-open net.Conn/bufio pair.
type hijackShim struct {
	netConn net.Conn
	rw      *bufio.ReadWriter
	header  http.Header
}

func newHijackShim(netConn net.Conn, br *bufio.Reader, bw *bufio.Writer) *hijackShim {
	return &hijackShim{netConn: netConn, rw: bufio.NewReadWriter(br, bw), header: make(http.Header)}
}

func (h *hijackShim) Header() http.Header         { return h.header }
func (h *hijackShim) Write(b []byte) (int, error) { return h.rw.Write(b) }
func (h *hijackShim) WriteHeader(int)             {}
func (h *hijackShim) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return h.netConn, h.rw, nil
}

func (u *Upgrader) maxFrameSize() int64 {
	if u.MaxFrameSize > 0 {
		return u.MaxFrameSize
	}
	return 1 << 20
}

// Upgrade runs the websocket conversation end to end: it builds a
// conversation object that defers the actual RFC 6455 handshake until the
// application calls send(websocket.accept), then calls the application.
func (u *Upgrader) Upgrade(ctx context.Context, netConn net.Conn, br *bufio.Reader, bw *bufio.Writer, scope *pagi.Scope, app pagi.Application) error {
	req := &http.Request{
		Method: "GET",
		URL:    &url.URL{Path: scope.Path, RawQuery: string(scope.QueryString)},
		Proto:  scope.HTTPVersion,
		Header: make(http.Header),
		Host:   scope.Server.Host,
	}
	for _, h := range scope.Headers {
		req.Header.Add(h.Name, string(h.Value))
	}

	gorillaUpgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(*http.Request) bool { return true },
		Subprotocols:    scope.Subprotocols,
	}

	shim := newHijackShim(netConn, br, bw)
	conv := &conversation{
		req:          req,
		shim:         shim,
		bw:           bw,
		upgrader:     gorillaUpgrader,
		maxFrameSize: u.maxFrameSize(),
	}
	return app(ctx, scope, conv, conv)
}
