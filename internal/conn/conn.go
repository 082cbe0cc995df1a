// Package conn implements the per-connection state machine that turns a raw
// net.Conn into a sequence of PAGI conversations: request-line and header
// parsing, body framing, response writing, and HTTP/1.1 pipelining with
// keep-alive. WebSocket and SSE upgrades are delegated to pluggable
// handlers so this package stays focused on the wire-level HTTP mechanics.
package conn

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/pagi-dev/pagi/internal/codec"
	"github.com/pagi-dev/pagi/pagi"
)

// WebSocketUpgrader takes over a connection once a websocket scope has been
// negotiated, owning the raw conn for the remainder of its lifetime.
type WebSocketUpgrader interface {
	Upgrade(ctx context.Context, netConn net.Conn, br *bufio.Reader, bw *bufio.Writer, scope *pagi.Scope, app pagi.Application) error
}

// SSEHandler takes over a connection once an sse scope has been negotiated.
type SSEHandler interface {
	Serve(ctx context.Context, netConn net.Conn, bw *bufio.Writer, scope *pagi.Scope, app pagi.Application) error
}

// AccessLogger receives one record per completed HTTP conversation.
type AccessLogger interface {
	Log(rec AccessRecord)
}

// AccessRecord is the subset of a completed request the connection loop
// reports to the access logger. CorrelationID is a per-conversation UUID
// generated here, not part of the wire format.
type AccessRecord struct {
	Method        string
	Path          string
	Status        int
	BytesOut      int64
	Duration      time.Duration
	RemoteHost    string
	CorrelationID string
}

// Options configures a Connection.
type Options struct {
	Application pagi.Application
	Limits      Limits
	Scheme      pagi.Scheme
	ServerAddr  pagi.Addr
	Logger      *slog.Logger
	WebSocket   WebSocketUpgrader
	SSE         SSEHandler
	AccessLog   AccessLogger
}

// Connection drives one accepted net.Conn through any number of pipelined
// HTTP conversations, or hands it off to a WebSocket/SSE upgrade.
type Connection struct {
	netConn net.Conn
	br      *bufio.Reader
	bw      *bufio.Writer
	opts    Options

	clientAddr pagi.Addr
	lastTouch  time.Time
}

// New wraps an accepted connection. The caller still owns closing netConn.
func New(netConn net.Conn, opts Options) *Connection {
	client := addrOf(netConn.RemoteAddr())
	return &Connection{
		netConn:    netConn,
		br:         bufio.NewReaderSize(netConn, 4096),
		bw:         bufio.NewWriterSize(netConn, 4096),
		opts:       opts,
		clientAddr: client,
	}
}

func addrOf(a net.Addr) pagi.Addr {
	host, portStr, err := net.SplitHostPort(a.String())
	if err != nil {
		return pagi.Addr{Host: a.String()}
	}
	var port int
	fmt.Sscanf(portStr, "%d", &port)
	return pagi.Addr{Host: host, Port: port}
}

// Serve runs the connection's conversations until the peer disconnects, an
// unrecoverable error occurs, the response demands closing, or ctx is
// cancelled (graceful shutdown).
func (c *Connection) Serve(ctx context.Context) {
	defer c.netConn.Close()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		keepAlive, err := c.serveOne(ctx)
		if err != nil {
			switch {
			case isQuietClose(err):
			case pagi.Is(err, pagi.KindBadRequest), pagi.Is(err, pagi.KindHeaderTooLarge),
				pagi.Is(err, pagi.KindRequestTooLarge), pagi.Is(err, pagi.KindTimeout):
				c.logger().Warn("connection conversation ended", "error", err)
			default:
				c.logger().Error("connection conversation ended", "error", err)
			}
			return
		}
		if !keepAlive {
			return
		}
	}
}

// isQuietClose reports whether err is an ordinary "peer went away before
// sending the next request" condition, not worth logging at warn level.
func isQuietClose(err error) bool {
	return pagi.Is(err, pagi.KindConnectionClosed) || errors.Is(err, net.ErrClosed)
}

// serveOne handles exactly one HTTP conversation (or the WebSocket/SSE
// upgrade it negotiates into), returning whether the connection should keep
// reading further pipelined requests.
func (c *Connection) serveOne(ctx context.Context) (keepAlive bool, err error) {
	c.touch()

	reqLine, err := readRequestLine(c.br, c.opts.Limits.MaxHeaderSize)
	if err != nil {
		if pagi.Is(err, pagi.KindConnectionClosed) {
			return false, err
		}
		c.writeErrorAndClose(reqLine.HTTPVersion, statusForErr(err))
		return false, err
	}

	headers, err := readHeaders(c.br, c.opts.Limits.MaxHeaderSize, c.opts.Limits.MaxHeaderCount)
	if err != nil {
		c.writeErrorAndClose(versionOrDefault(reqLine.HTTPVersion), statusForErr(err))
		return false, err
	}

	scopeType := negotiateType(headers)
	scope, err := codec.BuildScope(codec.HTTPScopeInput{
		Type:         scopeType,
		Method:       reqLine.Method,
		Target:       reqLine.Target,
		HTTPVersion:  reqLine.HTTPVersion,
		Headers:      headers,
		Scheme:       c.scheme(scopeType),
		Client:       c.clientAddr,
		Server:       c.opts.ServerAddr,
		Subprotocols: parseSubprotocols(headers),
	})
	if err != nil {
		c.writeErrorAndClose(reqLine.HTTPVersion, statusForErr(err))
		return false, err
	}

	switch scopeType {
	case pagi.TypeWebSocket:
		if c.opts.WebSocket == nil {
			c.writeErrorAndClose(reqLine.HTTPVersion, 501)
			return false, pagi.NewError(pagi.KindInvalidState, fmt.Errorf("no websocket upgrader configured"))
		}
		err := c.opts.WebSocket.Upgrade(ctx, c.netConn, c.br, c.bw, scope, c.opts.Application)
		return false, err
	case pagi.TypeSSE:
		if c.opts.SSE == nil {
			c.writeErrorAndClose(reqLine.HTTPVersion, 501)
			return false, pagi.NewError(pagi.KindInvalidState, fmt.Errorf("no sse handler configured"))
		}
		err := c.opts.SSE.Serve(ctx, c.netConn, c.bw, scope, c.opts.Application)
		return false, err
	default:
		return c.serveHTTP(ctx, reqLine, scope, headers)
	}
}

func (c *Connection) serveHTTP(ctx context.Context, reqLine requestLine, scope *pagi.Scope, headers []pagi.Header) (bool, error) {
	start := time.Now()
	correlationID := uuid.NewString()

	framing, contentLength, expectContinue, err := decodeBodyFraming(headers)
	if err != nil {
		c.writeErrorAndClose(reqLine.HTTPVersion, statusForErr(err))
		return false, err
	}
	if contentLength > c.opts.Limits.MaxBodySize {
		c.writeErrorAndClose(reqLine.HTTPVersion, 413)
		return false, pagi.NewError(pagi.KindRequestTooLarge, fmt.Errorf("declared content-length %d exceeds max_body_size", contentLength))
	}

	pump := newBodyPump(c.br, c.netConn, c.opts.Limits, framing, contentLength, expectContinue, c.touch)
	headSuppress := reqLine.Method == "HEAD"
	writer := newHTTPResponseWriter(c.bw, c.netConn, reqLine.HTTPVersion, headSuppress, c.opts.Limits, c.touch)

	receiver := pagi.ReceiverFunc(func(ctx context.Context) (pagi.Event, error) {
		c.touch()
		ev, err := pump.Next()
		if err == nil {
			if trailers := pump.Trailers(); trailers != nil {
				scope.Headers = append(scope.Headers, trailers...)
			}
		}
		return ev, err
	})

	appErr := c.runApplication(ctx, scope, receiver, writer)

	if !pump.Done() {
		_ = pump.Drain()
	}

	status := 0
	if writer.startSent {
		status = writer.pendingStatus
	}

	if appErr != nil {
		appStatus := statusForErr(appErr)
		if !writer.headersFlushed {
			c.writeErrorAndClose(reqLine.HTTPVersion, appStatus)
		}
		c.report(reqLine, scope, correlationID, appStatus, start)
		return false, appErr
	}

	if err := writer.Finalize(); err != nil {
		c.report(reqLine, scope, correlationID, status, start)
		return false, err
	}

	c.report(reqLine, scope, correlationID, status, start)

	if writer.ShouldClose() || reqLine.HTTPVersion == "HTTP/1.0" && !hasKeepAliveToken(headers) {
		return false, nil
	}
	if hasCloseToken(headers) {
		return false, nil
	}
	return true, nil
}

// runApplication invokes the application, converting a panic, or a returned
// error that carries no PAGI kind, into an APP_EXCEPTION error so one
// misbehaving application never crashes the whole worker process.
func (c *Connection) runApplication(ctx context.Context, scope *pagi.Scope, receive pagi.Receiver, send pagi.Sender) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = pagi.NewError(pagi.KindAppException, fmt.Errorf("application panic: %v", r))
		}
	}()
	err = c.opts.Application(ctx, scope, receive, send)
	var pe *pagi.Error
	if err != nil && !errors.As(err, &pe) {
		err = pagi.NewError(pagi.KindAppException, err)
	}
	return err
}

func (c *Connection) report(reqLine requestLine, scope *pagi.Scope, correlationID string, status int, start time.Time) {
	if c.opts.AccessLog == nil {
		return
	}
	c.opts.AccessLog.Log(AccessRecord{
		Method:        reqLine.Method,
		Path:          scope.Path,
		Status:        status,
		Duration:      time.Since(start),
		RemoteHost:    c.clientAddr.Host,
		CorrelationID: correlationID,
	})
}

func (c *Connection) scheme(t pagi.Type) pagi.Scheme {
	_, isTLS := c.netConn.(*tls.Conn)
	switch {
	case t == pagi.TypeWebSocket && isTLS:
		return pagi.SchemeWSS
	case t == pagi.TypeWebSocket:
		return pagi.SchemeWS
	case isTLS:
		return pagi.SchemeHTTPS
	default:
		return c.opts.Scheme
	}
}

func (c *Connection) touch() {
	if c.opts.Limits.Timeout <= 0 {
		return
	}
	c.lastTouch = time.Now()
	deadline := c.lastTouch.Add(c.opts.Limits.Timeout)
	_ = c.netConn.SetDeadline(deadline)
}

func (c *Connection) writeErrorAndClose(version string, status int) {
	if version == "" {
		version = "HTTP/1.1"
	}
	// Re-arm the deadline: after an idle timeout the expired one would fail
	// this write too.
	c.touch()
	_ = writeMinimalErrorResponse(c.bw, version, status)
}

func (c *Connection) logger() *slog.Logger {
	if c.opts.Logger != nil {
		return c.opts.Logger
	}
	return slog.Default()
}

func versionOrDefault(v string) string {
	if v == "" {
		return "HTTP/1.1"
	}
	return v
}

// statusForErr maps an internal error kind to the wire status code it
// should surface as.
func statusForErr(err error) int {
	switch {
	case pagi.Is(err, pagi.KindHeaderTooLarge):
		return 431
	case pagi.Is(err, pagi.KindRequestTooLarge):
		return 413
	case pagi.Is(err, pagi.KindTimeout):
		return 408
	case pagi.Is(err, pagi.KindBadRequest):
		return 400
	case pagi.Is(err, pagi.KindInvalidState), pagi.Is(err, pagi.KindAppException):
		return 500
	default:
		return 400
	}
}

func hasCloseToken(headers []pagi.Header) bool {
	v, ok := pagi.Headers(headers, "connection")
	if !ok {
		return false
	}
	return containsToken(v, "close")
}

func hasKeepAliveToken(headers []pagi.Header) bool {
	v, ok := pagi.Headers(headers, "connection")
	if !ok {
		return false
	}
	return containsToken(v, "keep-alive")
}
