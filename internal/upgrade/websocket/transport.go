package websocket

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pagi-dev/pagi/pagi"
)

// conversationPhase tracks whether the RFC 6455 handshake has happened yet.
type conversationPhase int

const (
	phasePending conversationPhase = iota
	phaseAccepted
	phaseClosed
)

// conversation implements pagi.Receiver and pagi.Sender for one websocket
// scope. It starts in phasePending, where the only legal outbound events are
// websocket.accept and websocket.close; accept triggers the actual gorilla
// handshake, after which Send/Receive translate directly to/from frames.
type conversation struct {
	req          *http.Request
	shim         *hijackShim
	bw           *bufio.Writer
	upgrader     websocket.Upgrader
	maxFrameSize int64

	mu    sync.Mutex
	phase conversationPhase
	ws    *websocket.Conn

	connectSent bool

	pingStop chan struct{}
}

func (c *conversation) Receive(ctx context.Context) (pagi.Event, error) {
	c.mu.Lock()
	if !c.connectSent {
		c.connectSent = true
		c.mu.Unlock()
		return pagi.WebSocketConnectEvent{}, nil
	}
	phase := c.phase
	ws := c.ws
	c.mu.Unlock()

	if phase != phaseAccepted || ws == nil {
		return nil, pagi.NewError(pagi.KindInvalidState, fmt.Errorf("websocket.receive requested before accept"))
	}

	msgType, data, err := ws.ReadMessage()
	if err != nil {
		return pagi.WebSocketDisconnectEvent{Code: closeCodeOf(err), Reason: err.Error()}, nil
	}
	switch msgType {
	case websocket.TextMessage:
		s := string(data)
		return pagi.WebSocketReceiveEvent{Text: &s}, nil
	default:
		return pagi.WebSocketReceiveEvent{Bytes: data}, nil
	}
}

func (c *conversation) Send(ctx context.Context, ev pagi.Event) error {
	switch e := ev.(type) {
	case pagi.WebSocketAcceptEvent:
		return c.accept(e)
	case pagi.WebSocketCloseEvent:
		return c.close(e)
	case pagi.WebSocketSendEvent:
		return c.sendFrame(e)
	default:
		return pagi.NewError(pagi.KindInvalidState, fmt.Errorf("unexpected event %T on websocket scope", ev))
	}
}

func (c *conversation) accept(e pagi.WebSocketAcceptEvent) error {
	c.mu.Lock()
	if c.phase != phasePending {
		c.mu.Unlock()
		return pagi.NewError(pagi.KindInvalidState, fmt.Errorf("websocket.accept sent after handshake already resolved"))
	}
	c.mu.Unlock()

	responseHeader := make(http.Header)
	for _, h := range e.Headers {
		responseHeader.Add(h.Name, string(h.Value))
	}
	if e.Subprotocol != "" {
		responseHeader.Set("Sec-WebSocket-Protocol", e.Subprotocol)
	}

	ws, err := c.upgrader.Upgrade(c.shim, c.req, responseHeader)
	if err != nil {
		return pagi.NewError(pagi.KindIOError, err)
	}
	ws.SetReadLimit(c.maxFrameSize)

	c.mu.Lock()
	c.ws = ws
	c.phase = phaseAccepted
	c.mu.Unlock()

	c.startPingPump(ws)
	return nil
}

func (c *conversation) close(e pagi.WebSocketCloseEvent) error {
	c.mu.Lock()
	phase := c.phase
	ws := c.ws
	c.mu.Unlock()

	code := e.Code
	if code == 0 {
		code = websocket.CloseNormalClosure
	}

	if phase == phasePending {
		// Reject the handshake outright: write a plain HTTP error instead
		// of ever completing the upgrade.
		status := closeCodeToHTTPStatus(code)
		body := e.Reason + "\n"
		fmt.Fprintf(c.bw, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status))
		fmt.Fprintf(c.bw, "content-length: %d\r\ncontent-type: text/plain; charset=utf-8\r\nconnection: close\r\n\r\n", len(body))
		c.bw.WriteString(body)
		if err := c.bw.Flush(); err != nil {
			return pagi.NewError(pagi.KindIOError, err)
		}
		c.mu.Lock()
		c.phase = phaseClosed
		c.mu.Unlock()
		return nil
	}

	c.stopPingPump()
	if ws != nil {
		_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, e.Reason), time.Now().Add(writeWait))
		_ = ws.Close()
	}
	c.mu.Lock()
	c.phase = phaseClosed
	c.mu.Unlock()
	return nil
}

func (c *conversation) sendFrame(e pagi.WebSocketSendEvent) error {
	c.mu.Lock()
	ws := c.ws
	phase := c.phase
	c.mu.Unlock()
	if phase != phaseAccepted || ws == nil {
		return pagi.NewError(pagi.KindInvalidState, fmt.Errorf("websocket.send before accept"))
	}

	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	if e.Text != nil {
		if err := ws.WriteMessage(websocket.TextMessage, []byte(*e.Text)); err != nil {
			return pagi.NewError(pagi.KindIOError, err)
		}
		return nil
	}
	if err := ws.WriteMessage(websocket.BinaryMessage, e.Bytes); err != nil {
		return pagi.NewError(pagi.KindIOError, err)
	}
	return nil
}

// startPingPump keeps the connection alive: a periodic ping, and a pong
// handler that slides the read deadline.
func (c *conversation) startPingPump(ws *websocket.Conn) {
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c.pingStop = make(chan struct{})
	stop := c.pingStop
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
				if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()
}

func (c *conversation) stopPingPump() {
	if c.pingStop != nil {
		close(c.pingStop)
		c.pingStop = nil
	}
}

func closeCodeOf(err error) int {
	if ce, ok := err.(*websocket.CloseError); ok {
		return ce.Code
	}
	return websocket.CloseAbnormalClosure
}

func closeCodeToHTTPStatus(code int) int {
	switch code {
	case websocket.ClosePolicyViolation, websocket.CloseUnsupportedData:
		return http.StatusBadRequest
	default:
		return http.StatusForbidden
	}
}
