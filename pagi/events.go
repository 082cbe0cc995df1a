package pagi

import "os"

// Event is the closed tagged-variant every receive/send event implements.
// Concrete types live in this package; only pagi itself constructs them, so
// application and server code exchange them by value without a registry.
type Event interface {
	// EventType returns the wire-level event name, e.g. "http.request".
	EventType() string
}

// ---- HTTP receive events (server -> application) ----

// HTTPRequestEvent carries one fragment of the request body.
type HTTPRequestEvent struct {
	Body []byte
	More bool
}

func (HTTPRequestEvent) EventType() string { return "http.request" }

// HTTPDisconnectEvent signals the peer closed before the application
// finished reading the request body.
type HTTPDisconnectEvent struct{}

func (HTTPDisconnectEvent) EventType() string { return "http.disconnect" }

// ---- HTTP send events (application -> server) ----

// HTTPResponseStartEvent must be sent exactly once, before any body event.
type HTTPResponseStartEvent struct {
	Status   int
	Headers  []Header
	Trailers bool
}

func (HTTPResponseStartEvent) EventType() string { return "http.response.start" }

// HTTPResponseBodyEvent carries one response body chunk. Exactly one of
// Body, File, or FH must be set; Offset/Length only apply to File/FH.
// Length < 0 means "to EOF".
type HTTPResponseBodyEvent struct {
	Body   []byte
	File   string
	FH     *os.File
	Offset int64
	Length int64
	More   bool
}

func (HTTPResponseBodyEvent) EventType() string { return "http.response.body" }

// HTTPResponseTrailersEvent is only legal when HTTPResponseStartEvent
// declared Trailers=true, and only after the terminal body event. The last
// one sent is terminal; it may be sent with zero Headers.
type HTTPResponseTrailersEvent struct {
	Headers []Header
}

func (HTTPResponseTrailersEvent) EventType() string { return "http.response.trailers" }

// ---- WebSocket events ----

type WebSocketConnectEvent struct{}

func (WebSocketConnectEvent) EventType() string { return "websocket.connect" }

// WebSocketReceiveEvent carries one inbound frame. Exactly one of Text or
// Bytes is set (Text non-nil for a text frame, Bytes non-nil for binary).
type WebSocketReceiveEvent struct {
	Text  *string
	Bytes []byte
}

func (WebSocketReceiveEvent) EventType() string { return "websocket.receive" }

type WebSocketDisconnectEvent struct {
	Code   int
	Reason string
}

func (WebSocketDisconnectEvent) EventType() string { return "websocket.disconnect" }

// WebSocketAcceptEvent accepts a pending handshake.
type WebSocketAcceptEvent struct {
	Subprotocol string
	Headers     []Header
}

func (WebSocketAcceptEvent) EventType() string { return "websocket.accept" }

// WebSocketSendEvent carries one outbound frame, text xor binary.
type WebSocketSendEvent struct {
	Text  *string
	Bytes []byte
}

func (WebSocketSendEvent) EventType() string { return "websocket.send" }

// WebSocketCloseEvent rejects a pending handshake, or closes an accepted
// connection. Code defaults to 1000 when zero.
type WebSocketCloseEvent struct {
	Code   int
	Reason string
}

func (WebSocketCloseEvent) EventType() string { return "websocket.close" }

// ---- SSE events ----

type SSEConnectEvent struct{}

func (SSEConnectEvent) EventType() string { return "sse.connect" }

type SSEDisconnectEvent struct{}

func (SSEDisconnectEvent) EventType() string { return "sse.disconnect" }

// SSEStartEvent opens the stream. The server adds content-type,
// cache-control and connection headers when they are not supplied here.
type SSEStartEvent struct {
	Status  int
	Headers []Header
}

func (SSEStartEvent) EventType() string { return "sse.start" }

// SSESendEvent is one event-stream record. Zero-value optional fields are
// omitted on the wire; use the Has* flags to send an explicit empty value.
type SSESendEvent struct {
	Data     string
	HasData  bool
	Event    string
	HasEvent bool
	ID       string
	HasID    bool
	Retry    int
	HasRetry bool
}

func (SSESendEvent) EventType() string { return "sse.send" }

// ---- Lifespan events ----

type LifespanStartupEvent struct{}

func (LifespanStartupEvent) EventType() string { return "lifespan.startup" }

type LifespanShutdownEvent struct{}

func (LifespanShutdownEvent) EventType() string { return "lifespan.shutdown" }

type LifespanStartupCompleteEvent struct{}

func (LifespanStartupCompleteEvent) EventType() string { return "lifespan.startup.complete" }

type LifespanStartupFailedEvent struct {
	Message string
}

func (LifespanStartupFailedEvent) EventType() string { return "lifespan.startup.failed" }

type LifespanShutdownCompleteEvent struct{}

func (LifespanShutdownCompleteEvent) EventType() string { return "lifespan.shutdown.complete" }

type LifespanShutdownFailedEvent struct {
	Message string
}

func (LifespanShutdownFailedEvent) EventType() string { return "lifespan.shutdown.failed" }
