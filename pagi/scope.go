// Package pagi defines the wire-independent protocol that decouples PAGI
// applications from the server that drives them: a scope record and a pair
// of (receive, send) callables per conversation.
package pagi

// Type discriminates the four conversation kinds a Scope can describe.
type Type string

const (
	TypeHTTP      Type = "http"
	TypeWebSocket Type = "websocket"
	TypeSSE       Type = "sse"
	TypeLifespan  Type = "lifespan"
)

// Scheme is the effective transport scheme for a conversation, including
// its TLS-derived variant (ws/wss, http/https).
type Scheme string

const (
	SchemeHTTP  Scheme = "http"
	SchemeHTTPS Scheme = "https"
	SchemeWS    Scheme = "ws"
	SchemeWSS   Scheme = "wss"
)

// Header is an ordered, possibly-duplicated (name, value) pair. Names are
// always ASCII-lowercased by the codec before a Scope is built; values are
// exactly the wire bytes with only leading/trailing whitespace trimmed.
type Header struct {
	Name  string
	Value []byte
}

// Headers returns the first header value matching name (already-lowercased),
// and whether it was found.
func Headers(hs []Header, name string) ([]byte, bool) {
	for _, h := range hs {
		if h.Name == name {
			return h.Value, true
		}
	}
	return nil, false
}

// Addr is an endpoint address as reported by the transport.
type Addr struct {
	Host string
	Port int
}

// Scope is the immutable, read-only envelope the server builds for every
// conversation before invoking the application. It never carries bodies.
type Scope struct {
	Type Type

	// HTTP/WebSocket/SSE common fields.
	Method      string // HTTP only; empty otherwise.
	Path        string // percent-decoded.
	RawPath     []byte // on-wire bytes before '?', byte-exact.
	QueryString []byte // on-wire bytes after '?', without '?'; nil if absent.
	Scheme      Scheme
	HTTPVersion string
	Headers     []Header // never nil; insertion order preserved, duplicates retained.

	Client Addr
	Server Addr

	// WebSocket-only.
	Subprotocols []string
}

// Clone returns a deep-enough copy safe for an application to retain beyond
// the lifetime of the conversation (Headers/RawPath/QueryString are copied).
func (s *Scope) Clone() *Scope {
	c := *s
	if s.RawPath != nil {
		c.RawPath = append([]byte(nil), s.RawPath...)
	}
	if s.QueryString != nil {
		c.QueryString = append([]byte(nil), s.QueryString...)
	}
	if s.Headers != nil {
		c.Headers = make([]Header, len(s.Headers))
		for i, h := range s.Headers {
			c.Headers[i] = Header{Name: h.Name, Value: append([]byte(nil), h.Value...)}
		}
	}
	if s.Subprotocols != nil {
		c.Subprotocols = append([]string(nil), s.Subprotocols...)
	}
	return &c
}
