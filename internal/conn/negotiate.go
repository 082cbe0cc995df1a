package conn

import (
	"bytes"

	"github.com/pagi-dev/pagi/pagi"
)

// negotiateType decides whether a request is a plain HTTP conversation, a
// WebSocket upgrade, or an SSE subscription, purely from request headers:
// it mirrors RFC 6455 §4.2.1 for the upgrade case and falls back to
// content negotiation for SSE.
func negotiateType(headers []pagi.Header) pagi.Type {
	if isWebSocketUpgrade(headers) {
		return pagi.TypeWebSocket
	}
	if isSSERequest(headers) {
		return pagi.TypeSSE
	}
	return pagi.TypeHTTP
}

func isWebSocketUpgrade(headers []pagi.Header) bool {
	upgrade, ok := pagi.Headers(headers, "upgrade")
	if !ok || !containsToken(upgrade, "websocket") {
		return false
	}
	conn, ok := pagi.Headers(headers, "connection")
	if !ok {
		return false
	}
	return containsToken(conn, "upgrade")
}

func isSSERequest(headers []pagi.Header) bool {
	accept, ok := pagi.Headers(headers, "accept")
	if !ok {
		return false
	}
	return bytes.Contains(accept, []byte("text/event-stream"))
}

// parseSubprotocols splits the comma-separated Sec-WebSocket-Protocol
// request header into the candidate list the application chooses from via
// websocket.accept's Subprotocol field. Returns nil when the header is
// absent, which is the common case for plain HTTP/SSE conversations.
func parseSubprotocols(headers []pagi.Header) []string {
	v, ok := pagi.Headers(headers, "sec-websocket-protocol")
	if !ok {
		return nil
	}
	var out []string
	for _, part := range bytes.Split(v, []byte(",")) {
		part = bytes.TrimSpace(part)
		if len(part) == 0 {
			continue
		}
		out = append(out, string(part))
	}
	return out
}

// containsToken reports whether a comma-separated header value contains
// token, case-insensitively, ignoring surrounding whitespace per element.
func containsToken(value []byte, token string) bool {
	for _, part := range bytes.Split(value, []byte(",")) {
		part = bytes.TrimSpace(part)
		if bytesEqualFold(part, token) {
			return true
		}
	}
	return false
}

func bytesEqualFold(b []byte, s string) bool {
	if len(b) != len(s) {
		return false
	}
	for i := 0; i < len(b); i++ {
		bc, sc := b[i], s[i]
		if 'A' <= bc && bc <= 'Z' {
			bc += 'a' - 'A'
		}
		if 'A' <= sc && sc <= 'Z' {
			sc += 'a' - 'A'
		}
		if bc != sc {
			return false
		}
	}
	return true
}
