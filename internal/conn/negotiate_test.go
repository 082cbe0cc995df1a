package conn

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pagi-dev/pagi/pagi"
)

func TestNegotiateType(t *testing.T) {
	cases := []struct {
		name    string
		headers []pagi.Header
		want    pagi.Type
	}{
		{
			name: "websocket upgrade",
			headers: []pagi.Header{
				{Name: "upgrade", Value: []byte("websocket")},
				{Name: "connection", Value: []byte("Upgrade")},
			},
			want: pagi.TypeWebSocket,
		},
		{
			name: "upgrade header without connection token is plain http",
			headers: []pagi.Header{
				{Name: "upgrade", Value: []byte("websocket")},
			},
			want: pagi.TypeHTTP,
		},
		{
			name: "sse accept",
			headers: []pagi.Header{
				{Name: "accept", Value: []byte("text/event-stream")},
			},
			want: pagi.TypeSSE,
		},
		{
			name:    "plain http",
			headers: []pagi.Header{{Name: "accept", Value: []byte("application/json")}},
			want:    pagi.TypeHTTP,
		},
		{
			name: "connection has multiple tokens including upgrade",
			headers: []pagi.Header{
				{Name: "upgrade", Value: []byte("websocket")},
				{Name: "connection", Value: []byte("keep-alive, Upgrade")},
			},
			want: pagi.TypeWebSocket,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, negotiateType(tc.headers))
		})
	}
}

func TestParseSubprotocols(t *testing.T) {
	cases := []struct {
		name    string
		headers []pagi.Header
		want    []string
	}{
		{
			name:    "absent header",
			headers: []pagi.Header{{Name: "upgrade", Value: []byte("websocket")}},
			want:    nil,
		},
		{
			name:    "single protocol",
			headers: []pagi.Header{{Name: "sec-websocket-protocol", Value: []byte("chat")}},
			want:    []string{"chat"},
		},
		{
			name:    "multiple protocols with whitespace",
			headers: []pagi.Header{{Name: "sec-websocket-protocol", Value: []byte("chat, superchat ,  v2")}},
			want:    []string{"chat", "superchat", "v2"},
		},
		{
			name:    "empty entries are skipped",
			headers: []pagi.Header{{Name: "sec-websocket-protocol", Value: []byte("chat,,")}},
			want:    []string{"chat"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, parseSubprotocols(tc.headers))
		})
	}
}
