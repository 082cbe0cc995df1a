package devapp

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagi-dev/pagi/pagi"
)

type fakeReceiver struct {
	events []pagi.Event
	i      int
}

func (f *fakeReceiver) Receive(ctx context.Context) (pagi.Event, error) {
	if f.i >= len(f.events) {
		return pagi.HTTPDisconnectEvent{}, nil
	}
	ev := f.events[f.i]
	f.i++
	return ev, nil
}

type recordingSender struct {
	events []pagi.Event
}

func (r *recordingSender) Send(ctx context.Context, ev pagi.Event) error {
	r.events = append(r.events, ev)
	return nil
}

func TestEchoBodyBuffered(t *testing.T) {
	app := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	recv := &fakeReceiver{events: []pagi.Event{
		pagi.HTTPRequestEvent{Body: []byte("hel"), More: true},
		pagi.HTTPRequestEvent{Body: []byte("lo"), More: false},
	}}
	send := &recordingSender{}
	scope := &pagi.Scope{Type: pagi.TypeHTTP, Path: "/echo"}

	require.NoError(t, app(context.Background(), scope, recv, send))
	require.Len(t, send.events, 2)
	start := send.events[0].(pagi.HTTPResponseStartEvent)
	assert.Equal(t, 200, start.Status)
	body := send.events[1].(pagi.HTTPResponseBodyEvent)
	assert.Equal(t, "hello", string(body.Body))
}

func TestNotFoundPath(t *testing.T) {
	app := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	recv := &fakeReceiver{}
	send := &recordingSender{}
	scope := &pagi.Scope{Type: pagi.TypeHTTP, Path: "/nope"}

	require.NoError(t, app(context.Background(), scope, recv, send))
	start := send.events[0].(pagi.HTTPResponseStartEvent)
	assert.Equal(t, 404, start.Status)
}
