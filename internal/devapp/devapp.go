// Package devapp is a small reference PAGI application exercising every
// conversation type, hosted by cmd/pagi-server. Its handlers are small and
// single-purpose; lifespan transitions are slog-logged.
package devapp

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/pagi-dev/pagi/pagi"
)

// New returns an Application routing on scope.Type, then on scope.Path for
// HTTP: any WebSocket scope echoes frames, any SSE scope ticks a counter
// once a second, and for HTTP "/echo" reflects the request body, "/upload"
// reflects it chunk-by-chunk, and any other path is a 404.
func New(logger *slog.Logger) pagi.Application {
	return func(ctx context.Context, scope *pagi.Scope, receive pagi.Receiver, send pagi.Sender) error {
		switch scope.Type {
		case pagi.TypeWebSocket:
			return serveWebSocketEcho(ctx, receive, send)
		case pagi.TypeSSE:
			return serveSSETicker(ctx, receive, send)
		case pagi.TypeLifespan:
			return serveLifespan(ctx, logger, receive, send)
		default:
			return serveHTTP(ctx, scope, receive, send)
		}
	}
}

func serveHTTP(ctx context.Context, scope *pagi.Scope, receive pagi.Receiver, send pagi.Sender) error {
	switch scope.Path {
	case "/echo", "/upload":
		return echoBody(ctx, receive, send, scope.Path == "/upload")
	default:
		return notFound(ctx, send)
	}
}

// echoBody reflects the request body back. When chunked is true it emits
// one response.body event per request.body event instead of buffering,
// exercising the streaming path end to end.
func echoBody(ctx context.Context, receive pagi.Receiver, send pagi.Sender, chunked bool) error {
	if !chunked {
		var body []byte
		for {
			ev, err := receive.Receive(ctx)
			if err != nil {
				return err
			}
			switch e := ev.(type) {
			case pagi.HTTPRequestEvent:
				body = append(body, e.Body...)
				if !e.More {
					if err := send.Send(ctx, pagi.HTTPResponseStartEvent{Status: 200}); err != nil {
						return err
					}
					return send.Send(ctx, pagi.HTTPResponseBodyEvent{Body: body, More: false})
				}
			case pagi.HTTPDisconnectEvent:
				return nil
			}
		}
	}

	if err := send.Send(ctx, pagi.HTTPResponseStartEvent{Status: 200, Trailers: true}); err != nil {
		return err
	}
	for {
		ev, err := receive.Receive(ctx)
		if err != nil {
			return err
		}
		switch e := ev.(type) {
		case pagi.HTTPRequestEvent:
			if err := send.Send(ctx, pagi.HTTPResponseBodyEvent{Body: e.Body, More: e.More}); err != nil {
				return err
			}
			if !e.More {
				return send.Send(ctx, pagi.HTTPResponseTrailersEvent{})
			}
		case pagi.HTTPDisconnectEvent:
			return nil
		}
	}
}

func notFound(ctx context.Context, send pagi.Sender) error {
	if err := send.Send(ctx, pagi.HTTPResponseStartEvent{
		Status:  404,
		Headers: []pagi.Header{{Name: "content-type", Value: []byte("text/plain")}},
	}); err != nil {
		return err
	}
	return send.Send(ctx, pagi.HTTPResponseBodyEvent{Body: []byte("not found\n"), More: false})
}

func serveWebSocketEcho(ctx context.Context, receive pagi.Receiver, send pagi.Sender) error {
	if _, err := receive.Receive(ctx); err != nil {
		return err
	}
	if err := send.Send(ctx, pagi.WebSocketAcceptEvent{}); err != nil {
		return err
	}
	for {
		ev, err := receive.Receive(ctx)
		if err != nil {
			return err
		}
		switch e := ev.(type) {
		case pagi.WebSocketReceiveEvent:
			if err := send.Send(ctx, pagi.WebSocketSendEvent{Text: e.Text, Bytes: e.Bytes}); err != nil {
				return err
			}
		case pagi.WebSocketDisconnectEvent:
			return nil
		}
	}
}

func serveSSETicker(ctx context.Context, receive pagi.Receiver, send pagi.Sender) error {
	if _, err := receive.Receive(ctx); err != nil {
		return err
	}
	if err := send.Send(ctx, pagi.SSEStartEvent{}); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	disconnected := make(chan struct{})
	go func() {
		_, _ = receive.Receive(ctx)
		close(disconnected)
	}()

	n := 0
	for {
		select {
		case <-ticker.C:
			n++
			if err := send.Send(ctx, pagi.SSESendEvent{Data: strconv.Itoa(n), HasData: true}); err != nil {
				return err
			}
		case <-disconnected:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func serveLifespan(ctx context.Context, logger *slog.Logger, receive pagi.Receiver, send pagi.Sender) error {
	for {
		ev, err := receive.Receive(ctx)
		if err != nil {
			return nil
		}
		switch ev.(type) {
		case pagi.LifespanStartupEvent:
			logger.Info("devapp starting up")
			if err := send.Send(ctx, pagi.LifespanStartupCompleteEvent{}); err != nil {
				return err
			}
		case pagi.LifespanShutdownEvent:
			logger.Info("devapp shutting down")
			return send.Send(ctx, pagi.LifespanShutdownCompleteEvent{})
		}
	}
}
