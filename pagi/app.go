package pagi

import "context"

// Receiver is the application-facing source of inbound events. Each call
// suspends until the next event is available; calls on a single
// conversation are never made concurrently.
type Receiver interface {
	Receive(ctx context.Context) (Event, error)
}

// Sender is the application-facing sink for outbound events. Send returns
// once the event is committed to the outbound buffer, not necessarily
// flushed to the wire.
type Sender interface {
	Send(ctx context.Context, event Event) error
}

// ReceiverFunc adapts a function to a Receiver.
type ReceiverFunc func(ctx context.Context) (Event, error)

func (f ReceiverFunc) Receive(ctx context.Context) (Event, error) { return f(ctx) }

// SenderFunc adapts a function to a Sender.
type SenderFunc func(ctx context.Context, event Event) error

func (f SenderFunc) Send(ctx context.Context, event Event) error { return f(ctx, event) }

// Application is the single entry point PAGI invokes once per conversation.
// It receives the envelope and the two callables and drives the
// conversation to completion; the core imposes no further structure on it.
type Application func(ctx context.Context, scope *Scope, receive Receiver, send Sender) error
