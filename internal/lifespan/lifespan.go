// Package lifespan runs the once-per-process startup/shutdown conversation:
// a single call into the application with a lifespan scope, fed
// lifespan.startup then lifespan.shutdown, each of which the application
// must acknowledge before the corresponding phase proceeds.
package lifespan

import (
	"context"
	"fmt"

	"github.com/pagi-dev/pagi/internal/codec"
	"github.com/pagi-dev/pagi/pagi"
)

// Runner drives one application through its full lifespan conversation. It
// is started once per worker process.
type Runner struct {
	app         pagi.Application
	toApp       chan pagi.Event
	fromApp     chan pagi.Event
	appErr      chan error
	startupDone chan error
}

// New launches the application's lifespan conversation in the background;
// it will block internally on receive() until Startup/Shutdown are called.
func New(app pagi.Application) *Runner {
	r := &Runner{
		app:         app,
		toApp:       make(chan pagi.Event),
		fromApp:     make(chan pagi.Event, 8),
		appErr:      make(chan error, 1),
		startupDone: make(chan error, 1),
	}
	go r.run()
	return r
}

func (r *Runner) run() {
	defer func() {
		if p := recover(); p != nil {
			r.appErr <- pagi.NewError(pagi.KindAppException, fmt.Errorf("application panic: %v", p))
		}
	}()
	scope := codec.BuildLifespanScope()
	receive := pagi.ReceiverFunc(func(ctx context.Context) (pagi.Event, error) {
		ev, ok := <-r.toApp
		if !ok {
			return nil, pagi.NewError(pagi.KindConnectionClosed, fmt.Errorf("lifespan conversation ended"))
		}
		return ev, nil
	})
	send := pagi.SenderFunc(func(ctx context.Context, ev pagi.Event) error {
		r.fromApp <- ev
		return nil
	})
	err := r.app(context.Background(), scope, receive, send)
	r.appErr <- err
}

// Startup sends lifespan.startup and waits for the application to
// acknowledge with either lifespan.startup.complete or
// lifespan.startup.failed, returning an error in the latter case (or if the
// application exits/panics before acknowledging).
func (r *Runner) Startup(ctx context.Context) error {
	select {
	case r.toApp <- pagi.LifespanStartupEvent{}:
	case err := <-r.appErr:
		return startupExitErr(err)
	}

	select {
	case ev := <-r.fromApp:
		switch e := ev.(type) {
		case pagi.LifespanStartupCompleteEvent:
			return nil
		case pagi.LifespanStartupFailedEvent:
			return fmt.Errorf("application startup failed: %s", e.Message)
		default:
			return fmt.Errorf("unexpected event %T during startup", ev)
		}
	case err := <-r.appErr:
		return startupExitErr(err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func startupExitErr(err error) error {
	if err != nil {
		return fmt.Errorf("application exited during startup: %w", err)
	}
	return fmt.Errorf("application returned before acknowledging startup")
}

// Shutdown sends lifespan.shutdown and waits for acknowledgment, closing
// the conversation afterward regardless of outcome.
func (r *Runner) Shutdown(ctx context.Context) error {
	defer close(r.toApp)

	select {
	case r.toApp <- pagi.LifespanShutdownEvent{}:
	case err := <-r.appErr:
		return shutdownExitErr(err)
	}

	select {
	case ev := <-r.fromApp:
		switch e := ev.(type) {
		case pagi.LifespanShutdownCompleteEvent:
			return nil
		case pagi.LifespanShutdownFailedEvent:
			return fmt.Errorf("application shutdown failed: %s", e.Message)
		default:
			return fmt.Errorf("unexpected event %T during shutdown", ev)
		}
	case err := <-r.appErr:
		return shutdownExitErr(err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func shutdownExitErr(err error) error {
	if err != nil {
		return fmt.Errorf("application exited during shutdown: %w", err)
	}
	return nil
}
