package lifespan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagi-dev/pagi/pagi"
)

func acknowledgingApp(ctx context.Context, scope *pagi.Scope, receive pagi.Receiver, send pagi.Sender) error {
	for {
		ev, err := receive.Receive(ctx)
		if err != nil {
			return nil
		}
		switch ev.(type) {
		case pagi.LifespanStartupEvent:
			if err := send.Send(ctx, pagi.LifespanStartupCompleteEvent{}); err != nil {
				return err
			}
		case pagi.LifespanShutdownEvent:
			if err := send.Send(ctx, pagi.LifespanShutdownCompleteEvent{}); err != nil {
				return err
			}
			return nil
		}
	}
}

func TestRunnerStartupAndShutdown(t *testing.T) {
	r := New(acknowledgingApp)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, r.Startup(ctx))
	require.NoError(t, r.Shutdown(ctx))
}

func failingStartupApp(ctx context.Context, scope *pagi.Scope, receive pagi.Receiver, send pagi.Sender) error {
	ev, err := receive.Receive(ctx)
	if err != nil {
		return nil
	}
	if _, ok := ev.(pagi.LifespanStartupEvent); ok {
		return send.Send(ctx, pagi.LifespanStartupFailedEvent{Message: "boom"})
	}
	return nil
}

func TestRunnerStartupFailure(t *testing.T) {
	r := New(failingStartupApp)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := r.Startup(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}
