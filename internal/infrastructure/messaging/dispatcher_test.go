package messaging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/study-planner/planner-core/internal/domain/shared"
)

type testEvent struct {
	shared.BaseEvent
}

func (e testEvent) Payload() map[string]interface{} { return nil }

func newEvent(eventType shared.EventType) testEvent {
	return testEvent{shared.NewBaseEvent(eventType, "aggregate-1")}
}

func newTestDispatcher(policy FailurePolicy) *Dispatcher {
	cfg := DefaultDispatcherConfig()
	cfg.Policy = policy
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewDispatcher(cfg)
}

func recorder(calls *[]string, name string, err error) shared.EventHandler {
	return func(ctx context.Context, event shared.Event) error {
		*calls = append(*calls, name)
		return err
	}
}

func TestDispatcher_NoHandlersIsNoop(t *testing.T) {
	d := newTestDispatcher(ContinueOnError)

	err := d.Dispatch(context.Background(), newEvent("task.completed"))
	assert.NoError(t, err)
	assert.Zero(t, d.Metrics().Snapshot().TotalDispatched)
}

func TestDispatcher_RegistrationOrder(t *testing.T) {
	d := newTestDispatcher(ContinueOnError)

	var calls []string
	h1Done := false
	require.NoError(t, d.RegisterHandler("task.completed", "h1", func(ctx context.Context, event shared.Event) error {
		time.Sleep(5 * time.Millisecond)
		calls = append(calls, "h1")
		h1Done = true
		return nil
	}))
	require.NoError(t, d.RegisterHandler("task.completed", "h2", func(ctx context.Context, event shared.Event) error {
		assert.True(t, h1Done, "h1 must finish before h2 starts")
		calls = append(calls, "h2")
		return nil
	}))
	require.NoError(t, d.RegisterHandler("task.uncompleted", "other", recorder(&calls, "other", nil)))

	require.NoError(t, d.Dispatch(context.Background(), newEvent("task.completed")))
	assert.Equal(t, []string{"h1", "h2"}, calls)
	assert.Equal(t, []string{"h1", "h2"}, d.Handlers("task.completed"))
}

func TestDispatcher_DuplicateRegistrationRunsTwice(t *testing.T) {
	d := newTestDispatcher(ContinueOnError)

	var calls []string
	h := recorder(&calls, "h", nil)
	require.NoError(t, d.RegisterHandler("e", "h", h))
	require.NoError(t, d.RegisterHandler("e", "h", h))

	require.NoError(t, d.Dispatch(context.Background(), newEvent("e")))
	assert.Len(t, calls, 2)
}

func TestDispatcher_ContinueOnError(t *testing.T) {
	d := newTestDispatcher(ContinueOnError)
	boom := errors.New("boom")

	var calls []string
	require.NoError(t, d.RegisterHandler("e", "first", recorder(&calls, "first", boom)))
	require.NoError(t, d.RegisterHandler("e", "second", recorder(&calls, "second", nil)))

	err := d.Dispatch(context.Background(), newEvent("e"))
	require.Error(t, err)
	assert.Equal(t, []string{"first", "second"}, calls)

	var de *DispatchError
	require.ErrorAs(t, err, &de)
	require.Len(t, de.Outcomes, 2)
	assert.NoError(t, de.Outcomes[1].Err)
	require.Len(t, de.Failed(), 1)
	assert.Equal(t, "first", de.Failed()[0].Handler)
	assert.Empty(t, de.Skipped)
	assert.ErrorIs(t, err, boom)
}

func TestDispatcher_StopOnError(t *testing.T) {
	d := newTestDispatcher(StopOnError)
	boom := errors.New("boom")

	var calls []string
	require.NoError(t, d.RegisterHandler("e", "first", recorder(&calls, "first", boom)))
	require.NoError(t, d.RegisterHandler("e", "second", recorder(&calls, "second", nil)))

	err := d.Dispatch(context.Background(), newEvent("e"))

	var de *DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, []string{"first"}, calls)
	assert.Equal(t, []string{"second"}, de.Skipped)
}

func TestDispatcher_Seal(t *testing.T) {
	d := newTestDispatcher(ContinueOnError)
	require.NoError(t, d.RegisterHandler("e", "h", func(context.Context, shared.Event) error { return nil }))

	require.NoError(t, d.Dispatch(context.Background(), newEvent("e")))
	assert.True(t, d.Sealed(), "first dispatch seals the registry")

	err := d.RegisterHandler("e", "late", func(context.Context, shared.Event) error { return nil })
	assert.ErrorIs(t, err, ErrDispatcherSealed)
	assert.ErrorIs(t, d.Use(LoggingMiddleware(slog.Default())), ErrDispatcherSealed)
	assert.Equal(t, []string{"h"}, d.Handlers("e"))
}

func TestDispatcher_RejectsNilHandler(t *testing.T) {
	d := newTestDispatcher(ContinueOnError)
	assert.Error(t, d.RegisterHandler("e", "nil", nil))
}

func TestDispatcher_PanicIsIsolated(t *testing.T) {
	d := newTestDispatcher(ContinueOnError)

	var calls []string
	require.NoError(t, d.RegisterHandler("e", "panics", func(context.Context, shared.Event) error {
		panic("kaboom")
	}))
	require.NoError(t, d.RegisterHandler("e", "after", recorder(&calls, "after", nil)))

	err := d.Dispatch(context.Background(), newEvent("e"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
	assert.Equal(t, []string{"after"}, calls)
	assert.Equal(t, 1, d.DeadLetterQueue().Size())
}

func TestDispatcher_HandlerTimeout(t *testing.T) {
	d := newTestDispatcher(ContinueOnError)

	require.NoError(t, d.Register("e", HandlerRegistration{
		Name:    "slow",
		Timeout: 10 * time.Millisecond,
		Handler: func(ctx context.Context, event shared.Event) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}))

	err := d.Dispatch(context.Background(), newEvent("e"))
	assert.ErrorIs(t, err, ErrHandlerTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDispatcher_MiddlewareAndMetrics(t *testing.T) {
	d := newTestDispatcher(ContinueOnError)

	var seen string
	require.NoError(t, d.Use(CorrelationMiddleware()))
	require.NoError(t, d.RegisterHandler("e", "h", func(ctx context.Context, event shared.Event) error {
		seen, _ = CorrelationID(ctx)
		return nil
	}))
	require.NoError(t, d.RegisterHandler("e", "fails", func(context.Context, shared.Event) error {
		return errors.New("nope")
	}))

	event := newEvent("e")
	_ = d.Publish(context.Background(), event)
	assert.Equal(t, event.EventID(), seen)

	snap := d.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.TotalDispatched)
	assert.Equal(t, int64(2), snap.TotalExecutions)
	assert.Equal(t, int64(1), snap.TotalFailures)
	assert.InDelta(t, 0.5, snap.SuccessRate, 1e-9)
}

func TestParseFailurePolicy(t *testing.T) {
	p, err := ParseFailurePolicy("STOP")
	require.NoError(t, err)
	assert.Equal(t, StopOnError, p)

	p, err = ParseFailurePolicy("")
	require.NoError(t, err)
	assert.Equal(t, ContinueOnError, p)

	_, err = ParseFailurePolicy("retry")
	assert.Error(t, err)
}

func TestDeadLetterQueueCapacity(t *testing.T) {
	q := NewDeadLetterQueue(2)
	q.Add(DeadLetterEntry{HandlerName: "a"})
	q.Add(DeadLetterEntry{HandlerName: "b"})
	q.Add(DeadLetterEntry{HandlerName: "c"})

	require.Equal(t, 2, q.Size())
	first, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "b", first.HandlerName)
}
