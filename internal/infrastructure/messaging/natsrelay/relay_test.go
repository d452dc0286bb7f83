package natsrelay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/study-planner/planner-core/internal/domain/shared"
	"github.com/study-planner/planner-core/internal/domain/task"
	"github.com/study-planner/planner-core/internal/infrastructure/messaging"
)

type publisherMock struct {
	mock.Mock
}

func (m *publisherMock) Publish(ctx context.Context, subject string, data []byte, msgID string) error {
	return m.Called(subject, data, msgID).Error(0)
}

func completedEvent(t *testing.T) task.TaskCompletedEvent {
	t.Helper()
	owner := shared.NewID()
	tk, err := task.New(task.NewTaskParams{
		OwnerID: owner, CourseID: shared.NewID(), TopicID: shared.NewID(), Type: task.TypeStudy,
	})
	require.NoError(t, err)
	ev, err := tk.Complete(owner, shared.MustParseCalendarDate("2024-01-10"), 1800)
	require.NoError(t, err)
	return ev
}

func fastConfig() RelayConfig {
	cfg := DefaultRelayConfig()
	cfg.MaxAttempts = 3
	cfg.InitialDelay = time.Millisecond
	return cfg
}

func TestRelay_PublishesEnvelope(t *testing.T) {
	pub := &publisherMock{}
	ev := completedEvent(t)
	ev.BaseEvent = ev.BaseEvent.WithCorrelationID("req-1")

	var sent []byte
	pub.On("Publish", "planner.task.completed", mock.Anything, ev.EventID()).
		Run(func(args mock.Arguments) { sent = args.Get(1).([]byte) }).
		Return(nil).Once()

	relay := NewRelay(pub, fastConfig(), nil)
	require.NoError(t, relay.Handle(context.Background(), ev))
	pub.AssertExpectations(t)

	var env Envelope
	require.NoError(t, json.Unmarshal(sent, &env))
	assert.Equal(t, ev.EventID(), env.ID)
	assert.Equal(t, task.EventTaskCompleted, env.Type)
	assert.Equal(t, ev.AggregateID(), env.AggregateID)
	assert.Equal(t, "req-1", env.CorrelationID)
	assert.Equal(t, "2024-01-10", env.Payload["completed_on"])
}

func TestRelay_CorrelationFromContext(t *testing.T) {
	pub := &publisherMock{}
	var sent []byte
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).([]byte) }).
		Return(nil).Once()

	ctx := messaging.WithCorrelationID(context.Background(), "http-42")
	require.NoError(t, NewRelay(pub, fastConfig(), nil).Handle(ctx, completedEvent(t)))

	var env Envelope
	require.NoError(t, json.Unmarshal(sent, &env))
	assert.Equal(t, "http-42", env.CorrelationID)
}

func TestRelay_RetriesThenSucceeds(t *testing.T) {
	pub := &publisherMock{}
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("no responders")).Twice()
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	relay := NewRelay(pub, fastConfig(), nil)
	require.NoError(t, relay.Handle(context.Background(), completedEvent(t)))
	pub.AssertNumberOfCalls(t, "Publish", 3)
}

func TestRelay_ExhaustedIsTransient(t *testing.T) {
	pub := &publisherMock{}
	down := errors.New("no responders")
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(down)

	relay := NewRelay(pub, fastConfig(), nil)
	err := relay.Handle(context.Background(), completedEvent(t))

	assert.ErrorIs(t, err, down)
	assert.True(t, shared.IsRetryable(err))
	pub.AssertNumberOfCalls(t, "Publish", 3)
}

func TestRelay_OpenCircuitSkipsPublisher(t *testing.T) {
	pub := &publisherMock{}
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("down"))

	cfg := fastConfig()
	cfg.MaxAttempts = 1
	relay := NewRelay(pub, cfg, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = relay.Handle(ctx, completedEvent(t))
	}
	pub.AssertNumberOfCalls(t, "Publish", 5)

	err := relay.Handle(ctx, completedEvent(t))
	assert.Error(t, err)
	pub.AssertNumberOfCalls(t, "Publish", 5)
}

func TestRelay_SubjectWithoutPrefix(t *testing.T) {
	relay := NewRelay(&publisherMock{}, RelayConfig{MaxAttempts: 1}, nil)
	assert.Equal(t, "task.note_registered", relay.Subject(task.EventTaskNoteRegistered))
}

func TestRegister_RunsAfterInProcessHandlers(t *testing.T) {
	pub := &publisherMock{}
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	d := messaging.NewDispatcher(messaging.DefaultDispatcherConfig())
	require.NoError(t, d.RegisterHandler(task.EventTaskCompleted, "task_creation", func(context.Context, shared.Event) error { return nil }))
	require.NoError(t, Register(d, NewRelay(pub, fastConfig(), nil), task.EventTaskCompleted, task.EventTaskNoteRegistered))

	assert.Equal(t, []string{"task_creation", HandlerName}, d.Handlers(task.EventTaskCompleted))
	assert.Equal(t, []string{HandlerName}, d.Handlers(task.EventTaskNoteRegistered))

	require.NoError(t, d.Dispatch(context.Background(), completedEvent(t)))
	pub.AssertNumberOfCalls(t, "Publish", 1)
}
