package shared

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseID(t *testing.T) {
	id := NewID()
	parsed, err := ParseID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
	assert.False(t, parsed.IsZero())

	_, err = ParseID("not-a-uuid")
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	assert.True(t, ID{}.IsZero())
}

func TestCalendarDate(t *testing.T) {
	t.Run("rejects impossible dates", func(t *testing.T) {
		_, err := NewCalendarDate(2024, time.February, 30)
		require.Error(t, err)
		assert.True(t, IsValidation(err))

		_, err = ParseCalendarDate("2024-13-01")
		assert.True(t, IsValidation(err))
	})

	t.Run("leap day", func(t *testing.T) {
		d, err := NewCalendarDate(2024, time.February, 29)
		require.NoError(t, err)
		assert.Equal(t, "2024-02-29", d.String())
		assert.Equal(t, "2024-03-01", d.AddDays(1).String())
	})

	t.Run("ordering", func(t *testing.T) {
		a := MustParseCalendarDate("2024-01-10")
		b := MustParseCalendarDate("2024-01-11")
		assert.True(t, a.Before(b))
		assert.True(t, b.After(a))
		assert.True(t, a.Equal(MustParseCalendarDate("2024-01-10")))
		assert.Equal(t, b, a.AddDays(1))
	})

	t.Run("from timestamp keeps location", func(t *testing.T) {
		loc := time.FixedZone("UTC+5", 5*3600)
		ts := time.Date(2024, 1, 10, 23, 30, 0, 0, time.UTC).In(loc)
		assert.Equal(t, "2024-01-11", CalendarDateOf(ts).String())
	})

	t.Run("text round trip", func(t *testing.T) {
		var d CalendarDate
		require.NoError(t, d.UnmarshalText([]byte("2024-05-06")))
		b, err := d.MarshalText()
		require.NoError(t, err)
		assert.Equal(t, "2024-05-06", string(b))
	})
}

func TestEntityBuffer(t *testing.T) {
	var e Entity
	assert.Nil(t, e.PendingEvents())

	first := testEvent{NewBaseEvent("a", "agg")}
	second := testEvent{NewBaseEvent("b", "agg")}
	e.RecordEvent(first)
	e.RecordEvent(second)

	pending := e.PendingEvents()
	require.Len(t, pending, 2)
	assert.Equal(t, EventType("a"), pending[0].EventType())
	assert.Equal(t, EventType("b"), pending[1].EventType())

	pending[0] = nil
	assert.NotNil(t, e.PendingEvents()[0], "PendingEvents must return a copy")

	e.ClearEvents()
	assert.Empty(t, e.PendingEvents())
}

type testEvent struct {
	BaseEvent
}

func (e testEvent) Payload() map[string]interface{} { return nil }

func TestNewBaseEvent(t *testing.T) {
	a := NewBaseEvent("task.completed", "agg-1")
	b := NewBaseEvent("task.completed", "agg-1")

	assert.NotEmpty(t, a.EventID())
	assert.NotEqual(t, a.EventID(), b.EventID())
	assert.Equal(t, 1, a.Version())
	assert.Equal(t, "agg-1", a.AggregateID())
	assert.False(t, a.OccurredAt().IsZero())
}

func TestErrorKinds(t *testing.T) {
	cause := errors.New("connection reset")
	err := WrapError("task", "Save", ErrTransient, "save failed", cause)

	assert.True(t, IsInfrastructure(err))
	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsNotFound(err))

	dispatch := fmt.Errorf("%w: handler x", ErrEventDispatch)
	assert.True(t, IsInfrastructure(dispatch))
	assert.False(t, IsRetryable(dispatch))
}

func TestReasonOf(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		reason  FailureReason
		message string
	}{
		{"nil", nil, ReasonNone, ""},
		{"not found", NewDomainError("task", "OfID", ErrNotFound, "task not found"), ReasonNotFound, "task not found"},
		{"unauthorized", NewDomainError("task", "Complete", ErrUnauthorized, "not the owner"), ReasonUnauthorized, "not the owner"},
		{"validation", NewDomainError("task", "Complete", ErrValidation, "already completed"), ReasonValidation, "already completed"},
		{"infrastructure hides detail", WrapError("task", "Save", ErrInfrastructure, "pg: password leaked", errors.New("x")), ReasonInternal, "internal error"},
		{"plain error", errors.New("boom"), ReasonInternal, "internal error"},
		{"wrapped", fmt.Errorf("use case: %w", NewDomainError("task", "OfID", ErrNotFound, "task not found")), ReasonNotFound, "task not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, msg := ReasonOf(tt.err)
			assert.Equal(t, tt.reason, reason)
			assert.Equal(t, tt.message, msg)
		})
	}
}
