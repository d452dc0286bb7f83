package shared

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of domain event. The string form is the
// wire tag handlers are registered under.
type EventType string

// Event is the base interface for all domain events.
type Event interface {
	// EventID uniquely identifies this occurrence of the event.
	EventID() string

	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Version returns the schema version of the payload.
	Version() int

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	SchemaVersion int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventID implements Event interface.
func (e BaseEvent) EventID() string {
	return e.ID
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// Version implements Event interface.
func (e BaseEvent) Version() int {
	return e.SchemaVersion
}

// NewBaseEvent creates a new base event with a fresh id and version 1.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		ID:            uuid.NewString(),
		Type:          eventType,
		Timestamp:     time.Now().UTC(),
		AggregateId:   aggregateID,
		SchemaVersion: 1,
	}
}

// Correlation returns the correlation ID, empty when none was set.
func (e BaseEvent) Correlation() string {
	return e.CorrelationID
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// EventHandler is a function that handles an event. Handlers run on the
// caller's goroutine and must honour ctx cancellation.
type EventHandler func(ctx context.Context, event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish delivers an event to every handler registered for its type.
	Publish(ctx context.Context, event Event) error
}
