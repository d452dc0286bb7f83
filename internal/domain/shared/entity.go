package shared

// Entity holds the domain events an aggregate recorded since it was last
// persisted. Aggregates embed it; repositories drain it after a successful
// write.
//
// Entity is not safe for concurrent use. An aggregate instance belongs to
// one request at a time.
type Entity struct {
	events []Event
}

// RecordEvent appends an event to the buffer.
func (e *Entity) RecordEvent(event Event) {
	e.events = append(e.events, event)
}

// PendingEvents returns the buffered events in the order they were recorded.
// The returned slice is a copy.
func (e *Entity) PendingEvents() []Event {
	if len(e.events) == 0 {
		return nil
	}
	out := make([]Event, len(e.events))
	copy(out, e.events)
	return out
}

// ClearEvents empties the buffer.
func (e *Entity) ClearEvents() {
	e.events = nil
}

// EventSource is implemented by every aggregate that embeds Entity.
type EventSource interface {
	PendingEvents() []Event
	ClearEvents()
}
