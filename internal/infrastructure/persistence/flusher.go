// Package persistence holds what every store shares: the rule that domain
// events leave an aggregate only after the aggregate has been written.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/study-planner/planner-core/internal/domain/shared"
)

// EventFlusher drains an aggregate's buffered events through a publisher
// after a successful write. Stores embed or hold one and route every
// event-producing write through Commit.
type EventFlusher struct {
	publisher shared.EventPublisher
	logger    *slog.Logger
}

// NewEventFlusher creates a flusher. A nil publisher drops events, which is
// only useful for stores that are filled outside the request path.
func NewEventFlusher(publisher shared.EventPublisher, logger *slog.Logger) *EventFlusher {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventFlusher{publisher: publisher, logger: logger}
}

// Commit runs write and, when it succeeds, publishes the source's pending
// events one by one in the order they were recorded, then clears the buffer.
//
// When write fails its error is returned, nothing is published and the
// buffer is left as it was. Publishing continues past a failed event; the
// failures are returned wrapped with shared.ErrEventDispatch after the
// buffer has been cleared. The write is never rolled back.
func (f *EventFlusher) Commit(ctx context.Context, source shared.EventSource, write func(ctx context.Context) error) error {
	if err := write(ctx); err != nil {
		return err
	}

	events := source.PendingEvents()
	source.ClearEvents()

	if f.publisher == nil || len(events) == 0 {
		return nil
	}

	var failures []error
	for _, event := range events {
		if err := f.publisher.Publish(ctx, event); err != nil {
			f.logger.Error("event dispatch failed after write",
				"event_type", event.EventType(),
				"event_id", event.EventID(),
				"aggregate_id", event.AggregateID(),
				"error", err,
			)
			failures = append(failures, err)
		}
	}

	if len(failures) == 0 {
		return nil
	}
	if len(failures) == 1 {
		return fmt.Errorf("%w: %w", shared.ErrEventDispatch, failures[0])
	}
	return fmt.Errorf("%w: %d events: %w", shared.ErrEventDispatch, len(failures), errors.Join(failures...))
}
