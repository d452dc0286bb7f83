// Package natsrelay forwards task lifecycle events to NATS JetStream so
// services outside this process can consume them. The relay is one more
// dispatcher handler; in-process handlers never depend on it.
package natsrelay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/study-planner/planner-core/internal/domain/shared"
	"github.com/study-planner/planner-core/internal/infrastructure/messaging"
	"github.com/study-planner/planner-core/pkg/circuitbreaker"
	"github.com/study-planner/planner-core/pkg/retry"
)

// HandlerName is the name the relay registers under.
const HandlerName = "nats_relay"

// Publisher sends one message. msgID lets the broker drop duplicates.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, msgID string) error
}

// Envelope is the wire form of a relayed event.
type Envelope struct {
	ID            string                 `json:"id"`
	Type          shared.EventType       `json:"type"`
	AggregateID   string                 `json:"aggregate_id"`
	OccurredAt    time.Time              `json:"occurred_at"`
	Version       int                    `json:"version"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Payload       map[string]interface{} `json:"payload"`
}

// correlated is implemented by events built on shared.BaseEvent.
type correlated interface {
	Correlation() string
}

// NewEnvelope builds the envelope of event.
func NewEnvelope(event shared.Event) Envelope {
	env := Envelope{
		ID:          event.EventID(),
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		OccurredAt:  event.OccurredAt(),
		Version:     event.Version(),
		Payload:     event.Payload(),
	}
	if c, ok := event.(correlated); ok {
		env.CorrelationID = c.Correlation()
	}
	return env
}

// ══════════════════════════════════════════════════════════════════════════════
// RELAY
// ══════════════════════════════════════════════════════════════════════════════

// RelayConfig configures the relay.
type RelayConfig struct {
	// SubjectPrefix is prepended to the event type: "planner.task.completed".
	SubjectPrefix string

	MaxAttempts  int
	InitialDelay time.Duration
}

// DefaultRelayConfig returns the defaults.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		SubjectPrefix: "planner",
		MaxAttempts:   5,
		InitialDelay:  100 * time.Millisecond,
	}
}

// Relay publishes events through a Publisher with retries behind a
// circuit breaker.
type Relay struct {
	publisher Publisher
	prefix    string
	retrier   *retry.Retrier
	breaker   *circuitbreaker.CircuitBreaker
	logger    *slog.Logger
}

// NewRelay creates a relay.
func NewRelay(publisher Publisher, config RelayConfig, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("handler", HandlerName)

	return &Relay{
		publisher: publisher,
		prefix:    config.SubjectPrefix,
		retrier:   retry.PublishRetrier(config.MaxAttempts, config.InitialDelay),
		breaker: circuitbreaker.BrokerBreaker(func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit state changed", "breaker", name, "from", from.String(), "to", to.String())
		}),
		logger: logger,
	}
}

// Subject returns the subject an event type is published on.
func (r *Relay) Subject(eventType shared.EventType) string {
	if r.prefix == "" {
		return string(eventType)
	}
	return r.prefix + "." + string(eventType)
}

// Handle implements shared.EventHandler.
func (r *Relay) Handle(ctx context.Context, event shared.Event) error {
	env := NewEnvelope(event)
	if env.CorrelationID == "" {
		env.CorrelationID, _ = messaging.CorrelationID(ctx)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return shared.WrapError("relay", "Handle", shared.ErrInfrastructure, "encode event", err)
	}
	subject := r.Subject(event.EventType())

	err = r.breaker.Execute(ctx, func(ctx context.Context) error {
		return r.retrier.Do(ctx, func(ctx context.Context) error {
			return r.publisher.Publish(ctx, subject, data, event.EventID())
		})
	})
	if err != nil {
		kind := shared.ErrTransient
		if circuitbreaker.IsRejected(err) {
			r.logger.Warn("publish skipped, circuit open", "subject", subject, "event_id", event.EventID())
		}
		if errors.Is(err, context.Canceled) {
			kind = shared.ErrInfrastructure
		}
		return shared.WrapError("relay", "Handle", kind, fmt.Sprintf("publish to %s", subject), err)
	}

	r.logger.Debug("event relayed", "subject", subject, "event_id", event.EventID())
	return nil
}

// Registrar is the registration side of the event dispatcher.
type Registrar interface {
	RegisterHandler(eventType shared.EventType, name string, handler shared.EventHandler) error
}

// Register subscribes the relay to each of the event types.
func Register(r Registrar, relay *Relay, eventTypes ...shared.EventType) error {
	for _, eventType := range eventTypes {
		if err := r.RegisterHandler(eventType, HandlerName, relay.Handle); err != nil {
			return fmt.Errorf("register %s for %s: %w", HandlerName, eventType, err)
		}
	}
	return nil
}
