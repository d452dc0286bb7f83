// Package messaging implements in-process domain event dispatching.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/study-planner/planner-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHER
// ══════════════════════════════════════════════════════════════════════════════

// ErrDispatcherSealed is returned when handlers or middleware are added
// after startup wiring has finished.
var ErrDispatcherSealed = errors.New("dispatcher is sealed: register handlers during startup")

// ErrHandlerTimeout marks a handler that failed after its deadline expired.
var ErrHandlerTimeout = errors.New("handler timed out")

// FailurePolicy decides what happens to the remaining handlers of an event
// once one of them fails.
type FailurePolicy int

const (
	// ContinueOnError runs every handler and reports all failures together.
	ContinueOnError FailurePolicy = iota
	// StopOnError skips the remaining handlers after the first failure.
	StopOnError
)

// String returns the config form of the policy.
func (p FailurePolicy) String() string {
	switch p {
	case StopOnError:
		return "stop"
	default:
		return "continue"
	}
}

// ParseFailurePolicy parses "continue" or "stop".
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "continue":
		return ContinueOnError, nil
	case "stop":
		return StopOnError, nil
	default:
		return ContinueOnError, fmt.Errorf("unknown dispatch failure policy %q", s)
	}
}

// Dispatcher routes domain events to the handlers registered for their type.
// Handlers of one event run sequentially, in registration order, on the
// caller's goroutine; Dispatch returns only after the last one finished.
//
// The registry is written during startup only. Seal, or the first Dispatch,
// closes it; later registrations fail with ErrDispatcherSealed.
type Dispatcher struct {
	handlers       map[shared.EventType][]HandlerRegistration
	middlewares    []Middleware
	policy         FailurePolicy
	handlerTimeout time.Duration
	deadLetterQ    *DeadLetterQueue
	logger         *slog.Logger
	mu             sync.RWMutex
	sealed         atomic.Bool
	metrics        *DispatcherMetrics
}

// HandlerRegistration contains handler metadata.
type HandlerRegistration struct {
	Name    string
	Handler shared.EventHandler

	// Timeout overrides the dispatcher-wide handler timeout. Zero keeps it.
	Timeout time.Duration
}

// DispatcherConfig contains configuration for the Dispatcher.
type DispatcherConfig struct {
	// Policy applied when a handler fails.
	Policy FailurePolicy

	// HandlerTimeout bounds each handler through its context deadline.
	// Zero means no deadline.
	HandlerTimeout time.Duration

	// EnableDeadLetterQueue keeps failed handler executions for inspection.
	EnableDeadLetterQueue bool

	// DeadLetterQueueSize is the max size of the DLQ
	DeadLetterQueueSize int

	// Logger for structured logging
	Logger *slog.Logger
}

// DefaultDispatcherConfig returns sensible defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Policy:                ContinueOnError,
		HandlerTimeout:        10 * time.Second,
		EnableDeadLetterQueue: true,
		DeadLetterQueueSize:   1000,
	}
}

// NewDispatcher creates a new event dispatcher. Panics in handlers are
// always recovered and reported as handler failures.
func NewDispatcher(config DispatcherConfig) *Dispatcher {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	d := &Dispatcher{
		handlers:       make(map[shared.EventType][]HandlerRegistration),
		policy:         config.Policy,
		handlerTimeout: config.HandlerTimeout,
		logger:         config.Logger.With("component", "dispatcher"),
		metrics:        NewDispatcherMetrics(),
	}
	d.middlewares = []Middleware{RecoveryMiddleware(d.logger)}

	if config.EnableDeadLetterQueue {
		d.deadLetterQ = NewDeadLetterQueue(config.DeadLetterQueueSize)
	}

	return d
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER REGISTRATION
// ══════════════════════════════════════════════════════════════════════════════

// RegisterHandler appends a handler for an event type. Registering the same
// handler twice makes it run twice.
func (d *Dispatcher) RegisterHandler(eventType shared.EventType, name string, handler shared.EventHandler) error {
	return d.Register(eventType, HandlerRegistration{Name: name, Handler: handler})
}

// Register appends a handler registration for an event type.
func (d *Dispatcher) Register(eventType shared.EventType, reg HandlerRegistration) error {
	if reg.Handler == nil {
		return errors.New("handler cannot be nil")
	}
	if eventType == "" {
		return errors.New("event type cannot be empty")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sealed.Load() {
		return fmt.Errorf("register %s for %s: %w", reg.Name, eventType, ErrDispatcherSealed)
	}
	if reg.Name == "" {
		reg.Name = fmt.Sprintf("%s#%d", eventType, len(d.handlers[eventType])+1)
	}

	d.handlers[eventType] = append(d.handlers[eventType], reg)
	d.logger.Debug("registered handler",
		"event_type", eventType,
		"handler_name", reg.Name,
		"position", len(d.handlers[eventType]),
	)

	return nil
}

// Use appends middleware. Middleware wraps every handler, the first added
// being the outermost after panic recovery.
func (d *Dispatcher) Use(middleware Middleware) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sealed.Load() {
		return ErrDispatcherSealed
	}
	d.middlewares = append(d.middlewares, middleware)
	return nil
}

// Seal closes the registry. It is safe to call more than once.
func (d *Dispatcher) Seal() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.sealed.Swap(true) {
		d.logger.Debug("dispatcher sealed", "event_types", len(d.handlers))
	}
}

// Sealed reports whether the registry is closed.
func (d *Dispatcher) Sealed() bool {
	return d.sealed.Load()
}

// Handlers returns the names of the handlers registered for eventType, in
// invocation order.
func (d *Dispatcher) Handlers(eventType shared.EventType) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	regs := d.handlers[eventType]
	names := make([]string, len(regs))
	for i, r := range regs {
		names[i] = r.Name
	}
	return names
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT DISPATCHING
// ══════════════════════════════════════════════════════════════════════════════

// HandlerOutcome is the result of one handler for one event.
type HandlerOutcome struct {
	Handler  string
	Err      error
	Duration time.Duration
}

// DispatchError aggregates the handler failures of one dispatch.
type DispatchError struct {
	EventType shared.EventType
	EventID   string
	Outcomes  []HandlerOutcome
	// Skipped lists handlers not run because of StopOnError.
	Skipped []string
}

// Failed returns the outcomes that carry an error.
func (e *DispatchError) Failed() []HandlerOutcome {
	var failed []HandlerOutcome
	for _, o := range e.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	failed := e.Failed()
	parts := make([]string, 0, len(failed))
	for _, o := range failed {
		parts = append(parts, fmt.Sprintf("%s: %v", o.Handler, o.Err))
	}
	msg := fmt.Sprintf("dispatch %s (%s): %d handler(s) failed: %s",
		e.EventType, e.EventID, len(failed), strings.Join(parts, "; "))
	if len(e.Skipped) > 0 {
		msg += fmt.Sprintf(" (skipped: %s)", strings.Join(e.Skipped, ", "))
	}
	return msg
}

// Unwrap exposes the handler errors to errors.Is and errors.As.
func (e *DispatchError) Unwrap() []error {
	failed := e.Failed()
	errs := make([]error, len(failed))
	for i, o := range failed {
		errs[i] = o.Err
	}
	return errs
}

// Dispatch delivers event to its handlers. With no handlers it is a no-op.
// Any handler failure is reported as a *DispatchError.
func (d *Dispatcher) Dispatch(ctx context.Context, event shared.Event) error {
	if !d.sealed.Load() {
		d.Seal()
	}

	d.mu.RLock()
	handlers := d.handlers[event.EventType()]
	middlewares := d.middlewares
	d.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	d.metrics.RecordDispatch(event.EventType())

	var (
		outcomes = make([]HandlerOutcome, 0, len(handlers))
		failed   bool
		skipped  []string
	)

	for i, reg := range handlers {
		start := time.Now()
		err := d.executeHandler(ctx, event, reg, middlewares)
		outcomes = append(outcomes, HandlerOutcome{Handler: reg.Name, Err: err, Duration: time.Since(start)})

		if err == nil {
			continue
		}
		failed = true

		if d.policy == StopOnError {
			for _, rest := range handlers[i+1:] {
				skipped = append(skipped, rest.Name)
			}
			break
		}
	}

	if !failed {
		return nil
	}

	return &DispatchError{
		EventType: event.EventType(),
		EventID:   event.EventID(),
		Outcomes:  outcomes,
		Skipped:   skipped,
	}
}

// Publish implements shared.EventPublisher.
func (d *Dispatcher) Publish(ctx context.Context, event shared.Event) error {
	return d.Dispatch(ctx, event)
}

func (d *Dispatcher) executeHandler(ctx context.Context, event shared.Event, reg HandlerRegistration, middlewares []Middleware) error {
	// Build handler chain with middleware
	handler := reg.Handler
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}

	timeout := reg.Timeout
	if timeout <= 0 {
		timeout = d.handlerTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := handler(ctx, event)
	duration := time.Since(start)

	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && timeout > 0 {
		err = fmt.Errorf("%w after %v: %w", ErrHandlerTimeout, timeout, err)
	}

	d.metrics.RecordExecution(event.EventType(), duration, err == nil)

	if err != nil {
		d.logger.Warn("handler failed",
			"handler", reg.Name,
			"event_type", event.EventType(),
			"event_id", event.EventID(),
			"aggregate_id", event.AggregateID(),
			"error", err,
		)
		if d.deadLetterQ != nil {
			d.deadLetterQ.Add(DeadLetterEntry{
				Event:       event,
				HandlerName: reg.Name,
				Error:       err,
				FailedAt:    time.Now(),
			})
		}
	}

	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// INTROSPECTION
// ══════════════════════════════════════════════════════════════════════════════

// Policy returns the configured failure policy.
func (d *Dispatcher) Policy() FailurePolicy {
	return d.policy
}

// Metrics returns dispatcher metrics.
func (d *Dispatcher) Metrics() *DispatcherMetrics {
	return d.metrics
}

// DeadLetterQueue returns the dead letter queue, nil when disabled.
func (d *Dispatcher) DeadLetterQueue() *DeadLetterQueue {
	return d.deadLetterQ
}
