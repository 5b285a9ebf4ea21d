package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/garyjia/expense-approval/internal/domain/event"
)

// Dispatcher routes expense and rule events to registered handlers
type Dispatcher interface {
	// Subscribe registers a handler for one or more event types
	Subscribe(name string, handler Handler, eventTypes ...event.Type)

	// Unsubscribe removes a handler by name from every event type
	Unsubscribe(name string)

	// Dispatch sends event to all registered handlers synchronously.
	// Every handler runs; the first error encountered is returned.
	Dispatch(ctx context.Context, evt *event.Event) error

	// DispatchAsync sends event to handlers in the background. Handlers keep
	// the values of ctx but not its cancellation, so they outlive the request.
	DispatchAsync(ctx context.Context, evt *event.Event)

	// ListHandlers returns registered handler names for an event type
	ListHandlers(eventType event.Type) []string

	// Close stops accepting events and waits for async handlers
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type eventDispatcher struct {
	mu       sync.RWMutex
	handlers map[event.Type][]HandlerInfo
	logger   Logger
	observer Observer

	wg     sync.WaitGroup
	closed atomic.Bool
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		d.logger = logger
	}
}

// WithObserver reports each handler outcome, typically to metrics
func WithObserver(observer Observer) Option {
	return func(d *eventDispatcher) {
		d.observer = observer
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{
		handlers: make(map[event.Type][]HandlerInfo),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

func (d *eventDispatcher) Subscribe(name string, handler Handler, eventTypes ...event.Type) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, eventType := range eventTypes {
		d.handlers[eventType] = append(d.handlers[eventType], HandlerInfo{
			Name:      name,
			EventType: eventType,
			Handler:   handler,
		})
	}

	if d.logger != nil {
		d.logger.Info("Handler registered",
			"handler_name", name,
			"event_types", eventTypes,
		)
	}
}

func (d *eventDispatcher) Unsubscribe(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for eventType, handlers := range d.handlers {
		filtered := make([]HandlerInfo, 0, len(handlers))
		for _, h := range handlers {
			if h.Name != name {
				filtered = append(filtered, h)
			}
		}
		d.handlers[eventType] = filtered
	}

	if d.logger != nil {
		d.logger.Info("Handler unregistered", "handler_name", name)
	}
}

func (d *eventDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	if d.closed.Load() {
		return fmt.Errorf("dispatcher is closed")
	}

	handlers := d.snapshot(evt.Type)

	var firstErr error
	for _, info := range handlers {
		if err := d.run(ctx, evt, info); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("handler %s failed: %w", info.Name, err)
		}
	}

	return firstErr
}

func (d *eventDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	if d.closed.Load() {
		if d.logger != nil {
			d.logger.Error("Cannot dispatch async event, dispatcher is closed",
				"event_type", evt.Type,
				"event_id", evt.ID,
			)
		}
		return
	}

	detached := context.WithoutCancel(ctx)
	for _, info := range d.snapshot(evt.Type) {
		d.wg.Add(1)
		go func(h HandlerInfo) {
			defer d.wg.Done()
			_ = d.run(detached, evt, h)
		}(info)
	}
}

func (d *eventDispatcher) ListHandlers(eventType event.Type) []string {
	handlers := d.snapshot(eventType)
	names := make([]string, len(handlers))
	for i, h := range handlers {
		names[i] = h.Name
	}
	return names
}

func (d *eventDispatcher) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("dispatcher already closed")
	}

	d.wg.Wait()

	if d.logger != nil {
		d.logger.Info("Dispatcher closed")
	}

	return nil
}

func (d *eventDispatcher) snapshot(eventType event.Type) []HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	handlers := d.handlers[eventType]
	out := make([]HandlerInfo, len(handlers))
	copy(out, handlers)
	return out
}

// run executes one handler, logging and observing its outcome
func (d *eventDispatcher) run(ctx context.Context, evt *event.Event, info HandlerInfo) error {
	err := d.safeExecute(ctx, evt, info)

	if err != nil && d.logger != nil {
		d.logger.Error("Handler error",
			"event_type", evt.Type,
			"event_id", evt.ID,
			"aggregate_id", evt.AggregateID,
			"handler_name", info.Name,
			"error", err,
		)
	}
	if d.observer != nil {
		d.observer(evt.Type, info.Name, err)
	}

	return err
}

// safeExecute runs a handler with panic recovery
func (d *eventDispatcher) safeExecute(ctx context.Context, evt *event.Event, info HandlerInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	return info.Handler(ctx, evt)
}
