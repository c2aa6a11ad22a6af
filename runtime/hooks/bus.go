// Package hooks implements the engine's process-wide event bus and the typed
// lifecycle events published on it. Delivery is synchronous relative to
// Publish: subscribers run inline in the publisher's goroutine, and subscriber
// failures (errors or panics) are logged and never propagate back to the
// publisher.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/autoflowhq/autoflow/runtime/telemetry"
)

type (
	// Bus publishes engine events to registered subscribers in a fan-out
	// pattern. The bus is thread-safe and supports concurrent Publish,
	// Register, and Close operations.
	Bus interface {
		// Publish delivers the event to every currently registered subscriber
		// whose pattern matches the event type. Subscriber errors and panics are
		// logged and swallowed; Publish never fails because of a subscriber.
		Publish(ctx context.Context, event Event)

		// Register adds a subscriber for all events and returns a Subscription
		// that can be closed to unregister. Register returns an error if sub is
		// nil.
		Register(sub Subscriber) (Subscription, error)

		// Subscribe adds a handler for events matching the given pattern. A
		// pattern is either an exact event name (e.g. "node:start") or a family
		// wildcard (e.g. "email:*"). Subscribe returns an error if fn is nil.
		Subscribe(pattern string, fn func(ctx context.Context, event Event)) (Subscription, error)
	}

	// Subscriber reacts to published events by implementing HandleEvent.
	// Implementations must be thread-safe if registered with multiple buses or
	// if HandleEvent performs concurrent work. A returned error is logged by
	// the bus and does not stop delivery to remaining subscribers.
	Subscriber interface {
		// HandleEvent processes a single event. The context originates from the
		// Publish call and may carry deadlines subscribers should respect.
		HandleEvent(ctx context.Context, event Event) error
	}

	// SubscriberFunc adapts a function to the Subscriber interface.
	SubscriberFunc func(ctx context.Context, event Event) error

	// Subscription represents an active registration on a Bus. Close removes
	// the subscriber; it is idempotent and thread-safe.
	Subscription interface {
		// Close removes the subscriber from the bus. Always returns nil.
		Close() error
	}

	// Option configures a Bus.
	Option func(*bus)

	bus struct {
		mu          sync.RWMutex
		subscribers map[*subscription]entry
		logger      telemetry.Logger
	}

	entry struct {
		sub     Subscriber
		pattern string
	}

	subscription struct {
		bus  *bus
		once sync.Once
	}
)

// HandleEvent implements Subscriber.
func (f SubscriberFunc) HandleEvent(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// WithLogger sets the logger used to report subscriber failures.
func WithLogger(logger telemetry.Logger) Option {
	return func(b *bus) { b.logger = logger }
}

// NewBus constructs a new in-process event bus. The returned bus is
// thread-safe and ready for immediate use.
func NewBus(opts ...Option) Bus {
	b := &bus{
		subscribers: make(map[*subscription]entry),
		logger:      telemetry.NoopLogger{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish delivers the event to every matching subscriber. The snapshot of
// subscribers is captured before iteration, so registrations made during a
// Publish do not affect the current delivery.
func (b *bus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	entries := make([]entry, 0, len(b.subscribers))
	for _, e := range b.subscribers {
		entries = append(entries, e)
	}
	b.mu.RUnlock()
	for _, e := range entries {
		if !matches(e.pattern, event.Type()) {
			continue
		}
		b.deliver(ctx, e.sub, event)
	}
}

// deliver invokes a single subscriber, converting errors and panics into log
// records so they never reach the publisher.
func (b *bus) deliver(ctx context.Context, sub Subscriber, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error(ctx, "event subscriber panicked",
				"event", string(event.Type()), "panic", fmt.Sprint(r))
		}
	}()
	if err := sub.HandleEvent(ctx, event); err != nil {
		b.logger.Warn(ctx, "event subscriber failed",
			"event", string(event.Type()), "err", err.Error())
	}
}

// Register adds a subscriber for all events.
func (b *bus) Register(sub Subscriber) (Subscription, error) {
	return b.add(sub, "*")
}

// Subscribe adds a handler for events matching the given pattern.
func (b *bus) Subscribe(pattern string, fn func(ctx context.Context, event Event)) (Subscription, error) {
	if fn == nil {
		return nil, errors.New("handler is required")
	}
	return b.add(SubscriberFunc(func(ctx context.Context, event Event) error {
		fn(ctx, event)
		return nil
	}), pattern)
}

func (b *bus) add(sub Subscriber, pattern string) (Subscription, error) {
	if sub == nil {
		return nil, errors.New("subscriber is required")
	}
	if pattern == "" {
		pattern = "*"
	}
	s := &subscription{bus: b}
	b.mu.Lock()
	b.subscribers[s] = entry{sub: sub, pattern: pattern}
	b.mu.Unlock()
	return s, nil
}

// Close removes the subscriber from the bus. Idempotent.
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subscribers, s)
		s.bus.mu.Unlock()
	})
	return nil
}

// matches reports whether a subscription pattern covers an event type.
// "*" matches everything; "family:*" matches every event in that family.
func matches(pattern string, typ EventType) bool {
	if pattern == "*" || pattern == string(typ) {
		return true
	}
	if family, ok := strings.CutSuffix(pattern, ":*"); ok {
		return strings.HasPrefix(string(typ), family+":")
	}
	return false
}
