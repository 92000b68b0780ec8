package event

import (
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/shepherd/internal/logging"
)

// Handler is a function that handles an event.
type Handler func(Event)

type subscription struct {
	id        uint64
	eventType string
	handler   Handler
}

// Bus is a synchronous dispatcher. Publish runs every matching handler on
// the caller's goroutine before returning, so a single publishing goroutine
// gives every subscriber a single-consumer view of the event stream.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[string][]subscription
	nextID        atomic.Uint64
	logger        *logging.Logger
}

// NewBus creates a Bus. A nil logger discards handler panics' reports.
func NewBus(logger *logging.Logger) *Bus {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Bus{
		subscriptions: make(map[string][]subscription),
		logger:        logger,
	}
}

// Subscribe registers a handler for one event type and returns its id.
func (b *Bus) Subscribe(eventType string, handler Handler) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID.Add(1)
	b.subscriptions[eventType] = append(b.subscriptions[eventType], subscription{
		id:        id,
		eventType: eventType,
		handler:   handler,
	})
	return id
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(handler Handler) uint64 {
	return b.Subscribe("*", handler)
}

// Unsubscribe removes a subscription, reporting whether it existed.
func (b *Bus) Unsubscribe(id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subscriptions {
		for i, sub := range subs {
			if sub.id == id {
				b.subscriptions[eventType] = append(subs[:i:i], subs[i+1:]...)
				return true
			}
		}
	}
	return false
}

// Publish dispatches ev to type-specific handlers, then wildcard handlers,
// each group in registration order. A panicking handler is logged and
// skipped.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	specific := append([]subscription(nil), b.subscriptions[ev.EventType()]...)
	wildcard := append([]subscription(nil), b.subscriptions["*"]...)
	b.mu.RUnlock()

	for _, sub := range specific {
		b.safeCall(sub.handler, ev)
	}
	for _, sub := range wildcard {
		b.safeCall(sub.handler, ev)
	}
}

func (b *Bus) safeCall(handler Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event_type", ev.EventType(),
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()
	handler(ev)
}

// SubscriptionCount returns the number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, subs := range b.subscriptions {
		count += len(subs)
	}
	return count
}
