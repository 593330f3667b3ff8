package event

import (
	"log"
	"runtime/debug"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
)

// Handler is a function that handles an event.
type Handler func(Event)

// wildcard is the pseudo event type used by SubscribeAll.
const wildcard = "*"

type subscription struct {
	id      string
	handler Handler
}

// Bus is a synchronous pub-sub event bus.
//
// Publishers in this module emit events while holding their subsystem lock
// so that subscribers observe them in lock order. Handlers therefore must be
// fast and must never call back into the publishing subsystem.
//
// A nil *Bus is valid and drops every event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]subscription
	nextID atomic.Uint64
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]subscription)}
}

// Subscribe registers a handler for a specific event type and returns an ID
// that can be passed to Unsubscribe.
func (b *Bus) Subscribe(eventType string, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := "sub-" + strconv.FormatUint(b.nextID.Add(1), 10)
	b.subs[eventType] = append(b.subs[eventType], subscription{id: id, handler: handler})
	return id
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(handler Handler) string {
	return b.Subscribe(wildcard, handler)
}

// Unsubscribe removes a subscription by ID.
// Returns true if the subscription was found and removed.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subs {
		n := len(subs)
		subs = slices.DeleteFunc(subs, func(s subscription) bool { return s.id == id })
		if len(subs) != n {
			b.subs[eventType] = subs
			return true
		}
	}
	return false
}

// Publish dispatches an event to the handlers subscribed to its type, then
// to wildcard handlers, each group in registration order. A panicking
// handler is logged and skipped.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}

	b.mu.RLock()
	specific := slices.Clone(b.subs[e.EventType()])
	all := slices.Clone(b.subs[wildcard])
	b.mu.RUnlock()

	for _, s := range specific {
		safeCall(s.handler, e)
	}
	for _, s := range all {
		safeCall(s.handler, e)
	}
}

func safeCall(handler Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: event handler panicked for event %s: %v\n%s",
				e.EventType(), r, debug.Stack())
		}
	}()
	handler(e)
}

// SubscriptionCount returns the total number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, subs := range b.subs {
		count += len(subs)
	}
	return count
}
