// Package events provides the in-process event bus used to fan refresh
// progress out to subscribers (websocket streams, tests).
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType identifies a class of system event
type EventType string

const (
	// RefreshStarted fires when a batch refresh begins
	RefreshStarted EventType = "refresh_started"
	// AccountRefreshed fires after one account's cycles are recomputed and stored
	AccountRefreshed EventType = "account_refreshed"
	// AccountSkipped fires when an account lacks any anchor signal
	AccountSkipped EventType = "account_skipped"
	// AccountFailed fires when one account's refresh fails after retry
	AccountFailed EventType = "account_failed"
	// RefreshCompleted fires when a batch refresh finishes
	RefreshCompleted EventType = "refresh_completed"
)

// Event is one published occurrence.
type Event struct {
	Type      EventType `json:"type"`
	Data      EventData `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// allEventTypes enumerates every event type for catch-all subscriptions.
var allEventTypes = []EventType{
	RefreshStarted,
	AccountRefreshed,
	AccountSkipped,
	AccountFailed,
	RefreshCompleted,
}

// Handler receives published events. Handlers must not block; slow consumers
// buffer on their own channels.
type Handler func(*Event)

// Bus is a simple synchronous publish/subscribe hub. Subscription is
// expected at wiring time; publishing is safe from any goroutine.
type Bus struct {
	handlers map[EventType]map[int]Handler
	nextID   int
	mu       sync.RWMutex
	log      zerolog.Logger
}

// NewBus creates an event bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[EventType]map[int]Handler),
		log:      log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(t EventType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.register(t, h)
}

// SubscribeAll registers a handler for every event type and returns a
// function that removes it. Used by transient subscribers like websocket
// connections.
func (b *Bus) SubscribeAll(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	var ids []int
	for _, t := range allEventTypes {
		ids = append(ids, b.register(t, h))
	}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, t := range allEventTypes {
			delete(b.handlers[t], ids[i])
		}
	}
}

// register adds a handler under a fresh id. Caller holds the lock.
func (b *Bus) register(t EventType, h Handler) int {
	if b.handlers[t] == nil {
		b.handlers[t] = make(map[int]Handler)
	}
	b.nextID++
	b.handlers[t][b.nextID] = h
	return b.nextID
}

// Publish delivers an event to all handlers registered for its type.
func (b *Bus) Publish(t EventType, data EventData) {
	event := &Event{
		Type:      t,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[t]))
	for _, h := range b.handlers[t] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}

	b.log.Debug().Str("event_type", string(t)).Msg("Event published")
}
