package engine

import (
	"sync"

	"github.com/walletnotify/notify-engine/internal/claims"
	"github.com/walletnotify/notify-engine/internal/store"
)

// EventKind names a public engine event (§6, §9: "typed channel-based
// registry").
type EventKind string

const (
	EventSubscription        EventKind = "notify_subscription"
	EventMessage              EventKind = "notify_message"
	EventUpdate               EventKind = "notify_update"
	EventDelete               EventKind = "notify_delete"
	EventSubscriptionsChanged EventKind = "notify_subscriptions_changed"
	EventRequestExpire        EventKind = "request_expire"
)

// Event is delivered to every subscriber of the engine's public event
// stream. Only the fields relevant to Kind are populated.
type Event struct {
	Kind EventKind

	ID            int64  // JSON-RPC id, for Subscription/Update/Delete/RequestExpire
	Topic         string // subscription topic, for Message/Delete
	ResponseTopic string // for Subscription

	Message       claims.MessageBody            // for Message
	Subscriptions map[string]store.Subscription // for SubscriptionsChanged

	Err error // populated when the underlying request resolved to a JSON-RPC error
}

// Bus is the engine's public event emitter: one buffered channel per
// subscriber, non-blocking send with drop-on-full, the same discipline as
// internal/store's lifecycle bus.
type Bus struct {
	mu   sync.Mutex
	subs []chan Event
}

// NewBus returns an empty event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe returns a new buffered channel receiving every future Emit.
func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Emit delivers evt to every current subscriber, dropping it for any
// subscriber whose channel is full.
func (b *Bus) Emit(evt Event) {
	b.mu.Lock()
	subs := append([]chan Event(nil), b.subs...)
	b.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- evt:
		default:
		}
	}
}
