package relay

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/walletnotify/notify-engine/internal/errs"
)

// MemRelay is an in-process reference/test implementation of Relay. Each
// Connect() call returns an independent Conn with its own inbound channel,
// so tests can simulate a wallet and a dapp (or notify server) as two
// distinct relay clients sharing the same topic space.
type MemRelay struct {
	mu    sync.RWMutex
	subs  map[string]map[string]*Conn // topic -> connID -> conn
	conns map[string]*Conn
}

// NewMemRelay returns an empty in-process relay.
func NewMemRelay() *MemRelay {
	return &MemRelay{
		subs:  make(map[string]map[string]*Conn),
		conns: make(map[string]*Conn),
	}
}

// Connect registers a new independent client on this relay.
func (m *MemRelay) Connect() *Conn {
	c := &Conn{
		id:     uuid.NewString(),
		relay:  m,
		events: make(chan Event, 256),
		topics: make(map[string]bool),
	}
	m.mu.Lock()
	m.conns[c.id] = c
	m.mu.Unlock()
	return c
}

// Close removes conn from every topic it was subscribed to and closes its
// event channel.
func (m *MemRelay) Close(c *Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for topic := range c.topics {
		if subs, ok := m.subs[topic]; ok {
			delete(subs, c.id)
			if len(subs) == 0 {
				delete(m.subs, topic)
			}
		}
	}
	delete(m.conns, c.id)
	close(c.events)
}

// Conn is one client's view of a MemRelay: it implements Relay.
type Conn struct {
	id    string
	relay *MemRelay

	mu     sync.Mutex
	topics map[string]bool

	events chan Event
}

func (c *Conn) Publish(ctx context.Context, topic string, payload []byte, opts PublishOptions) error {
	c.relay.mu.RLock()
	subs := c.relay.subs[topic]
	var targets []*Conn
	for _, sub := range subs {
		targets = append(targets, sub)
	}
	c.relay.mu.RUnlock()

	evt := Event{Topic: topic, Message: payload, PublishedAt: time.Now()}
	for _, target := range targets {
		select {
		case target.events <- evt:
		default:
			// Slow subscriber: drop rather than block the publisher.
		}
	}
	return nil
}

func (c *Conn) Subscribe(ctx context.Context, topic string) error {
	c.mu.Lock()
	c.topics[topic] = true
	c.mu.Unlock()

	c.relay.mu.Lock()
	if c.relay.subs[topic] == nil {
		c.relay.subs[topic] = make(map[string]*Conn)
	}
	c.relay.subs[topic][c.id] = c
	c.relay.mu.Unlock()
	return nil
}

func (c *Conn) Unsubscribe(ctx context.Context, topic string) error {
	c.mu.Lock()
	delete(c.topics, topic)
	c.mu.Unlock()

	c.relay.mu.Lock()
	if subs, ok := c.relay.subs[topic]; ok {
		delete(subs, c.id)
		if len(subs) == 0 {
			delete(c.relay.subs, topic)
		}
	}
	c.relay.mu.Unlock()
	return nil
}

func (c *Conn) Events() <-chan Event {
	return c.events
}

// errRelayUnavailable is returned by adapters wrapping a real network relay
// when the underlying transport is down; MemRelay itself never fails.
var errRelayUnavailable = errs.New("Publish", errs.RelayFailure)

// ErrRelayUnavailable exposes the sentinel for callers that want to build
// their own Relay adapters with errors.Is-compatible failures.
var ErrRelayUnavailable = errRelayUnavailable
