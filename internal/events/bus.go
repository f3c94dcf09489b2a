// Package events provides an in-process pub/sub bus for session lifecycle
// events, consumed by the HTTP event stream.
package events

import (
	"strconv"
	"sync"
	"time"
)

// EventType identifies the type of event.
type EventType string

const (
	// EventSessionExited is published when a session's process exits on its
	// own. Killed sessions do not produce it.
	EventSessionExited EventType = "session-exited"
)

// Event is one lifecycle event.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Time      time.Time `json:"time"`
}

// subscriberBuffer is the per-subscriber channel capacity.
const subscriberBuffer = 64

// Bus broadcasts every event to all subscribers. Publish never blocks: a
// subscriber whose buffer is full misses the event.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
	nextID      int
	closed      bool
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string]chan Event),
	}
}

// Subscribe returns a channel of events and the function that releases it.
// On a closed bus the channel is already closed.
func (b *Bus) Subscribe() (events <-chan Event, unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	b.nextID++
	id := strconv.Itoa(b.nextID)
	ch := make(chan Event, subscriberBuffer)
	b.subscribers[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, ok := b.subscribers[id]; ok {
			close(ch)
			delete(b.subscribers, id)
		}
	}
}

// Publish sends event to every subscriber.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// PublishSessionExited publishes an EventSessionExited for id.
func (b *Bus) PublishSessionExited(id string) {
	b.Publish(Event{Type: EventSessionExited, SessionID: id, Time: time.Now().UTC()})
}

// Close closes every subscriber channel. Later publishes are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}

// SubscriberCount returns the current number of subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
