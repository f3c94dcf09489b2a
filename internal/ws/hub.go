package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// DefaultHubCapacity is the number of messages the hub retains.
const DefaultHubCapacity = 1024

var (
	// ErrHubClosed is returned by Recv once the hub is closed and the
	// subscriber has consumed everything still retained.
	ErrHubClosed = errors.New("hub closed")

	// errEmpty is returned by TryRecv when nothing new is available.
	errEmpty = errors.New("no message available")
)

// LagError is returned by Recv when the subscriber fell more than the hub's
// capacity behind. The skipped messages are gone; the next Recv continues
// with the oldest message still retained.
type LagError struct {
	Skipped uint64
}

func (e *LagError) Error() string {
	return fmt.Sprintf("subscriber lagged, %d messages skipped", e.Skipped)
}

// Message is one chunk of session output.
type Message struct {
	SessionID string
	Data      []byte

	// Seq is the message's position in the hub, counting from 0.
	Seq uint64
}

// Hub distributes session output to every current subscriber.
//
// It is a fixed-capacity ring: Publish never blocks and overwrites the
// oldest message once the ring is full. Each Subscription keeps its own
// cursor, starts at the point it subscribed (no replay), and detects lag
// when its cursor falls out of the ring.
type Hub struct {
	mu       sync.Mutex
	ring     []Message
	capacity uint64
	// head is the sequence number of the next message to be published.
	head   uint64
	notify chan struct{}
	closed bool

	subscribers atomic.Int64
}

// NewHub creates a hub retaining up to capacity messages.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = DefaultHubCapacity
	}
	return &Hub{
		ring:     make([]Message, capacity),
		capacity: uint64(capacity),
		notify:   make(chan struct{}),
	}
}

// Publish appends a message for sessionID. Having no subscribers is not an
// error. Publishing to a closed hub is a no-op.
func (h *Hub) Publish(sessionID string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.ring[h.head%h.capacity] = Message{SessionID: sessionID, Data: data, Seq: h.head}
	h.head++

	close(h.notify)
	h.notify = make(chan struct{})
}

// Subscribe returns a subscription that receives every message published
// after this call.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.subscribers.Add(1)
	return &Subscription{hub: h, next: h.head}
}

// Head returns the sequence number the next published message will get.
func (h *Hub) Head() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.head
}

// SubscriberCount returns the number of open subscriptions.
func (h *Hub) SubscriberCount() int {
	return int(h.subscribers.Load())
}

// Capacity returns the number of messages the hub retains.
func (h *Hub) Capacity() int {
	return int(h.capacity)
}

// Close wakes every subscriber; they drain what is retained and then get
// ErrHubClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	close(h.notify)
}

// oldest returns the sequence number of the oldest retained message.
func (h *Hub) oldest() uint64 {
	if h.head > h.capacity {
		return h.head - h.capacity
	}
	return 0
}

// Subscription is one consumer's cursor into a Hub. It must be used from a
// single goroutine.
type Subscription struct {
	hub    *Hub
	next   uint64
	closed atomic.Bool
}

// Cursor returns the sequence number of the next message s will receive,
// unless it lags. Like Recv it must be called from the consuming goroutine.
func (s *Subscription) Cursor() uint64 {
	return s.next
}

// Hub returns the hub s reads from.
func (s *Subscription) Hub() *Hub {
	return s.hub
}

// TryRecv returns the next message without waiting.
func (s *Subscription) TryRecv() (Message, error) {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	if s.next < h.head {
		if oldest := h.oldest(); s.next < oldest {
			skipped := oldest - s.next
			s.next = oldest
			return Message{}, &LagError{Skipped: skipped}
		}
		msg := h.ring[s.next%h.capacity]
		s.next++
		return msg, nil
	}
	if h.closed {
		return Message{}, ErrHubClosed
	}
	return Message{}, errEmpty
}

// Ready returns a channel that is closed once TryRecv has something to
// return. It is already closed if a message is pending or the hub is closed.
func (s *Subscription) Ready() <-chan struct{} {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	if s.next < h.head || h.closed {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return h.notify
}

// Recv waits for the next message. It returns a *LagError when messages
// were dropped, ErrHubClosed when the hub is closed, or ctx.Err().
func (s *Subscription) Recv(ctx context.Context) (Message, error) {
	for {
		msg, err := s.TryRecv()
		if !errors.Is(err, errEmpty) {
			return msg, err
		}
		select {
		case <-s.Ready():
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

// Close releases the subscription.
func (s *Subscription) Close() {
	if s.closed.CompareAndSwap(false, true) {
		s.hub.subscribers.Add(-1)
	}
}
