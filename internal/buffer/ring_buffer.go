// Package buffer provides a bounded byte ring that keeps the most recent
// terminal output, used to cap how much scrollback is persisted per session.
package buffer

import (
	"sync"
)

// DefaultCapacity is the default number of bytes retained.
const DefaultCapacity = 256 * 1024

// RingBuffer is a fixed-size circular buffer of raw output bytes. Writes
// overwrite the oldest data once it is full, so Bytes always returns the
// tail of everything written.
//
// All methods are safe for concurrent use.
type RingBuffer struct {
	mu       sync.Mutex
	data     []byte
	capacity int
	// writePos is the next position to write within data (0 to capacity-1).
	writePos int
	// total is the number of bytes ever written.
	total uint64
}

// NewRingBuffer creates a RingBuffer holding up to capacity bytes. A
// capacity below 1 is raised to 1.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer{
		data:     make([]byte, capacity),
		capacity: capacity,
	}
}

// Write appends p, discarding the oldest bytes beyond capacity. It
// implements io.Writer and never fails.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if n == 0 {
		return 0, nil
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.total += uint64(n)
	// Only the last capacity bytes can survive.
	if len(p) > rb.capacity {
		p = p[len(p)-rb.capacity:]
	}
	for len(p) > 0 {
		c := copy(rb.data[rb.writePos:], p)
		rb.writePos = (rb.writePos + c) % rb.capacity
		p = p[c:]
	}
	return n, nil
}

// Bytes returns a copy of the retained bytes, oldest first.
func (rb *RingBuffer) Bytes() []byte {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	stored := rb.stored()
	if stored == 0 {
		return nil
	}

	out := make([]byte, stored)
	start := rb.writePos - stored
	if start < 0 {
		start += rb.capacity
	}
	c := copy(out, rb.data[start:min(start+stored, rb.capacity)])
	copy(out[c:], rb.data[:stored-c])
	return out
}

// Len returns the number of retained bytes.
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.stored()
}

// Cap returns the capacity of the buffer.
func (rb *RingBuffer) Cap() int {
	return rb.capacity
}

// Total returns the number of bytes ever written.
func (rb *RingBuffer) Total() uint64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.total
}

// Truncated reports whether any written bytes have been discarded.
func (rb *RingBuffer) Truncated() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.total > uint64(rb.capacity)
}

// Reset discards all data.
func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.writePos = 0
	rb.total = 0
}

func (rb *RingBuffer) stored() int {
	if rb.total > uint64(rb.capacity) {
		return rb.capacity
	}
	return int(rb.total)
}
