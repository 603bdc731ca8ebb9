// Package ringchan provides a bounded channel that drops the oldest element
// instead of blocking the producer.
package ringchan

import (
	"sync"
	"sync/atomic"
)

// RingChannel is a bounded channel-like buffer with overwrite-oldest semantics.
//
// BLE notification callbacks run on the radio stack's goroutine and must never
// block, so frames pass through a RingChannel on their way to the decoder. When
// the consumer falls behind, the oldest frames are discarded and counted.
//
//	rc := ringchan.New[[]byte](64)
//	rc.Send(frame)            // never blocks
//	for f := range rc.C() {   // reader side
//	    handle(f)
//	}
type RingChannel[T any] struct {
	ch     chan T
	sendMu sync.Mutex
	closed bool

	written     atomic.Uint64
	overwritten atomic.Uint64
}

// New creates a RingChannel with the given capacity.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the receive side. It is closed by Close.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts v, discarding the oldest element if the buffer is full.
// It reports whether an element was dropped. Sends after Close are ignored.
func (rc *RingChannel[T]) Send(v T) (dropped bool) {
	rc.sendMu.Lock()
	defer rc.sendMu.Unlock()

	if rc.closed {
		return false
	}
	for {
		select {
		case rc.ch <- v:
			rc.written.Add(1)
			return dropped
		default:
		}
		// full: make room; the reader may have emptied it meanwhile
		select {
		case <-rc.ch:
			rc.overwritten.Add(1)
			dropped = true
		default:
		}
	}
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}

// Cap returns the channel capacity.
func (rc *RingChannel[T]) Cap() int {
	return cap(rc.ch)
}

// Written returns how many elements were accepted.
func (rc *RingChannel[T]) Written() uint64 {
	return rc.written.Load()
}

// Dropped returns how many elements were discarded to make room.
func (rc *RingChannel[T]) Dropped() uint64 {
	return rc.overwritten.Load()
}

// Close closes the receive side. Buffered elements can still be drained.
// Close is idempotent.
func (rc *RingChannel[T]) Close() {
	rc.sendMu.Lock()
	defer rc.sendMu.Unlock()

	if !rc.closed {
		rc.closed = true
		close(rc.ch)
	}
}
