package alert

import (
	"fmt"
	"sync"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

// MaxLogCapacity guards against accidental misconfiguration.
const MaxLogCapacity = 1 << 16

// Log is a bounded, oldest-first-evicting record of raised alerts.
// Record is meant to be called from a single writer (the store's fan-out);
// Snapshot, Drain and Dismiss may be called from any goroutine.
type Log struct {
	mu       sync.Mutex
	buffer   mpmc.RichOverlappedRingBuffer[Event]
	capacity int
	count    int
	dropped  uint64
}

// NewLog creates a log holding at most capacity alerts.
func NewLog(capacity int) (*Log, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("alert log capacity must be > 0")
	}
	if capacity > MaxLogCapacity {
		return nil, fmt.Errorf("alert log capacity %d exceeds maximum %d", capacity, MaxLogCapacity)
	}
	// The ring rounds its size up to a power of two and keeps one slot free;
	// over-allocate and enforce the exact bound here.
	return &Log{
		buffer:   mpmc.NewOverlappedRingBuffer[Event](uint32(capacity) * 2),
		capacity: capacity,
	}, nil
}

// Record appends an alert, evicting the oldest one when full.
func (l *Log) Record(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count == l.capacity {
		if _, err := l.buffer.Dequeue(); err == nil {
			l.count--
			l.dropped++
		}
	}
	overwrites, err := l.buffer.EnqueueM(e)
	if err != nil {
		l.dropped++
		return
	}
	l.count++
	if overwrites > 0 {
		l.count -= int(overwrites)
		l.dropped += uint64(overwrites)
	}
}

// Len returns the number of alerts held.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Cap returns the configured capacity.
func (l *Log) Cap() int {
	return l.capacity
}

// Dropped returns how many alerts were evicted to honor the capacity.
func (l *Log) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Snapshot returns the held alerts oldest first without removing them.
func (l *Log) Snapshot() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	events := l.drainLocked()
	for _, e := range events {
		if _, err := l.buffer.EnqueueM(e); err == nil {
			l.count++
		}
	}
	return events
}

// Drain removes and returns every held alert, oldest first.
func (l *Log) Drain() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.drainLocked()
}

// Dismiss discards every held alert.
func (l *Log) Dismiss() {
	l.Drain()
}

func (l *Log) drainLocked() []Event {
	events := make([]Event, 0, l.count)
	for !l.buffer.IsEmpty() {
		e, err := l.buffer.Dequeue()
		if err != nil {
			break
		}
		events = append(events, e)
	}
	l.count = 0
	return events
}
