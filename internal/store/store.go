// Package store keeps the bounded rolling history of sensor samples.
//
// The store is a fixed-capacity ring: appends are O(1) and evict the oldest
// sample once the ring is full. Alert rules run inside Append for exactly the
// appended sample, so every sample is evaluated once and in arrival order.
// Readers get lazy sequences over a copy taken under the lock, so iteration
// never holds up the writer and never sees a half-written slot.
package store

import (
	"fmt"
	"iter"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/plantmon/internal/alert"
	"github.com/srg/plantmon/internal/sensor"
)

// MaxCapacity guards against accidental misconfiguration.
const MaxCapacity = 1 << 20

// Notifier receives the store's output after each mutation commits.
// *fanout.Hub implements it.
type Notifier interface {
	PublishSample(s sensor.Sample)
	PublishAlert(e alert.Event)
	PublishReset()
}

// Evaluator derives alerts from one sample.
type Evaluator func(sensor.Sample) []alert.Event

// Option configures a Store.
type Option func(*Store)

// WithEvaluator replaces the default alert rules.
func WithEvaluator(fn Evaluator) Option {
	return func(s *Store) { s.evaluate = fn }
}

// WithNotifier sets the fan-out target.
func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Store is the bounded time-series history.
type Store struct {
	mu       sync.Mutex
	ring     []sensor.Sample
	head     int // index of the oldest sample
	size     int
	appended uint64

	// notifyMu is taken before mu is released so notifications leave in the
	// same order the mutations committed, while readers proceed.
	notifyMu sync.Mutex

	evaluate Evaluator
	notifier Notifier
	logger   *logrus.Logger
}

// New creates a store holding at most capacity samples.
func New(capacity int, opts ...Option) (*Store, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("history capacity must be > 0")
	}
	if capacity > MaxCapacity {
		return nil, fmt.Errorf("history capacity %d exceeds maximum %d", capacity, MaxCapacity)
	}

	s := &Store{
		ring:     make([]sensor.Sample, capacity),
		evaluate: alert.Evaluate,
		logger:   logrus.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Append adds a sample, evicting the oldest when full, and returns the alerts
// it raised. Observers are notified after the sample is committed; they must
// not call Append or Clear themselves.
func (s *Store) Append(smp sensor.Sample) []alert.Event {
	s.mu.Lock()
	capacity := len(s.ring)
	if s.size == capacity {
		s.ring[s.head] = smp
		s.head = (s.head + 1) % capacity
	} else {
		s.ring[(s.head+s.size)%capacity] = smp
		s.size++
	}
	s.appended++
	events := s.evaluate(smp)

	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	if len(events) > 0 {
		s.logger.WithFields(logrus.Fields{
			"timestamp": smp.Timestamp,
			"alerts":    len(events),
		}).Debug("Sample raised alerts")
	}

	if s.notifier != nil {
		s.notifier.PublishSample(smp)
		for _, e := range events {
			s.notifier.PublishAlert(e)
		}
	}
	return events
}

// Clear empties the store. Observers get a single reset notification.
func (s *Store) Clear() {
	s.mu.Lock()
	dropped := s.size
	clear(s.ring)
	s.head, s.size = 0, 0

	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	s.logger.WithField("dropped", dropped).Info("History cleared")
	if s.notifier != nil {
		s.notifier.PublishReset()
	}
}

// Len returns the number of samples held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Cap returns the fixed capacity.
func (s *Store) Cap() int {
	return len(s.ring)
}

// Appended returns the number of samples ever appended, including evicted ones.
func (s *Store) Appended() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appended
}

// Latest returns the newest sample.
func (s *Store) Latest() (sensor.Sample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.size == 0 {
		return sensor.Sample{}, false
	}
	return s.ring[(s.head+s.size-1)%len(s.ring)], true
}

// WindowLast yields the newest n samples, oldest first. The snapshot is taken
// when iteration starts; ranging again takes a fresh one.
func (s *Store) WindowLast(n int) iter.Seq[sensor.Sample] {
	return each(func() []sensor.Sample { return s.last(n) })
}

// WindowSince yields samples with Timestamp >= since, in insertion order.
func (s *Store) WindowSince(since int64) iter.Seq[sensor.Sample] {
	return each(func() []sensor.Sample { return s.since(since) })
}

// All yields the whole history, oldest first.
func (s *Store) All() iter.Seq[sensor.Sample] {
	return s.WindowLast(len(s.ring))
}

// Snapshot returns a copy of the newest n samples.
func (s *Store) Snapshot(n int) []sensor.Sample {
	return s.last(n)
}

func each(snapshot func() []sensor.Sample) iter.Seq[sensor.Sample] {
	return func(yield func(sensor.Sample) bool) {
		for _, smp := range snapshot() {
			if !yield(smp) {
				return
			}
		}
	}
}

func (s *Store) last(n int) []sensor.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n > s.size {
		n = s.size
	}
	if n <= 0 {
		return nil
	}

	out := make([]sensor.Sample, n)
	start := s.head + s.size - n
	for i := range out {
		out[i] = s.ring[(start+i)%len(s.ring)]
	}
	return out
}

func (s *Store) since(ts int64) []sensor.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []sensor.Sample
	for i := 0; i < s.size; i++ {
		smp := s.ring[(s.head+i)%len(s.ring)]
		if smp.Timestamp >= ts {
			out = append(out, smp)
		}
	}
	return out
}
