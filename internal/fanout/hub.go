package fanout

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/plantmon/internal/alert"
	"github.com/srg/plantmon/internal/link"
	"github.com/srg/plantmon/internal/sensor"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Handle identifies a subscription.
type Handle uint64

// Hub is the observer registry. Deliveries go out in subscription order; a
// panicking observer is logged and skipped.
type Hub struct {
	mu        sync.RWMutex
	observers *orderedmap.OrderedMap[Handle, Observer]
	next      Handle
	failures  atomic.Uint64
	logger    *logrus.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.New()
	}
	return &Hub{
		observers: orderedmap.New[Handle, Observer](),
		logger:    logger,
	}
}

// Subscribe registers o and returns its handle.
func (h *Hub) Subscribe(o Observer) Handle {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.next++
	h.observers.Set(h.next, o)
	return h.next
}

// Unsubscribe removes a registration. Returns false for unknown handles.
func (h *Hub) Unsubscribe(handle Handle) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, ok := h.observers.Delete(handle)
	return ok
}

// Len returns the number of registered observers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.observers.Len()
}

// Failures returns how many observer calls panicked.
func (h *Hub) Failures() uint64 {
	return h.failures.Load()
}

func (h *Hub) PublishSample(s sensor.Sample) {
	h.each("sample", func(o Observer) { o.OnSample(s) })
}

func (h *Hub) PublishAlert(e alert.Event) {
	h.each("alert", func(o Observer) { o.OnAlert(e) })
}

func (h *Hub) PublishState(st link.ConnectionState) {
	h.each("state", func(o Observer) { o.OnConnectionStateChanged(st) })
}

func (h *Hub) PublishReset() {
	h.each("reset", func(o Observer) {
		if r, ok := o.(ResetObserver); ok {
			r.OnReset()
		}
	})
}

// snapshot copies the registrations so observers may (un)subscribe from
// inside a callback.
func (h *Hub) snapshot() []entry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]entry, 0, h.observers.Len())
	for pair := h.observers.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, entry{handle: pair.Key, observer: pair.Value})
	}
	return out
}

type entry struct {
	handle   Handle
	observer Observer
}

func (h *Hub) each(kind string, deliver func(Observer)) {
	for _, e := range h.snapshot() {
		h.deliver(kind, e, deliver)
	}
}

func (h *Hub) deliver(kind string, e entry, deliver func(Observer)) {
	defer func() {
		if r := recover(); r != nil {
			h.failures.Add(1)
			h.logger.WithFields(logrus.Fields{
				"observer": uint64(e.handle),
				"kind":     kind,
				"panic":    fmt.Sprint(r),
			}).Error("Observer panicked, continuing delivery")
		}
	}()
	deliver(e.observer)
}
