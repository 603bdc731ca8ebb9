// Package pipeline turns notification frames into stored samples.
//
// A Pipeline owns the history store, the observer hub and the alert log, and
// wires them together: frames are decoded and appended, the store evaluates
// alerts and publishes through the hub, and the alert log records what the
// hub delivers. Malformed frames are counted and dropped here; they never
// reach the store or the observers.
package pipeline

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/plantmon/internal/alert"
	"github.com/srg/plantmon/internal/fanout"
	"github.com/srg/plantmon/internal/sensor"
	"github.com/srg/plantmon/internal/store"
)

// RejectObserver is told about every dropped frame.
type RejectObserver interface {
	OnFrameRejected(payload []byte, err error)
}

// Options sizes the pipeline. Zero fields take the tagged defaults.
type Options struct {
	HistoryCapacity  int `default:"100"`
	AlertLogCapacity int `default:"100"`
	Rules            alert.Rules
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger shared by the pipeline, store and hub.
func WithLogger(l *logrus.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock replaces the sample timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithRejectObserver adds an observer for dropped frames.
func WithRejectObserver(o RejectObserver) Option {
	return func(p *Pipeline) { p.rejects = append(p.rejects, o) }
}

// Pipeline implements connection.FrameHandler.
type Pipeline struct {
	store  *store.Store
	hub    *fanout.Hub
	alerts *alert.Log

	logger  *logrus.Logger
	now     func() time.Time
	rejects []RejectObserver

	mu   sync.Mutex
	last int64

	accepted atomic.Uint64
	rejected atomic.Uint64
}

// New builds the store, hub and alert log and connects them.
func New(opts Options, options ...Option) (*Pipeline, error) {
	defaults.SetDefaults(&opts)
	if opts.Rules == (alert.Rules{}) {
		opts.Rules = alert.DefaultRules
	}

	p := &Pipeline{
		logger: logrus.New(),
		now:    time.Now,
	}
	for _, opt := range options {
		opt(p)
	}

	p.hub = fanout.NewHub(p.logger)

	var err error
	p.store, err = store.New(opts.HistoryCapacity,
		store.WithNotifier(p.hub),
		store.WithEvaluator(opts.Rules.Evaluate),
		store.WithLogger(p.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("history store: %w", err)
	}

	p.alerts, err = alert.NewLog(opts.AlertLogCapacity)
	if err != nil {
		return nil, fmt.Errorf("alert log: %w", err)
	}
	p.hub.Subscribe(fanout.Funcs{Alert: p.alerts.Record})

	return p, nil
}

// Store returns the history store.
func (p *Pipeline) Store() *store.Store { return p.store }

// Hub returns the observer hub. State changes are published here too.
func (p *Pipeline) Hub() *fanout.Hub { return p.hub }

// Alerts returns the alert log.
func (p *Pipeline) Alerts() *alert.Log { return p.alerts }

// Subscribe registers an observer with the hub.
func (p *Pipeline) Subscribe(o fanout.Observer) fanout.Handle {
	return p.hub.Subscribe(o)
}

// Accepted returns the number of frames turned into samples.
func (p *Pipeline) Accepted() uint64 { return p.accepted.Load() }

// Rejected returns the number of malformed frames dropped.
func (p *Pipeline) Rejected() uint64 { return p.rejected.Load() }

// HandleFrame decodes one notification payload and appends the sample.
func (p *Pipeline) HandleFrame(payload []byte) {
	reading, err := sensor.DecodeFrame(payload)
	if err != nil {
		p.rejected.Add(1)
		p.logger.WithFields(logrus.Fields{
			"payload": string(payload),
			"error":   err,
		}).Debug("Dropping malformed frame")
		for _, o := range p.rejects {
			o.OnFrameRejected(payload, err)
		}
		return
	}

	// stamping and appending together keeps history in timestamp order
	p.mu.Lock()
	defer p.mu.Unlock()

	p.accepted.Add(1)
	p.store.Append(reading.At(p.stamp()))
}

// stamp returns wall-clock milliseconds, never going backwards. p.mu must be held.
func (p *Pipeline) stamp() int64 {
	ts := p.now().UnixMilli()
	if ts < p.last {
		ts = p.last
	}
	p.last = ts
	return ts
}
