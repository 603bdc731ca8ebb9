package main

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter keeps a single status line with the current phase and
// elapsed (or remaining) seconds.
//
// Usage:
//
//	p := NewProgressPrinter(...)
//	p.Start()
//	defer p.Stop()
//
// A ProgressPrinter is single-use: Start at most once, Stop any number of times.
type ProgressPrinter struct {
	out        io.Writer
	prefix     string
	phase      atomic.Value        // string
	stopPhases map[string]struct{} // phases that end the display
	duration   time.Duration       // > 0 counts down
	startTime  time.Time
	started    atomic.Bool
	stopOnce   sync.Once
	stopChan   chan struct{}
	done       chan struct{}
}

// NewProgressPrinter creates a printer that counts elapsed seconds.
func NewProgressPrinter(out io.Writer, prefix, phase string, stopPhases ...string) *ProgressPrinter {
	return NewCountdownProgressPrinter(out, prefix, phase, 0, stopPhases...)
}

// NewCountdownProgressPrinter creates a printer that counts down from duration.
func NewCountdownProgressPrinter(out io.Writer, prefix, phase string, duration time.Duration, stopPhases ...string) *ProgressPrinter {
	stopSet := make(map[string]struct{}, len(stopPhases))
	for _, p := range stopPhases {
		stopSet[p] = struct{}{}
	}
	p := &ProgressPrinter{
		out:        out,
		prefix:     prefix,
		stopPhases: stopSet,
		duration:   duration,
		stopChan:   make(chan struct{}),
		done:       make(chan struct{}),
	}
	p.phase.Store(phase)
	return p
}

// Start begins updating the status line in a background goroutine.
// Panics if called more than once.
func (p *ProgressPrinter) Start() {
	if !p.started.CompareAndSwap(false, true) {
		panic("ProgressPrinter.Start called more than once")
	}
	p.startTime = time.Now()
	fmt.Fprintf(p.out, "\r%s (%s...)   ", p.prefix, p.phase.Load().(string))

	ticker := time.NewTicker(progressUpdateInterval)
	go func() {
		defer close(p.done)
		defer ticker.Stop()
		for {
			select {
			case <-p.stopChan:
				return
			case <-ticker.C:
				phase := p.phase.Load().(string)
				if _, stop := p.stopPhases[phase]; stop {
					return
				}
				fmt.Fprintf(p.out, "\r%s (%s %ds)   ", p.prefix, phase, p.seconds())
			}
		}
	}()
}

func (p *ProgressPrinter) seconds() int {
	elapsed := time.Since(p.startTime)
	if p.duration <= 0 {
		return int(elapsed.Seconds())
	}
	remaining := p.duration - elapsed
	if remaining <= 0 {
		return 0
	}
	// round to the nearest second
	return int(remaining.Seconds() + 0.5)
}

// SetPhase updates the phase; a stop phase ends the display.
func (p *ProgressPrinter) SetPhase(phase string) {
	p.phase.Store(phase)
	if _, stop := p.stopPhases[phase]; stop {
		p.Stop()
	}
}

// Stop ends the display and clears the line. Safe to call repeatedly and
// from multiple goroutines.
func (p *ProgressPrinter) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
		if p.started.Load() {
			<-p.done
			fmt.Fprint(p.out, clearLineSequence)
		}
	})
}
