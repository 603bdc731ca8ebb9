// Package fanout delivers samples, alerts and connection state changes to
// registered observers without the producers knowing who listens.
package fanout

import (
	"github.com/srg/plantmon/internal/alert"
	"github.com/srg/plantmon/internal/link"
	"github.com/srg/plantmon/internal/sensor"
)

// Observer receives pipeline notifications. Calls are synchronous and made
// from the producer goroutine, so implementations must return quickly.
type Observer interface {
	OnSample(s sensor.Sample)
	OnAlert(e alert.Event)
	OnConnectionStateChanged(st link.ConnectionState)
}

// ResetObserver is implemented by observers that want to know when the
// history was cleared.
type ResetObserver interface {
	OnReset()
}

// Funcs adapts plain functions to Observer. Nil fields are skipped.
type Funcs struct {
	Sample func(sensor.Sample)
	Alert  func(alert.Event)
	State  func(link.ConnectionState)
	Reset  func()
}

func (f Funcs) OnSample(s sensor.Sample) {
	if f.Sample != nil {
		f.Sample(s)
	}
}

func (f Funcs) OnAlert(e alert.Event) {
	if f.Alert != nil {
		f.Alert(e)
	}
}

func (f Funcs) OnConnectionStateChanged(st link.ConnectionState) {
	if f.State != nil {
		f.State(st)
	}
}

func (f Funcs) OnReset() {
	if f.Reset != nil {
		f.Reset()
	}
}
