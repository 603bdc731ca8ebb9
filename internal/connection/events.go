package connection

import (
	"github.com/srg/plantmon/internal/link"
)

// Event is one input to the machine loop. Every event carries the attempt it
// belongs to; events from a superseded attempt are dropped by the loop.
//
// The exported variants mirror what the radio reports. The unexported ones
// are the machine's own control and timer events.
type Event interface {
	attemptID() uint64
}

// DeviceFound reports a peripheral that passed the scan filter.
type DeviceFound struct {
	Attempt    uint64
	Peripheral link.Peripheral
}

// ConnectionChanged reports a connect result or a link loss.
// A failed connect and a dropped link both arrive with Connected false.
type ConnectionChanged struct {
	Attempt   uint64
	Connected bool
	Session   link.Session
	Err       error
}

// ServicesDiscovered carries the GATT profile of the connected peripheral.
type ServicesDiscovered struct {
	Attempt  uint64
	Services link.ServiceMap
	Err      error
}

// CharacteristicChanged carries one notification payload.
type CharacteristicChanged struct {
	Attempt uint64
	Value   []byte
}

// DescriptorWritten reports the outcome of enabling notifications.
type DescriptorWritten struct {
	Attempt      uint64
	Subscription link.Subscription
	Err          error
}

type scanFinished struct {
	attempt uint64
	err     error
}

type attemptTimeout struct {
	attempt uint64
}

type teardownDone struct {
	attempt uint64
}

type request struct {
	stop  bool
	reply chan error
}

func (e DeviceFound) attemptID() uint64           { return e.Attempt }
func (e ConnectionChanged) attemptID() uint64     { return e.Attempt }
func (e ServicesDiscovered) attemptID() uint64    { return e.Attempt }
func (e CharacteristicChanged) attemptID() uint64 { return e.Attempt }
func (e DescriptorWritten) attemptID() uint64     { return e.Attempt }
func (e scanFinished) attemptID() uint64          { return e.attempt }
func (e attemptTimeout) attemptID() uint64        { return e.attempt }
func (e teardownDone) attemptID() uint64          { return e.attempt }
func (e request) attemptID() uint64               { return 0 }
