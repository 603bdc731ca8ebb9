package link

import "fmt"

// State is a phase of the peripheral connection lifecycle.
type State int

const (
	Idle State = iota
	Scanning
	Connecting
	Negotiating
	Subscribing
	Streaming
	Disconnecting
	Failed
)

var stateNames = [...]string{
	Idle:          "idle",
	Scanning:      "scanning",
	Connecting:    "connecting",
	Negotiating:   "negotiating",
	Subscribing:   "subscribing",
	Streaming:     "streaming",
	Disconnecting: "disconnecting",
	Failed:        "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Active reports whether the state holds radio resources (a scan or a session).
func (s State) Active() bool {
	switch s {
	case Scanning, Connecting, Negotiating, Subscribing, Streaming, Disconnecting:
		return true
	default:
		return false
	}
}

// ConnectionState is the observable connection status.
// Reason is set for Failed and for an Idle reached through a scan timeout.
type ConnectionState struct {
	State  State
	Reason error
}

func (c ConnectionState) String() string {
	if c.Reason == nil {
		return c.State.String()
	}
	return fmt.Sprintf("%s(%v)", c.State, c.Reason)
}

// Degraded reports whether streaming runs without a confirmed notification descriptor.
func (c ConnectionState) Degraded() bool {
	return c.State == Streaming && c.Reason != nil
}
