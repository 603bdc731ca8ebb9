// Package link defines the wireless link contract used by plantmon.
//
// It contains the transport adapter interfaces (scan, connect, service
// discovery, notification subscription), the capability gate that guards every
// radio operation, the connection state model, and the error taxonomy shared by
// the connection state machine and its transport implementations.
//
// The only production implementation lives in the goble subpackage.
package link
