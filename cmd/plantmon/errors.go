package main

import (
	"errors"
	"fmt"

	"github.com/srg/plantmon/internal/link"
)

// Command-level errors
var (
	// ErrRetriesExhausted means every allowed attempt ended in a retryable failure.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// FormatUserError turns link errors into messages an operator can act on.
func FormatUserError(err error) string {
	var permErr *link.PermissionError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &permErr):
		return fmt.Sprintf("missing %s permission; grant Bluetooth access (on Linux: CAP_NET_ADMIN and CAP_NET_RAW) or set capabilities.assume_granted", permErr.Capability)
	case errors.Is(err, link.ErrBluetoothOff):
		return "Bluetooth is turned off; enable the adapter and retry"
	case errors.Is(err, link.ErrUnsupported):
		return "Bluetooth LE is not supported on this host"
	case errors.Is(err, link.ErrPermissionDenied):
		return "permission denied by the Bluetooth stack; grant Bluetooth access and retry"
	case errors.Is(err, link.ErrProtocolMismatch):
		return fmt.Sprintf("the peripheral is not a supported plant sensor: %v", err)
	case errors.Is(err, ErrRetriesExhausted):
		return fmt.Sprintf("gave up connecting (%v)", err)
	case errors.Is(err, link.ErrTimeout):
		return "no plant sensor answered in time; check that it is powered and in range"
	default:
		return err.Error()
	}
}
