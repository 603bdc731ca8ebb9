package link

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy sentinels. Use errors.Is against these.
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrProtocolMismatch = errors.New("protocol mismatch")
	ErrTimeout          = errors.New("timeout")
	ErrBluetoothOff     = errors.New("bluetooth is turned off")
	ErrNotConnected     = errors.New("not connected")
	ErrUnsupported      = errors.New("unsupported")
	ErrDescriptorAbsent = errors.New("client configuration descriptor absent")
)

// PermissionError reports a missing capability grant.
type PermissionError struct {
	Capability Capability
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: %s capability not granted", e.Capability)
}

// Is makes errors.Is(err, ErrPermissionDenied) hold for any PermissionError.
func (e *PermissionError) Is(target error) bool {
	return target == ErrPermissionDenied
}

// TransportError is a radio or link-level failure of a single operation.
type TransportError struct {
	Op  string // "scan", "connect", "discover", "subscribe", "disconnect"
	Err error
}

func (e *TransportError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NotFoundError reports a GATT resource that the peripheral does not expose.
// It matches ErrProtocolMismatch.
type NotFoundError struct {
	Resource string   // "service", "characteristic"
	UUIDs    []string // [service] or [service, characteristic]
}

func (e *NotFoundError) Error() string {
	switch len(e.UUIDs) {
	case 0:
		return fmt.Sprintf("%s not found", e.Resource)
	case 1:
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	default:
		return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
	}
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrProtocolMismatch
}

// Kind is the coarse error class used for retry decisions and metrics labels.
type Kind string

const (
	KindNone             Kind = ""
	KindPermissionDenied Kind = "permission_denied"
	KindTransport        Kind = "transport"
	KindProtocolMismatch Kind = "protocol_mismatch"
	KindTimeout          Kind = "timeout"
)

// Classify maps an error onto the taxonomy. Unknown errors count as transport failures.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, ErrProtocolMismatch):
		return KindProtocolMismatch
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindTransport
	}
}

// Retryable reports whether the caller may retry the attempt without user action
// or a firmware change.
func Retryable(err error) bool {
	switch Classify(err) {
	case KindTransport, KindTimeout:
		return true
	default:
		return false
	}
}

// containsIgnoreCase checks substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// IsLinkLoss reports whether err describes a dropped connection.
func IsLinkLoss(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrNotConnected) || containsIgnoreCase(err.Error(), "disconnected")
}
