package goble

import (
	"fmt"
	"strings"

	"github.com/srg/plantmon/internal/link"
)

// NormalizeError maps known go-ble error strings onto the link sentinels.
// It ensures consistent handling even if the upstream library changes messages slightly.
// Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	// CoreBluetooth manager states: 2 unsupported, 3 unauthorized, 4 powered off
	case containsIgnoreCase(msg, "have=4"),
		containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", link.ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "have=3"),
		containsIgnoreCase(msg, "unauthorized"),
		containsIgnoreCase(msg, "operation not permitted"):
		return fmt.Errorf("%w: %v", link.ErrPermissionDenied, err)
	case containsIgnoreCase(msg, "have=2"):
		return fmt.Errorf("%w: %v", link.ErrUnsupported, err)
	case containsIgnoreCase(msg, "device not connected"),
		containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %v", link.ErrNotConnected, err)
	default:
		return err
	}
}

// containsIgnoreCase checks the substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
