//go:build !linux

package goble

import "github.com/srg/plantmon/internal/link"

// NewCapabilityChecker returns a checker granting scan and connect. The
// platform asks the user itself on first radio use, and the refusal comes
// back as a permission error from the device.
func NewCapabilityChecker() link.CapabilityChecker {
	return link.GrantAll()
}
