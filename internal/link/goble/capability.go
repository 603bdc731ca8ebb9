package goble

import "github.com/srg/plantmon/internal/link"

// Linux capability bits a raw HCI socket needs.
const (
	capNetAdmin = 12
	capNetRaw   = 13
)

// grantedBy reports whether an effective capability set allows c.
// Scanning and connecting both go through the raw HCI socket.
func grantedBy(effective uint64, c link.Capability) bool {
	switch c {
	case link.CapScan, link.CapConnect:
		need := uint64(1)<<capNetAdmin | uint64(1)<<capNetRaw
		return effective&need == need
	default:
		return false
	}
}
