//go:build linux

package goble

import (
	"github.com/srg/plantmon/internal/link"
	"golang.org/x/sys/unix"
)

type processCapabilities struct{}

// NewCapabilityChecker reports the grants of the current process, read from
// its effective capability set.
func NewCapabilityChecker() link.CapabilityChecker {
	return processCapabilities{}
}

func (processCapabilities) Granted(c link.Capability) bool {
	hdr := unix.CapUserHeader{Version: unix.LINUX_CAPABILITY_VERSION_3}
	var data [2]unix.CapUserData
	if err := unix.Capget(&hdr, &data[0]); err != nil {
		return false
	}
	effective := uint64(data[1].Effective)<<32 | uint64(data[0].Effective)
	return grantedBy(effective, c)
}
