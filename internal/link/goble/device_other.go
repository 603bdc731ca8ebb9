//go:build !darwin && !linux

package goble

import (
	"fmt"
	"runtime"

	"github.com/go-ble/ble"
	"github.com/srg/plantmon/internal/link"
)

func newDevice() (ble.Device, error) {
	return nil, fmt.Errorf("%w: no BLE backend for %s", link.ErrUnsupported, runtime.GOOS)
}
