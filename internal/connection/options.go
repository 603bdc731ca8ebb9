package connection

import (
	"fmt"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/srg/plantmon/internal/link"
)

// Wire protocol of the plant sensor peripheral.
const (
	DefaultServiceUUID        = "0000ffe0-0000-1000-8000-00805f9b34fb"
	DefaultCharacteristicUUID = "0000ffe1-0000-1000-8000-00805f9b34fb"
	DefaultNameFilter         = "PlantSensor"
)

// Options configures the peripheral the machine looks for and its time bounds.
// Zero fields take the tagged defaults.
type Options struct {
	NameContains       string        `default:"PlantSensor"`
	ServiceUUID        string        `default:"0000ffe0-0000-1000-8000-00805f9b34fb"`
	CharacteristicUUID string        `default:"0000ffe1-0000-1000-8000-00805f9b34fb"`
	ScanTimeout        time.Duration `default:"10s"`
	ConnectTimeout     time.Duration `default:"10s"` // bounds connect through subscribe
	FrameBuffer        int           `default:"64"`  // notifications queued ahead of the loop
}

// DefaultOptions returns options for the stock plant sensor.
func DefaultOptions() Options {
	var opts Options
	defaults.SetDefaults(&opts)
	return opts
}

func (o *Options) normalize() error {
	defaults.SetDefaults(o)

	if link.NormalizeUUID(o.ServiceUUID) == "" {
		return fmt.Errorf("invalid service UUID %q", o.ServiceUUID)
	}
	if link.NormalizeUUID(o.CharacteristicUUID) == "" {
		return fmt.Errorf("invalid characteristic UUID %q", o.CharacteristicUUID)
	}
	if o.ScanTimeout < 0 || o.ConnectTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if o.FrameBuffer < 0 {
		return fmt.Errorf("frame buffer must not be negative")
	}
	return nil
}

// Filter returns the scan filter: the name match or the advertised service.
func (o Options) Filter() link.ScanFilter {
	return link.ScanFilter{
		NameContains: o.NameContains,
		ServiceUUIDs: []string{o.ServiceUUID},
	}
}
