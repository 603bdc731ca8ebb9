package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/plantmon/internal/link"
)

// cccdUUID is the client characteristic configuration descriptor.
var cccdUUID = ble.ClientCharacteristicConfigUUID

// serviceMapFrom converts a discovered profile to the link view.
func serviceMapFrom(p *ble.Profile) link.ServiceMap {
	services := link.ServiceMap{}
	if p == nil {
		return services
	}

	for _, bleSvc := range p.Services {
		svcUUID := link.NormalizeUUID(bleSvc.UUID.String())
		if svcUUID == "" {
			continue
		}
		svc, ok := services[svcUUID]
		if !ok {
			svc = link.ServiceInfo{UUID: svcUUID, Characteristics: map[string]link.CharacteristicInfo{}}
			services[svcUUID] = svc
		}

		for _, c := range bleSvc.Characteristics {
			charUUID := link.NormalizeUUID(c.UUID.String())
			if charUUID == "" {
				continue
			}
			svc.Characteristics[charUUID] = link.CharacteristicInfo{
				UUID:      charUUID,
				CanNotify: c.Property&(ble.CharNotify|ble.CharIndicate) != 0,
				HasCCCD:   findCCCD(c) != nil,
			}
		}
	}
	return services
}

// findCharacteristic looks a characteristic up by any UUID spelling.
func findCharacteristic(p *ble.Profile, service, uuid string) *ble.Characteristic {
	if p == nil {
		return nil
	}
	for _, bleSvc := range p.Services {
		if !link.SameUUID(bleSvc.UUID.String(), service) {
			continue
		}
		for _, c := range bleSvc.Characteristics {
			if link.SameUUID(c.UUID.String(), uuid) {
				return c
			}
		}
	}
	return nil
}

// findCCCD returns the configuration descriptor. Some backends fill CCCD,
// others only list it among the descriptors.
func findCCCD(c *ble.Characteristic) *ble.Descriptor {
	if c.CCCD != nil {
		return c.CCCD
	}
	for _, d := range c.Descriptors {
		if d.UUID.Equal(cccdUUID) {
			return d
		}
	}
	return nil
}
