package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/plantmon/internal/link"
)

// peripheralFrom summarizes an advertisement. Service UUIDs are normalized;
// overflow and solicited services count as advertised.
func peripheralFrom(adv ble.Advertisement) link.Peripheral {
	p := link.Peripheral{
		Name: adv.LocalName(),
		RSSI: adv.RSSI(),
	}
	if addr := adv.Addr(); addr != nil {
		p.Address = addr.String()
	}

	for _, group := range [][]ble.UUID{adv.Services(), adv.OverflowService(), adv.SolicitedService()} {
		for _, u := range group {
			if n := link.NormalizeUUID(u.String()); n != "" {
				p.Services = append(p.Services, n)
			}
		}
	}
	return p
}
