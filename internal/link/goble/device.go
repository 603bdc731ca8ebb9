package goble

import (
	"context"

	"github.com/go-ble/ble"
)

// DeviceFactory creates the platform ble.Device (can be overridden in tests)
var DeviceFactory = newDevice

// gattClient is the part of ble.Client a session uses.
type gattClient interface {
	DiscoverProfile(force bool) (*ble.Profile, error)
	ExchangeMTU(rxMTU int) (int, error)
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	CancelConnection() error
}

// radio is the part of ble.Device the transport uses.
type radio interface {
	Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error
	Dial(ctx context.Context, address string) (gattClient, error)
}

type deviceRadio struct {
	dev ble.Device
}

func (r deviceRadio) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	return r.dev.Scan(ctx, allowDup, h)
}

func (r deviceRadio) Dial(ctx context.Context, address string) (gattClient, error) {
	client, err := r.dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, err
	}
	return client, nil
}
