package goble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/plantmon/internal/link"
)

// DefaultMTU is requested after connect. Peripherals that refuse keep the
// default 23-byte ATT MTU, which still fits a sensor frame.
const DefaultMTU = 185

// Transport is the go-ble backed link.Transport.
type Transport struct {
	caps   link.CapabilityChecker
	logger *logrus.Logger
	mtu    int

	mu      sync.Mutex
	radio   radio
	current *session
}

// NewTransport creates a transport. The radio is opened on first use.
func NewTransport(caps link.CapabilityChecker, logger *logrus.Logger) *Transport {
	if logger == nil {
		logger = logrus.New()
	}
	return &Transport{caps: caps, logger: logger, mtu: DefaultMTU}
}

func newTransportWithRadio(r radio, caps link.CapabilityChecker, logger *logrus.Logger) *Transport {
	t := NewTransport(caps, logger)
	t.radio = r
	return t
}

func (t *Transport) device() (radio, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.radio != nil {
		return t.radio, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		t.logger.WithField("error", err).Error("Failed to create BLE device")
		return nil, NormalizeError(err)
	}
	t.radio = deviceRadio{dev: dev}
	return t.radio, nil
}

// Scan reports every matching peripheral once, until ctx is done.
func (t *Transport) Scan(ctx context.Context, filter link.ScanFilter, found func(link.Peripheral)) error {
	if err := link.CheckCapabilities(t.caps, link.CapScan); err != nil {
		return err
	}
	r, err := t.device()
	if err != nil {
		return err
	}

	seen := hashmap.New[string, link.Peripheral]()
	t.logger.WithField("filter", filter.String()).Debug("Starting BLE scan")

	err = r.Scan(ctx, false, func(adv ble.Advertisement) {
		p := peripheralFrom(adv)
		if p.Address == "" || !filter.Matches(p) {
			return
		}
		if !seen.Insert(strings.ToLower(p.Address), p) {
			return
		}
		t.logger.WithFields(logrus.Fields{
			"address": p.Address,
			"name":    p.Name,
			"rssi":    p.RSSI,
		}).Debug("Matching advertisement")
		found(p)
	})

	t.logger.WithField("matches", seen.Len()).Debug("BLE scan finished")
	if err != nil {
		return NormalizeError(err)
	}
	return ctx.Err()
}

// Connect dials p. A session that is still open is closed first: the radio
// serves one connection at a time.
func (t *Transport) Connect(ctx context.Context, p link.Peripheral, onLinkLoss func(error)) (link.Session, error) {
	if err := link.CheckCapabilities(t.caps, link.CapConnect); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Address) == "" {
		return nil, &link.TransportError{Op: "connect", Err: fmt.Errorf("device address is empty")}
	}
	r, err := t.device()
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	prior := t.current
	t.current = nil
	t.mu.Unlock()
	if prior != nil {
		t.logger.WithField("address", prior.peripheral.Address).Warn("Closing previous session before connecting")
		_ = prior.Close()
	}

	t.logger.WithField("address", p.Address).Info("Connecting to BLE device...")
	client, err := r.Dial(ctx, p.Address)
	if err != nil {
		t.logger.WithFields(logrus.Fields{
			"address": p.Address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &link.TransportError{Op: "connect", Err: NormalizeError(err)}
	}

	if txMTU, err := client.ExchangeMTU(t.mtu); err != nil {
		t.logger.WithField("error", err).Warn("MTU exchange failed, keeping default")
	} else {
		t.logger.WithField("mtu", txMTU).Debug("MTU negotiated")
	}

	s := newSession(t, p, client, onLinkLoss)

	t.mu.Lock()
	t.current = s
	t.mu.Unlock()

	t.logger.WithField("address", p.Address).Info("BLE device connected")
	return s, nil
}

func (t *Transport) release(s *session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == s {
		t.current = nil
	}
}
