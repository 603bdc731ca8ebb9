package goble

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/plantmon/internal/groutine"
	"github.com/srg/plantmon/internal/link"
)

type subscription struct {
	char *ble.Characteristic
	ind  bool
}

// session is one live go-ble client connection.
type session struct {
	transport  *Transport
	peripheral link.Peripheral
	client     gattClient
	logger     *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	profile *ble.Profile
	subs    []subscription

	closeOnce sync.Once
	closeErr  error
}

func newSession(t *Transport, p link.Peripheral, client gattClient, onLinkLoss func(error)) *session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		transport:  t,
		peripheral: p,
		client:     client,
		logger:     t.logger,
		ctx:        ctx,
		cancel:     cancel,
	}

	// go-ble clients expose the disconnect as a channel; nothing is polled
	if dc, ok := client.(interface{ Disconnected() <-chan struct{} }); ok && onLinkLoss != nil {
		groutine.Go(ctx, "ble-connection-monitor", func(ctx context.Context) {
			select {
			case <-dc.Disconnected():
				if ctx.Err() != nil {
					return
				}
				s.logger.WithField("address", p.Address).Warn("Peripheral reported disconnection")
				onLinkLoss(fmt.Errorf("%w: peripheral disconnected", link.ErrNotConnected))
			case <-ctx.Done():
			}
		})
	} else {
		s.logger.Debug("Client does not report disconnection")
	}
	return s
}

func (s *session) Peripheral() link.Peripheral {
	return s.peripheral
}

// DiscoverServices runs a full profile discovery. go-ble discovery takes no
// context, so cancellation abandons the call; Close unblocks it.
func (s *session) DiscoverServices(ctx context.Context) (link.ServiceMap, error) {
	type result struct {
		profile *ble.Profile
		err     error
	}
	done := make(chan result, 1)
	groutine.Go(ctx, "ble-discover-profile", func(context.Context) {
		p, err := s.client.DiscoverProfile(true)
		done <- result{profile: p, err: err}
	})

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.ctx.Done():
		return nil, link.ErrNotConnected
	}
	if res.err != nil {
		return nil, &link.TransportError{Op: "discover", Err: NormalizeError(res.err)}
	}

	s.mu.Lock()
	s.profile = res.profile
	s.mu.Unlock()

	services := serviceMapFrom(res.profile)
	s.logger.WithFields(logrus.Fields{
		"address":  s.peripheral.Address,
		"services": len(services),
	}).Debug("Profile discovered")
	return services, nil
}

// Subscribe enables notifications (or indications when that is all the
// characteristic offers). Without a configuration descriptor the subscription
// is reported Degraded; the platform may deliver notifications anyway.
func (s *session) Subscribe(ctx context.Context, service, characteristic string, handler func([]byte)) (link.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return link.Subscription{}, err
	}

	s.mu.Lock()
	c := findCharacteristic(s.profile, service, characteristic)
	s.mu.Unlock()
	if c == nil {
		return link.Subscription{}, &link.NotFoundError{Resource: "characteristic", UUIDs: []string{service, characteristic}}
	}

	cccd := findCCCD(c)
	if cccd != nil && c.CCCD == nil {
		c.CCCD = cccd
	}
	ind := c.Property&ble.CharNotify == 0 && c.Property&ble.CharIndicate != 0

	err := s.client.Subscribe(c, ind, func(payload []byte) {
		handler(payload)
	})
	switch {
	case err != nil && cccd == nil:
		s.logger.WithField("error", err).Warn("Subscribe without configuration descriptor failed")
		return link.Subscription{Degraded: true}, fmt.Errorf("%w: %v", link.ErrDescriptorAbsent, err)
	case err != nil:
		return link.Subscription{}, &link.TransportError{Op: "subscribe", Err: NormalizeError(err)}
	}

	s.mu.Lock()
	s.subs = append(s.subs, subscription{char: c, ind: ind})
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"service":        service,
		"characteristic": characteristic,
		"indicate":       ind,
		"degraded":       cccd == nil,
	}).Info("Subscribed to notifications")
	return link.Subscription{Degraded: cccd == nil}, nil
}

// Close unsubscribes and drops the connection. It is idempotent.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()

		s.mu.Lock()
		subs := s.subs
		s.subs = nil
		s.mu.Unlock()

		for _, sub := range subs {
			if err := NormalizeError(s.client.Unsubscribe(sub.char, sub.ind)); err != nil {
				s.logger.WithFields(logrus.Fields{
					"charUUID": sub.char.UUID.String(),
					"error":    err,
				}).Warn("Failed to unsubscribe during disconnect")
			}
		}

		if err := s.client.CancelConnection(); err != nil {
			s.closeErr = &link.TransportError{Op: "disconnect", Err: NormalizeError(err)}
			s.logger.WithField("error", err).Warn("BLE device disconnected with errors")
		} else {
			s.logger.WithField("address", s.peripheral.Address).Info("BLE device disconnected")
		}
		s.transport.release(s)
	})
	return s.closeErr
}
