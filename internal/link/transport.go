package link

import (
	"context"
	"strings"
)

// Peripheral identifies a discovered device. It is a value; the transport
// resolves the address again on Connect, so a Peripheral never pins radio state.
type Peripheral struct {
	Address  string
	Name     string
	RSSI     int
	Services []string // normalized advertised service UUIDs
}

func (p Peripheral) String() string {
	if p.Name == "" {
		return p.Address
	}
	return p.Name + " (" + p.Address + ")"
}

// ScanFilter selects the peripheral role this module talks to.
// A peripheral matches when its advertised name contains NameContains
// (case-insensitive) or it advertises any of ServiceUUIDs. An empty filter
// matches everything.
type ScanFilter struct {
	NameContains string
	ServiceUUIDs []string
}

// Matches applies the filter to an advertisement summary.
func (f ScanFilter) Matches(p Peripheral) bool {
	if f.NameContains == "" && len(f.ServiceUUIDs) == 0 {
		return true
	}
	if f.NameContains != "" && containsIgnoreCase(p.Name, f.NameContains) {
		return true
	}
	for _, want := range f.ServiceUUIDs {
		for _, have := range p.Services {
			if SameUUID(want, have) {
				return true
			}
		}
	}
	return false
}

func (f ScanFilter) String() string {
	var parts []string
	if f.NameContains != "" {
		parts = append(parts, "name~"+f.NameContains)
	}
	for _, u := range f.ServiceUUIDs {
		parts = append(parts, "service="+NormalizeUUID(u))
	}
	if len(parts) == 0 {
		return "any"
	}
	return strings.Join(parts, "|")
}

// CharacteristicInfo describes a discovered characteristic.
type CharacteristicInfo struct {
	UUID      string
	CanNotify bool // notify or indicate property present
	HasCCCD   bool // client characteristic configuration descriptor present
}

// ServiceInfo describes a discovered service.
type ServiceInfo struct {
	UUID            string
	Characteristics map[string]CharacteristicInfo
}

// ServiceMap is the GATT profile of a connected peripheral, keyed by
// normalized UUID.
type ServiceMap map[string]ServiceInfo

// Service looks a service up by any UUID spelling.
func (m ServiceMap) Service(uuid string) (ServiceInfo, bool) {
	svc, ok := m[NormalizeUUID(uuid)]
	return svc, ok
}

// Characteristic looks a characteristic up inside a service.
func (m ServiceMap) Characteristic(service, uuid string) (CharacteristicInfo, bool) {
	svc, ok := m.Service(service)
	if !ok {
		return CharacteristicInfo{}, false
	}
	chr, ok := svc.Characteristics[NormalizeUUID(uuid)]
	return chr, ok
}

// Require returns a *NotFoundError unless the service and characteristic exist.
func (m ServiceMap) Require(service, uuid string) (CharacteristicInfo, error) {
	if _, ok := m.Service(service); !ok {
		return CharacteristicInfo{}, &NotFoundError{Resource: "service", UUIDs: []string{service}}
	}
	chr, ok := m.Characteristic(service, uuid)
	if !ok {
		return CharacteristicInfo{}, &NotFoundError{Resource: "characteristic", UUIDs: []string{service, uuid}}
	}
	return chr, nil
}

// Subscription is the result of enabling notifications.
type Subscription struct {
	// Degraded is true when the peripheral exposes no client configuration
	// descriptor. Notifications may still arrive on platforms that do not need it.
	Degraded bool
}

// Transport is the capability-checked wrapper over the platform radio.
//
// Scan blocks until ctx is done and calls found for every advertisement that
// passes filter. Connect dials a peripheral; onLinkLoss fires at most once,
// from a transport goroutine, when the platform reports the link dropped.
type Transport interface {
	Scan(ctx context.Context, filter ScanFilter, found func(Peripheral)) error
	Connect(ctx context.Context, p Peripheral, onLinkLoss func(error)) (Session, error)
}

// Session is one live connection. Close is idempotent.
type Session interface {
	Peripheral() Peripheral
	DiscoverServices(ctx context.Context) (ServiceMap, error)
	Subscribe(ctx context.Context, service, characteristic string, handler func([]byte)) (Subscription, error)
	Close() error
}
