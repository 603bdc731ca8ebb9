package goble

import (
	"testing"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockAdvertisement implements ble.Advertisement for testing
type MockAdvertisement struct {
	mock.Mock
}

func (m *MockAdvertisement) LocalName() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockAdvertisement) ManufacturerData() []byte {
	args := m.Called()
	return args.Get(0).([]byte)
}

func (m *MockAdvertisement) ServiceData() []ble.ServiceData {
	args := m.Called()
	return args.Get(0).([]ble.ServiceData)
}

func (m *MockAdvertisement) Services() []ble.UUID {
	args := m.Called()
	return args.Get(0).([]ble.UUID)
}

func (m *MockAdvertisement) OverflowService() []ble.UUID {
	args := m.Called()
	return args.Get(0).([]ble.UUID)
}

func (m *MockAdvertisement) TxPowerLevel() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockAdvertisement) Connectable() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockAdvertisement) SolicitedService() []ble.UUID {
	args := m.Called()
	return args.Get(0).([]ble.UUID)
}

func (m *MockAdvertisement) RSSI() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockAdvertisement) Addr() ble.Addr {
	args := m.Called()
	return args.Get(0).(ble.Addr)
}

// MockAddr implements ble.Addr for testing
type MockAddr struct {
	address string
}

func (m *MockAddr) String() string {
	return m.address
}

func newMockAdvertisement(address, name string, rssi int, services ...ble.UUID) *MockAdvertisement {
	adv := &MockAdvertisement{}
	adv.On("Addr").Return(&MockAddr{address})
	adv.On("LocalName").Return(name)
	adv.On("RSSI").Return(rssi)
	adv.On("Services").Return(services)
	adv.On("OverflowService").Return([]ble.UUID{})
	adv.On("SolicitedService").Return([]ble.UUID{})
	return adv
}

func TestPeripheralFrom(t *testing.T) {
	tests := []struct {
		name     string
		adv      *MockAdvertisement
		services []string
	}{
		{
			name:     "16-bit service",
			adv:      newMockAdvertisement("AA:BB:CC:DD:EE:FF", "PlantSensor", -52, ble.UUID16(0xffe0)),
			services: []string{"ffe0"},
		},
		{
			name:     "128-bit spelling of a SIG service",
			adv:      newMockAdvertisement("AA:BB:CC:DD:EE:FF", "PlantSensor", -52, ble.MustParse("0000ffe0-0000-1000-8000-00805f9b34fb")),
			services: []string{"ffe0"},
		},
		{
			name: "no services",
			adv:  newMockAdvertisement("AA:BB:CC:DD:EE:FF", "PlantSensor", -52),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := peripheralFrom(tt.adv)

			assert.Equal(t, "AA:BB:CC:DD:EE:FF", p.Address)
			assert.Equal(t, "PlantSensor", p.Name)
			assert.Equal(t, -52, p.RSSI)
			assert.Equal(t, tt.services, p.Services)
		})
	}
}

func TestPeripheralFromIncludesSolicitedServices(t *testing.T) {
	adv := &MockAdvertisement{}
	adv.On("Addr").Return(&MockAddr{"11:22:33:44:55:66"})
	adv.On("LocalName").Return("")
	adv.On("RSSI").Return(-80)
	adv.On("Services").Return([]ble.UUID{})
	adv.On("OverflowService").Return([]ble.UUID{ble.UUID16(0x180f)})
	adv.On("SolicitedService").Return([]ble.UUID{ble.UUID16(0xffe0)})

	p := peripheralFrom(adv)

	assert.Equal(t, []string{"180f", "ffe0"}, p.Services)
	adv.AssertExpectations(t)
}
