package goble

import (
	"testing"

	"github.com/go-ble/ble"
	"github.com/srg/plantmon/internal/link"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const plantServiceUUID = "0000ffe0-0000-1000-8000-00805f9b34fb"

func plantProfile(cccd *ble.Descriptor, descriptors ...*ble.Descriptor) *ble.Profile {
	return &ble.Profile{
		Services: []*ble.Service{
			{
				UUID: ble.UUID16(0x180a),
				Characteristics: []*ble.Characteristic{
					{UUID: ble.UUID16(0x2a29), Property: ble.CharRead},
				},
			},
			{
				UUID: ble.MustParse("0000ffe0-0000-1000-8000-00805f9b34fb"),
				Characteristics: []*ble.Characteristic{
					{
						UUID:        ble.UUID16(0xffe1),
						Property:    ble.CharRead | ble.CharNotify,
						CCCD:        cccd,
						Descriptors: descriptors,
					},
				},
			},
		},
	}
}

func TestServiceMapFrom(t *testing.T) {
	services := serviceMapFrom(plantProfile(&ble.Descriptor{UUID: ble.ClientCharacteristicConfigUUID}))

	require.Len(t, services, 2)

	chr, err := services.Require(plantServiceUUID, "0000ffe1-0000-1000-8000-00805f9b34fb")
	require.NoError(t, err)
	assert.Equal(t, link.CharacteristicInfo{UUID: "ffe1", CanNotify: true, HasCCCD: true}, chr)

	info, ok := services.Characteristic("180a", "2a29")
	require.True(t, ok)
	assert.False(t, info.CanNotify)
	assert.False(t, info.HasCCCD)
}

func TestServiceMapFromDescriptorList(t *testing.T) {
	services := serviceMapFrom(plantProfile(nil, &ble.Descriptor{UUID: ble.ClientCharacteristicConfigUUID}))

	chr, ok := services.Characteristic("ffe0", "ffe1")
	require.True(t, ok)
	assert.True(t, chr.HasCCCD, "descriptor listed without CCCD field MUST count")
}

func TestServiceMapFromNil(t *testing.T) {
	assert.Empty(t, serviceMapFrom(nil))
}

func TestFindCharacteristic(t *testing.T) {
	p := plantProfile(nil)

	c := findCharacteristic(p, "FFE0", "0xFFE1")
	require.NotNil(t, c)
	assert.True(t, c.UUID.Equal(ble.UUID16(0xffe1)))

	assert.Nil(t, findCharacteristic(p, "ffe0", "ffe2"))
	assert.Nil(t, findCharacteristic(p, "ffe9", "ffe1"))
	assert.Nil(t, findCharacteristic(nil, "ffe0", "ffe1"))
}
