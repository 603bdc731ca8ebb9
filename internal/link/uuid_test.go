package link

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "16-bit lowercase", input: "ffe0", expected: "ffe0"},
		{name: "16-bit uppercase", input: "FFE1", expected: "ffe1"},
		{name: "16-bit with 0x prefix", input: "0x2902", expected: "2902"},
		{name: "SIG base UUID with dashes", input: "0000ffe0-0000-1000-8000-00805f9b34fb", expected: "ffe0"},
		{name: "SIG base UUID uppercase", input: "00002902-0000-1000-8000-00805F9B34FB", expected: "2902"},
		{name: "SIG base UUID without dashes", input: "0000ffe100001000800000805f9b34fb", expected: "ffe1"},
		{name: "custom 128-bit UUID kept", input: "6E400001-B5A3-F393-E0A9-E50E24DCCA9E", expected: "6e400001b5a3f393e0a9e50e24dcca9e"},
		{name: "empty", input: "", expected: ""},
		{name: "non-hex", input: "zzzz", expected: ""},
		{name: "wrong length", input: "123", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeUUID(tt.input))
		})
	}
}

func TestSameUUID(t *testing.T) {
	assert.True(t, SameUUID("ffe0", "0000FFE0-0000-1000-8000-00805f9b34fb"))
	assert.False(t, SameUUID("ffe0", "ffe1"))
	assert.False(t, SameUUID("", ""), "invalid UUIDs MUST never compare equal")
}
