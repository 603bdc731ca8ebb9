package link

import "strings"

// sigBaseSuffix is the tail of the Bluetooth SIG base UUID
// (0000xxxx-0000-1000-8000-00805f9b34fb) after the 16-bit slot.
const sigBaseSuffix = "00001000800000805f9b34fb"

// NormalizeUUID converts a UUID string to the form go-ble prints:
// lowercase, no dashes, no 0x prefix, and SIG base UUIDs shortened to 16 bits.
// Returns "" when the input is not hexadecimal.
func NormalizeUUID(uuid string) string {
	u := strings.ToLower(strings.TrimSpace(uuid))
	u = strings.TrimPrefix(u, "0x")
	u = strings.ReplaceAll(u, "-", "")

	if len(u) == 32 && strings.HasPrefix(u, "0000") && strings.HasSuffix(u, sigBaseSuffix) {
		u = u[4:8]
	}
	if u == "" {
		return ""
	}
	for _, r := range u {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return ""
		}
	}
	switch len(u) {
	case 4, 8, 32:
		return u
	default:
		return ""
	}
}

// SameUUID compares two UUIDs after normalization.
func SameUUID(a, b string) bool {
	na := NormalizeUUID(a)
	return na != "" && na == NormalizeUUID(b)
}
