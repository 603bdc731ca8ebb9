package link

// Capability is a platform grant that authorizes radio operations.
type Capability string

const (
	CapScan    Capability = "scan"
	CapConnect Capability = "connect"
)

// RequiredCapabilities lists the grants a full monitoring session needs.
var RequiredCapabilities = []Capability{CapScan, CapConnect}

// CapabilityChecker queries the platform permission layer. Implementations
// must not prompt the user; acquisition is the caller's concern.
type CapabilityChecker interface {
	Granted(c Capability) bool
}

// CheckCapabilities returns a *PermissionError for the first missing grant.
func CheckCapabilities(checker CapabilityChecker, caps ...Capability) error {
	if checker == nil {
		if len(caps) == 0 {
			return nil
		}
		return &PermissionError{Capability: caps[0]}
	}
	for _, c := range caps {
		if !checker.Granted(c) {
			return &PermissionError{Capability: c}
		}
	}
	return nil
}

// StaticCapabilities is a fixed grant set, used when the platform has no
// queryable permission model or the operator asserts the grants.
type StaticCapabilities map[Capability]bool

func (s StaticCapabilities) Granted(c Capability) bool {
	return s[c]
}

// GrantAll returns a StaticCapabilities holding every required grant.
func GrantAll() StaticCapabilities {
	s := StaticCapabilities{}
	for _, c := range RequiredCapabilities {
		s[c] = true
	}
	return s
}
