package portmapd

import (
	"errors"
	"fmt"
)

// Sentinel conditions surfaced by gateway operations. Implementations wrap
// these so callers can branch with errors.Is regardless of the underlying
// protocol.
var (
	// ErrPortInUse means a conflicting mapping already occupies the
	// (protocol, port) slot on the gateway. Recoverable: the reconciler
	// tears the old mapping down and retries once.
	ErrPortInUse = errors.New("port mapping slot already in use")

	// ErrNoSuchMapping means a removal targeted a mapping the gateway
	// does not hold. Non-fatal during withdrawal.
	ErrNoSuchMapping = errors.New("no such port mapping")

	// ErrOnlyPermanentLeases means the gateway rejected the requested
	// lease duration and only accepts permanent mappings.
	ErrOnlyPermanentLeases = errors.New("gateway supports only permanent leases")

	// ErrNoGatewayFound means discovery exhausted its candidates without
	// any device responding.
	ErrNoGatewayFound = errors.New("no gateway responded to discovery")

	// ErrInvalidAddressFamily means an address was not IPv4. Loopback and
	// IPv6 interfaces are filtered before resolution, but the contract is
	// enforced defensively wherever an address crosses an API boundary.
	ErrInvalidAddressFamily = errors.New("address is not IPv4")
)

// EnumerationError wraps a failure to list local network interfaces. It is
// a hard stop for any resolution path that needs candidate bind addresses.
type EnumerationError struct {
	Cause error
}

func (e *EnumerationError) Error() string {
	return fmt.Sprintf("enumerate interfaces: %v", e.Cause)
}

func (e *EnumerationError) Unwrap() error {
	return e.Cause
}

// DiscoveryError wraps the final failure of gateway resolution for one
// request, after every candidate bind address has been tried.
type DiscoveryError struct {
	Spec  AddressSpec
	Cause error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discover gateway for %s: %v", e.Spec, e.Cause)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Cause
}

// MappingError wraps a failed add or remove control call against a
// discovered gateway.
type MappingError struct {
	Protocol Protocol
	Port     uint16
	Cause    error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping %d/%s: %v", e.Port, e.Protocol, e.Cause)
}

func (e *MappingError) Unwrap() error {
	return e.Cause
}
