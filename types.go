package portmapd

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// Protocol is the transport protocol of a port mapping. Gateways only
// understand the two literal tokens below; config input is matched
// case-sensitively against them.
type Protocol string

const (
	TCP Protocol = "TCP"
	UDP Protocol = "UDP"
)

func (p Protocol) valid() bool {
	return p == TCP || p == UDP
}

// AddressSpec narrows which local bind addresses may be used to reach a
// gateway. The zero value is "unspecified": every non-loopback IPv4
// interface is a candidate. An exact address (a single host, or a /32
// prefix) names the one candidate directly; a wider prefix restricts
// candidates to interfaces inside that range.
type AddressSpec struct {
	prefix netip.Prefix
}

// AnyAddress returns the unspecified AddressSpec.
func AnyAddress() AddressSpec {
	return AddressSpec{}
}

// ExactAddress returns an AddressSpec matching only addr.
func ExactAddress(addr netip.Addr) (AddressSpec, error) {
	if !addr.Is4() {
		return AddressSpec{}, fmt.Errorf("exact address %s: %w", addr, ErrInvalidAddressFamily)
	}
	return AddressSpec{prefix: netip.PrefixFrom(addr, 32)}, nil
}

// AddressRange returns an AddressSpec matching every address inside prefix.
func AddressRange(prefix netip.Prefix) (AddressSpec, error) {
	if !prefix.Addr().Is4() {
		return AddressSpec{}, fmt.Errorf("address range %s: %w", prefix, ErrInvalidAddressFamily)
	}
	return AddressSpec{prefix: prefix.Masked()}, nil
}

// ParseAddressSpec parses the address field of a mapping request. Accepted
// forms are the empty string (unspecified), a plain IPv4 host address, CIDR
// notation, and the abbreviated octet form where trailing octets are left
// off ("192.168.0" means 192.168.0.0/24, "10" means 10.0.0.0/8).
func ParseAddressSpec(s string) (AddressSpec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return AnyAddress(), nil
	}
	if strings.Contains(s, "/") {
		prefix, err := netip.ParsePrefix(s)
		if err != nil {
			return AddressSpec{}, fmt.Errorf("parse address range %q: %w", s, err)
		}
		return AddressRange(prefix)
	}
	if addr, err := netip.ParseAddr(s); err == nil {
		return ExactAddress(addr)
	}
	return parseAbbreviatedRange(s)
}

// parseAbbreviatedRange handles the shortened CIDR form with one to three
// octets, each implying eight prefix bits.
func parseAbbreviatedRange(s string) (AddressSpec, error) {
	octets := strings.Split(s, ".")
	if len(octets) == 0 || len(octets) > 3 {
		return AddressSpec{}, fmt.Errorf("parse address %q: not an IPv4 address or range", s)
	}
	var b [4]byte
	for i, o := range octets {
		n, err := strconv.ParseUint(o, 10, 8)
		if err != nil {
			return AddressSpec{}, fmt.Errorf("parse address %q: not an IPv4 address or range", s)
		}
		b[i] = byte(n)
	}
	return AddressRange(netip.PrefixFrom(netip.AddrFrom4(b), len(octets)*8))
}

// IsUnspecified reports whether the spec matches any interface.
func (s AddressSpec) IsUnspecified() bool {
	return !s.prefix.IsValid()
}

// IsExact reports whether the spec names a single host address.
func (s AddressSpec) IsExact() bool {
	return s.prefix.IsValid() && s.prefix.Bits() == 32
}

// Addr returns the host address of an exact spec.
func (s AddressSpec) Addr() netip.Addr {
	return s.prefix.Addr()
}

// Contains reports whether addr falls inside the spec's range. An
// unspecified spec contains every address.
func (s AddressSpec) Contains(addr netip.Addr) bool {
	if s.IsUnspecified() {
		return true
	}
	return s.prefix.Contains(addr)
}

func (s AddressSpec) String() string {
	switch {
	case s.IsUnspecified():
		return "any"
	case s.IsExact():
		return s.prefix.Addr().String()
	default:
		return s.prefix.String()
	}
}

// MappingRequest is one desired port mapping. Port and Protocol together
// with the effective bind address identify the mapping slot on a gateway;
// Duration and Comment are metadata only and play no part in conflict
// detection. Requests are immutable and re-resolved from scratch on every
// reconciliation pass.
type MappingRequest struct {
	Address  AddressSpec
	Port     uint16
	Protocol Protocol
	Duration uint32 // lease in seconds, 0 means permanent
	Comment  string
}

// Validate checks the request shape. The config loader produces well-typed
// requests, but callers constructing requests directly get the same
// contract enforced here.
func (r MappingRequest) Validate() error {
	if r.Port == 0 {
		return fmt.Errorf("mapping %s: port must be 1-65535", r)
	}
	if !r.Protocol.valid() {
		return fmt.Errorf("mapping %s: protocol must be TCP or UDP", r)
	}
	return nil
}

func (r MappingRequest) String() string {
	return fmt.Sprintf("(%d/%s %s %q)", r.Port, r.Protocol, r.Address, r.Comment)
}

// Outcome is the per-request result of a reconciliation pass. Outcomes are
// returned in input order; one request's failure never affects another's.
type Outcome struct {
	Request MappingRequest
	Err     error
}

// Failed reports whether the request's operation failed.
func (o Outcome) Failed() bool {
	return o.Err != nil
}
