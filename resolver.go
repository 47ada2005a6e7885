package portmapd

import "net/netip"

// AddressResolver turns an AddressSpec into the ordered list of local bind
// addresses that discovery should try.
//
// An exact address produces exactly one candidate and never touches the
// interface enumerator: exact addresses are assumed directly reachable and
// must not pay the enumeration cost or risk discovering the wrong gateway.
// Range and unspecified specs enumerate interfaces because the operator's
// address is not stable across reboots (DHCP), so the search happens at
// runtime.
type AddressResolver struct {
	Interfaces InterfaceEnumerator
}

// Candidates resolves spec to bind-address candidates in the enumerator's
// order. When several interfaces match a range, which one wins is decided
// later by first successful discovery; that order follows the OS interface
// table and is intentionally left nondeterministic across systems.
func (r *AddressResolver) Candidates(spec AddressSpec) ([]netip.Addr, error) {
	if spec.IsExact() {
		return []netip.Addr{spec.Addr()}, nil
	}

	addrs, err := r.Interfaces.IPv4Addresses()
	if err != nil {
		return nil, err
	}
	if spec.IsUnspecified() {
		return addrs, nil
	}

	var out []netip.Addr
	for _, addr := range addrs {
		if spec.Contains(addr) {
			out = append(out, addr)
		}
	}
	return out, nil
}
