package portmapd

import (
	"net"
	"net/netip"
)

// InterfaceEnumerator lists the local IPv4 addresses usable as discovery
// bind addresses. Loopback and non-IPv4 addresses are excluded.
type InterfaceEnumerator interface {
	IPv4Addresses() ([]netip.Addr, error)
}

// SystemEnumerator queries the operating system's interface table. The
// order of the returned addresses is whatever the OS reports; resolution
// policy deliberately depends on that order (first-success-wins), so it is
// not sorted here.
type SystemEnumerator struct{}

func (SystemEnumerator) IPv4Addresses() ([]netip.Addr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, &EnumerationError{Cause: err}
	}

	var out []netip.Addr
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			return nil, &EnumerationError{Cause: err}
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipnet.IP.To4()
			if ip4 == nil {
				continue
			}
			addr, ok := netip.AddrFromSlice(ip4)
			if !ok || addr.IsLoopback() {
				continue
			}
			out = append(out, addr)
		}
	}
	return out, nil
}
