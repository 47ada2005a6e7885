//go:build !linux && !darwin && !freebsd && !openbsd && !netbsd && !dragonfly && !windows

package portmapd

import "net/netip"

// systemDefaultGateway is a stub for platforms without routing-table
// access (Plan 9, js/wasm, mobile). The invalid Addr makes the caller use
// the subnet heuristic.
func systemDefaultGateway() (netip.Addr, error) {
	return netip.Addr{}, nil
}
