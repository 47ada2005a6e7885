//go:build darwin || freebsd || openbsd || netbsd || dragonfly

package portmapd

import (
	"bufio"
	"net/netip"
	"os/exec"
	"strings"
)

// systemDefaultGateway reads the default gateway from `netstat -rn` on
// BSD-like systems, including macOS. Returns an invalid Addr and nil error
// when the gateway cannot be determined, in which case the caller falls
// back to the subnet heuristic.
func systemDefaultGateway() (netip.Addr, error) {
	out, err := exec.Command("netstat", "-rn").Output()
	if err != nil {
		return netip.Addr{}, nil
	}
	return parseNetstatRoutes(string(out))
}

// parseNetstatRoutes finds the default route in `netstat -rn` output. The
// layout varies slightly between BSD variants, but the default route is
// always the line whose destination reads "default" or "0.0.0.0".
func parseNetstatRoutes(output string) (netip.Addr, error) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "default", "0.0.0.0", "0.0.0.0/0":
		default:
			continue
		}

		gw := fields[1]
		// Link-level routes ("link#5") and interface names are not
		// gateway addresses.
		if strings.Contains(gw, "#") || !strings.Contains(gw, ".") {
			continue
		}
		// Strip a scoped-interface suffix like "192.168.1.1%en0".
		if idx := strings.Index(gw, "%"); idx != -1 {
			gw = gw[:idx]
		}
		if addr, err := netip.ParseAddr(gw); err == nil && addr.Is4() {
			return addr, nil
		}
	}
	return netip.Addr{}, nil
}
