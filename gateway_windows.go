//go:build windows

package portmapd

import (
	"bufio"
	"net/netip"
	"os/exec"
	"strings"
)

// systemDefaultGateway reads the default gateway from `route print` on
// Windows. Returns an invalid Addr and nil error when the gateway cannot
// be determined, in which case the caller falls back to the subnet
// heuristic.
func systemDefaultGateway() (netip.Addr, error) {
	out, err := exec.Command("route", "print", "0.0.0.0").Output()
	if err != nil {
		return netip.Addr{}, nil
	}
	return parseWindowsRoutes(string(out))
}

// parseWindowsRoutes finds the default route in `route print 0.0.0.0`
// output: inside the "Active Routes:" section, the line with destination
// 0.0.0.0 and netmask 0.0.0.0 carries the gateway in its third column.
func parseWindowsRoutes(output string) (netip.Addr, error) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	inActiveRoutes := false

	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "Active Routes:") {
			inActiveRoutes = true
			continue
		}
		if !inActiveRoutes {
			continue
		}
		if strings.HasPrefix(line, "====") {
			break
		}

		fields := strings.Fields(line)
		if len(fields) < 4 || fields[0] != "0.0.0.0" || fields[1] != "0.0.0.0" {
			continue
		}
		// "On-link" entries carry no gateway address.
		if fields[2] == "On-link" {
			continue
		}
		if addr, err := netip.ParseAddr(fields[2]); err == nil && addr.Is4() {
			return addr, nil
		}
	}
	return netip.Addr{}, nil
}
