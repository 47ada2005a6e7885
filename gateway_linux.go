//go:build linux

package portmapd

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strings"
)

// systemDefaultGateway reads the default gateway from /proc/net/route.
// Returns an invalid Addr and nil error when no default route is found, in
// which case the caller falls back to the subnet heuristic.
func systemDefaultGateway() (netip.Addr, error) {
	file, err := os.Open("/proc/net/route")
	if err != nil {
		if os.IsNotExist(err) {
			return netip.Addr{}, nil
		}
		return netip.Addr{}, fmt.Errorf("open routing table: %w", err)
	}
	defer file.Close()

	return parseProcNetRoute(file)
}

// parseProcNetRoute scans /proc/net/route content for the default route
// (destination 00000000) and returns its gateway.
func parseProcNetRoute(r io.Reader) (netip.Addr, error) {
	scanner := bufio.NewScanner(r)

	// Header line.
	if !scanner.Scan() {
		return netip.Addr{}, fmt.Errorf("empty routing table")
	}

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		if fields[1] != "00000000" {
			continue
		}
		gw, err := parseHexIPv4(fields[2])
		if err != nil {
			return netip.Addr{}, fmt.Errorf("parse gateway: %w", err)
		}
		// 0.0.0.0 marks an on-link route, not a gateway.
		if !gw.IsUnspecified() {
			return gw, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return netip.Addr{}, fmt.Errorf("read routing table: %w", err)
	}
	return netip.Addr{}, nil
}

// parseHexIPv4 decodes the little-endian hex encoding /proc/net/route uses
// (e.g. "0101A8C0" is 192.168.1.1).
func parseHexIPv4(s string) (netip.Addr, error) {
	if len(s) != 8 {
		return netip.Addr{}, fmt.Errorf("invalid hex IP length: %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("invalid hex IP: %w", err)
	}
	return netip.AddrFrom4([4]byte{b[3], b[2], b[1], b[0]}), nil
}
