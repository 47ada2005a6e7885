//go:build linux

package portmapd

import (
	"net/netip"
	"strings"
	"testing"
)

func TestParseHexIPv4(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"gateway address", "0101A8C0", "192.168.1.1", false},
		{"zero address", "00000000", "0.0.0.0", false},
		{"ten net", "0100000A", "10.0.0.1", false},
		{"too short", "0101A8", "", true},
		{"not hex", "GGGGGGGG", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseHexIPv4(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseHexIPv4(%q) succeeded, want error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseHexIPv4(%q): %v", tt.in, err)
			}
			if got != netip.MustParseAddr(tt.want) {
				t.Errorf("parseHexIPv4(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseProcNetRoute(t *testing.T) {
	const routes = `Iface	Destination	Gateway 	Flags	RefCnt	Use	Metric	Mask		MTU	Window	IRTT
eth0	00000000	0101A8C0	0003	0	0	100	00000000	0	0	0
eth0	0001A8C0	00000000	0001	0	0	100	00FFFFFF	0	0	0
`
	gw, err := parseProcNetRoute(strings.NewReader(routes))
	if err != nil {
		t.Fatalf("parseProcNetRoute: %v", err)
	}
	if gw != netip.MustParseAddr("192.168.1.1") {
		t.Errorf("gateway = %s, want 192.168.1.1", gw)
	}
}

func TestParseProcNetRouteNoDefault(t *testing.T) {
	const routes = `Iface	Destination	Gateway 	Flags	RefCnt	Use	Metric	Mask		MTU	Window	IRTT
eth0	0001A8C0	00000000	0001	0	0	100	00FFFFFF	0	0	0
`
	gw, err := parseProcNetRoute(strings.NewReader(routes))
	if err != nil {
		t.Fatalf("parseProcNetRoute: %v", err)
	}
	if gw.IsValid() {
		t.Errorf("gateway = %s, want invalid (no default route)", gw)
	}
}

func TestParseProcNetRouteEmpty(t *testing.T) {
	if _, err := parseProcNetRoute(strings.NewReader("")); err == nil {
		t.Error("empty routing table should be an error")
	}
}
