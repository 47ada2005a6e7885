//go:build darwin || freebsd || openbsd || netbsd || dragonfly

package portmapd

import (
	"net/netip"
	"testing"
)

func TestParseNetstatRoutes(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string // empty means no gateway expected
	}{
		{
			name: "macOS style",
			output: `Routing tables

Internet:
Destination        Gateway            Flags        Netif Expire
default            192.168.1.1        UGScg          en0
127                127.0.0.1          UCS            lo0
`,
			want: "192.168.1.1",
		},
		{
			name: "zero destination",
			output: `Destination        Gateway            Flags
0.0.0.0            10.0.0.1           UGS
`,
			want: "10.0.0.1",
		},
		{
			name: "scoped gateway suffix",
			output: `Destination        Gateway            Flags
default            192.168.1.1%en0    UGScg
`,
			want: "192.168.1.1",
		},
		{
			name: "link-level default is skipped",
			output: `Destination        Gateway            Flags
default            link#5             UCS
`,
			want: "",
		},
		{
			name:   "empty output",
			output: "",
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw, err := parseNetstatRoutes(tt.output)
			if err != nil {
				t.Fatalf("parseNetstatRoutes: %v", err)
			}
			if tt.want == "" {
				if gw.IsValid() {
					t.Errorf("gateway = %s, want none", gw)
				}
				return
			}
			if gw != netip.MustParseAddr(tt.want) {
				t.Errorf("gateway = %s, want %s", gw, tt.want)
			}
		})
	}
}
