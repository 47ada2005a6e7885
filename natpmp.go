package portmapd

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	natpmp "github.com/jackpal/go-nat-pmp"
)

// natpmpDefaultLease substitutes for "permanent" requests: NAT-PMP has no
// permanent mappings (lifetime 0 means delete), so the RFC 6886
// recommended lifetime is used instead. The daemon's periodic pass renews
// it long before expiry.
const natpmpDefaultLease = 7200

// NATPMPDiscoverer locates a NAT-PMP gateway. It is the fallback for
// gateways with UPnP disabled. NAT-PMP has no search protocol, so the
// gateway address comes from the system routing table, or failing that
// from the .1 convention in the bind address's subnet; the client's
// connectivity is then verified with an external-address query.
type NATPMPDiscoverer struct {
	// Timeout bounds the discovery round-trips. 0 selects
	// DefaultDiscoveryTimeout.
	Timeout time.Duration
}

func (d *NATPMPDiscoverer) Discover(ctx context.Context, bind netip.Addr) (Gateway, error) {
	if !bind.Is4() {
		return nil, fmt.Errorf("nat-pmp discovery from %s: %w", bind, ErrInvalidAddressFamily)
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultDiscoveryTimeout
	}

	gwAddr := defaultGatewayFor(bind)
	client := natpmp.NewClientWithTimeout(net.IP(gwAddr.AsSlice()), timeout)

	// go-nat-pmp predates context plumbing; the client timeout above
	// bounds the probe instead.
	if _, err := client.GetExternalAddress(); err != nil {
		return nil, fmt.Errorf("nat-pmp probe of %s: %w", gwAddr, ErrNoGatewayFound)
	}
	return &natpmpGateway{client: client, addr: gwAddr}, nil
}

// defaultGatewayFor picks the NAT-PMP gateway address: the routing table's
// default gateway when readable, otherwise .1 in bind's /24.
func defaultGatewayFor(bind netip.Addr) netip.Addr {
	if gw, err := systemDefaultGateway(); err == nil && gw.IsValid() {
		return gw
	}
	b := bind.As4()
	b[3] = 1
	return netip.AddrFrom4(b)
}

// natpmpGateway adapts a go-nat-pmp client to the Gateway interface. The
// protocol maps the requesting host only, so the client address parameter
// of AddMapping is ignored. NAT-PMP reports no distinct conflict
// condition; a slot held by another host simply fails.
type natpmpGateway struct {
	client *natpmp.Client
	addr   netip.Addr
}

func (g *natpmpGateway) AddMapping(_ context.Context, proto Protocol, port uint16, _ netip.Addr, leaseSeconds uint32, _ string) error {
	lease := int(leaseSeconds)
	if lease == 0 {
		lease = natpmpDefaultLease
	}
	_, err := g.client.AddPortMapping(strings.ToLower(string(proto)), int(port), int(port), lease)
	if err != nil {
		return &MappingError{Protocol: proto, Port: port, Cause: err}
	}
	return nil
}

func (g *natpmpGateway) RemoveMapping(_ context.Context, proto Protocol, port uint16) error {
	// Per RFC 6886, a mapping is destroyed by requesting it with an
	// external port and lifetime of zero.
	_, err := g.client.AddPortMapping(strings.ToLower(string(proto)), int(port), 0, 0)
	if err != nil {
		return &MappingError{Protocol: proto, Port: port, Cause: err}
	}
	return nil
}

func (g *natpmpGateway) ExternalIP(_ context.Context) (netip.Addr, error) {
	result, err := g.client.GetExternalAddress()
	if err != nil {
		return netip.Addr{}, err
	}
	return netip.AddrFrom4(result.ExternalIPAddress), nil
}
