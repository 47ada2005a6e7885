package portmapd

import (
	"context"
	"fmt"
	"net/netip"
	"time"
)

// DefaultDiscoveryTimeout bounds a single gateway discovery attempt. The
// underlying protocols keep retransmitting until their context expires, so
// a few seconds is enough to hear from any responsive device.
const DefaultDiscoveryTimeout = 5 * time.Second

// Gateway is a discovered, reachable control endpoint on a NAT device.
// Handles are not cached across requests or passes; every pass rediscovers,
// trading performance for robustness against dynamic addressing and
// rebooted gateways.
type Gateway interface {
	// AddMapping opens port/proto on the gateway, directing traffic to
	// client. leaseSeconds of 0 requests a permanent mapping. A mapping
	// already occupying the slot surfaces as ErrPortInUse.
	AddMapping(ctx context.Context, proto Protocol, port uint16, client netip.Addr, leaseSeconds uint32, description string) error

	// RemoveMapping closes port/proto. Removing an absent mapping
	// surfaces as ErrNoSuchMapping.
	RemoveMapping(ctx context.Context, proto Protocol, port uint16) error

	// ExternalIP reports the gateway's public address.
	ExternalIP(ctx context.Context) (netip.Addr, error)
}

// GatewayDiscoverer locates a gateway reachable from a specific local bind
// address.
type GatewayDiscoverer interface {
	Discover(ctx context.Context, bind netip.Addr) (Gateway, error)
}

// FallbackDiscoverer tries each discoverer in order and returns the first
// gateway found.
type FallbackDiscoverer []GatewayDiscoverer

// NewDiscoverer builds the standard discovery chain: UPnP IGD first, then
// NAT-PMP. A timeout of 0 selects DefaultDiscoveryTimeout.
func NewDiscoverer(timeout time.Duration) GatewayDiscoverer {
	return FallbackDiscoverer{
		&UPnPDiscoverer{Timeout: timeout},
		&NATPMPDiscoverer{Timeout: timeout},
	}
}

func (d FallbackDiscoverer) Discover(ctx context.Context, bind netip.Addr) (Gateway, error) {
	var lastErr error
	for _, disc := range d {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		gw, err := disc.Discover(ctx, bind)
		if err == nil {
			return gw, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = ErrNoGatewayFound
	}
	return nil, fmt.Errorf("discovery from %s: %w", bind, lastErr)
}
