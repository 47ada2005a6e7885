package portmapd

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"time"

	"github.com/huin/goupnp/dcps/internetgateway2"
	"github.com/huin/goupnp/httpu"
	"github.com/huin/goupnp/soap"
	"github.com/huin/goupnp/ssdp"
)

// ssdpNumSends is how many times each search request is retransmitted.
// The listen window comes from the discoverer timeout on the context.
const ssdpNumSends = 3

// Service types tried in order of preference: WANIPConnection2 is the most
// feature-rich, WANIPConnection1 covers most cable/fiber routers, and
// WANPPPConnection1 covers PPPoE (DSL) routers. IGDv1-only devices answer
// the version-1 service searches too.
var upnpSearchTargets = []string{
	internetgateway2.URN_WANIPConnection_2,
	internetgateway2.URN_WANIPConnection_1,
	internetgateway2.URN_WANPPPConnection_1,
}

// UPnPDiscoverer locates UPnP internet gateway devices. Unlike goupnp's
// stock client constructors, its SSDP search is bound to a specific local
// address, so multi-homed hosts discover the gateway that is actually
// reachable from the interface a mapping targets.
type UPnPDiscoverer struct {
	// Timeout bounds one discovery attempt. 0 selects
	// DefaultDiscoveryTimeout.
	Timeout time.Duration
}

func (d *UPnPDiscoverer) Discover(ctx context.Context, bind netip.Addr) (Gateway, error) {
	if !bind.Is4() {
		return nil, fmt.Errorf("upnp discovery from %s: %w", bind, ErrInvalidAddressFamily)
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultDiscoveryTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := httpu.NewHTTPUClientAddr(bind.String())
	if err != nil {
		return nil, fmt.Errorf("upnp discovery from %s: %w", bind, err)
	}
	defer client.Close()

	for _, target := range upnpSearchTargets {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("upnp discovery from %s: %w", bind, err)
		}
		responses, err := ssdp.RawSearch(ctx, client, target, ssdpNumSends)
		if err != nil {
			continue
		}
		for _, resp := range responses {
			loc, err := resp.Location()
			if err != nil {
				continue
			}
			gw, err := connectIGD(ctx, target, loc)
			if err != nil {
				continue
			}
			return gw, nil
		}
	}
	return nil, fmt.Errorf("upnp discovery from %s: %w", bind, ErrNoGatewayFound)
}

// connectIGD fetches the device description behind an SSDP response and
// builds a service client for the search target that produced it.
func connectIGD(ctx context.Context, target string, loc *url.URL) (Gateway, error) {
	var client igdClient
	switch target {
	case internetgateway2.URN_WANIPConnection_2:
		clients, err := internetgateway2.NewWANIPConnection2ClientsByURLCtx(ctx, loc)
		if err != nil || len(clients) == 0 {
			return nil, firstErr(err, ErrNoGatewayFound)
		}
		client = clients[0]
	case internetgateway2.URN_WANIPConnection_1:
		clients, err := internetgateway2.NewWANIPConnection1ClientsByURLCtx(ctx, loc)
		if err != nil || len(clients) == 0 {
			return nil, firstErr(err, ErrNoGatewayFound)
		}
		client = clients[0]
	case internetgateway2.URN_WANPPPConnection_1:
		clients, err := internetgateway2.NewWANPPPConnection1ClientsByURLCtx(ctx, loc)
		if err != nil || len(clients) == 0 {
			return nil, firstErr(err, ErrNoGatewayFound)
		}
		client = clients[0]
	default:
		return nil, fmt.Errorf("unsupported service target %q", target)
	}

	return &upnpGateway{client: client, location: loc}, nil
}

func firstErr(err, fallback error) error {
	if err != nil {
		return err
	}
	return fallback
}

// igdClient is the subset of the generated goupnp service clients the
// gateway needs. WANIPConnection1, WANIPConnection2 and WANPPPConnection1
// all satisfy it.
type igdClient interface {
	AddPortMappingCtx(
		ctx context.Context,
		NewRemoteHost string,
		NewExternalPort uint16,
		NewProtocol string,
		NewInternalPort uint16,
		NewInternalClient string,
		NewEnabled bool,
		NewPortMappingDescription string,
		NewLeaseDuration uint32,
	) error

	DeletePortMappingCtx(
		ctx context.Context,
		NewRemoteHost string,
		NewExternalPort uint16,
		NewProtocol string,
	) error

	GetExternalIPAddressCtx(ctx context.Context) (string, error)
}

// upnpGateway adapts a goupnp service client to the Gateway interface,
// mapping well-known UPnP fault codes onto the package's sentinel errors.
type upnpGateway struct {
	client   igdClient
	location *url.URL
}

func (g *upnpGateway) AddMapping(ctx context.Context, proto Protocol, port uint16, client netip.Addr, leaseSeconds uint32, description string) error {
	err := g.client.AddPortMappingCtx(ctx,
		"",             // remote host: any
		port,           // external port
		string(proto),  // TCP or UDP
		port,           // internal port, same as external
		client.String(),
		true,
		description,
		leaseSeconds,
	)
	if err != nil {
		return &MappingError{Protocol: proto, Port: port, Cause: classifyUPnPFault(err)}
	}
	return nil
}

func (g *upnpGateway) RemoveMapping(ctx context.Context, proto Protocol, port uint16) error {
	err := g.client.DeletePortMappingCtx(ctx, "", port, string(proto))
	if err != nil {
		return &MappingError{Protocol: proto, Port: port, Cause: classifyUPnPFault(err)}
	}
	return nil
}

func (g *upnpGateway) ExternalIP(ctx context.Context) (netip.Addr, error) {
	raw, err := g.client.GetExternalIPAddressCtx(ctx)
	if err != nil {
		return netip.Addr{}, err
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("gateway reported external IP %q: %w", raw, err)
	}
	return addr, nil
}

// UPnP error codes from the WANIPConnection specification.
const (
	upnpErrNoSuchEntryInArray           = 714
	upnpErrConflictInMappingEntry       = 718
	upnpErrOnlyPermanentLeasesSupported = 725
)

// classifyUPnPFault maps SOAP faults onto sentinel errors. Some gateways
// omit the numeric code and only fill in the description, so both are
// consulted.
func classifyUPnPFault(err error) error {
	fault := new(soap.SOAPFaultError)
	if !errors.As(err, &fault) {
		return err
	}
	code := fault.Detail.UPnPError.Errorcode
	desc := fault.Detail.UPnPError.ErrorDescription

	switch {
	case code == upnpErrConflictInMappingEntry || desc == "ConflictInMappingEntry":
		return fmt.Errorf("%w (gateway: %s)", ErrPortInUse, faultDetail(code, desc))
	case code == upnpErrNoSuchEntryInArray || desc == "NoSuchEntryInArray":
		return fmt.Errorf("%w (gateway: %s)", ErrNoSuchMapping, faultDetail(code, desc))
	case code == upnpErrOnlyPermanentLeasesSupported || desc == "OnlyPermanentLeasesSupported":
		return fmt.Errorf("%w (gateway: %s)", ErrOnlyPermanentLeases, faultDetail(code, desc))
	}
	return err
}

func faultDetail(code int, desc string) string {
	if desc == "" {
		return fmt.Sprintf("error %d", code)
	}
	return desc
}
