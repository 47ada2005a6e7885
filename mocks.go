package portmapd

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
)

// MockGateway implements Gateway with in-memory mapping state for testing.
// It detects slot conflicts the way a real gateway does: adding to an
// occupied (protocol, port) slot fails with ErrPortInUse, removing an
// absent mapping fails with ErrNoSuchMapping.
type MockGateway struct {
	mu         sync.Mutex
	mappings   map[string]MockMapping
	externalIP netip.Addr
	calls      []string

	// AddErr and RemoveErr force the corresponding operation to fail.
	AddErr    error
	RemoveErr error
	// PermanentOnly rejects nonzero lease durations with
	// ErrOnlyPermanentLeases, like gateways that only accept permanent
	// mappings.
	PermanentOnly bool
}

// MockMapping is one mapping held by a MockGateway.
type MockMapping struct {
	Protocol    Protocol
	Port        uint16
	Client      netip.Addr
	Lease       uint32
	Description string
}

// NewMockGateway creates an empty mock gateway with an RFC 5737 external
// address.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		mappings:   make(map[string]MockMapping),
		externalIP: netip.MustParseAddr("203.0.113.100"),
	}
}

func mappingKey(proto Protocol, port uint16) string {
	return fmt.Sprintf("%s/%d", proto, port)
}

func (g *MockGateway) AddMapping(_ context.Context, proto Protocol, port uint16, client netip.Addr, leaseSeconds uint32, description string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, "add "+mappingKey(proto, port))

	if g.AddErr != nil {
		return g.AddErr
	}
	if g.PermanentOnly && leaseSeconds != 0 {
		return &MappingError{Protocol: proto, Port: port, Cause: ErrOnlyPermanentLeases}
	}
	key := mappingKey(proto, port)
	if _, exists := g.mappings[key]; exists {
		return &MappingError{Protocol: proto, Port: port, Cause: ErrPortInUse}
	}
	g.mappings[key] = MockMapping{
		Protocol:    proto,
		Port:        port,
		Client:      client,
		Lease:       leaseSeconds,
		Description: description,
	}
	return nil
}

func (g *MockGateway) RemoveMapping(_ context.Context, proto Protocol, port uint16) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, "remove "+mappingKey(proto, port))

	if g.RemoveErr != nil {
		return g.RemoveErr
	}
	key := mappingKey(proto, port)
	if _, exists := g.mappings[key]; !exists {
		return &MappingError{Protocol: proto, Port: port, Cause: ErrNoSuchMapping}
	}
	delete(g.mappings, key)
	return nil
}

func (g *MockGateway) ExternalIP(_ context.Context) (netip.Addr, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.externalIP, nil
}

// SetExternalIP overrides the reported external address.
func (g *MockGateway) SetExternalIP(addr netip.Addr) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.externalIP = addr
}

// Mapping returns the stored mapping for a slot, if present.
func (g *MockGateway) Mapping(proto Protocol, port uint16) (MockMapping, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.mappings[mappingKey(proto, port)]
	return m, ok
}

// MappingCount returns the number of active mappings.
func (g *MockGateway) MappingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.mappings)
}

// Calls returns the control operations issued so far, in order, as
// "add PROTO/PORT" and "remove PROTO/PORT" strings.
func (g *MockGateway) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.calls))
	copy(out, g.calls)
	return out
}

// MockDiscoverer implements GatewayDiscoverer against a fixed table of
// reachable bind addresses. Discovery from any other address fails with
// ErrNoGatewayFound. Every attempt is recorded.
type MockDiscoverer struct {
	mu       sync.Mutex
	gateways map[netip.Addr]Gateway
	attempts []netip.Addr

	// Err, when set, fails every discovery attempt with it.
	Err error
}

// NewMockDiscoverer creates a discoverer with no reachable gateways.
func NewMockDiscoverer() *MockDiscoverer {
	return &MockDiscoverer{gateways: make(map[netip.Addr]Gateway)}
}

// Reach makes gw discoverable from the given bind address.
func (d *MockDiscoverer) Reach(bind netip.Addr, gw Gateway) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gateways[bind] = gw
}

func (d *MockDiscoverer) Discover(_ context.Context, bind netip.Addr) (Gateway, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts = append(d.attempts, bind)

	if d.Err != nil {
		return nil, d.Err
	}
	gw, ok := d.gateways[bind]
	if !ok {
		return nil, fmt.Errorf("mock discovery from %s: %w", bind, ErrNoGatewayFound)
	}
	return gw, nil
}

// Attempts returns the bind addresses discovery was attempted from, in
// order.
func (d *MockDiscoverer) Attempts() []netip.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]netip.Addr, len(d.attempts))
	copy(out, d.attempts)
	return out
}

// MockEnumerator implements InterfaceEnumerator with a fixed address list.
type MockEnumerator struct {
	mu    sync.Mutex
	calls int

	// Addrs is returned from IPv4Addresses in order.
	Addrs []netip.Addr
	// Err, when set, is returned instead.
	Err error
}

func (e *MockEnumerator) IPv4Addresses() ([]netip.Addr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.Err != nil {
		return nil, e.Err
	}
	out := make([]netip.Addr, len(e.Addrs))
	copy(out, e.Addrs)
	return out, nil
}

// CallCount returns how many times IPv4Addresses was invoked.
func (e *MockEnumerator) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}
