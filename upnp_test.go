package portmapd

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"testing"

	"github.com/huin/goupnp/soap"
)

func soapFault(code int, desc string) error {
	fault := &soap.SOAPFaultError{FaultCode: "s:Client", FaultString: "UPnPError"}
	fault.Detail.UPnPError.Errorcode = code
	fault.Detail.UPnPError.ErrorDescription = desc
	return fmt.Errorf("SOAP request got fault: %w", fault)
}

func TestClassifyUPnPFault(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"conflict by code", soapFault(718, "ConflictInMappingEntry"), ErrPortInUse},
		{"conflict by description only", soapFault(0, "ConflictInMappingEntry"), ErrPortInUse},
		{"no such entry", soapFault(714, "NoSuchEntryInArray"), ErrNoSuchMapping},
		{"permanent leases only", soapFault(725, "OnlyPermanentLeasesSupported"), ErrOnlyPermanentLeases},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyUPnPFault(tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("classifyUPnPFault() = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("unknown fault passes through", func(t *testing.T) {
		in := soapFault(501, "ActionFailed")
		if got := classifyUPnPFault(in); got != in {
			t.Errorf("unknown fault rewritten: %v", got)
		}
	})

	t.Run("non-SOAP error passes through", func(t *testing.T) {
		in := errors.New("connection refused")
		if got := classifyUPnPFault(in); got != in {
			t.Errorf("transport error rewritten: %v", got)
		}
	})
}

// fakeIGDClient records the SOAP action arguments the gateway adapter
// produces.
type fakeIGDClient struct {
	addErr    error
	deleteErr error
	extIP     string

	addCalls []struct {
		remoteHost, proto, client, desc string
		extPort, intPort                uint16
		enabled                         bool
		lease                           uint32
	}
	deleteCalls int
}

func (f *fakeIGDClient) AddPortMappingCtx(_ context.Context, remoteHost string, extPort uint16, proto string, intPort uint16, client string, enabled bool, desc string, lease uint32) error {
	f.addCalls = append(f.addCalls, struct {
		remoteHost, proto, client, desc string
		extPort, intPort                uint16
		enabled                         bool
		lease                           uint32
	}{remoteHost, proto, client, desc, extPort, intPort, enabled, lease})
	return f.addErr
}

func (f *fakeIGDClient) DeletePortMappingCtx(_ context.Context, _ string, _ uint16, _ string) error {
	f.deleteCalls++
	return f.deleteErr
}

func (f *fakeIGDClient) GetExternalIPAddressCtx(_ context.Context) (string, error) {
	return f.extIP, nil
}

func TestUPnPGatewayAddMapping(t *testing.T) {
	fake := &fakeIGDClient{extIP: "203.0.113.1"}
	gw := &upnpGateway{client: fake}

	client := netip.MustParseAddr("192.168.1.9")
	if err := gw.AddMapping(context.Background(), UDP, 12345, client, 60, "Test 1"); err != nil {
		t.Fatalf("AddMapping: %v", err)
	}

	if len(fake.addCalls) != 1 {
		t.Fatalf("addCalls = %d, want 1", len(fake.addCalls))
	}
	call := fake.addCalls[0]
	if call.remoteHost != "" || call.proto != "UDP" || !call.enabled {
		t.Errorf("call = %+v", call)
	}
	if call.extPort != 12345 || call.intPort != 12345 {
		t.Errorf("ports = %d/%d, want 12345/12345", call.extPort, call.intPort)
	}
	if call.client != "192.168.1.9" || call.lease != 60 || call.desc != "Test 1" {
		t.Errorf("call = %+v", call)
	}

	ext, err := gw.ExternalIP(context.Background())
	if err != nil || ext != netip.MustParseAddr("203.0.113.1") {
		t.Errorf("ExternalIP = %v, %v", ext, err)
	}
}

func TestUPnPGatewayConflictSurfacesSentinel(t *testing.T) {
	fake := &fakeIGDClient{addErr: soapFault(718, "ConflictInMappingEntry")}
	gw := &upnpGateway{client: fake}

	err := gw.AddMapping(context.Background(), TCP, 80, netip.MustParseAddr("192.168.1.9"), 0, "web")
	if !errors.Is(err, ErrPortInUse) {
		t.Errorf("err = %v, want ErrPortInUse", err)
	}
	var mapErr *MappingError
	if !errors.As(err, &mapErr) || mapErr.Port != 80 || mapErr.Protocol != TCP {
		t.Errorf("err = %v, want MappingError for 80/TCP", err)
	}
}

func TestUPnPDiscovererRejectsNonIPv4(t *testing.T) {
	d := &UPnPDiscoverer{}
	_, err := d.Discover(context.Background(), netip.MustParseAddr("2001:db8::1"))
	if !errors.Is(err, ErrInvalidAddressFamily) {
		t.Errorf("err = %v, want ErrInvalidAddressFamily", err)
	}
}
