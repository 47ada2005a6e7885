package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	portmapd "github.com/go-i2p/go-portmap-daemon"
)

func TestParseCSV(t *testing.T) {
	const input = `address;port;protocol;duration;comment
192.168.0.10;12345;UDP;60;Test 1
;12346;TCP;60;Test 2
192.168.0.0/24;80;TCP;3600;Webserver
`
	reqs, err := ParseCSV(strings.NewReader(input), ';')
	require.NoError(t, err)
	require.Len(t, reqs, 3)

	require.Equal(t, "192.168.0.10", reqs[0].Address.String())
	require.True(t, reqs[0].Address.IsExact())
	require.Equal(t, uint16(12345), reqs[0].Port)
	require.Equal(t, portmapd.UDP, reqs[0].Protocol)
	require.Equal(t, uint32(60), reqs[0].Duration)
	require.Equal(t, "Test 1", reqs[0].Comment)

	require.True(t, reqs[1].Address.IsUnspecified())
	require.Equal(t, portmapd.TCP, reqs[1].Protocol)

	require.Equal(t, "192.168.0.0/24", reqs[2].Address.String())
}

func TestParseCSVColumnOrderAndExtras(t *testing.T) {
	// Header order is free, unknown columns are ignored.
	const input = `comment,port,rationale,protocol,duration,address
Game server,27015,because fun,UDP,0,
`
	reqs, err := ParseCSV(strings.NewReader(input), ',')
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	require.Equal(t, uint16(27015), reqs[0].Port)
	require.Equal(t, uint32(0), reqs[0].Duration)
	require.Equal(t, "Game server", reqs[0].Comment)
	require.True(t, reqs[0].Address.IsUnspecified())
}

func TestParseCSVErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing required column", "address;port;protocol;duration\n;80;TCP;60\n"},
		{"bad port", "port;protocol;duration;comment\nxyz;TCP;60;c\n"},
		{"port out of range", "port;protocol;duration;comment\n70000;TCP;60;c\n"},
		{"lowercase protocol", "port;protocol;duration;comment\n80;tcp;60;c\n"},
		{"negative duration", "port;protocol;duration;comment\n80;TCP;-1;c\n"},
		{"ipv6 address", "address;port;protocol;duration;comment\n2001:db8::1;80;TCP;60;c\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCSV(strings.NewReader(tt.input), ';')
			require.Error(t, err)
		})
	}
}

func TestParseCSVEmptyInput(t *testing.T) {
	reqs, err := ParseCSV(strings.NewReader(""), ';')
	require.NoError(t, err)
	require.Empty(t, reqs)
}

func TestParseJSON(t *testing.T) {
	const input = `[
  {"address": "192.168.0.10", "port": 12345, "protocol": "UDP", "duration": 60, "comment": "Test 1"},
  {"address": null, "port": 12346, "protocol": "TCP", "duration": 60, "comment": "Test 2"},
  {"rationale": "ignored key", "port": 12347, "protocol": "TCP", "duration": 60, "comment": "Test 3"}
]`
	reqs, err := ParseJSON(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, reqs, 3)
	require.Equal(t, "192.168.0.10", reqs[0].Address.String())
	require.True(t, reqs[1].Address.IsUnspecified())
	require.True(t, reqs[2].Address.IsUnspecified())
	require.Equal(t, "Test 3", reqs[2].Comment)
}

func TestParseJSONErrors(t *testing.T) {
	t.Run("not an array", func(t *testing.T) {
		_, err := ParseJSON(strings.NewReader(`{"port": 80}`))
		require.Error(t, err)
	})
	t.Run("invalid entry", func(t *testing.T) {
		_, err := ParseJSON(strings.NewReader(`[{"port": 80, "protocol": "SCTP", "duration": 0, "comment": ""}]`))
		require.Error(t, err)
	})
}

func TestSourceReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ports.csv")
	write := func(body string) {
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}

	write("port;protocol;duration;comment\n80;TCP;60;web\n")
	src, err := NewSource(path, FormatCSV, ';')
	require.NoError(t, err)

	reqs, err := src.Load()
	require.NoError(t, err)
	require.Len(t, reqs, 1)

	// The file is re-read each pass, so edits show up on the next Load.
	write("port;protocol;duration;comment\n80;TCP;60;web\n81;TCP;60;alt\n")
	reqs, err = src.Load()
	require.NoError(t, err)
	require.Len(t, reqs, 2)
}

func TestParseFormat(t *testing.T) {
	for _, ok := range []string{"csv", "json"} {
		_, err := ParseFormat(ok)
		require.NoError(t, err)
	}
	_, err := ParseFormat("yaml")
	require.Error(t, err)
}
