// Package config loads the desired port mappings from CSV or JSON input.
// The daemon re-reads its source on every reconciliation pass, so mappings
// can be added or removed on the fly without a restart.
package config

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	portmapd "github.com/go-i2p/go-portmap-daemon"
)

// Format selects the input encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// DefaultCSVDelimiter is the field delimiter used when none is configured.
const DefaultCSVDelimiter = ';'

// ParseFormat validates a format token from the command line.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV, FormatJSON:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown config format %q (want csv or json)", s)
	}
}

// Source is a re-readable origin of mapping requests. The pseudo-path "-"
// reads standard input once at construction and replays the captured bytes
// on every Load, since stdin cannot be rewound between passes.
type Source struct {
	path   string
	format Format
	delim  rune
	stdin  []byte
}

// NewSource prepares a source for repeated loading. delim only applies to
// CSV input; 0 selects DefaultCSVDelimiter.
func NewSource(path string, format Format, delim rune) (*Source, error) {
	if delim == 0 {
		delim = DefaultCSVDelimiter
	}
	s := &Source{path: path, format: format, delim: delim}
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		s.stdin = data
	}
	return s, nil
}

// Path returns the configured input path ("-" for stdin).
func (s *Source) Path() string {
	return s.path
}

// Load reads and parses the source afresh.
func (s *Source) Load() ([]portmapd.MappingRequest, error) {
	var r io.Reader
	if s.stdin != nil {
		r = bytes.NewReader(s.stdin)
	} else {
		f, err := os.Open(s.path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		r = f
	}

	switch s.format {
	case FormatJSON:
		return ParseJSON(r)
	default:
		return ParseCSV(r, s.delim)
	}
}

// record mirrors one input entry before validation. Unknown JSON keys and
// unknown CSV columns are ignored, so operators can keep private notes in
// their config files.
type record struct {
	Address  *string `json:"address"`
	Port     int     `json:"port"`
	Protocol string  `json:"protocol"`
	Duration int64   `json:"duration"`
	Comment  string  `json:"comment"`
}

func (rec record) toRequest(ordinal int) (portmapd.MappingRequest, error) {
	fail := func(err error) (portmapd.MappingRequest, error) {
		return portmapd.MappingRequest{}, fmt.Errorf("entry %d: %w", ordinal, err)
	}

	var addrField string
	if rec.Address != nil {
		addrField = *rec.Address
	}
	spec, err := portmapd.ParseAddressSpec(addrField)
	if err != nil {
		return fail(err)
	}
	if rec.Port < 1 || rec.Port > 65535 {
		return fail(fmt.Errorf("port %d out of range 1-65535", rec.Port))
	}
	// Case-sensitive on purpose: the tokens go to the gateway verbatim.
	proto := portmapd.Protocol(rec.Protocol)
	if proto != portmapd.TCP && proto != portmapd.UDP {
		return fail(fmt.Errorf("protocol %q must be TCP or UDP", rec.Protocol))
	}
	if rec.Duration < 0 || rec.Duration > int64(^uint32(0)) {
		return fail(fmt.Errorf("duration %d out of range", rec.Duration))
	}

	return portmapd.MappingRequest{
		Address:  spec,
		Port:     uint16(rec.Port),
		Protocol: proto,
		Duration: uint32(rec.Duration),
		Comment:  rec.Comment,
	}, nil
}

// ParseCSV reads mapping requests from header-mapped CSV. The header row
// is mandatory; column order is free and unrecognized columns are ignored.
func ParseCSV(r io.Reader, delim rune) ([]portmapd.MappingRequest, error) {
	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read CSV header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"port", "protocol", "duration", "comment"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("CSV header is missing the %q column", required)
		}
	}

	field := func(row []string, name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var out []portmapd.MappingRequest
	for line := 1; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read CSV entry %d: %w", line, err)
		}

		rec := record{
			Protocol: field(row, "protocol"),
			Comment:  field(row, "comment"),
		}
		if addr := field(row, "address"); addr != "" {
			rec.Address = &addr
		}
		if rec.Port, err = strconv.Atoi(field(row, "port")); err != nil {
			return nil, fmt.Errorf("entry %d: port: %w", line, err)
		}
		if rec.Duration, err = strconv.ParseInt(field(row, "duration"), 10, 64); err != nil {
			return nil, fmt.Errorf("entry %d: duration: %w", line, err)
		}

		req, err := rec.toRequest(line)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
}

// ParseJSON reads mapping requests from a JSON array. A null or absent
// address means "any interface"; unknown keys are ignored.
func ParseJSON(r io.Reader) ([]portmapd.MappingRequest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse JSON config (must be an array of mappings): %w", err)
	}

	out := make([]portmapd.MappingRequest, 0, len(records))
	for i, rec := range records {
		req, err := rec.toRequest(i + 1)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, nil
}
