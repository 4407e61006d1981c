package geo

import (
	"cmp"
	"encoding/csv"
	"fmt"
	"io"
	"net/netip"
	"slices"
	"strconv"
	"strings"
)

// Table is an immutable longest-prefix-match table built from CSV rows of
// network, latitude, longitude (and optionally a country code).
//
// Networks are grouped by prefix length. Each group holds its masked prefix
// addresses sorted ascending, and the groups are ordered from the longest
// prefix to the shortest. A lookup masks the address to each length in turn
// and binary-searches that group, so the first hit is the most specific
// network containing the address.
type Table struct {
	v4   []level
	v6   []level
	size int
}

type level struct {
	bits    int
	entries []entry
}

type entry struct {
	addr  netip.Addr
	point Point
}

// column names accepted in the header row, by role.
var (
	networkColumns   = []string{"network", "cidr", "prefix"}
	latitudeColumns  = []string{"latitude", "lat"}
	longitudeColumns = []string{"longitude", "lon", "lng"}
	countryColumns   = []string{"country_iso_code", "country_code", "country"}
)

// ParseTable reads a CSV range table. The first row is a header; columns are
// located by name, so extra columns (as in GeoLite2-City-Blocks files) are
// ignored. Rows with empty coordinates are skipped. A malformed network or
// coordinate fails the whole parse, since it means the file is corrupt.
//
// When the same network appears twice, the first row wins.
func ParseTable(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty range table")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols, err := locateColumns(header)
	if err != nil {
		return nil, err
	}

	groups := map[bool]map[int][]entry{true: {}, false: {}}
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(rec) <= cols.max {
			return nil, fmt.Errorf("line %d: want at least %d fields, got %d", line, cols.max+1, len(rec))
		}

		latStr, lonStr := strings.TrimSpace(rec[cols.lat]), strings.TrimSpace(rec[cols.lon])
		if latStr == "" || lonStr == "" {
			continue
		}

		pfx, err := parseNetwork(rec[cols.network])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		lat, err := strconv.ParseFloat(latStr, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: latitude: %w", line, err)
		}
		lon, err := strconv.ParseFloat(lonStr, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: longitude: %w", line, err)
		}
		if !validCoordinate(lat, lon) {
			return nil, fmt.Errorf("line %d: coordinate (%g, %g) out of range", line, lat, lon)
		}

		pt := Point{Lat: lat, Lon: lon, Resolved: true}
		if cols.country >= 0 {
			pt.Country = strings.ToLower(strings.TrimSpace(rec[cols.country]))
		}
		is4 := pfx.Addr().Is4()
		groups[is4][pfx.Bits()] = append(groups[is4][pfx.Bits()], entry{addr: pfx.Addr(), point: pt})
	}

	t := &Table{v4: buildLevels(groups[true]), v6: buildLevels(groups[false])}
	for _, l := range t.v4 {
		t.size += len(l.entries)
	}
	for _, l := range t.v6 {
		t.size += len(l.entries)
	}
	return t, nil
}

// Len returns the number of distinct networks in the table.
func (t *Table) Len() int { return t.size }

// Resolve returns the point of the longest prefix containing ip, or
// [Unresolved] when ip is not public or no prefix matches.
func (t *Table) Resolve(ip netip.Addr) Point {
	ip = ip.Unmap()
	if !IsPublic(ip) {
		return Unresolved
	}
	levels := t.v6
	if ip.Is4() {
		levels = t.v4
	}
	for _, l := range levels {
		p, err := ip.Prefix(l.bits)
		if err != nil {
			continue
		}
		key := p.Addr()
		i, found := slices.BinarySearchFunc(l.entries, key, func(e entry, a netip.Addr) int {
			return e.addr.Compare(a)
		})
		if found {
			return l.entries[i].point
		}
	}
	return Unresolved
}

// Close is a no-op; the table holds no external resources.
func (t *Table) Close() error { return nil }

var _ Resolver = (*Table)(nil)

func buildLevels(groups map[int][]entry) []level {
	levels := make([]level, 0, len(groups))
	for bits, entries := range groups {
		slices.SortStableFunc(entries, func(a, b entry) int { return a.addr.Compare(b.addr) })
		entries = slices.CompactFunc(entries, func(a, b entry) bool { return a.addr == b.addr })
		levels = append(levels, level{bits: bits, entries: slices.Clip(entries)})
	}
	slices.SortFunc(levels, func(a, b level) int { return cmp.Compare(b.bits, a.bits) })
	return levels
}

// parseNetwork parses a CIDR prefix and masks it. IPv4-mapped IPv6 prefixes
// (::ffff:0:0/96 and longer) are folded into the IPv4 table.
func parseNetwork(s string) (netip.Prefix, error) {
	p, err := netip.ParsePrefix(strings.TrimSpace(s))
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("network %q: %w", s, err)
	}
	if p.Addr().Is4In6() && p.Bits() >= 96 {
		p = netip.PrefixFrom(p.Addr().Unmap(), p.Bits()-96)
	}
	return p.Masked(), nil
}

type tableColumns struct {
	network, lat, lon, country, max int
}

func locateColumns(header []string) (tableColumns, error) {
	find := func(names []string) int {
		for i, h := range header {
			h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
			if slices.Contains(names, h) {
				return i
			}
		}
		return -1
	}
	cols := tableColumns{
		network: find(networkColumns),
		lat:     find(latitudeColumns),
		lon:     find(longitudeColumns),
		country: find(countryColumns),
	}
	if cols.network < 0 || cols.lat < 0 || cols.lon < 0 {
		return cols, fmt.Errorf("header must name network, latitude and longitude columns, got %v", header)
	}
	cols.max = max(cols.network, cols.lat, cols.lon, cols.country)
	return cols, nil
}
