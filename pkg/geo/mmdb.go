package geo

import (
	"net"
	"net/netip"
	"strings"

	"github.com/oschwald/maxminddb-golang"
)

// MMDB resolves addresses against a MaxMind DB held in memory.
// maxminddb.Reader walks the database's binary search tree, which yields the
// longest matching prefix for an address.
type MMDB struct {
	reader *maxminddb.Reader
}

// cityRecord is the subset of the GeoIP2/GeoLite2 City schema relaymap reads.
type cityRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	Location struct {
		Latitude  float64 `maxminddb:"latitude"`
		Longitude float64 `maxminddb:"longitude"`
	} `maxminddb:"location"`
}

// NewMMDB parses a MaxMind DB from data. The slice must not be modified
// afterwards.
func NewMMDB(data []byte) (*MMDB, error) {
	reader, err := maxminddb.FromBytes(data)
	if err != nil {
		return nil, err
	}
	return &MMDB{reader: reader}, nil
}

// DatabaseType returns the type string from the database metadata,
// e.g. "GeoLite2-City".
func (m *MMDB) DatabaseType() string { return m.reader.Metadata.DatabaseType }

// Resolve looks ip up. Non-public addresses, addresses without an entry and
// entries without a location (latitude and longitude both zero) resolve to
// [Unresolved].
func (m *MMDB) Resolve(ip netip.Addr) Point {
	ip = ip.Unmap()
	if !IsPublic(ip) {
		return Unresolved
	}

	var rec cityRecord
	_, ok, err := m.reader.LookupNetwork(net.IP(ip.AsSlice()), &rec)
	if err != nil || !ok {
		return Unresolved
	}

	lat, lon := rec.Location.Latitude, rec.Location.Longitude
	if lat == 0 && lon == 0 {
		return Unresolved
	}
	if !validCoordinate(lat, lon) {
		return Unresolved
	}
	return Point{
		Lat:      lat,
		Lon:      lon,
		Country:  strings.ToLower(rec.Country.ISOCode),
		Resolved: true,
	}
}

// Close releases the reader.
func (m *MMDB) Close() error { return m.reader.Close() }

var _ Resolver = (*MMDB)(nil)
