// Package geo resolves relay addresses to approximate coordinates using an
// offline geolocation database.
//
// The database is read once, fully into memory, and never modified, so a
// [Resolver] may be shared by any number of goroutines without locking.
// Two on-disk formats are supported, chosen by file name:
//
//   - MaxMind DB (".mmdb", optionally ".mmdb.gz"), e.g. GeoLite2-City, read
//     with github.com/oschwald/maxminddb-golang
//   - CSV range tables (".csv", optionally ".csv.gz") with a header naming
//     network, latitude and longitude columns, e.g. GeoLite2-City-Blocks
//
// Addresses in private, loopback and other non-routable ranges never reach
// the database; they resolve to the unresolved [Point].
package geo

import (
	"bytes"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/matzehuels/relaymap/pkg/errors"
)

// Point is a resolved location. The zero value is "unresolved".
type Point struct {
	Lat      float64
	Lon      float64
	Country  string // lower-case ISO 3166-1 alpha-2, empty if unknown
	Resolved bool
}

// Unresolved is the point returned for addresses without a location.
var Unresolved = Point{}

// Resolver maps an address to a Point.
type Resolver interface {
	Resolve(ip netip.Addr) Point
	Close() error
}

// mmdbMarker starts the metadata section of every MaxMind DB file.
var mmdbMarker = []byte("\xab\xcd\xefMaxMind.com")

// Open loads the database at path. A missing, unreadable or corrupt database
// returns an error with [errors.ErrCodeGeoDatabase].
func Open(path string) (Resolver, error) {
	data, err := readDatabase(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeGeoDatabase, err, "read geolocation database %s", path)
	}

	name := strings.TrimSuffix(strings.ToLower(filepath.Base(path)), ".gz")
	switch {
	case strings.HasSuffix(name, ".mmdb"):
		return openMMDB(path, data)
	case strings.HasSuffix(name, ".csv"):
		return openTable(path, data)
	case bytes.Contains(data, mmdbMarker):
		return openMMDB(path, data)
	default:
		return openTable(path, data)
	}
}

func openMMDB(path string, data []byte) (Resolver, error) {
	r, err := NewMMDB(data)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeGeoDatabase, err, "load MaxMind database %s", path)
	}
	return r, nil
}

func openTable(path string, data []byte) (Resolver, error) {
	t, err := ParseTable(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeGeoDatabase, err, "load range table %s", path)
	}
	return t, nil
}

func readDatabase(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if !strings.HasSuffix(strings.ToLower(path), ".gz") {
		return io.ReadAll(f)
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

func validCoordinate(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
