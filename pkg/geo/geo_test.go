package geo

import (
	"bytes"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/matzehuels/relaymap/pkg/errors"
)

const sampleTable = `network,geoname_id,latitude,longitude,country_iso_code
1.2.0.0/16,1,10.0,20.0,AA
1.2.3.0/24,2,48.8566,2.3522,FR
1.2.3.0/24,3,0.5,0.5,XX
5.0.0.0/8,4,,,
2001:db8:1::/48,5,1.0,1.0,DB
2a01::/16,6,52.52,13.405,DE
2a01:4f8::/32,7,49.45,11.07,DE
::ffff:9.9.9.0/120,8,37.77,-122.42,US
`

func mustTable(t *testing.T, s string) *Table {
	t.Helper()
	tbl, err := ParseTable(strings.NewReader(s))
	if err != nil {
		t.Fatalf("ParseTable() error: %v", err)
	}
	return tbl
}

func TestTableLongestPrefixMatch(t *testing.T) {
	tbl := mustTable(t, sampleTable)

	tests := []struct {
		ip      string
		want    Point
		comment string
	}{
		{"1.2.3.4", Point{Lat: 48.8566, Lon: 2.3522, Country: "fr", Resolved: true}, "/24 beats /16"},
		{"1.2.4.4", Point{Lat: 10, Lon: 20, Country: "aa", Resolved: true}, "falls back to /16"},
		{"1.3.0.1", Unresolved, "no covering prefix"},
		{"5.5.5.5", Unresolved, "row without coordinates skipped"},
		{"2a01:4f8:c0c:1::1", Point{Lat: 49.45, Lon: 11.07, Country: "de", Resolved: true}, "/32 beats /16"},
		{"2a01:1::1", Point{Lat: 52.52, Lon: 13.405, Country: "de", Resolved: true}, "v6 /16"},
		{"2001:db8:1::1", Unresolved, "documentation range never looked up"},
		{"9.9.9.9", Point{Lat: 37.77, Lon: -122.42, Country: "us", Resolved: true}, "mapped prefix folded to v4"},
		{"::ffff:1.2.3.4", Point{Lat: 48.8566, Lon: 2.3522, Country: "fr", Resolved: true}, "mapped address unmapped"},
	}

	for _, tt := range tests {
		t.Run(tt.comment, func(t *testing.T) {
			got := tbl.Resolve(netip.MustParseAddr(tt.ip))
			if got != tt.want {
				t.Errorf("Resolve(%s) = %+v, want %+v", tt.ip, got, tt.want)
			}
		})
	}
}

func TestTableFirstDuplicateWins(t *testing.T) {
	tbl := mustTable(t, sampleTable)
	if got := tbl.Resolve(netip.MustParseAddr("1.2.3.1")); got.Country != "fr" {
		t.Errorf("duplicate network: got country %q, want fr", got.Country)
	}
	if tbl.Len() != 6 {
		t.Errorf("Len() = %d, want 6", tbl.Len())
	}
}

func TestTablePrivateRangesUnresolved(t *testing.T) {
	tbl := mustTable(t, "network,latitude,longitude\n0.0.0.0/0,1,1\n::/0,1,1\n")

	for _, ip := range []string{
		"10.0.0.1", "172.16.5.5", "192.168.1.1", "127.0.0.1", "169.254.1.1",
		"100.64.0.1", "192.0.2.1", "198.18.0.1", "203.0.113.9", "240.0.0.1",
		"0.0.0.0", "224.0.0.1", "::1", "fe80::1", "fc00::1", "2001:db8::1", "ff02::1",
	} {
		if got := tbl.Resolve(netip.MustParseAddr(ip)); got.Resolved {
			t.Errorf("Resolve(%s) = %+v, want unresolved", ip, got)
		}
	}
	if got := tbl.Resolve(netip.MustParseAddr("8.8.8.8")); !got.Resolved {
		t.Error("public address should match the default route")
	}
	if got := tbl.Resolve(netip.MustParseAddr("2a00::1")); !got.Resolved {
		t.Error("public v6 address should match the default route")
	}
}

func TestIsPublic(t *testing.T) {
	if IsPublic(netip.Addr{}) {
		t.Error("invalid address is not public")
	}
	if !IsPublic(netip.MustParseAddr("1.2.3.4")) {
		t.Error("1.2.3.4 is public")
	}
	if IsPublic(netip.MustParseAddr("::ffff:10.0.0.1")) {
		t.Error("mapped private address is not public")
	}
	if !IsPublic(netip.MustParseAddr("2002:102:304::1")) {
		t.Error("6to4 addresses are globally routable")
	}
}

func TestParseTableErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"missing columns", "network,foo\n1.0.0.0/8,1\n"},
		{"bad network", "network,latitude,longitude\nnope,1,1\n"},
		{"bad latitude", "network,latitude,longitude\n1.0.0.0/8,x,1\n"},
		{"out of range", "network,latitude,longitude\n1.0.0.0/8,91,1\n"},
		{"short row", "network,latitude,longitude\n1.0.0.0/8\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseTable(strings.NewReader(tt.input)); err == nil {
				t.Error("ParseTable() should fail")
			}
		})
	}
}

func TestParseTableAlternateHeader(t *testing.T) {
	tbl := mustTable(t, "\ufeffCIDR,Lat,Lng\n8.8.8.0/24,37.4,-122.1\n")
	if got := tbl.Resolve(netip.MustParseAddr("8.8.8.8")); !got.Resolved || got.Lat != 37.4 {
		t.Errorf("Resolve() = %+v", got)
	}
}

func TestOpenCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blocks.csv")
	os.WriteFile(path, []byte(sampleTable), 0o644)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer r.Close()
	if _, ok := r.(*Table); !ok {
		t.Fatalf("Open() returned %T, want *Table", r)
	}
	if got := r.Resolve(netip.MustParseAddr("1.2.3.4")); !got.Resolved {
		t.Error("expected resolved point")
	}
}

func TestOpenGzippedCSV(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write([]byte(sampleTable))
	zw.Close()

	path := filepath.Join(t.TempDir(), "blocks.csv.gz")
	os.WriteFile(path, buf.Bytes(), 0o644)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if got := r.Resolve(netip.MustParseAddr("2a01:4f8::1")); !got.Resolved {
		t.Error("expected resolved point from gzipped table")
	}
}

func TestOpenFailures(t *testing.T) {
	dir := t.TempDir()
	corruptMMDB := filepath.Join(dir, "GeoLite2-City.mmdb")
	os.WriteFile(corruptMMDB, []byte("definitely not a maxmind database"), 0o644)
	corruptCSV := filepath.Join(dir, "blocks.csv")
	os.WriteFile(corruptCSV, []byte("no,header,here\n"), 0o644)
	badGzip := filepath.Join(dir, "blocks.csv.gz")
	os.WriteFile(badGzip, []byte("plain text"), 0o644)

	for _, path := range []string{filepath.Join(dir, "missing.mmdb"), corruptMMDB, corruptCSV, badGzip} {
		t.Run(filepath.Base(path), func(t *testing.T) {
			_, err := Open(path)
			if !errors.Is(err, errors.ErrCodeGeoDatabase) {
				t.Errorf("Open(%s) error = %v, want GEO_DATABASE_ERROR", path, err)
			}
		})
	}
}

func TestTableConcurrentResolve(t *testing.T) {
	tbl := mustTable(t, sampleTable)
	ip := netip.MustParseAddr("1.2.3.4")
	want := tbl.Resolve(ip)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				if got := tbl.Resolve(ip); got != want {
					t.Errorf("concurrent Resolve() = %+v, want %+v", got, want)
					return
				}
			}
		}()
	}
	wg.Wait()
}
