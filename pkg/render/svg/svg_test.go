package svg

import (
	"bytes"
	"encoding/xml"
	"io"
	"regexp"
	"strings"
	"testing"

	"github.com/matzehuels/relaymap/pkg/relay"
	"github.com/matzehuels/relaymap/pkg/render/aggregate"
	"github.com/matzehuels/relaymap/pkg/render/basemap"
)

var testMarkers = []aggregate.Marker{
	{X: 600, Y: 300, Role: relay.Middle, Count: 1, Middles: 1},
	{X: 250, Y: 120, Role: relay.Guard, Count: 6, Guards: 6},
	{X: 100, Y: 50, Role: relay.Exit, Count: 2, Guards: 1, Exits: 1},
}

func renderFull() []byte {
	return Render(testMarkers,
		WithBaseMap(basemap.Default()),
		WithTotals(aggregate.Totals{Relays: 9, Guards: 7, Exits: 1, Middles: 1, Resolved: 9}),
		WithCountries([]aggregate.CountryCount{{Country: "de", Count: 5}, {Country: "us", Count: 4}}),
	)
}

func TestRenderDeterministic(t *testing.T) {
	a, b := renderFull(), renderFull()
	if !bytes.Equal(a, b) {
		t.Error("Render() output differs between identical calls")
	}
}

func TestRenderWellFormed(t *testing.T) {
	dec := xml.NewDecoder(bytes.NewReader(renderFull()))
	for {
		_, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("invalid XML: %v", err)
		}
	}
}

func TestRenderSelfContained(t *testing.T) {
	out := string(renderFull())
	for _, ref := range []string{"href", "url(", "@import", "<image", "<script"} {
		if strings.Contains(out, ref) {
			t.Errorf("output contains external reference %q", ref)
		}
	}
	if strings.Count(out, "http") != 1 {
		t.Error("only the SVG namespace may mention http")
	}
}

func TestRenderMarkers(t *testing.T) {
	out := string(Render(testMarkers))

	re := regexp.MustCompile(`<circle class="relay (\w+)" cx="([\d.]+)" cy="([\d.]+)" r="([\d.]+)" data-count="(\d+)">`)
	got := re.FindAllStringSubmatch(out, -1)
	if len(got) != 3 {
		t.Fatalf("found %d markers, want 3", len(got))
	}

	want := [][]string{
		{"middle", "600.0", "300.0", "3.00", "1"},
		{"guard", "250.0", "120.0", "6.58", "6"},
		{"exit", "100.0", "50.0", "5.00", "2"},
	}
	for i, w := range want {
		if !equal(got[i][1:], w) {
			t.Errorf("marker %d = %v, want %v", i, got[i][1:], w)
		}
	}
	if !strings.Contains(out, "<title>2 relays (guard 1, exit 1, middle 0)</title>") {
		t.Error("marker title missing")
	}
	if !strings.Contains(out, "<title>1 relay (guard 0, exit 0, middle 1)</title>") {
		t.Error("singular marker title missing")
	}
}

func TestRenderPanels(t *testing.T) {
	out := string(renderFull())
	for _, want := range []string{
		`<g class="legend"`,
		">Exit</text>",
		">Guard</text>",
		">Middle</text>",
		"9 relays / 7 guards / 1 exits / 1 middles",
		">Top countries</text>",
		">DE</text>",
		">US</text>",
		`<g class="land">`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if strings.Index(out, ">DE</text>") > strings.Index(out, ">US</text>") {
		t.Error("countries not in the given order")
	}

	bare := string(Render(nil))
	if strings.Contains(bare, "Top countries") || strings.Contains(bare, `class="land"`) {
		t.Error("optional panels drawn without data")
	}
}

func TestRenderGraticule(t *testing.T) {
	out := string(Render(nil, WithSize(360, 180)))
	start := strings.Index(out, `<g class="graticule">`)
	end := strings.Index(out[start:], "</g>")
	lines := strings.Count(out[start:start+end], "<line ")
	if lines != 16 {
		t.Errorf("graticule has %d lines, want 16", lines)
	}
	if !strings.Contains(out, `<line x1="30.0" y1="0.0" x2="30.0" y2="180.0"/>`) {
		t.Error("expected meridian at -150 degrees")
	}
	if !strings.Contains(out, `viewBox="0 0 360 180"`) {
		t.Error("custom size not applied")
	}
}

func TestRadius(t *testing.T) {
	tests := []struct {
		role  relay.Role
		count int
		want  float64
	}{
		{relay.Middle, 1, 3},
		{relay.Guard, 1, 4},
		{relay.Exit, 4, 6},
		{relay.Exit, 16, 8},
		{relay.Middle, 1000, 7},
		{relay.Middle, 0, 3},
	}
	for _, tt := range tests {
		if got := Radius(aggregate.Marker{Role: tt.role, Count: tt.count}); got != tt.want {
			t.Errorf("Radius(%v, %d) = %v, want %v", tt.role, tt.count, got, tt.want)
		}
	}
}

func TestEscape(t *testing.T) {
	out := string(Render(nil, WithTitle(`relays <&> "map"`)))
	if !strings.Contains(out, "<title>relays &lt;&amp;&gt; &#34;map&#34;</title>") {
		t.Error("title not escaped")
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
