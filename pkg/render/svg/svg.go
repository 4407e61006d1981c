// Package svg renders aggregated relay markers as a self-contained SVG world
// map.
//
// The document contains, bottom to top: the ocean background, a graticule
// every 30 degrees, the base map land polygons, the relay markers, a legend
// with network totals and a top-countries panel. It references no external
// resources and carries no timestamps, and every number is printed with a
// fixed precision, so identical input always yields identical bytes.
//
//	markers := aggregate.Aggregate(points, aggregate.Options{})
//	doc := svg.Render(markers,
//	    svg.WithBaseMap(basemap.Default()),
//	    svg.WithTotals(aggregate.Count(points)),
//	    svg.WithCountries(aggregate.TopCountries(points, 10)),
//	)
package svg

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"math"

	"github.com/matzehuels/relaymap/pkg/relay"
	"github.com/matzehuels/relaymap/pkg/render/aggregate"
	"github.com/matzehuels/relaymap/pkg/render/basemap"
)

const (
	graticuleStep = 30.0
	fontFamily    = "Helvetica, Arial, sans-serif"
)

const mapCSS = `
    .ocean { fill: #0d1b2a; }
    .graticule { stroke: #1b2d44; stroke-width: 0.5; fill: none; }
    .land { fill: #23344a; stroke: #34506f; stroke-width: 0.6; fill-rule: evenodd; }
    .relay { stroke: #0d1b2a; stroke-width: 0.5; fill-opacity: 0.8; }
    .middle { fill: #8d99ae; }
    .guard { fill: #2ec4b6; }
    .exit { fill: #ff6b35; }
    .panel { fill: #0d1b2a; fill-opacity: 0.75; stroke: #34506f; }
    text { font-family: ` + fontFamily + `; fill: #e0e6ed; }
    .heading { font-size: 13px; font-weight: bold; }
    .label { font-size: 12px; }`

// Option configures [Render].
type Option func(*renderer)

type renderer struct {
	width, height float64
	title         string
	land          *basemap.Map
	totals        *aggregate.Totals
	countries     []aggregate.CountryCount
}

// WithSize sets the canvas size. It must match the size the markers were
// projected onto.
func WithSize(width, height float64) Option {
	return func(r *renderer) { r.width, r.height = width, height }
}

// WithBaseMap draws the land polygons of m.
func WithBaseMap(m *basemap.Map) Option { return func(r *renderer) { r.land = m } }

// WithTotals adds the totals line to the legend.
func WithTotals(t aggregate.Totals) Option { return func(r *renderer) { r.totals = &t } }

// WithCountries adds the top-countries panel. Entries are drawn in the
// given order.
func WithCountries(c []aggregate.CountryCount) Option {
	return func(r *renderer) { r.countries = c }
}

// WithTitle sets the document title.
func WithTitle(title string) Option { return func(r *renderer) { r.title = title } }

// Render draws markers in the given order, so later markers are painted on
// top of earlier ones.
func Render(markers []aggregate.Marker, opts ...Option) []byte {
	r := renderer{
		width:  aggregate.DefaultWidth,
		height: aggregate.DefaultHeight,
		title:  "Tor relay map",
	}
	for _, opt := range opts {
		opt(&r)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.0f %.0f" width="%.0f" height="%.0f">`+"\n",
		r.width, r.height, r.width, r.height)
	fmt.Fprintf(&buf, "  <title>%s</title>\n", escape(r.title))
	fmt.Fprintf(&buf, "  <style>%s\n  </style>\n", mapCSS)
	fmt.Fprintf(&buf, `  <rect class="ocean" x="0" y="0" width="%.0f" height="%.0f"/>`+"\n", r.width, r.height)

	r.renderGraticule(&buf)
	if r.land != nil {
		r.renderLand(&buf)
	}
	renderMarkers(&buf, markers)
	r.renderLegend(&buf)
	if len(r.countries) > 0 {
		r.renderCountries(&buf)
	}

	buf.WriteString("</svg>\n")
	return buf.Bytes()
}

func (r *renderer) project(lat, lon float64) (float64, float64) {
	return aggregate.Project(lat, lon, r.width, r.height)
}

func (r *renderer) renderGraticule(buf *bytes.Buffer) {
	buf.WriteString(`  <g class="graticule">` + "\n")
	for lon := -180 + graticuleStep; lon < 180; lon += graticuleStep {
		x, _ := r.project(0, lon)
		fmt.Fprintf(buf, `    <line x1="%.1f" y1="0.0" x2="%.1f" y2="%.1f"/>`+"\n", x, x, r.height)
	}
	for lat := -90 + graticuleStep; lat < 90; lat += graticuleStep {
		_, y := r.project(lat, 0)
		fmt.Fprintf(buf, `    <line x1="0.0" y1="%.1f" x2="%.1f" y2="%.1f"/>`+"\n", y, r.width, y)
	}
	buf.WriteString("  </g>\n")
}

func (r *renderer) renderLand(buf *bytes.Buffer) {
	buf.WriteString(`  <g class="land">` + "\n")
	for _, poly := range r.land.Polygons {
		buf.WriteString(`    <path d="`)
		for i, ring := range poly {
			if i > 0 {
				buf.WriteByte(' ')
			}
			for j, pt := range ring[:len(ring)-1] {
				x, y := r.project(pt.Lat, pt.Lon)
				if j == 0 {
					fmt.Fprintf(buf, "M%.1f %.1f", x, y)
				} else {
					fmt.Fprintf(buf, "L%.1f %.1f", x, y)
				}
			}
			buf.WriteByte('Z')
		}
		buf.WriteString(`"/>` + "\n")
	}
	buf.WriteString("  </g>\n")
}

func renderMarkers(buf *bytes.Buffer, markers []aggregate.Marker) {
	buf.WriteString(`  <g class="relays">` + "\n")
	for _, m := range markers {
		fmt.Fprintf(buf, `    <circle class="relay %s" cx="%.1f" cy="%.1f" r="%.2f" data-count="%d"><title>%s</title></circle>`+"\n",
			roleClass(m.Role), m.X, m.Y, Radius(m), m.Count, escape(markerTitle(m)))
	}
	buf.WriteString("  </g>\n")
}

// Radius returns the circle radius for m: 3 for middle markers and 4 for
// guard and exit markers, plus log2 of the relay count capped at 4.
func Radius(m aggregate.Marker) float64 {
	base := 3.0
	if m.Role != relay.Middle {
		base = 4.0
	}
	return base + math.Min(4, math.Log2(float64(max(m.Count, 1))))
}

func roleClass(r relay.Role) string {
	return r.Dominant().String()
}

func markerTitle(m aggregate.Marker) string {
	noun := "relays"
	if m.Count == 1 {
		noun = "relay"
	}
	return fmt.Sprintf("%d %s (guard %d, exit %d, middle %d)", m.Count, noun, m.Guards, m.Exits, m.Middles)
}

func escape(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
