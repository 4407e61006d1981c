// Package aggregate projects located relays onto the map canvas and merges
// relays that land on the same spot into one marker.
//
// Projection is equirectangular: longitude maps linearly to x and latitude
// to y, with the north pole at the top edge. Projected points are snapped to
// a square grid whose cell size is [Options.Snap] pixels; every relay in a
// cell contributes to the cell's single [Marker]. Because grouping depends
// only on the cell key, the result does not depend on input order.
package aggregate

import (
	"cmp"
	"math"
	"slices"

	"github.com/matzehuels/relaymap/pkg/geo"
	"github.com/matzehuels/relaymap/pkg/relay"
)

// Canvas and snap defaults.
const (
	DefaultWidth  = 1200.0
	DefaultHeight = 600.0
	DefaultSnap   = 1.0
)

// Located is a classified relay with its resolved position.
type Located struct {
	Role    relay.Role
	Point   geo.Point
	Country string // lower-case ISO code, empty if unknown
}

// Options controls projection and grouping. Zero fields take the defaults.
type Options struct {
	Width  float64
	Height float64
	Snap   float64 // grid cell size in pixels
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Snap <= 0 {
		o.Snap = DefaultSnap
	}
	return o
}

// Marker is one drawn circle. Role is the dominant role among the relays in
// the cell. A relay that is both Guard and Exit counts once in Count and
// once in each of Guards and Exits.
type Marker struct {
	X, Y    float64
	Role    relay.Role
	Count   int
	Guards  int
	Exits   int
	Middles int
}

// Project maps a coordinate in degrees onto a width×height canvas.
func Project(lat, lon, width, height float64) (x, y float64) {
	x = (lon + 180) / 360 * width
	y = (90 - lat) / 180 * height
	return x, y
}

type cell struct{ x, y int64 }

// Aggregate groups the resolved points into markers ordered for drawing:
// by role precedence (Middle, Guard, Exit) and then by x and y, so exit
// markers are painted last. Unresolved points are skipped.
func Aggregate(points []Located, opts Options) []Marker {
	opts = opts.withDefaults()

	type group struct {
		roles  relay.Role
		marker Marker
	}
	groups := make(map[cell]*group)

	for _, p := range points {
		if !p.Point.Resolved {
			continue
		}
		x, y := Project(p.Point.Lat, p.Point.Lon, opts.Width, opts.Height)
		key := cell{int64(math.Round(x / opts.Snap)), int64(math.Round(y / opts.Snap))}

		g, ok := groups[key]
		if !ok {
			g = &group{marker: Marker{X: float64(key.x) * opts.Snap, Y: float64(key.y) * opts.Snap}}
			groups[key] = g
		}
		g.roles |= p.Role
		g.marker.Count++
		if p.Role.Has(relay.Guard) {
			g.marker.Guards++
		}
		if p.Role.Has(relay.Exit) {
			g.marker.Exits++
		}
		if p.Role.Has(relay.Middle) {
			g.marker.Middles++
		}
	}

	markers := make([]Marker, 0, len(groups))
	for _, g := range groups {
		g.marker.Role = g.roles.Dominant()
		markers = append(markers, g.marker)
	}
	slices.SortFunc(markers, compareMarkers)
	return markers
}

func compareMarkers(a, b Marker) int {
	return cmp.Or(
		cmp.Compare(a.Role.Precedence(), b.Role.Precedence()),
		cmp.Compare(a.X, b.X),
		cmp.Compare(a.Y, b.Y),
	)
}
