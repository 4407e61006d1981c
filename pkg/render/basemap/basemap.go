// Package basemap provides the land outlines drawn under the relay markers.
//
// A coarse world outline is embedded in the binary so a map can always be
// drawn offline. A more detailed GeoJSON file, such as Natural Earth's
// ne_110m_land, can be loaded instead with [Load].
//
// Only Polygon and MultiPolygon geometries are used; other geometry types in
// the collection are ignored.
package basemap

import (
	_ "embed"
	"fmt"
	"os"

	geojson "github.com/paulmach/go.geojson"
)

//go:embed world.geojson
var worldGeoJSON []byte

// Point is a longitude/latitude pair in degrees, in GeoJSON order.
type Point struct {
	Lon, Lat float64
}

// Polygon is an outer ring followed by any holes. Rings are closed: the last
// point repeats the first.
type Polygon [][]Point

// Map is a set of land polygons.
type Map struct {
	Polygons []Polygon
}

// Default returns the embedded world outline.
func Default() *Map {
	m, err := Parse(worldGeoJSON)
	if err != nil {
		panic(fmt.Sprintf("basemap: embedded world outline: %v", err))
	}
	return m
}

// Load reads a GeoJSON FeatureCollection from path.
func Load(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes a GeoJSON FeatureCollection. Rings with fewer than three
// points are dropped, and coordinates beyond [-180, 180] × [-90, 90] are
// clamped. A collection without any polygon is an error.
func Parse(data []byte) (*Map, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse base map: %w", err)
	}

	m := &Map{}
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		switch {
		case f.Geometry.IsPolygon():
			m.add(f.Geometry.Polygon)
		case f.Geometry.IsMultiPolygon():
			for _, poly := range f.Geometry.MultiPolygon {
				m.add(poly)
			}
		}
	}
	if len(m.Polygons) == 0 {
		return nil, fmt.Errorf("parse base map: no polygons")
	}
	return m, nil
}

func (m *Map) add(rings [][][]float64) {
	var poly Polygon
	for i, ring := range rings {
		pts := make([]Point, 0, len(ring)+1)
		for _, c := range ring {
			if len(c) < 2 {
				continue
			}
			pts = append(pts, Point{Lon: clamp(c[0], 180), Lat: clamp(c[1], 90)})
		}
		if len(pts) < 3 {
			if i == 0 {
				// no outer ring, nothing to draw
				return
			}
			continue
		}
		if pts[0] != pts[len(pts)-1] {
			pts = append(pts, pts[0])
		}
		poly = append(poly, pts)
	}
	if len(poly) > 0 {
		m.Polygons = append(m.Polygons, poly)
	}
}

func clamp(v, limit float64) float64 {
	return min(max(v, -limit), limit)
}
