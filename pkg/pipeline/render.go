package pipeline

import (
	"github.com/matzehuels/relaymap/pkg/render/aggregate"
	"github.com/matzehuels/relaymap/pkg/render/basemap"
	"github.com/matzehuels/relaymap/pkg/render/svg"
)

// RenderMap draws the network map from aggregated markers.
// A nil land map draws the ocean and graticule only.
func RenderMap(markers []aggregate.Marker, land *basemap.Map, totals aggregate.Totals, countries []aggregate.CountryCount, opts Options) []byte {
	width, height := opts.Width, opts.Height
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	return svg.Render(markers,
		svg.WithSize(width, height),
		svg.WithBaseMap(land),
		svg.WithTotals(totals),
		svg.WithCountries(countries),
	)
}
