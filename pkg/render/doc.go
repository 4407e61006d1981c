// Package render groups the packages that turn located relays into the
// relay map.
//
// # Overview
//
// Rendering happens in two steps, each in its own subpackage:
//
//   - [aggregate]: projects located relays onto the canvas, snaps them to a
//     grid and merges relays that share a cell into one marker per role.
//   - [svg]: draws the markers, the land outline and the summary panels as a
//     self-contained SVG document.
//
// The land outline comes from [basemap], which embeds a coarse world outline
// and can load any GeoJSON polygon file instead.
//
// # Usage
//
//	markers := aggregate.Aggregate(located, aggregate.Options{Snap: 1})
//	doc := svg.Render(markers,
//	    svg.WithBaseMap(basemap.Default()),
//	    svg.WithTotals(aggregate.Count(located)),
//	)
//
// Rendering is deterministic: the same markers and options always produce
// byte-identical output, so an unchanged relay population leaves map.svg
// unchanged between runs.
//
// [aggregate]: github.com/matzehuels/relaymap/pkg/render/aggregate
// [svg]: github.com/matzehuels/relaymap/pkg/render/svg
// [basemap]: github.com/matzehuels/relaymap/pkg/render/basemap
package render
