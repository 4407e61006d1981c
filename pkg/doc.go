// Package pkg provides the libraries behind relaymap, a Tor relay
// acquisition and geolocation pipeline.
//
// # Overview
//
// relaymap fetches the running relays from an Onionoo directory, classifies
// them as guards, exits and middles, writes one CSV listing per role and
// draws the relays on a world map. The pkg directory is organized by stage:
//
//  1. [onionoo] - Directory client (paging, retries, conditional requests)
//  2. [relay] - Relay records, validation and role classification
//  3. [geo] - Offline IP geolocation (MaxMind databases or CSV range tables)
//  4. [render] - Marker aggregation, base map and SVG drawing
//  5. [output] - CSV listings and atomic multi-file commits
//  6. [pipeline] - Orchestration of one run
//
// Supporting packages:
//
//   - [cache] - Response cache for conditional directory requests
//   - [httputil] - Retry policy and rate limiting for HTTP clients
//   - [observability] - Stage hooks and Prometheus textfile metrics
//   - [errors] - Coded errors with user-facing messages
//   - [buildinfo] - Version metadata and User-Agent
//
// # Architecture
//
// One run flows through these stages:
//
//	Onionoo /details
//	         ↓
//	    [onionoo] fetch (paged, retried)
//	         ↓
//	    [relay] normalize + classify
//	         ↓
//	    [output] all.csv, guards.csv, exits.csv
//	         ↓
//	    [geo] locate → [render] aggregate + draw
//	         ↓
//	    map.svg
//
// All outputs are staged in the output directory and renamed into place at
// the end of the run, so a failed fetch leaves the previous outputs untouched.
//
// # Quick Start
//
//	runner := pipeline.NewRunner(cache.NewNullCache(), nil)
//	result, err := runner.Execute(ctx, pipeline.Options{
//	    OutputDir: "out",
//	    GeoDB:     "GeoLite2-City.mmdb",
//	})
//	if err != nil {
//	    return err
//	}
//	fmt.Println(result.Files)
//
// [onionoo]: github.com/matzehuels/relaymap/pkg/onionoo
// [relay]: github.com/matzehuels/relaymap/pkg/relay
// [geo]: github.com/matzehuels/relaymap/pkg/geo
// [render]: github.com/matzehuels/relaymap/pkg/render
// [output]: github.com/matzehuels/relaymap/pkg/output
// [pipeline]: github.com/matzehuels/relaymap/pkg/pipeline
// [cache]: github.com/matzehuels/relaymap/pkg/cache
// [httputil]: github.com/matzehuels/relaymap/pkg/httputil
// [observability]: github.com/matzehuels/relaymap/pkg/observability
// [errors]: github.com/matzehuels/relaymap/pkg/errors
// [buildinfo]: github.com/matzehuels/relaymap/pkg/buildinfo
package pkg
