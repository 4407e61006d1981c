// Package pipeline provides the relay acquisition pipeline for relaymap.
//
// One run fetches the running relays from the directory, writes the
// per-role CSV listings, resolves every relay to a location and renders the
// network map. The CLI drives it once per invocation; an external scheduler
// decides how often.
//
// # Architecture
//
// The pipeline consists of these stages:
//
//  1. Fetch: page through the directory's details document
//  2. Normalize: validate, classify and deduplicate relays
//  3. Locate: resolve addresses through the offline geolocation database
//  4. Aggregate: group relays that project onto the same map cell
//  5. Render: draw the SVG map
//  6. Write: stage every output and rename them into place together
//
// A fetch failure ends the run before anything is written, so the previous
// outputs stay in place. A geolocation database failure only costs the map:
// the CSV listings are still committed and the error is returned alongside
// the result.
//
// # Usage
//
//	runner := pipeline.NewRunner(cache, logger)
//	result, err := runner.Execute(ctx, pipeline.Options{
//	    OutputDir: "out",
//	    GeoDB:     "GeoLite2-City.mmdb",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Stats.Relays, "relays")
package pipeline

import (
	"io"
	"runtime"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/relaymap/pkg/errors"
	"github.com/matzehuels/relaymap/pkg/onionoo"
	"github.com/matzehuels/relaymap/pkg/render/aggregate"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI and Config
// =============================================================================

const (
	// DefaultOutputDir is where the listings and the map are written.
	DefaultOutputDir = "."

	// DefaultGeoDB is the geolocation database path, relative to the working
	// directory.
	DefaultGeoDB = "GeoLite2-City.mmdb"

	// DefaultEndpoint is the directory base URL.
	DefaultEndpoint = onionoo.DefaultBaseURL

	// DefaultPageSize is the number of relays requested per page.
	DefaultPageSize = onionoo.DefaultPageSize

	// DefaultTimeout bounds each directory request.
	DefaultTimeout = onionoo.DefaultTimeout

	// DefaultRequestsPerSecond paces directory requests.
	DefaultRequestsPerSecond = onionoo.DefaultRequestsPerSecond

	// DefaultMaxAttempts is the number of attempts per page for transient
	// failures.
	DefaultMaxAttempts = 4

	// DefaultSnap is the marker grid cell size in pixels.
	DefaultSnap = aggregate.DefaultSnap

	// DefaultWidth is the map width in pixels.
	DefaultWidth = aggregate.DefaultWidth

	// DefaultHeight is the map height in pixels.
	DefaultHeight = aggregate.DefaultHeight

	// DefaultTopCountries is the number of rows in the countries panel.
	DefaultTopCountries = 10

	// MaxSnap bounds the marker grid; coarser grids collapse continents.
	MaxSnap = 100.0

	// MapFile is the name of the rendered map in the output directory.
	MapFile = "map.svg"
)

// =============================================================================
// Options - Pipeline Configuration
// =============================================================================

// Options contains all configuration for a pipeline run.
// This struct supports TOML decoding for the config file.
type Options struct {
	// Fetch options
	Endpoint          string        `toml:"endpoint"`
	PageSize          int           `toml:"page_size"` // negative fetches everything in one request
	Timeout           time.Duration `toml:"timeout"`
	RequestsPerSecond float64       `toml:"requests_per_second"`
	MaxAttempts       int           `toml:"max_attempts"`

	// Geolocation options
	GeoDB   string `toml:"geoip_db"`
	Workers int    `toml:"workers"` // parallel lookups; zero means GOMAXPROCS

	// Map options
	BaseMap      string  `toml:"basemap"` // GeoJSON land polygons; empty uses the embedded map
	Snap         float64 `toml:"snap"`
	Width        float64 `toml:"width"`
	Height       float64 `toml:"height"`
	TopCountries int     `toml:"top_countries"`
	NoMap        bool    `toml:"no_map"`

	// Output options
	OutputDir string `toml:"output_dir"`

	// Runtime options (not decoded)
	Logger *log.Logger `toml:"-"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool
}

// Result contains the outputs of a pipeline run.
type Result struct {
	// Files lists the committed output paths in write order.
	Files []string

	// Markers are the aggregated map markers; nil when no map was drawn.
	Markers []aggregate.Marker

	// Totals counts relays by role and geolocation outcome.
	Totals aggregate.Totals

	// Countries is the top-countries panel content.
	Countries []aggregate.CountryCount

	// Stats contains counts and timings.
	Stats Stats
}

// Stats contains pipeline execution statistics.
type Stats struct {
	Fetched    int // relay objects served by the directory
	Relays     int // running, valid, unique relays
	Malformed  int
	NotRunning int
	Duplicates int
	Guards     int
	Exits      int
	Middles    int

	FetchTime  time.Duration
	LocateTime time.Duration
	RenderTime time.Duration
	WriteTime  time.Duration
}

// =============================================================================
// Options Methods
// =============================================================================

// ValidateAndSetDefaults checks ranges and applies defaults.
// This method is idempotent - calling it multiple times has the same effect as calling it once.
// Errors carry [errors.ErrCodeInvalidConfig].
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	o.setDefaults()
	if err := o.validate(); err != nil {
		return err
	}
	o.validated = true
	return nil
}

func (o *Options) setDefaults() {
	if o.Endpoint == "" {
		o.Endpoint = DefaultEndpoint
	}
	if o.PageSize == 0 {
		o.PageSize = DefaultPageSize
	}
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	if o.RequestsPerSecond == 0 {
		o.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if o.MaxAttempts == 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.GeoDB == "" {
		o.GeoDB = DefaultGeoDB
	}
	if o.Workers == 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.Snap == 0 {
		o.Snap = DefaultSnap
	}
	if o.Width == 0 {
		o.Width = DefaultWidth
	}
	if o.Height == 0 {
		o.Height = DefaultHeight
	}
	if o.TopCountries == 0 {
		o.TopCountries = DefaultTopCountries
	}
	if o.OutputDir == "" {
		o.OutputDir = DefaultOutputDir
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
}

func (o *Options) validate() error {
	if err := errors.ValidateURL(o.Endpoint); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "endpoint")
	}
	if err := errors.ValidatePath(o.OutputDir); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "output_dir")
	}
	switch {
	case o.Timeout < 0:
		return errors.New(errors.ErrCodeInvalidConfig, "timeout must not be negative, got %s", o.Timeout)
	case o.RequestsPerSecond < 0:
		return errors.New(errors.ErrCodeInvalidConfig, "requests_per_second must not be negative, got %g", o.RequestsPerSecond)
	case o.MaxAttempts < 0:
		return errors.New(errors.ErrCodeInvalidConfig, "max_attempts must not be negative, got %d", o.MaxAttempts)
	case o.Workers < 0:
		return errors.New(errors.ErrCodeInvalidConfig, "workers must not be negative, got %d", o.Workers)
	case o.Snap < 0 || o.Snap > MaxSnap:
		return errors.New(errors.ErrCodeInvalidConfig, "snap must be between 0 and %g, got %g", MaxSnap, o.Snap)
	case o.Width < 0 || o.Height < 0:
		return errors.New(errors.ErrCodeInvalidConfig, "map size must not be negative, got %gx%g", o.Width, o.Height)
	case o.TopCountries < 0:
		return errors.New(errors.ErrCodeInvalidConfig, "top_countries must not be negative, got %d", o.TopCountries)
	}
	return nil
}
