package pipeline

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/relaymap/pkg/buildinfo"
	"github.com/matzehuels/relaymap/pkg/cache"
	"github.com/matzehuels/relaymap/pkg/errors"
	"github.com/matzehuels/relaymap/pkg/httputil"
	"github.com/matzehuels/relaymap/pkg/observability"
	"github.com/matzehuels/relaymap/pkg/onionoo"
	"github.com/matzehuels/relaymap/pkg/output"
	"github.com/matzehuels/relaymap/pkg/relay"
	"github.com/matzehuels/relaymap/pkg/render/aggregate"
	"github.com/matzehuels/relaymap/pkg/render/basemap"
)

// Runner encapsulates pipeline execution with caching.
//
// The Runner is stateless except for the cache and logger - it doesn't
// store pipeline results. Concurrent runs must use different output
// directories.
type Runner struct {
	Cache  cache.Cache
	Logger *log.Logger

	// HTTPClient is used for directory requests; nil uses a default client.
	HTTPClient *http.Client
}

// NewRunner creates a runner with the given cache.
// If cache is nil, a NullCache is used (conditional requests disabled).
func NewRunner(c cache.Cache, logger *log.Logger) *Runner {
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:  c,
		Logger: logger,
	}
}

// Execute runs one complete pipeline.
//
// On a fetch, config or write error nothing is written and the result is nil.
// On a geolocation database error the listings are committed, the map is
// skipped, and both the result and the error are returned.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	hooks := observability.Pipeline()

	// The base map is configuration; a bad path fails before any request.
	var land *basemap.Map
	if !opts.NoMap {
		var err error
		if land, err = loadBaseMap(opts.BaseMap); err != nil {
			return nil, err
		}
	}

	result := &Result{}

	// Stage 1: Fetch
	fetchStart := time.Now()
	raws, err := r.fetch(ctx, opts)
	result.Stats.FetchTime = time.Since(fetchStart)
	if err != nil {
		return nil, err
	}
	result.Stats.Fetched = len(raws)
	logger.Info("fetched relays", "count", len(raws), "duration", result.Stats.FetchTime)

	// Stage 2: Normalize
	hooks.OnStageStart(ctx, observability.StageNormalize)
	normStart := time.Now()
	records, nstats := relay.Normalize(raws, logger)
	hooks.OnStageComplete(ctx, observability.StageNormalize, len(records), time.Since(normStart), nil)
	result.Stats.Relays = len(records)
	result.Stats.Malformed = nstats.Malformed
	result.Stats.NotRunning = nstats.NotRunning
	result.Stats.Duplicates = nstats.Duplicates
	for _, rec := range records {
		role := relay.Classify(rec)
		if role.Has(relay.Guard) {
			result.Stats.Guards++
		}
		if role.Has(relay.Exit) {
			result.Stats.Exits++
		}
		if role.Has(relay.Middle) {
			result.Stats.Middles++
		}
	}
	logger.Info("classified relays",
		"relays", len(records),
		"guards", result.Stats.Guards,
		"exits", result.Stats.Exits,
		"middles", result.Stats.Middles,
		"dropped", nstats.Malformed+nstats.NotRunning+nstats.Duplicates)

	batch, err := output.NewBatch(opts.OutputDir)
	if err != nil {
		return nil, err
	}
	defer batch.Abort()

	// Stages 3-5: Locate, Aggregate, Render. A geolocation database failure
	// is kept aside so the listings still go out.
	var mapErr error
	if !opts.NoMap {
		mapErr = r.renderMap(ctx, opts, records, land, batch, result)
		if mapErr != nil && !errors.Is(mapErr, errors.ErrCodeGeoDatabase) {
			return nil, mapErr
		}
		if mapErr != nil {
			logger.Error("skipping map", "err", mapErr)
		}
	}

	// The listings are staged after the map so all.csv is the last file
	// committed.
	for _, l := range output.Listings() {
		if err := batch.StageListing(l, records); err != nil {
			return nil, err
		}
	}

	// Stage 6: Write
	hooks.OnStageStart(ctx, observability.StageWrite)
	writeStart := time.Now()
	files := batch.Files()
	err = batch.Commit()
	result.Stats.WriteTime = time.Since(writeStart)
	hooks.OnStageComplete(ctx, observability.StageWrite, len(files), result.Stats.WriteTime, err)
	if err != nil {
		return nil, err
	}
	result.Files = files
	logger.Info("wrote outputs", "dir", opts.OutputDir, "files", len(files), "duration", result.Stats.WriteTime)

	hooks.OnRunComplete(ctx, observability.RunSummary{
		Relays:     result.Stats.Relays,
		Guards:     result.Stats.Guards,
		Exits:      result.Stats.Exits,
		Middles:    result.Stats.Middles,
		Resolved:   result.Totals.Resolved,
		Unresolved: result.Totals.Unresolved,
		Markers:    len(result.Markers),
	})
	return result, mapErr
}

// fetch pages through the directory.
func (r *Runner) fetch(ctx context.Context, opts Options) ([]relay.Raw, error) {
	hooks := observability.Pipeline()
	hooks.OnStageStart(ctx, observability.StageFetch)
	start := time.Now()

	policy := httputil.DefaultPolicy
	policy.MaxAttempts = opts.MaxAttempts
	client := onionoo.NewClient(onionoo.Config{
		BaseURL:           opts.Endpoint,
		PageSize:          opts.PageSize,
		Timeout:           opts.Timeout,
		RequestsPerSecond: opts.RequestsPerSecond,
		Policy:            policy,
		Cache:             r.Cache,
		UserAgent:         buildinfo.UserAgent(),
		HTTPClient:        r.HTTPClient,
		Logger:            opts.Logger,
	})
	raws, err := client.FetchRaw(ctx)
	hooks.OnStageComplete(ctx, observability.StageFetch, len(raws), time.Since(start), err)
	return raws, err
}

func loadBaseMap(path string) (*basemap.Map, error) {
	if path == "" {
		return basemap.Default(), nil
	}
	m, err := basemap.Load(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "load base map")
	}
	return m, nil
}

// renderMap locates records, draws the map and stages it. It fills the
// map-related fields of result.
func (r *Runner) renderMap(ctx context.Context, opts Options, records []relay.Record, land *basemap.Map, batch *output.Batch, result *Result) error {
	hooks := observability.Pipeline()
	logger := opts.Logger

	// Stage 3: Locate
	hooks.OnStageStart(ctx, observability.StageGeo)
	locateStart := time.Now()
	located, err := Locate(ctx, opts.GeoDB, records, opts.Workers)
	result.Stats.LocateTime = time.Since(locateStart)
	hooks.OnStageComplete(ctx, observability.StageGeo, len(located), result.Stats.LocateTime, err)
	if err != nil {
		return err
	}
	result.Totals = aggregate.Count(located)
	result.Countries = aggregate.TopCountries(located, opts.TopCountries)
	logger.Info("located relays",
		"resolved", result.Totals.Resolved,
		"unresolved", result.Totals.Unresolved,
		"duration", result.Stats.LocateTime)

	// Stage 4: Aggregate
	hooks.OnStageStart(ctx, observability.StageAggregate)
	aggStart := time.Now()
	result.Markers = aggregate.Aggregate(located, aggregate.Options{
		Width:  opts.Width,
		Height: opts.Height,
		Snap:   opts.Snap,
	})
	hooks.OnStageComplete(ctx, observability.StageAggregate, len(result.Markers), time.Since(aggStart), nil)

	// Stage 5: Render
	hooks.OnStageStart(ctx, observability.StageRender)
	renderStart := time.Now()
	doc := RenderMap(result.Markers, land, result.Totals, result.Countries, opts)
	err = batch.Stage(MapFile, doc)
	result.Stats.RenderTime = time.Since(renderStart)
	hooks.OnStageComplete(ctx, observability.StageRender, len(doc), result.Stats.RenderTime, err)
	if err != nil {
		return err
	}
	logger.Info("rendered map",
		"markers", len(result.Markers),
		"bytes", len(doc),
		"duration", result.Stats.RenderTime)
	return nil
}
