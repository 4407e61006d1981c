package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/relaymap/pkg/errors"
	"github.com/matzehuels/relaymap/pkg/observability"
	"github.com/matzehuels/relaymap/pkg/pipeline"
)

// runFlags holds the values of the run command's flags. Only flags the user
// set override the config file and the environment.
type runFlags struct {
	config       string
	outputDir    string
	geoDB        string
	baseMap      string
	endpoint     string
	pageSize     int
	snap         float64
	width        float64
	height       float64
	topCountries int
	noMap        bool
	noCache      bool
	metricsFile  string
}

// runCommand creates the run command.
func (c *CLI) runCommand() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch relays, write the listings and draw the map once",
		Long: `Fetch the running relays, write the listings and draw the map once.

Settings are layered: built-in defaults, then relaymap.toml (or --config),
then RELAYMAP_* environment variables (a .env file is read if present), then
flags.

If the directory cannot be fetched no output is touched. If the geolocation
database is missing or corrupt the listings are still written, the map is
skipped and the command exits non-zero.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd, &f)
			if err != nil {
				return err
			}
			return c.run(cmd.Context(), cfg)
		},
	}

	f.bind(cmd)
	return cmd
}

// bind registers the run flags on cmd.
func (f *runFlags) bind(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.config, "config", "", "config file (default ./"+defaultConfigFile+" if present)")
	flags.StringVarP(&f.outputDir, "output-dir", "o", pipeline.DefaultOutputDir, "directory for the listings and the map")
	flags.StringVar(&f.geoDB, "geoip-db", pipeline.DefaultGeoDB, "geolocation database (.mmdb or .csv, optionally gzipped)")
	flags.StringVar(&f.baseMap, "basemap", "", "GeoJSON land polygons (default: embedded world outline)")
	flags.StringVar(&f.endpoint, "endpoint", pipeline.DefaultEndpoint, "Onionoo base URL")
	flags.IntVar(&f.pageSize, "page-size", pipeline.DefaultPageSize, "relays per directory request; negative disables paging")
	flags.Float64Var(&f.snap, "snap", pipeline.DefaultSnap, "marker grid cell size in pixels")
	flags.Float64Var(&f.width, "width", pipeline.DefaultWidth, "map width in pixels")
	flags.Float64Var(&f.height, "height", pipeline.DefaultHeight, "map height in pixels")
	flags.IntVar(&f.topCountries, "top-countries", pipeline.DefaultTopCountries, "rows in the top-countries panel")
	flags.BoolVar(&f.noMap, "no-map", false, "write the listings only")
	flags.BoolVar(&f.noCache, "no-cache", false, "disable conditional requests")
	flags.StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics to this file (textfile collector format)")
}

// loadConfig layers the config file, the environment and the flags.
func (c *CLI) loadConfig(cmd *cobra.Command, f *runFlags) (config, error) {
	var cfg config

	path, explicit := f.config, f.config != ""
	if !explicit {
		path = defaultConfigFile
	}
	unknown, err := loadConfigFile(path, explicit, &cfg)
	if err != nil {
		return cfg, err
	}
	for _, key := range unknown {
		c.Logger.Warn("ignoring unknown config key", "file", path, "key", key)
	}

	env, err := newEnv(defaultDotEnv)
	if err != nil {
		return cfg, err
	}
	if err := applyEnv(&cfg, env); err != nil {
		return cfg, err
	}

	applyFlags(cmd, f, &cfg)
	return cfg, nil
}

// applyFlags copies the flags the user set into cfg.
func applyFlags(cmd *cobra.Command, f *runFlags, cfg *config) {
	changed := cmd.Flags().Changed
	if changed("output-dir") {
		cfg.OutputDir = f.outputDir
	}
	if changed("geoip-db") {
		cfg.GeoDB = f.geoDB
	}
	if changed("basemap") {
		cfg.BaseMap = f.baseMap
	}
	if changed("endpoint") {
		cfg.Endpoint = f.endpoint
	}
	if changed("page-size") {
		cfg.PageSize = f.pageSize
	}
	if changed("snap") {
		cfg.Snap = f.snap
	}
	if changed("width") {
		cfg.Width = f.width
	}
	if changed("height") {
		cfg.Height = f.height
	}
	if changed("top-countries") {
		cfg.TopCountries = f.topCountries
	}
	if changed("no-map") {
		cfg.NoMap = f.noMap
	}
	if changed("no-cache") {
		cfg.NoCache = f.noCache
	}
	if changed("metrics-file") {
		cfg.MetricsFile = f.metricsFile
	}
}

// run executes one pipeline run and prints its summary.
func (c *CLI) run(ctx context.Context, cfg config) error {
	logger, runID := runLogger(c.Logger)
	ctx = withLogger(ctx, logger)

	var metrics *observability.Metrics
	if cfg.MetricsFile != "" {
		metrics = observability.NewMetrics()
		observability.SetPipelineHooks(metrics)
		observability.SetCacheHooks(metrics)
		observability.SetHTTPHooks(metrics)
		defer observability.Reset()
	}

	respCache := c.newCache(cfg.NoCache, cfg.CacheDir)
	defer respCache.Close()

	runner := pipeline.NewRunner(respCache, logger)
	cfg.Logger = logger
	logger.Debug("starting run", "id", runID, "endpoint", cfg.Endpoint, "output_dir", cfg.OutputDir)

	prog := newProgress(loggerFromContext(ctx))
	result, err := runner.Execute(ctx, cfg.Options)

	if metrics != nil {
		if werr := metrics.WriteTextfile(cfg.MetricsFile); werr != nil {
			logger.Error("writing metrics failed", "path", cfg.MetricsFile, "err", werr)
			if err == nil {
				err = errors.Wrap(errors.ErrCodeWrite, werr, "write metrics %s", cfg.MetricsFile)
			}
		}
	}

	if result != nil {
		printResult(result)
	}
	if err != nil {
		if errors.Is(err, errors.ErrCodeGeoDatabase) {
			printWarning("Map skipped: %s", errors.UserMessage(err))
		}
		return fmt.Errorf("run %s: %w", runID[:8], err)
	}
	prog.done("Run complete")
	return nil
}
