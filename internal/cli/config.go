package cli

import (
	stderrors "errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/matzehuels/relaymap/pkg/errors"
	"github.com/matzehuels/relaymap/pkg/pipeline"
)

// config is everything one run needs: the pipeline options plus the settings
// that only the CLI acts on.
type config struct {
	pipeline.Options

	MetricsFile string `toml:"metrics_file"`
	CacheDir    string `toml:"cache_dir"`
	NoCache     bool   `toml:"no_cache"`
}

// envLookup returns the value of an environment variable and whether it is
// set.
type envLookup func(key string) (string, bool)

// newEnv returns a lookup that prefers the process environment and falls
// back to the dotenv file at path. A missing dotenv file is not an error.
func newEnv(path string) (envLookup, error) {
	dotenv, err := godotenv.Read(path)
	if err != nil {
		if !stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read %s", path)
		}
		dotenv = map[string]string{}
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}, nil
}

// loadConfigFile decodes the TOML file at path into cfg. When explicit is
// false a missing file is skipped. Keys relaymap does not know are returned
// so the caller can warn about them.
func loadConfigFile(path string, explicit bool, cfg *config) ([]string, error) {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if !explicit && stderrors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "load config %s", path)
	}
	var unknown []string
	for _, key := range md.Undecoded() {
		unknown = append(unknown, key.String())
	}
	return unknown, nil
}

// envVar binds one RELAYMAP_* variable to a config field.
type envVar struct {
	name string
	set  func(cfg *config, v string) error
}

var envVars = []envVar{
	{"OUTPUT_DIR", func(c *config, v string) error { c.OutputDir = v; return nil }},
	{"GEOIP_DB", func(c *config, v string) error { c.GeoDB = v; return nil }},
	{"BASEMAP", func(c *config, v string) error { c.BaseMap = v; return nil }},
	{"ENDPOINT", func(c *config, v string) error { c.Endpoint = v; return nil }},
	{"PAGE_SIZE", func(c *config, v string) error { return parseInt(v, &c.PageSize) }},
	{"SNAP", func(c *config, v string) error { return parseFloat(v, &c.Snap) }},
	{"TIMEOUT", func(c *config, v string) error { return parseDuration(v, &c.Timeout) }},
	{"WORKERS", func(c *config, v string) error { return parseInt(v, &c.Workers) }},
	{"NO_MAP", func(c *config, v string) error { return parseBool(v, &c.NoMap) }},
	{"METRICS_FILE", func(c *config, v string) error { c.MetricsFile = v; return nil }},
	{"CACHE_DIR", func(c *config, v string) error { c.CacheDir = v; return nil }},
	{"NO_CACHE", func(c *config, v string) error { return parseBool(v, &c.NoCache) }},
}

// applyEnv overrides cfg with every RELAYMAP_* variable that is set.
func applyEnv(cfg *config, lookup envLookup) error {
	for _, ev := range envVars {
		key := envPrefix + ev.name
		v, ok := lookup(key)
		if !ok {
			continue
		}
		if err := ev.set(cfg, strings.TrimSpace(v)); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "%s", key)
		}
	}
	return nil
}

func parseInt(s string, dst *int) error {
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func parseFloat(s string, dst *float64) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func parseBool(s string, dst *bool) error {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func parseDuration(s string, dst *time.Duration) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}
