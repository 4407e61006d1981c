package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/relaymap/pkg/errors"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "relaymap.toml", `
output_dir = "out"
geoip_db = "GeoLite2-City.mmdb.gz"
endpoint = "https://onionoo.example.org"
page_size = -1
snap = 2.5
timeout = "45s"
no_map = true
metrics_file = "relaymap.prom"
bogus = 1
`)

	var cfg config
	unknown, err := loadConfigFile(path, true, &cfg)
	if err != nil {
		t.Fatalf("loadConfigFile() error: %v", err)
	}
	if cfg.OutputDir != "out" || cfg.GeoDB != "GeoLite2-City.mmdb.gz" || cfg.Endpoint != "https://onionoo.example.org" {
		t.Errorf("paths = %q %q %q", cfg.OutputDir, cfg.GeoDB, cfg.Endpoint)
	}
	if cfg.PageSize != -1 || cfg.Snap != 2.5 || cfg.Timeout != 45*time.Second || !cfg.NoMap {
		t.Errorf("values = page_size %d, snap %v, timeout %v, no_map %v", cfg.PageSize, cfg.Snap, cfg.Timeout, cfg.NoMap)
	}
	if cfg.MetricsFile != "relaymap.prom" {
		t.Errorf("MetricsFile = %q", cfg.MetricsFile)
	}
	if len(unknown) != 1 || unknown[0] != "bogus" {
		t.Errorf("unknown keys = %v, want [bogus]", unknown)
	}
}

func TestLoadConfigFileMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relaymap.toml")

	var cfg config
	if _, err := loadConfigFile(path, false, &cfg); err != nil {
		t.Errorf("implicit missing config: %v", err)
	}
	if _, err := loadConfigFile(path, true, &cfg); !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("explicit missing config: error = %v, want INVALID_CONFIG", err)
	}
}

func TestLoadConfigFileMalformed(t *testing.T) {
	path := writeFile(t, t.TempDir(), "relaymap.toml", "snap = [\n")
	var cfg config
	if _, err := loadConfigFile(path, false, &cfg); !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("error = %v, want INVALID_CONFIG", err)
	}
}

func mapEnv(m map[string]string) envLookup {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := config{}
	cfg.OutputDir = "from-file"
	cfg.Snap = 2

	err := applyEnv(&cfg, mapEnv(map[string]string{
		"RELAYMAP_OUTPUT_DIR":   "from-env",
		"RELAYMAP_PAGE_SIZE":    "500",
		"RELAYMAP_NO_MAP":       "true",
		"RELAYMAP_TIMEOUT":      "10s",
		"RELAYMAP_METRICS_FILE": " m.prom ",
		"OUTPUT_DIR":            "ignored",
	}))
	if err != nil {
		t.Fatalf("applyEnv() error: %v", err)
	}
	if cfg.OutputDir != "from-env" || cfg.PageSize != 500 || !cfg.NoMap || cfg.Timeout != 10*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Snap != 2 {
		t.Errorf("unset variable overrode snap: %v", cfg.Snap)
	}
	if cfg.MetricsFile != "m.prom" {
		t.Errorf("MetricsFile = %q, want trimmed value", cfg.MetricsFile)
	}
}

func TestApplyEnvInvalid(t *testing.T) {
	tests := map[string]string{
		"RELAYMAP_PAGE_SIZE": "many",
		"RELAYMAP_SNAP":      "x",
		"RELAYMAP_NO_MAP":    "perhaps",
		"RELAYMAP_TIMEOUT":   "10",
		"RELAYMAP_WORKERS":   "1.5",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			var cfg config
			err := applyEnv(&cfg, mapEnv(map[string]string{key: value}))
			if !errors.Is(err, errors.ErrCodeInvalidConfig) {
				t.Fatalf("error = %v, want INVALID_CONFIG", err)
			}
			if !strings.Contains(err.Error(), key) {
				t.Errorf("error %q does not name %s", err, key)
			}
		})
	}
}

func TestNewEnv(t *testing.T) {
	path := writeFile(t, t.TempDir(), ".env", "RELAYMAP_SNAP=3\nRELAYMAP_GEOIP_DB=from-dotenv.mmdb\n")
	t.Setenv("RELAYMAP_GEOIP_DB", "from-env.mmdb")

	lookup, err := newEnv(path)
	if err != nil {
		t.Fatalf("newEnv() error: %v", err)
	}
	if v, _ := lookup("RELAYMAP_SNAP"); v != "3" {
		t.Errorf("RELAYMAP_SNAP = %q, want dotenv value", v)
	}
	if v, _ := lookup("RELAYMAP_GEOIP_DB"); v != "from-env.mmdb" {
		t.Errorf("RELAYMAP_GEOIP_DB = %q, want the process environment to win", v)
	}
	if _, ok := lookup("RELAYMAP_NOT_SET_ANYWHERE"); ok {
		t.Error("lookup reported an unset variable")
	}

	if _, err := newEnv(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Errorf("missing dotenv: %v", err)
	}
}

func TestLoadConfigPrecedence(t *testing.T) {
	path := writeFile(t, t.TempDir(), "relaymap.toml", `
output_dir = "from-file"
geoip_db = "file.mmdb"
snap = 2.0
width = 800.0
`)
	t.Setenv("RELAYMAP_SNAP", "3")
	t.Setenv("RELAYMAP_GEOIP_DB", "env.mmdb")

	cmd := &cobra.Command{Use: "run"}
	var f runFlags
	f.bind(cmd)
	if err := cmd.ParseFlags([]string{"--config", path, "--geoip-db", "flag.mmdb"}); err != nil {
		t.Fatal(err)
	}

	c := New(&bytes.Buffer{}, LogInfo)
	cfg, err := c.loadConfig(cmd, &f)
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if cfg.OutputDir != "from-file" {
		t.Errorf("OutputDir = %q, want file value", cfg.OutputDir)
	}
	if cfg.Snap != 3 {
		t.Errorf("Snap = %v, want env value", cfg.Snap)
	}
	if cfg.GeoDB != "flag.mmdb" {
		t.Errorf("GeoDB = %q, want flag value", cfg.GeoDB)
	}
	if cfg.Width != 800 {
		t.Errorf("Width = %v, want file value", cfg.Width)
	}
	if cfg.Height != 0 {
		t.Errorf("Height = %v; unset flags must not override", cfg.Height)
	}
}
