// Package cli implements the relaymap command-line interface.
package cli

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/relaymap/pkg/buildinfo"
	"github.com/matzehuels/relaymap/pkg/cache"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "relaymap"

	// envPrefix prefixes every environment override.
	envPrefix = "RELAYMAP_"

	// defaultConfigFile is read from the working directory when present.
	defaultConfigFile = "relaymap.toml"

	// defaultDotEnv is read from the working directory when present.
	defaultDotEnv = ".env"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
// The root command itself performs one run, exactly like "relaymap run".
func (c *CLI) RootCommand() *cobra.Command {
	run := c.runCommand()

	root := &cobra.Command{
		Use:   appName,
		Short: "relaymap lists Tor relays by role and maps where they are",
		Long: `relaymap fetches the running relays from an Onionoo directory, writes
all.csv, guards.csv and exits.csv, and draws map.svg from an offline
geolocation database.

Run it from a scheduler; every run replaces the outputs atomically and an
unchanged relay set produces byte-identical files.`,
		Version:      buildinfo.Version,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         run.RunE,
	}
	root.SetVersionTemplate(buildinfo.Template())
	root.Flags().AddFlagSet(run.Flags())

	// Register all subcommands
	root.AddCommand(run)
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.versionCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Cache Factory
// =============================================================================

// newCache opens the response cache. dir overrides the default location.
// A cache that cannot be created is reported and disabled; it only saves
// bandwidth.
func (c *CLI) newCache(noCache bool, dir string) cache.Cache {
	if noCache {
		return cache.NewNullCache()
	}
	if dir == "" {
		var err error
		if dir, err = cacheDir(); err != nil {
			c.Logger.Warn("response cache disabled", "err", err)
			return cache.NewNullCache()
		}
	}
	fc, err := cache.NewFileCache(dir)
	if err != nil {
		c.Logger.Warn("response cache disabled", "dir", dir, "err", err)
		return cache.NewNullCache()
	}
	return fc
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the cache directory using XDG standard (~/.cache/relaymap/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}
