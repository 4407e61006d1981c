package cli

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the directory response cache",
		Long: `Manage the directory response cache.

relaymap keeps the last body and Last-Modified stamp of every directory page
so the next run can send a conditional request. Clearing the cache forces a
full download on the next run.

The directory is taken from cache_dir in the config file or from
RELAYMAP_CACHE_DIR, as for a run; otherwise the XDG cache directory is used.`,
	}

	var f runFlags
	cmd.PersistentFlags().StringVar(&f.config, "config", "", "config file (default ./"+defaultConfigFile+" if present)")

	cmd.AddCommand(c.cacheClearCommand(&f))
	cmd.AddCommand(c.cachePathCommand(&f))

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand(f *runFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all cached directory responses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := c.configuredCacheDir(cmd, f)
			if err != nil {
				return err
			}

			count, err := clearCache(dir)
			if err != nil {
				return fmt.Errorf("clear cache %s: %w", dir, err)
			}
			if count == 0 {
				printInfo("Cache is empty")
				return nil
			}
			printSuccess("Cleared %d cached entries", count)
			printDetail("Directory: %s", dir)
			return nil
		},
	}
}

// clearCache removes every cache entry under dir and the emptied
// subdirectories, and returns the number of entries removed. dir itself is
// kept. A missing dir is an empty cache.
func clearCache(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	count := 0
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if e.IsDir() {
			filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
				if err == nil && !d.IsDir() && strings.HasSuffix(p, ".json") {
					count++
				}
				return nil
			})
		} else if strings.HasSuffix(path, ".json") {
			count++
		}
		if err := os.RemoveAll(path); err != nil {
			return count, err
		}
	}
	return count, nil
}

// configuredCacheDir returns the cache directory a run with the same config
// file and environment would use.
func (c *CLI) configuredCacheDir(cmd *cobra.Command, f *runFlags) (string, error) {
	cfg, err := c.loadConfig(cmd, f)
	if err != nil {
		return "", err
	}
	if cfg.CacheDir != "" {
		return cfg.CacheDir, nil
	}
	dir, err := cacheDir()
	if err != nil {
		return "", fmt.Errorf("get cache dir: %w", err)
	}
	return dir, nil
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand(f *runFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := c.configuredCacheDir(cmd, f)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), dir)
			return nil
		},
	}
}
