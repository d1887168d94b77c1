package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/summarize/internal/cache"
	"github.com/jmylchreest/summarize/internal/config"
	"github.com/jmylchreest/summarize/internal/mediacache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the local caches",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print metadata and media cache statistics",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return printCacheStats(cfg)
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached metadata, media, and slides",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return clearCaches(cfg)
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

// openMetaCache opens the metadata store regardless of the enabled flag so
// stats and clear work on a disabled-but-populated cache.
func openMetaCache(cfg *config.Config) (*cache.Store, error) {
	path, err := cfg.CachePath()
	if err != nil {
		return nil, err
	}
	return cache.Open(path, cache.Options{})
}

func openMediaCache(cfg *config.Config) (*mediacache.Cache, error) {
	dir, err := cfg.MediaCachePath()
	if err != nil {
		return nil, err
	}
	return mediacache.Open(dir, mediacache.Options{})
}

func printCacheStats(cfg *config.Config) error {
	meta, err := openMetaCache(cfg)
	if err != nil {
		return fmt.Errorf("opening metadata cache: %w", err)
	}
	defer meta.Close()

	stats, err := meta.Stats()
	if err != nil {
		return fmt.Errorf("reading metadata cache stats: %w", err)
	}

	fmt.Printf("metadata: %d entries, %s\n", stats.Entries, formatBytes(stats.TotalBytes))
	namespaces := make([]string, 0, len(stats.Namespaces))
	for ns := range stats.Namespaces {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)
	for _, ns := range namespaces {
		fmt.Printf("  %-12s %d\n", ns, stats.Namespaces[ns])
	}

	media, err := openMediaCache(cfg)
	if err != nil {
		return fmt.Errorf("opening media cache: %w", err)
	}
	ms := media.Stats()
	fmt.Printf("media:    %d entries, %s\n", ms.Entries, formatBytes(ms.TotalBytes))
	return nil
}

func clearCaches(cfg *config.Config) error {
	meta, err := openMetaCache(cfg)
	if err != nil {
		return fmt.Errorf("opening metadata cache: %w", err)
	}
	defer meta.Close()
	if err := meta.Clear(); err != nil {
		return fmt.Errorf("clearing metadata cache: %w", err)
	}

	media, err := openMediaCache(cfg)
	if err != nil {
		return fmt.Errorf("opening media cache: %w", err)
	}
	if err := media.Clear(); err != nil {
		return fmt.Errorf("clearing media cache: %w", err)
	}

	slidesDir, err := cfg.SlidesDir()
	if err != nil {
		return err
	}
	if err := os.RemoveAll(slidesDir); err != nil {
		return fmt.Errorf("clearing slides: %w", err)
	}

	fmt.Println("caches cleared")
	return nil
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GiB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
