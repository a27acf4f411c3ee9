package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Fingerprint cache and cooldown upkeep",
	Long: `Inspect and maintain the persistent state behind detection.

Fingerprints survive between runs so unchanged photos are never hashed
twice. Cleanup drops fingerprints and cooldowns that refer to photos no
longer present in the library, plus cooldowns that already expired.`,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show fingerprint cache statistics",
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop all cached fingerprints",
	RunE:  runCacheClear,
}

var cacheCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove stale fingerprints and cooldowns",
	RunE:  runCacheCleanup,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheCleanupCmd)

	cacheStatsCmd.Flags().Bool("json", false, "Output as JSON")

	cacheCleanupCmd.Flags().String("dir", "", "Photo directory to scan (defaults to PHOTOS_DIR)")
	cacheCleanupCmd.Flags().Bool("json", false, "Output as JSON")
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	deps, err := initStoreApp()
	if err != nil {
		return err
	}
	defer deps.Close()

	stats, err := deps.engine.FingerprintStats(context.Background())
	if err != nil {
		return fmt.Errorf("failed to read cache stats: %w", err)
	}

	if jsonOutput {
		return outputJSON(stats)
	}

	fmt.Printf("Cached fingerprints: %d\n", stats.Entries)
	fmt.Printf("Failed photos:       %d\n", stats.Failed)
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	deps, err := initStoreApp()
	if err != nil {
		return err
	}
	defer deps.Close()

	if err := deps.engine.ClearFingerprints(context.Background()); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}

	fmt.Println("Fingerprint cache cleared")
	return nil
}

func runCacheCleanup(cmd *cobra.Command, args []string) error {
	dir := mustGetString(cmd, "dir")
	jsonOutput := mustGetBool(cmd, "json")

	deps, err := initApp(dir)
	if err != nil {
		return err
	}
	defer deps.Close()

	ctx := context.Background()

	photos, err := deps.photos.ListPhotos(ctx)
	if err != nil {
		return fmt.Errorf("failed to list photos: %w", err)
	}
	valid := make(map[int64]bool, len(photos))
	for _, p := range photos {
		valid[p.ID] = true
	}

	stats, err := deps.engine.CleanupStale(ctx, valid)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	if jsonOutput {
		return outputJSON(stats)
	}

	fmt.Printf("Removed %d stale fingerprints and %d stale cooldowns\n",
		stats.Fingerprints, stats.Cooldowns)
	return nil
}
