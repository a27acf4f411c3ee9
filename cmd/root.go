package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "photo-dedupe",
	Short: "A CLI tool for finding and reviewing near-duplicate photos",
	Long: `Photo Dedupe scans a photo library for bursts, re-edits and other
near-duplicates. It fingerprints photos with a perceptual hash, clusters
them by capture time and visual similarity, and plans review batches so
duplicates can be cleaned up group by group.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
