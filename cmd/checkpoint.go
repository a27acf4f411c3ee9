package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-dedupe/internal/review"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect or clear saved review positions",
	Long: `A checkpoint remembers where an owner stopped reviewing a batch.

Showing a checkpoint re-runs detection and resolves the saved group IDs
against the current library, so groups that were processed or vanished in
the meantime are dropped from the restored batch.`,
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the restored batch for an owner",
	RunE:  runCheckpointShow,
}

var checkpointClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard an owner's checkpoint",
	RunE:  runCheckpointClear,
}

func init() {
	rootCmd.AddCommand(checkpointCmd)
	checkpointCmd.AddCommand(checkpointShowCmd)
	checkpointCmd.AddCommand(checkpointClearCmd)

	checkpointShowCmd.Flags().String("owner", "", "Owner identifier")
	checkpointShowCmd.Flags().String("dir", "", "Photo directory to scan (defaults to PHOTOS_DIR)")
	checkpointShowCmd.Flags().Bool("json", false, "Output as JSON")
	_ = checkpointShowCmd.MarkFlagRequired("owner")

	checkpointClearCmd.Flags().String("owner", "", "Owner identifier")
	_ = checkpointClearCmd.MarkFlagRequired("owner")
}

// CheckpointOutput is the JSON output of checkpoint show.
type CheckpointOutput struct {
	Batch        *review.Batch `json:"batch"`
	CurrentIndex int           `json:"current_index"`
}

func runCheckpointShow(cmd *cobra.Command, args []string) error {
	owner := mustGetString(cmd, "owner")
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
	if !jsonOutput {
		fmt.Println("Detecting duplicate groups...")
	}
	result, err := deps.engine.Detect(ctx, photos, nil)
	if err != nil {
		return fmt.Errorf("detection failed: %w", err)
	}

	batch, index, err := deps.engine.GetCheckpoint(ctx, owner, result.Groups)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}

	if jsonOutput {
		return outputJSON(CheckpointOutput{Batch: batch, CurrentIndex: index})
	}
	if batch == nil {
		fmt.Printf("No checkpoint found for owner %q\n", owner)
		return nil
	}

	fmt.Printf("Checkpoint for %q at photo %d of %d\n\n", owner, index+1, len(batch.Photos))
	printBatch(batch)
	return nil
}

func runCheckpointClear(cmd *cobra.Command, args []string) error {
	owner := mustGetString(cmd, "owner")

	deps, err := initStoreApp()
	if err != nil {
		return err
	}
	defer deps.Close()

	if err := deps.engine.ClearCheckpoint(context.Background(), owner); err != nil {
		return fmt.Errorf("failed to clear checkpoint: %w", err)
	}

	fmt.Printf("Checkpoint cleared for owner %q\n", owner)
	return nil
}
