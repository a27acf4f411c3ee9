package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-dedupe/internal/review"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Plan and complete review batches",
	Long: `Work through duplicate groups in reviewable batches.

A batch is either one large group or a run of small consecutive groups.
Groups already reviewed stay on cooldown and are skipped until it expires;
groups marked permanent never come back.`,
}

var batchNextCmd = &cobra.Command{
	Use:   "next",
	Short: "Plan the next review batch for an owner",
	RunE:  runBatchNext,
}

var batchDoneCmd = &cobra.Command{
	Use:   "done",
	Short: "Mark reviewed groups as processed",
	RunE:  runBatchDone,
}

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.AddCommand(batchNextCmd)
	batchCmd.AddCommand(batchDoneCmd)

	batchNextCmd.Flags().String("owner", "", "Owner identifier for checkpoint tracking")
	batchNextCmd.Flags().StringSlice("exclude", nil, "Group IDs to skip in this batch")
	batchNextCmd.Flags().String("dir", "", "Photo directory to scan (defaults to PHOTOS_DIR)")
	batchNextCmd.Flags().Bool("json", false, "Output as JSON")
	_ = batchNextCmd.MarkFlagRequired("owner")

	batchDoneCmd.Flags().StringSlice("groups", nil, "Group IDs to mark as processed")
	batchDoneCmd.Flags().Bool("permanent", false, "Never offer these groups again")
	_ = batchDoneCmd.MarkFlagRequired("groups")
}

func runBatchNext(cmd *cobra.Command, args []string) error {
	owner := mustGetString(cmd, "owner")
	exclude := mustGetStringSlice(cmd, "exclude")
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

	batch, err := deps.engine.NextBatch(ctx, owner, result.Groups, exclude)
	if err != nil {
		return fmt.Errorf("failed to plan batch: %w", err)
	}

	if jsonOutput {
		return outputJSON(batch)
	}
	if batch == nil {
		fmt.Println("Nothing to review: all groups are processed or on cooldown")
		return nil
	}
	printBatch(batch)
	return nil
}

func runBatchDone(cmd *cobra.Command, args []string) error {
	groups := mustGetStringSlice(cmd, "groups")
	permanent := mustGetBool(cmd, "permanent")

	deps, err := initStoreApp()
	if err != nil {
		return err
	}
	defer deps.Close()

	if err := deps.engine.MarkProcessed(context.Background(), groups, permanent); err != nil {
		return fmt.Errorf("failed to mark groups: %w", err)
	}

	if permanent {
		fmt.Printf("Marked %d groups as permanently processed\n", len(groups))
	} else {
		fmt.Printf("Marked %d groups as processed\n", len(groups))
	}
	return nil
}

func printBatch(batch *review.Batch) {
	fmt.Printf("Batch of %d groups (%d photos):\n\n", len(batch.GroupIDs), len(batch.Photos))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GROUP\tPHOTOS\tTAKEN")
	fmt.Fprintln(w, "-----\t------\t-----")
	for k, id := range batch.GroupIDs {
		photos := batch.GroupPhotos(k)
		taken := ""
		if len(photos) > 0 {
			taken = time.UnixMilli(photos[0].TimestampMs).Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", id, len(photos), taken)
	}
	w.Flush()
}
