package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-dedupe/internal/photo"
	"github.com/kozaktomas/photo-dedupe/internal/similarity"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Find near-duplicate photo groups",
	Long: `Scan a photo library and cluster near-duplicates into groups.

Photos are paired by capture time, dimensions, file size and folder, then
confirmed with a perceptual hash. Fingerprints are cached in the store, so
repeated runs only hash photos that appeared since the last run.

Examples:
  # Detect duplicates in a directory
  photo-dedupe detect --dir ~/Pictures

  # Machine-readable output
  photo-dedupe detect --dir ~/Pictures --json`,
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)

	detectCmd.Flags().String("dir", "", "Photo directory to scan (defaults to PHOTOS_DIR)")
	detectCmd.Flags().Bool("json", false, "Output as JSON")
}

// DetectOutput is the JSON output of a detection run.
type DetectOutput struct {
	Groups      []similarity.Group `json:"groups"`
	Orphans     []photo.Photo      `json:"orphans"`
	GroupCount  int                `json:"group_count"`
	OrphanCount int                `json:"orphan_count"`
}

func runDetect(cmd *cobra.Command, args []string) error {
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
		fmt.Printf("Found %d photos\n", len(photos))
	}

	bar := newDetectProgressBar(jsonOutput)
	var progress similarity.ProgressFunc
	if bar != nil {
		progress = func(stage similarity.Stage, fraction float64) {
			bar.Describe(stageLabel(stage))
			_ = bar.Set(int(fraction * 100))
		}
	}

	result, err := deps.engine.Detect(ctx, photos, progress)
	if err != nil {
		return fmt.Errorf("detection failed: %w", err)
	}
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}

	if jsonOutput {
		return outputJSON(DetectOutput{
			Groups:      result.Groups,
			Orphans:     result.Orphans,
			GroupCount:  len(result.Groups),
			OrphanCount: len(result.Orphans),
		})
	}

	printDetectResult(result)
	return nil
}

// newDetectProgressBar creates a percentage bar for the pipeline, or nil
// for JSON output.
func newDetectProgressBar(jsonOutput bool) *progressbar.ProgressBar {
	if jsonOutput {
		return nil
	}
	return progressbar.NewOptions(100,
		progressbar.OptionSetDescription("Starting"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func stageLabel(stage similarity.Stage) string {
	switch stage {
	case similarity.StageStarting:
		return "Scanning candidates"
	case similarity.StageFingerprinting:
		return "Computing fingerprints"
	case similarity.StageClustering:
		return "Clustering"
	case similarity.StageCollecting:
		return "Collecting groups"
	case similarity.StageSaving:
		return "Saving"
	default:
		return "Done"
	}
}

func printDetectResult(result *similarity.Result) {
	if len(result.Groups) == 0 {
		fmt.Println("No duplicate groups found")
		return
	}

	total := 0
	for _, g := range result.Groups {
		total += len(g.Photos)
	}
	fmt.Printf("\nFound %d duplicate groups covering %d photos (%d photos stand alone):\n\n",
		len(result.Groups), total, len(result.Orphans))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GROUP\tPHOTOS\tSTART\tSPAN")
	fmt.Fprintln(w, "-----\t------\t-----\t----")
	for _, g := range result.Groups {
		start := time.UnixMilli(g.StartMs).Format("2006-01-02 15:04:05")
		span := time.Duration(g.EndMs-g.StartMs) * time.Millisecond
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", g.ID, len(g.Photos), start, span.Round(time.Second))
	}
	w.Flush()
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
