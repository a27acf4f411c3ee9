// Package engine is the facade over detection and review: one object that
// the CLI and the web API construct, wiring the fingerprint cache, the
// similarity detector, the cooldown tracker and checkpoints to a shared
// key-value store.
package engine

import (
	"context"
	"time"

	"github.com/kozaktomas/photo-dedupe/internal/fingerprint"
	"github.com/kozaktomas/photo-dedupe/internal/kv"
	"github.com/kozaktomas/photo-dedupe/internal/photo"
	"github.com/kozaktomas/photo-dedupe/internal/review"
	"github.com/kozaktomas/photo-dedupe/internal/similarity"
)

// Options configures an Engine. Store and Source are required; zero
// durations select the package defaults (5 min results, 24 h image
// cooldown, 7 days group cooldown).
type Options struct {
	Store     kv.Store
	Source    fingerprint.Source
	ResultTTL time.Duration
	ImageTTL  time.Duration
	GroupTTL  time.Duration
}

// Engine exposes the detection and review operations as one surface.
type Engine struct {
	detector     *similarity.Detector
	results      *similarity.ResultCache
	fingerprints *fingerprint.Cache
	tracker      *review.Tracker
	checkpoints  *review.CheckpointStore
}

// New creates an engine over the given store and pixel source.
func New(opts Options) *Engine {
	fpCache := fingerprint.NewCache(opts.Store)
	scorer := similarity.NewScorer(similarity.DefaultThresholds())

	return &Engine{
		detector:     similarity.NewDetector(fingerprint.NewComputer(), fpCache, opts.Source, scorer),
		results:      similarity.NewResultCache(opts.ResultTTL),
		fingerprints: fpCache,
		tracker:      review.NewTracker(opts.Store, opts.ImageTTL, opts.GroupTTL),
		checkpoints:  review.NewCheckpointStore(opts.Store),
	}
}

// Detect runs duplicate detection over the photos. A result from the last
// few minutes is served from memory; InvalidateResults forces a fresh run
// when the photo set changed.
func (e *Engine) Detect(ctx context.Context, photos []photo.Photo, progress similarity.ProgressFunc) (*similarity.Result, error) {
	if res := e.results.Get(); res != nil {
		if progress != nil {
			progress(similarity.StageDone, 1.0)
		}
		return res, nil
	}

	res, err := e.detector.Detect(ctx, photos, progress)
	if err != nil {
		return nil, err
	}
	e.results.Set(res)
	return res, nil
}

// InvalidateResults drops the cached detection result.
func (e *Engine) InvalidateResults() {
	e.results.Invalidate()
}

// CachedResult returns the detection result still inside its validity
// window, or nil when none is available.
func (e *Engine) CachedResult() *similarity.Result {
	return e.results.Get()
}

// NextBatch returns the batch an owner should review next. An owner with a
// live checkpoint keeps getting that batch until it is finished or cleared;
// otherwise a fresh batch is planned from the groups not cooling down and
// not explicitly excluded. Returns nil when nothing is eligible.
func (e *Engine) NextBatch(ctx context.Context, ownerID string, groups []similarity.Group, excludeIDs []string) (*review.Batch, error) {
	if ownerID != "" {
		restored, _, err := e.checkpoints.Restore(ctx, ownerID, groups, e.tracker)
		if err != nil {
			return nil, err
		}
		if restored != nil {
			return restored, nil
		}
	}

	available, err := e.tracker.FilterAvailable(ctx, groups)
	if err != nil {
		return nil, err
	}
	if len(excludeIDs) > 0 {
		excluded := make(map[string]bool, len(excludeIDs))
		for _, id := range excludeIDs {
			excluded[id] = true
		}
		kept := available[:0]
		for _, g := range available {
			if !excluded[g.ID] {
				kept = append(kept, g)
			}
		}
		available = kept
	}
	return review.PlanBatch(available), nil
}

// MarkProcessed puts groups on cooldown, permanently when the reviewer
// resolved them for good.
func (e *Engine) MarkProcessed(ctx context.Context, groupIDs []string, permanent bool) error {
	return e.tracker.MarkProcessed(ctx, groupIDs, permanent)
}

// PickImages selects up to count photos honoring per-image cooldowns.
func (e *Engine) PickImages(ctx context.Context, candidates []photo.Photo, count int) ([]photo.Photo, error) {
	return e.tracker.PickImages(ctx, candidates, count)
}

// SaveCheckpoint stores where an owner stopped inside their batch.
func (e *Engine) SaveCheckpoint(ctx context.Context, ownerID string, groupIDs []string, currentIndex int) error {
	return e.checkpoints.Save(ctx, review.Checkpoint{
		OwnerID:      ownerID,
		GroupIDs:     groupIDs,
		CurrentIndex: currentIndex,
	})
}

// GetCheckpoint rebuilds the owner's saved batch against the current group
// set and returns it with the clamped resume index. Both are zero when no
// usable checkpoint remains.
func (e *Engine) GetCheckpoint(ctx context.Context, ownerID string, groups []similarity.Group) (*review.Batch, int, error) {
	return e.checkpoints.Restore(ctx, ownerID, groups, e.tracker)
}

// ClearCheckpoint removes the owner's checkpoint.
func (e *Engine) ClearCheckpoint(ctx context.Context, ownerID string) error {
	return e.checkpoints.Clear(ctx, ownerID)
}

// CleanupStats reports what a maintenance pass removed.
type CleanupStats struct {
	Fingerprints int `json:"fingerprints"`
	Cooldowns    int `json:"cooldowns"`
}

// CleanupStale prunes fingerprints and cooldown records that refer to
// photos outside the valid set, plus expired cooldowns.
func (e *Engine) CleanupStale(ctx context.Context, validPhotoIDs map[int64]bool) (CleanupStats, error) {
	var stats CleanupStats

	fp, err := e.fingerprints.CleanupStale(ctx, validPhotoIDs)
	if err != nil {
		return stats, err
	}
	stats.Fingerprints = fp

	cd, err := e.tracker.CleanupStale(ctx, validPhotoIDs)
	if err != nil {
		return stats, err
	}
	stats.Cooldowns = cd
	return stats, nil
}

// FingerprintStats summarizes the fingerprint cache.
func (e *Engine) FingerprintStats(ctx context.Context) (fingerprint.Stats, error) {
	return e.fingerprints.CollectStats(ctx)
}

// ClearFingerprints wipes the fingerprint cache, re-enabling computation
// for permanently failed photos.
func (e *Engine) ClearFingerprints(ctx context.Context) error {
	if err := e.fingerprints.Clear(ctx); err != nil {
		return err
	}
	e.results.Invalidate()
	return nil
}
